package routing

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/getlantern/qbroker/common"
)

func TestStaticRoutingTablePublishAndLookup(t *testing.T) {
	rt := NewStaticRoutingTable()
	assert.False(t, rt.Exists("foo_OFFLINE"))

	server := common.ServerInstance{Hostname: "s1", Port: 1234}
	rt.Publish("foo_OFFLINE", &TableSnapshot{
		Servers: map[common.ServerInstance]common.SegmentIdSet{
			server: common.NewSegmentIdSet("seg0"),
		},
	})

	assert.True(t, rt.Exists("foo_OFFLINE"))
	result := rt.Lookup("foo_OFFLINE", nil)
	assert.ElementsMatch(t, []string{"seg0"}, result[server].Names())
}

func TestStaticRoutingTableRemove(t *testing.T) {
	rt := NewStaticRoutingTable()
	rt.Publish("foo_OFFLINE", &TableSnapshot{Servers: map[common.ServerInstance]common.SegmentIdSet{}})
	assert.True(t, rt.Exists("foo_OFFLINE"))
	rt.Publish("foo_OFFLINE", nil)
	assert.False(t, rt.Exists("foo_OFFLINE"))
}

func TestStaticRoutingTableConcurrentReadWrite(t *testing.T) {
	rt := NewStaticRoutingTable()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			rt.Publish("foo_OFFLINE", &TableSnapshot{
				Servers: map[common.ServerInstance]common.SegmentIdSet{
					common.ServerInstance{Hostname: "s1", Port: i}: common.NewSegmentIdSet("seg0"),
				},
			})
		}(i)
		go func() {
			defer wg.Done()
			rt.Lookup("foo_OFFLINE", nil)
		}()
	}
	wg.Wait()
}

func TestStaticTimeBoundaryProvider(t *testing.T) {
	p := NewStaticTimeBoundaryProvider()
	assert.Nil(t, p.GetTimeBoundaryInfoFor("foo_OFFLINE"))

	p.Publish("foo_OFFLINE", &TimeBoundaryInfo{TimeColumn: "time", TimeValue: "1000"})
	info := p.GetTimeBoundaryInfoFor("foo_OFFLINE")
	assert.Equal(t, "time", info.TimeColumn)
	assert.Equal(t, "1000", info.TimeValue)

	p.Publish("foo_OFFLINE", nil)
	assert.Nil(t, p.GetTimeBoundaryInfoFor("foo_OFFLINE"))
}

func TestParseRoutingOptions(t *testing.T) {
	assert.Nil(t, ParseRoutingOptions(nil))
	assert.Nil(t, ParseRoutingOptions(map[string]string{}))
	assert.Equal(t, []string{"forceLeaf"}, ParseRoutingOptions(map[string]string{"routingOptions": "forceLeaf"}))
	assert.Equal(t, []string{"a", "b"}, ParseRoutingOptions(map[string]string{"routingOptions": "a, b ,"}))
}
