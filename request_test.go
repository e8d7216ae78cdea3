package qbroker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSelectionAndIsGroupBy(t *testing.T) {
	sel := &BrokerRequest{Selections: &Selection{}}
	assert.True(t, sel.IsSelection())
	assert.False(t, sel.IsGroupBy())

	gb := &BrokerRequest{GroupBy: &GroupBy{}}
	assert.False(t, gb.IsSelection())
	assert.True(t, gb.IsGroupBy())
}

func TestDeepCopyIsIndependent(t *testing.T) {
	root := &FilterQuery{Id: 1, Operator: FilterEqual, Column: "a", Value: []string{"x"}}
	req := &BrokerRequest{
		Selections: &Selection{Columns: []string{"a"}, SortBy: []SortColumn{{Column: "a"}}},
		FilterQuery: root,
		FilterSubQuery: &FilterSubQueryMap{
			RootId:  1,
			Filters: map[int]*FilterQuery{1: root},
		},
		DebugOptions: map[string]string{"k": "v"},
	}

	cp := req.DeepCopy()
	cp.Selections.Columns[0] = "mutated"
	cp.FilterQuery.Value[0] = "mutated"
	cp.DebugOptions["k"] = "mutated"

	assert.Equal(t, "a", req.Selections.Columns[0])
	assert.Equal(t, "x", req.FilterQuery.Value[0])
	assert.Equal(t, "v", req.DebugOptions["k"])
}

func TestFilterSubQueryMapRoot(t *testing.T) {
	var nilMap *FilterSubQueryMap
	assert.Nil(t, nilMap.Root())

	root := &FilterQuery{Id: 1}
	m := &FilterSubQueryMap{RootId: 1, Filters: map[int]*FilterQuery{1: root}}
	assert.Same(t, root, m.Root())
}

func TestNextSyntheticIdAvoidsCollisions(t *testing.T) {
	m := &FilterSubQueryMap{Filters: map[int]*FilterQuery{}}
	id1 := m.nextSyntheticId()
	assert.Equal(t, -1, id1)
	m.Filters[id1] = &FilterQuery{Id: id1}

	id2 := m.nextSyntheticId()
	assert.Equal(t, -2, id2)
}
