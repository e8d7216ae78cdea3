package reduce

import (
	"github.com/codahale/hdrhistogram"
	"github.com/retailnext/hllpp"

	"github.com/getlantern/qbroker"
)

// AvgAccumulator is the OBJECT-column value servers return for an AVG
// aggregation: sum and count travel together so the broker can recombine
// them into a true average instead of averaging per-server averages
// (grounded on the teacher's expr.avgAccumulator, which carries the same
// two fields for exactly the same reason).
type AvgAccumulator struct {
	Sum   float64
	Count int64
}

// combine reduces one aggregation function's per-server values - each
// server contributes exactly one value per function (spec §4.9's
// "shuffled" column, BrokerReduceService#shuffleAggregationResults) - into
// the single merged result.
func combine(info qbroker.AggregationInfo, values []interface{}) interface{} {
	if len(values) == 0 {
		return nil
	}
	switch info.Function {
	case qbroker.AggSum:
		var total float64
		for _, v := range values {
			total += toFloat(v)
		}
		return total
	case qbroker.AggMin:
		min := toFloat(values[0])
		for _, v := range values[1:] {
			if f := toFloat(v); f < min {
				min = f
			}
		}
		return min
	case qbroker.AggMax:
		max := toFloat(values[0])
		for _, v := range values[1:] {
			if f := toFloat(v); f > max {
				max = f
			}
		}
		return max
	case qbroker.AggCount:
		var total int64
		for _, v := range values {
			total += toInt(v)
		}
		return total
	case qbroker.AggAvg:
		var sum float64
		var count int64
		for _, v := range values {
			if acc, ok := v.(*AvgAccumulator); ok {
				sum += acc.Sum
				count += acc.Count
			}
		}
		if count == 0 {
			return 0.0
		}
		return sum / float64(count)
	case qbroker.AggDistinctCount:
		merged := hllpp.New()
		for _, v := range values {
			if h, ok := v.(*hllpp.HLLPP); ok {
				merged.Merge(h)
			}
		}
		return int64(merged.Count())
	case qbroker.AggPercentile:
		return combinePercentile(values, info.Percentile)
	default:
		return nil
	}
}

func combinePercentile(values []interface{}, percentile float64) interface{} {
	var merged *hdrhistogram.Histogram
	for _, v := range values {
		h, ok := v.(*hdrhistogram.Histogram)
		if !ok {
			continue
		}
		if merged == nil {
			merged = hdrhistogram.New(h.LowestTrackableValue(), h.HighestTrackableValue(), 3)
		}
		merged.Merge(h)
	}
	if merged == nil {
		return int64(0)
	}
	return merged.ValueAtQuantile(percentile)
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func toInt(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}
