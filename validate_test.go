package qbroker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSelectionWithinLimit(t *testing.T) {
	req := &BrokerRequest{Selections: &Selection{Size: 10}}
	assert.NoError(t, Validate(req, 100))
}

func TestValidateSelectionExceedsLimit(t *testing.T) {
	req := &BrokerRequest{Selections: &Selection{Size: 200}}
	err := Validate(req, 100)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "LIMIT value 200 exceeded maximum allowed value of 100")
}

func TestValidateGroupByTopNExceedsLimit(t *testing.T) {
	req := &BrokerRequest{
		AggregationInfo: []AggregationInfo{{Function: AggSum}},
		GroupBy:         &GroupBy{TopN: 500},
	}
	err := Validate(req, 100)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "TOP value 500 exceeded maximum allowed value of 100")
}

func TestValidateGroupByWithinLimit(t *testing.T) {
	req := &BrokerRequest{
		AggregationInfo: []AggregationInfo{{Function: AggSum}},
		GroupBy:         &GroupBy{TopN: 10},
	}
	assert.NoError(t, Validate(req, 100))
}

func TestValidateGroupByClampsNonPositiveTopN(t *testing.T) {
	req := &BrokerRequest{
		AggregationInfo: []AggregationInfo{{Function: AggSum}},
		GroupBy:         &GroupBy{TopN: 0},
	}
	assert.NoError(t, Validate(req, 100))
	assert.Equal(t, 100, req.GroupBy.TopN, "a non-positive TopN must be clamped to the response limit, not treated as unbounded")
}

func TestOptimizeSimplifiesSingleChildConjunction(t *testing.T) {
	leaf := &FilterQuery{Id: 1, Operator: FilterEqual, Column: "a", Value: []string{"1"}}
	root := &FilterQuery{Id: 2, Operator: FilterAnd, Children: []int{1}}
	req := &BrokerRequest{
		FilterQuery: root,
		FilterSubQuery: &FilterSubQueryMap{
			RootId:  2,
			Filters: map[int]*FilterQuery{1: leaf, 2: root},
		},
	}

	optimized := Optimize(req)
	assert.Equal(t, FilterEqual, optimized.FilterQuery.Operator)
	assert.Equal(t, "a", optimized.FilterQuery.Column)
}

func TestOptimizeIsIdempotent(t *testing.T) {
	leaf := &FilterQuery{Id: 1, Operator: FilterEqual, Column: "a", Value: []string{"1"}}
	root := &FilterQuery{Id: 2, Operator: FilterAnd, Children: []int{1}}
	req := &BrokerRequest{
		FilterQuery: root,
		FilterSubQuery: &FilterSubQueryMap{
			RootId:  2,
			Filters: map[int]*FilterQuery{1: leaf, 2: root},
		},
	}

	once := Optimize(req)
	twice := Optimize(once)
	assert.Equal(t, once.FilterQuery.Operator, twice.FilterQuery.Operator)
	assert.Equal(t, once.FilterQuery.Column, twice.FilterQuery.Column)
}

func TestOptimizeLeavesMultiChildConjunctionAlone(t *testing.T) {
	leaf1 := &FilterQuery{Id: 1, Operator: FilterEqual, Column: "a"}
	leaf2 := &FilterQuery{Id: 2, Operator: FilterEqual, Column: "b"}
	root := &FilterQuery{Id: 3, Operator: FilterAnd, Children: []int{1, 2}}
	req := &BrokerRequest{
		FilterQuery: root,
		FilterSubQuery: &FilterSubQueryMap{
			RootId:  3,
			Filters: map[int]*FilterQuery{1: leaf1, 2: leaf2, 3: root},
		},
	}

	optimized := Optimize(req)
	assert.Equal(t, FilterAnd, optimized.FilterQuery.Operator)
	assert.Len(t, optimized.FilterQuery.Children, 2)
}
