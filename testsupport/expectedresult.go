// Package testsupport provides assertion helpers for BrokerResponse,
// following the teacher's ExpectedResult pattern (testsupport/
// expectedresult.go): t.Helper()-driven assertion functions that take the
// expected selection rows, aggregation results or exception state
// declaratively and report every mismatch they find.
package testsupport

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/getlantern/qbroker/reduce"
)

// ExpectedSelectionRow is one expected row of a selection query's result,
// compared by column name rather than position so reordered columns don't
// break the expectation.
type ExpectedSelectionRow map[string]interface{}

// AssertSelection asserts that resp's SelectionResults match the expected
// rows in order, comparing by column name.
func AssertSelection(t *testing.T, label string, resp *reduce.BrokerResponse, expected []ExpectedSelectionRow) bool {
	t.Helper()
	if !assert.NotNil(t, resp.SelectionResults, label+" | expected selection results") {
		return false
	}
	if !assert.Len(t, resp.SelectionResults.Rows, len(expected), label+" | wrong number of rows") {
		return false
	}
	ok := true
	for i, erow := range expected {
		row := resp.SelectionResults.Rows[i]
		for col, want := range erow {
			idx := indexOf(resp.SelectionResults.Columns, col)
			if !assert.GreaterOrEqual(t, idx, 0, label+" | row %d missing column %v", i, col) {
				ok = false
				continue
			}
			if !assert.Equal(t, want, row[idx], label+" | row %d column %v", i, col) {
				ok = false
			}
		}
	}
	return ok
}

// AssertAggregation asserts that resp's AggregationResults contain exactly
// one result per (function, value) pair given, in order.
func AssertAggregation(t *testing.T, label string, resp *reduce.BrokerResponse, expected []reduce.AggregationResult) bool {
	t.Helper()
	if !assert.Len(t, resp.AggregationResults, len(expected), label+" | wrong number of aggregations") {
		return false
	}
	ok := true
	for i, want := range expected {
		got := resp.AggregationResults[i]
		if !assert.Equal(t, want.Function, got.Function, label+" | aggregation %d function", i) {
			ok = false
		}
		if !assert.Equal(t, want.Value, got.Value, label+" | aggregation %d value", i) {
			ok = false
		}
	}
	return ok
}

// AssertNoExceptions asserts that resp carries no ProcessingExceptions.
func AssertNoExceptions(t *testing.T, label string, resp *reduce.BrokerResponse) bool {
	t.Helper()
	return assert.Empty(t, resp.Exceptions, label+" | unexpected exceptions: %v", resp.Exceptions)
}

func indexOf(columns []string, name string) int {
	for i, c := range columns {
		if c == name {
			return i
		}
	}
	return -1
}
