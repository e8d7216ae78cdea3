package qbroker

import "strconv"

// Validate rejects requests whose declared result size would exceed the
// configured response limit (spec §4.1, C1). It mirrors
// BrokerRequestHandler.validateRequest: group-by queries are checked against
// their top-N, everything else against the selection size.
func Validate(req *BrokerRequest, responseLimit int) error {
	if req.IsGroupBy() {
		topN := req.GroupBy.TopN
		if topN > responseLimit {
			return &QueryValidationError{Message: formatLimitMessage("TOP", topN, responseLimit)}
		}
		if topN <= 0 {
			// A non-positive TopN has no meaning as "no limit" here: the
			// reducer would otherwise return every group with no cap at all,
			// defeating the response-limit guard this function exists to
			// enforce. Clamp it to the configured ceiling instead of
			// rejecting the request outright.
			req.GroupBy.TopN = responseLimit
		}
		return nil
	}
	if req.Selections != nil {
		size := req.Selections.Size
		if size > responseLimit {
			return &QueryValidationError{Message: formatLimitMessage("LIMIT", size, responseLimit)}
		}
	}
	return nil
}

func formatLimitMessage(clause string, requested, limit int) string {
	return clause + " value " + strconv.Itoa(requested) + " exceeded maximum allowed value of " + strconv.Itoa(limit)
}

// Optimize performs an idempotent structural rewrite of a request: trivial
// filter simplification and clause normalization (spec §4.1, C1). The
// contract is Optimize(Optimize(r)) == Optimize(r) and semantic equivalence
// with the input for all server states.
//
// Optimize returns a new request; the input is never mutated.
func Optimize(req *BrokerRequest) *BrokerRequest {
	cp := req.DeepCopy()
	if cp.FilterSubQuery != nil && cp.FilterQuery != nil {
		newRoot := simplifyFilter(cp.FilterSubQuery, cp.FilterQuery)
		cp.FilterQuery = newRoot
		cp.FilterSubQuery.RootId = newRoot.Id
	}
	return cp
}

// simplifyFilter collapses AND/OR nodes that have exactly one child into
// that child, recursively, leaving everything else untouched. This is safe
// because AND/OR of a single operand is semantically identical to the
// operand itself, and is idempotent: a tree with no single-child AND/OR
// nodes is a fixed point.
func simplifyFilter(m *FilterSubQueryMap, node *FilterQuery) *FilterQuery {
	if node == nil {
		return nil
	}
	if (node.Operator == FilterAnd || node.Operator == FilterOr) && len(node.Children) == 1 {
		child := m.Filters[node.Children[0]]
		return simplifyFilter(m, child)
	}
	for i, childId := range node.Children {
		child := m.Filters[childId]
		simplified := simplifyFilter(m, child)
		node.Children[i] = simplified.Id
	}
	return node
}
