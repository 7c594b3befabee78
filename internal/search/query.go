// Package search builds composable boolean filter fragments in the
// search engine's bool-query JSON dialect. The access service only
// constructs fragments; executing them against an index is the job of
// the search consumer that receives them.
package search

import "encoding/json"

type Query interface {
	json.Marshaler
}

// Term matches documents whose field holds exactly the given value.
type Term struct {
	Field string
	Value any
}

func (q Term) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"term": map[string]any{q.Field: q.Value},
	})
}

// Range matches documents whose numeric field is at most LTE.
type Range struct {
	Field string
	LTE   int
}

func (q Range) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"range": map[string]any{q.Field: map[string]any{"lte": q.LTE}},
	})
}

// Nested applies a query to documents embedded under a nested path.
type Nested struct {
	Path  string
	Query Query
}

func (q Nested) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"nested": map[string]any{
			"path":  q.Path,
			"query": q.Query,
		},
	})
}

// Bool combines sub-queries. Filter clauses must all match, Should
// clauses are alternatives (with MinimumShouldMatch), MustNot clauses
// exclude.
type Bool struct {
	Filter             []Query
	Should             []Query
	MustNot            []Query
	MinimumShouldMatch int
}

func (q Bool) MarshalJSON() ([]byte, error) {
	body := map[string]any{}
	if len(q.Filter) > 0 {
		body["filter"] = q.Filter
	}
	if len(q.Should) > 0 {
		body["should"] = q.Should
	}
	if len(q.MustNot) > 0 {
		body["must_not"] = q.MustNot
	}
	if q.MinimumShouldMatch > 0 {
		body["minimum_should_match"] = q.MinimumShouldMatch
	}
	return json.Marshal(map[string]any{"bool": body})
}

// MatchNone matches no document at all. A user without qualifying
// grants gets this filter, never match-all.
type MatchNone struct{}

func (MatchNone) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"match_none": map[string]any{}})
}

// MatchAll matches every document.
type MatchAll struct{}

func (MatchAll) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"match_all": map[string]any{}})
}

// And combines queries conjunctively.
func And(queries ...Query) Query {
	if len(queries) == 1 {
		return queries[0]
	}
	return Bool{Filter: queries}
}

// Or combines queries disjunctively. No queries means nothing matches.
func Or(queries ...Query) Query {
	switch len(queries) {
	case 0:
		return MatchNone{}
	case 1:
		return queries[0]
	default:
		return Bool{Should: queries, MinimumShouldMatch: 1}
	}
}
