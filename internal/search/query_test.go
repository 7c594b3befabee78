package search

import (
	"encoding/json"
	"testing"
)

func marshal(t *testing.T, q Query) string {
	t.Helper()
	raw, err := json.Marshal(q)
	if err != nil {
		t.Fatalf("Unexpected marshal error: %v", err)
	}
	return string(raw)
}

func TestQueryJSON(t *testing.T) {
	testCases := []struct {
		name     string
		query    Query
		expected string
	}{
		{
			"term",
			Term{Field: "case_type.catalog", Value: "https://catalogi.example.com/catalogussen/1"},
			`{"term":{"case_type.catalog":"https://catalogi.example.com/catalogussen/1"}}`,
		},
		{
			"range",
			Range{Field: "confidentiality_order", LTE: 3},
			`{"range":{"confidentiality_order":{"lte":3}}}`,
		},
		{
			"nested",
			Nested{Path: "roles", Query: Term{Field: "roles.type", Value: "organizational_unit"}},
			`{"nested":{"path":"roles","query":{"term":{"roles.type":"organizational_unit"}}}}`,
		},
		{
			"match_none",
			MatchNone{},
			`{"match_none":{}}`,
		},
		{
			"match_all",
			MatchAll{},
			`{"match_all":{}}`,
		},
		{
			"bool filter",
			Bool{Filter: []Query{Term{Field: "a", Value: "x"}, Range{Field: "b", LTE: 1}}},
			`{"bool":{"filter":[{"term":{"a":"x"}},{"range":{"b":{"lte":1}}}]}}`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := marshal(t, tc.query); got != tc.expected {
				t.Errorf("Expected %s, got %s", tc.expected, got)
			}
		})
	}
}

func TestBoolShouldCarriesMinimumShouldMatch(t *testing.T) {
	raw := marshal(t, Or(Term{Field: "a", Value: 1}, Term{Field: "a", Value: 2}))

	var decoded map[string]map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		t.Fatalf("Unexpected unmarshal error: %v", err)
	}

	body, ok := decoded["bool"]
	if !ok {
		t.Fatalf("Expected a bool query, got %s", raw)
	}
	if got := body["minimum_should_match"]; got != float64(1) {
		t.Errorf("Expected minimum_should_match 1, got %v", got)
	}
	should, ok := body["should"].([]any)
	if !ok || len(should) != 2 {
		t.Errorf("Expected 2 should clauses, got %v", body["should"])
	}
}

func TestAndOrCollapseSingleClause(t *testing.T) {
	term := Term{Field: "a", Value: "x"}

	if got := marshal(t, And(term)); got != marshal(t, term) {
		t.Errorf("Expected And with one clause to stay %s, got %s", marshal(t, term), got)
	}
	if got := marshal(t, Or(term)); got != marshal(t, term) {
		t.Errorf("Expected Or with one clause to stay %s, got %s", marshal(t, term), got)
	}
}

func TestOrOfNothingMatchesNothing(t *testing.T) {
	if got := marshal(t, Or()); got != `{"match_none":{}}` {
		t.Errorf("Expected match_none, got %s", got)
	}
}

// evaluate interprets a marshaled query against a flat document, the
// way the search engine would. It backs the equivalence tests between
// in-process matching and generated filters.
func evaluate(t *testing.T, q Query, doc map[string]any) bool {
	t.Helper()
	raw, err := json.Marshal(q)
	if err != nil {
		t.Fatalf("Unexpected marshal error: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unexpected unmarshal error: %v", err)
	}
	return evaluateDecoded(t, decoded, doc)
}

func evaluateDecoded(t *testing.T, query map[string]any, doc map[string]any) bool {
	t.Helper()

	if _, ok := query["match_all"]; ok {
		return true
	}
	if _, ok := query["match_none"]; ok {
		return false
	}

	if term, ok := query["term"].(map[string]any); ok {
		for field, expected := range term {
			return documentValues(doc, field, expected)
		}
	}

	if rng, ok := query["range"].(map[string]any); ok {
		for field, condition := range rng {
			bounds := condition.(map[string]any)
			value, ok := doc[field].(float64)
			if !ok {
				if intValue, isInt := doc[field].(int); isInt {
					value = float64(intValue)
					ok = true
				}
			}
			return ok && value <= bounds["lte"].(float64)
		}
	}

	if nested, ok := query["nested"].(map[string]any); ok {
		path := nested["path"].(string)
		inner := nested["query"].(map[string]any)
		children, _ := doc[path].([]map[string]any)
		for _, child := range children {
			prefixed := map[string]any{}
			for key, value := range child {
				prefixed[path+"."+key] = value
			}
			if evaluateDecoded(t, inner, prefixed) {
				return true
			}
		}
		return false
	}

	if boolQuery, ok := query["bool"].(map[string]any); ok {
		if filters, ok := boolQuery["filter"].([]any); ok {
			for _, clause := range filters {
				if !evaluateDecoded(t, clause.(map[string]any), doc) {
					return false
				}
			}
		}
		if mustNot, ok := boolQuery["must_not"].([]any); ok {
			for _, clause := range mustNot {
				if evaluateDecoded(t, clause.(map[string]any), doc) {
					return false
				}
			}
		}
		if should, ok := boolQuery["should"].([]any); ok {
			matched := 0
			for _, clause := range should {
				if evaluateDecoded(t, clause.(map[string]any), doc) {
					matched++
				}
			}
			minimum := 0
			if raw, ok := boolQuery["minimum_should_match"].(float64); ok {
				minimum = int(raw)
			}
			return matched >= minimum
		}
		return true
	}

	t.Fatalf("Unsupported query shape: %v", query)
	return false
}

func documentValues(doc map[string]any, field string, expected any) bool {
	value, ok := doc[field]
	if !ok {
		return false
	}
	if list, isList := value.([]any); isList {
		for _, item := range list {
			if equalJSON(item, expected) {
				return true
			}
		}
		return false
	}
	return equalJSON(value, expected)
}

func equalJSON(a, b any) bool {
	left, _ := json.Marshal(a)
	right, _ := json.Marshal(b)
	return string(left) == string(right)
}

func TestEvaluatorAgainstCompositeQuery(t *testing.T) {
	query := Or(
		Term{Field: "url", Value: "https://zaken.example.com/zaken/42"},
		And(
			Term{Field: "case_type.description", Value: "melding"},
			Range{Field: "confidentiality_order", LTE: 2},
			Nested{Path: "roles", Query: Bool{Filter: []Query{
				Term{Field: "roles.type", Value: "organizational_unit"},
				Term{Field: "roles.identification", Value: "OU-NORTH"},
			}}},
		),
	)

	testCases := []struct {
		name     string
		doc      map[string]any
		expected bool
	}{
		{
			"atomic url match",
			map[string]any{"url": "https://zaken.example.com/zaken/42"},
			true,
		},
		{
			"blueprint match",
			map[string]any{
				"url":                   "https://zaken.example.com/zaken/7",
				"case_type.description": "melding",
				"confidentiality_order": 1,
				"roles": []map[string]any{
					{"type": "organizational_unit", "identification": "OU-NORTH"},
				},
			},
			true,
		},
		{
			"confidentiality too high",
			map[string]any{
				"url":                   "https://zaken.example.com/zaken/7",
				"case_type.description": "melding",
				"confidentiality_order": 3,
				"roles": []map[string]any{
					{"type": "organizational_unit", "identification": "OU-NORTH"},
				},
			},
			false,
		},
		{
			"wrong unit",
			map[string]any{
				"url":                   "https://zaken.example.com/zaken/7",
				"case_type.description": "melding",
				"confidentiality_order": 1,
				"roles": []map[string]any{
					{"type": "organizational_unit", "identification": "OU-SOUTH"},
				},
			},
			false,
		},
		{
			"no grants apply",
			map[string]any{
				"url":                   "https://zaken.example.com/zaken/7",
				"case_type.description": "aanvraag",
				"confidentiality_order": 0,
			},
			false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := evaluate(t, query, tc.doc); got != tc.expected {
				t.Errorf("Expected %v, got %v", tc.expected, got)
			}
		})
	}
}
