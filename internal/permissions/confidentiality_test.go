package permissions

import "testing"

func TestNewScaleRejectsBadVocabularies(t *testing.T) {
	testCases := []struct {
		name   string
		levels []string
	}{
		{"empty", nil},
		{"duplicate", []string{"openbaar", "intern", "openbaar"}},
		{"blank level", []string{"openbaar", ""}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewScale(tc.levels); err == nil {
				t.Errorf("Expected an error for levels %v", tc.levels)
			}
		})
	}
}

func TestScaleOrderingIsTotal(t *testing.T) {
	scale, err := NewScale([]string{"openbaar", "intern", "geheim"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	previous := -1
	for _, level := range scale.Levels() {
		order, err := scale.Order(level)
		if err != nil {
			t.Fatalf("Unexpected error for %s: %v", level, err)
		}
		if order <= previous {
			t.Errorf("Expected %s to rank above the previous level, got %d after %d", level, order, previous)
		}
		previous = order
	}

	if _, err := scale.Order("staatsgeheim"); err == nil {
		t.Error("Expected an error for an unknown level")
	}

	if got := scale.Highest(); got != "geheim" {
		t.Errorf("Expected highest level geheim, got %s", got)
	}
}

func TestScaleAtMost(t *testing.T) {
	scale, err := NewScale(DefaultConfidentialityLevels)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	testCases := []struct {
		name     string
		level    string
		max      string
		expected bool
	}{
		{"below the cap", "openbaar", "zaakvertrouwelijk", true},
		{"exactly the cap", "zaakvertrouwelijk", "zaakvertrouwelijk", true},
		{"above the cap", "geheim", "zaakvertrouwelijk", false},
		{"lowest cap", "openbaar", "openbaar", true},
		{"anything under the highest cap", "zeer_geheim", "zeer_geheim", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := scale.AtMost(tc.level, tc.max)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tc.expected {
				t.Errorf("Expected AtMost(%s, %s) = %v, got %v", tc.level, tc.max, tc.expected, got)
			}
		})
	}

	if _, err := scale.AtMost("onbekend", "geheim"); err == nil {
		t.Error("Expected an error for an unknown level")
	}
}
