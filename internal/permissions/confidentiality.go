package permissions

import (
	"fmt"
	"slices"
)

// DefaultConfidentialityLevels is the Dutch government classification
// scheme, ordered from least to most restricted. The vocabulary is
// configuration data; deployments with another scheme supply their own
// ordered list.
var DefaultConfidentialityLevels = []string{
	"openbaar",
	"beperkt_openbaar",
	"intern",
	"zaakvertrouwelijk",
	"vertrouwelijk",
	"confidentieel",
	"geheim",
	"zeer_geheim",
}

// Scale is a fixed total order over confidentiality levels. Every
// comparison of levels goes through their rank on the scale, never
// through string comparison.
type Scale struct {
	levels []string
	order  map[string]int
}

func NewScale(levels []string) (*Scale, error) {
	if len(levels) == 0 {
		return nil, fmt.Errorf("confidentiality scale needs at least one level")
	}

	order := make(map[string]int, len(levels))
	for i, level := range levels {
		if level == "" {
			return nil, fmt.Errorf("confidentiality scale contains an empty level at position %d", i)
		}
		if _, ok := order[level]; ok {
			return nil, fmt.Errorf("confidentiality scale contains level '%s' twice", level)
		}
		order[level] = i
	}

	return &Scale{levels: slices.Clone(levels), order: order}, nil
}

// Levels returns the vocabulary from least to most restricted.
func (s *Scale) Levels() []string {
	return slices.Clone(s.levels)
}

// Order returns the rank of a level on the scale.
func (s *Scale) Order(level string) (int, error) {
	rank, ok := s.order[level]
	if !ok {
		return 0, fmt.Errorf("unknown confidentiality level '%s'", level)
	}
	return rank, nil
}

// Highest returns the most restricted level of the scale.
func (s *Scale) Highest() string {
	return s.levels[len(s.levels)-1]
}

// AtMost reports whether level is at or below max on the scale.
func (s *Scale) AtMost(level, max string) (bool, error) {
	current, err := s.Order(level)
	if err != nil {
		return false, err
	}
	limit, err := s.Order(max)
	if err != nil {
		return false, err
	}
	return current <= limit, nil
}
