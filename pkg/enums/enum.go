// Package enums holds the closed string sets persisted in the storefront
// schema and exchanged over the API.
package enums

import (
	"fmt"
	"slices"
	"strings"
)

// set is the closed list of values for one string enum.
type set[T ~string] struct {
	name   string
	values []T
	fold   func(string) string
}

func newSet[T ~string](name string, values ...T) set[T] {
	return set[T]{name: name, values: values, fold: strings.ToLower}
}

func (s set[T]) has(v T) bool {
	return slices.Contains(s.values, v)
}

// parse trims and case-folds raw before matching.
func (s set[T]) parse(raw string) (T, error) {
	v := T(s.fold(strings.TrimSpace(raw)))
	if s.has(v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", s.name, raw)
}
