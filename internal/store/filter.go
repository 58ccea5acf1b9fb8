package store

import (
	"fmt"
	"reflect"

	lberrors "github.com/tessellate-ai/lorebase/internal/errors"
)

// Filter restricts search results by metadata. Keys combine with AND.
// A plain value means equality; an operator map supports $eq and $in:
//
//	Filter{"is_section_header": true}
//	Filter{"characters": map[string]any{"$in": []any{"黛玉"}}}
//
// For $in, a list-valued metadata field matches when any of its
// elements is in the operator's list.
type Filter map[string]any

// Validate rejects unknown operators before any search work happens.
func (f Filter) Validate() error {
	for key, cond := range f {
		ops, ok := cond.(map[string]any)
		if !ok {
			continue
		}
		for op, arg := range ops {
			switch op {
			case "$eq":
			case "$in":
				if reflect.ValueOf(arg).Kind() != reflect.Slice {
					return lberrors.New(lberrors.ErrCodeInvalidFilter,
						fmt.Sprintf("$in for %q requires a list", key), nil)
				}
			default:
				return lberrors.New(lberrors.ErrCodeInvalidFilter,
					fmt.Sprintf("unknown filter operator %q for %q", op, key), nil)
			}
		}
	}
	return nil
}

// Matches reports whether metadata satisfies every filter condition.
// A missing metadata key never matches.
func (f Filter) Matches(metadata map[string]any) bool {
	for key, cond := range f {
		value, present := metadata[key]
		if !present {
			return false
		}

		ops, isOps := cond.(map[string]any)
		if !isOps {
			if !looseEqual(value, cond) {
				return false
			}
			continue
		}

		for op, arg := range ops {
			switch op {
			case "$eq":
				if !looseEqual(value, arg) {
					return false
				}
			case "$in":
				if !anyIn(value, arg) {
					return false
				}
			default:
				return false
			}
		}
	}
	return true
}

// anyIn checks membership of value in the operator list. A list-valued
// field matches when it intersects the list.
func anyIn(value, list any) bool {
	lv := reflect.ValueOf(list)
	if lv.Kind() != reflect.Slice {
		return false
	}

	candidates := []any{value}
	if vv := reflect.ValueOf(value); vv.Kind() == reflect.Slice {
		candidates = candidates[:0]
		for i := 0; i < vv.Len(); i++ {
			candidates = append(candidates, vv.Index(i).Interface())
		}
	}

	for i := 0; i < lv.Len(); i++ {
		want := lv.Index(i).Interface()
		for _, got := range candidates {
			if looseEqual(got, want) {
				return true
			}
		}
	}
	return false
}

// looseEqual compares values across the JSON round trip, where all
// numbers come back as float64.
func looseEqual(a, b any) bool {
	if af, aok := asFloat(a); aok {
		bf, bok := asFloat(b)
		return bok && af == bf
	}
	return reflect.DeepEqual(a, b)
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}
