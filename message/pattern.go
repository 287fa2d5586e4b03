package message

import (
	"errors"
	"fmt"
)

// Ordering is the three-valued (plus incomparable) result of Compare.
type Ordering int

const (
	// Equal means the pattern and the target match exactly, wildcards
	// included.
	Equal Ordering = iota
	// Less means the pattern is strictly more general than the target: every
	// concrete field the pattern specifies also matches, but the pattern
	// also carries wildcards the target pins down.
	Less
	// Greater is the inverse of Less.
	Greater
	// Incomparable means neither tree is a specialization of the other —
	// some field conflicts outright.
	Incomparable
)

func (o Ordering) String() string {
	switch o {
	case Equal:
		return "Equal"
	case Less:
		return "Less"
	case Greater:
		return "Greater"
	default:
		return "Incomparable"
	}
}

// maxDepth bounds the recursive tree walk. It is threaded through as an
// explicit parameter rather than tracked in a package global, so that
// concurrent comparisons never share mutable state.
const maxDepth = 12

// ErrRecursionLimit is returned when a comparison would recurse past
// maxDepth levels.
var ErrRecursionLimit = errors.New("message: pattern recursion limit exceeded")

// Compare returns how pattern p relates to target t under null-wildcard
// semantics: a nil leaf in p matches any leaf in t at that position.
func Compare(p, t Message) (Ordering, error) {
	return compareValue(any(map[string]any(p)), any(map[string]any(t)), 0)
}

// EqualExact reports whether p and t match exactly field for field: both
// trees carry the same keys, and a nil leaf matches only a nil leaf.
func EqualExact(p, t Message) (bool, error) {
	ord, err := Compare(p, t)
	if err != nil {
		return false, err
	}
	return ord == Equal, nil
}

// EqualOrLess reports whether p is equal to, or a generalization of
// (wildcards standing in for fields t pins down), t.
func EqualOrLess(p, t Message) (bool, error) {
	ord, err := Compare(p, t)
	if err != nil {
		return false, err
	}
	return ord == Equal || ord == Less, nil
}

// EqualOrGreater reports whether p is equal to, or a specialization of, t.
func EqualOrGreater(p, t Message) (bool, error) {
	ord, err := Compare(p, t)
	if err != nil {
		return false, err
	}
	return ord == Equal || ord == Greater, nil
}

func compareValue(p, t any, depth int) (Ordering, error) {
	if depth > maxDepth {
		return Incomparable, fmt.Errorf("%w: depth %d", ErrRecursionLimit, depth)
	}

	if p == nil && t == nil {
		return Equal, nil
	}
	if p == nil {
		// pattern wildcard: generalizes whatever t has here.
		return Less, nil
	}
	if t == nil {
		return Greater, nil
	}

	pm, pIsMap := asAnyMapping(p)
	tm, tIsMap := asAnyMapping(t)
	if pIsMap && tIsMap {
		return compareMapping(pm, tm, depth+1)
	}
	if pIsMap != tIsMap {
		return Incomparable, nil
	}

	pa, pIsSlice := p.([]any)
	ta, tIsSlice := t.([]any)
	if pIsSlice && tIsSlice {
		return compareSlice(pa, ta, depth+1)
	}
	if pIsSlice != tIsSlice {
		return Incomparable, nil
	}

	if leafEqual(p, t) {
		return Equal, nil
	}
	return Incomparable, nil
}

func asAnyMapping(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case Message:
		return t, true
	case map[string]any:
		return t, true
	default:
		return nil, false
	}
}

// compareMapping combines per-field orderings. A key present on both sides
// recurses normally. A key present only in t (absent from p) means p is
// missing something t has — the spec's "extra keys in t are allowed" for
// equal_or_less — so it only pulls the result toward Less. Symmetrically a
// key present only in p pulls the result toward Greater. A field whose
// direction conflicts with another field's direction (one wants Less,
// another wants Greater) makes the whole mapping Incomparable, since
// neither tree is uniformly a specialization of the other.
func compareMapping(p, t map[string]any, depth int) (Ordering, error) {
	if depth > maxDepth {
		return Incomparable, fmt.Errorf("%w: depth %d", ErrRecursionLimit, depth)
	}

	seen := make(map[string]struct{}, len(p)+len(t))
	result := Equal
	for k, pv := range p {
		seen[k] = struct{}{}
		var ord Ordering
		var err error
		if tv, ok := t[k]; ok {
			ord, err = compareValue(pv, tv, depth)
			if err != nil {
				return Incomparable, err
			}
		} else {
			ord = Greater
		}
		var ok bool
		result, ok = combine(result, ord)
		if !ok {
			return Incomparable, nil
		}
	}
	for k := range t {
		if _, already := seen[k]; already {
			continue
		}
		var ok bool
		result, ok = combine(result, Less)
		if !ok {
			return Incomparable, nil
		}
	}
	return result, nil
}

func compareSlice(p, t []any, depth int) (Ordering, error) {
	if depth > maxDepth {
		return Incomparable, fmt.Errorf("%w: depth %d", ErrRecursionLimit, depth)
	}
	if len(p) != len(t) {
		return Incomparable, nil
	}
	result := Equal
	for i := range p {
		ord, err := compareValue(p[i], t[i], depth)
		if err != nil {
			return Incomparable, err
		}
		var ok bool
		result, ok = combine(result, ord)
		if !ok {
			return Incomparable, nil
		}
	}
	return result, nil
}

// combine folds a running ordering with the ordering of one more field.
// Equal is absorbed by anything; Less and Greater may coexist only if the
// running value is still Equal or matches; mixing Less and Greater across
// sibling fields makes the whole mapping Incomparable, since neither tree is
// uniformly a specialization of the other.
func combine(running, next Ordering) (Ordering, bool) {
	if next == Incomparable {
		return Incomparable, false
	}
	if running == Equal {
		return next, true
	}
	if next == Equal {
		return running, true
	}
	if running == next {
		return running, true
	}
	return Incomparable, false
}

func leafEqual(p, t any) bool {
	pf, pIsFloat := p.(float64)
	tf, tIsFloat := t.(float64)
	if pIsFloat && tIsFloat {
		return pf == tf
	}
	return p == t
}
