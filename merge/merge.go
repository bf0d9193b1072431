// Package merge reconciles a translated content tree with its source-language
// baseline. The baseline defines the shape; translated values are taken
// leaf by leaf and anything missing or malformed falls back to the baseline.
package merge

import (
	"sort"
	"strconv"
	"strings"
)

// Reason explains why a baseline value was used instead of the candidate.
type Reason string

const (
	ReasonArrayMismatch Reason = "array length mismatch"
	ReasonMissingKey    Reason = "missing key"
	ReasonMissingValue  Reason = "missing value"
	ReasonTypeMismatch  Reason = "type mismatch"
)

// Path addresses a node in a content tree. Object keys are plain segments,
// array elements are "[i]" segments.
type Path []string

// String renders the path in dot notation, e.g. home.faq[2].answer.
func (p Path) String() string {
	if len(p) == 0 {
		return "(root)"
	}
	var b strings.Builder
	for i, seg := range p {
		if i > 0 && !strings.HasPrefix(seg, "[") {
			b.WriteByte('.')
		}
		b.WriteString(seg)
	}
	return b.String()
}

func (p Path) key(k string) Path {
	return append(p[:len(p):len(p)], k)
}

func (p Path) index(i int) Path {
	return append(p[:len(p):len(p)], "["+strconv.Itoa(i)+"]")
}

// Substitution records one fallback to the baseline.
type Substitution struct {
	Path   Path
	Reason Reason
}

func (s Substitution) String() string {
	return s.Path.String() + ": " + string(s.Reason)
}

// Result is the merged tree plus every fallback taken while building it.
type Result struct {
	Tree          any
	Substitutions []Substitution
}

// Merge builds a tree with exactly the baseline's keys and array lengths,
// preferring candidate leaves. An array of the wrong length is replaced by the
// baseline array; equal-length arrays are merged element by element. Merge
// never fails and is deterministic: object keys are visited in sorted order.
//
// Trees are the values produced by encoding/json: map[string]any, []any,
// string, float64 or json.Number, bool and nil.
func Merge(baseline, candidate any) Result {
	m := &merger{}
	tree := m.merge(baseline, candidate, nil)
	return Result{Tree: tree, Substitutions: m.subs}
}

type merger struct {
	subs []Substitution
}

func (m *merger) fallback(path Path, reason Reason) {
	m.subs = append(m.subs, Substitution{Path: path, Reason: reason})
}

func (m *merger) merge(baseline, candidate any, path Path) any {
	switch base := baseline.(type) {
	case []any:
		cand, ok := candidate.([]any)
		if !ok || len(cand) != len(base) {
			m.fallback(path, ReasonArrayMismatch)
			return base
		}
		out := make([]any, len(base))
		for i := range base {
			out[i] = m.merge(base[i], cand[i], path.index(i))
		}
		return out

	case map[string]any:
		cand, _ := candidate.(map[string]any)
		keys := make([]string, 0, len(base))
		for k := range base {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		out := make(map[string]any, len(base))
		for _, k := range keys {
			cv, ok := cand[k]
			if !ok {
				m.fallback(path.key(k), ReasonMissingKey)
				out[k] = base[k]
				continue
			}
			out[k] = m.merge(base[k], cv, path.key(k))
		}
		return out

	default:
		switch c := candidate.(type) {
		case nil:
			if len(path) > 0 {
				m.fallback(path, ReasonMissingValue)
			}
			return baseline
		case string:
			if c == "" {
				if len(path) > 0 {
					m.fallback(path, ReasonMissingValue)
				}
				return baseline
			}
		case map[string]any, []any:
			m.fallback(path, ReasonTypeMismatch)
			return baseline
		}
		return candidate
	}
}

// Shape reports whether a and b have the same keys and array lengths at
// every level. Scalar values are not compared.
func Shape(a, b any) bool {
	switch av := a.(type) {
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Shape(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			w, ok := bv[k]
			if !ok || !Shape(v, w) {
				return false
			}
		}
		return true
	default:
		switch b.(type) {
		case []any, map[string]any:
			return false
		}
		return true
	}
}
