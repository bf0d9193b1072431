package translate

import "strings"

// HydrationRule describes a known schema drift in model output: the section
// named Section is expected under the dotted path Into, but the model
// sometimes returns it at the top level instead.
//
// Hydration is a compatibility shim for that drift, not merge behavior. A
// rule that keeps firing points at source content that should be fixed.
type HydrationRule struct {
	Into    string `yaml:"into" json:"into"`
	Section string `yaml:"section" json:"section"`
}

// Target returns the dotted path the section is copied to.
func (r HydrationRule) Target() string {
	if r.Into == "" {
		return r.Section
	}
	return r.Into + "." + r.Section
}

// Hydrate applies rules to candidate in place and returns the target paths
// that were filled. A rule fires only when the baseline has the nested
// section, the candidate lacks it, and the candidate has a top-level
// section of the same name.
func Hydrate(baseline, candidate map[string]any, rules []HydrationRule) []string {
	var applied []string
	for _, r := range rules {
		if r.Section == "" || r.Into == "" {
			continue
		}
		into := splitPath(r.Into)
		if _, ok := lookup(baseline, append(into, r.Section)); !ok {
			continue
		}
		if _, ok := lookup(candidate, append(into, r.Section)); ok {
			continue
		}
		top, ok := candidate[r.Section]
		if !ok {
			continue
		}
		parent := ensureObject(candidate, into)
		if parent == nil {
			continue
		}
		parent[r.Section] = top
		applied = append(applied, r.Target())
	}
	return applied
}

func splitPath(p string) []string {
	return strings.Split(strings.Trim(p, "."), ".")
}

func lookup(tree map[string]any, path []string) (any, bool) {
	var cur any = tree
	for _, seg := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// ensureObject walks path, creating missing objects. It returns nil when a
// non-object value is in the way.
func ensureObject(tree map[string]any, path []string) map[string]any {
	cur := tree
	for _, seg := range path {
		next, ok := cur[seg]
		if !ok || next == nil {
			m := map[string]any{}
			cur[seg] = m
			cur = m
			continue
		}
		m, ok := next.(map[string]any)
		if !ok {
			return nil
		}
		cur = m
	}
	return cur
}
