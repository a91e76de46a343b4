package mapping

import (
	"strconv"
	"strings"
)

type ValueKind int

const (
	Absent ValueKind = iota
	Scalar
	List
)

// Value is the outcome of resolving a path against one item.
type Value struct {
	Kind   ValueKind
	Scalar interface{}
	List   []interface{}
}

func (v Value) IsAbsent() bool {
	return v.Kind == Absent
}

// Values flattens the value into a slice; absent yields nil.
func (v Value) Values() []interface{} {
	switch v.Kind {
	case Scalar:
		return []interface{}{v.Scalar}
	case List:
		return v.List
	default:
		return nil
	}
}

// Resolve walks a dotted path through a decoded JSON object. Object keys are
// looked up by name; arrays fan out over every element, unless the segment is
// a numeric index. A trailing "[]" on a segment is accepted and means fan-out.
// JSON null is treated as absent.
func Resolve(item map[string]interface{}, path string) Value {
	segments := splitPath(path)
	if len(segments) == 0 || item == nil {
		return Value{}
	}
	nodes := []interface{}{item}
	fanned := false
	for _, seg := range segments {
		next := make([]interface{}, 0, len(nodes))
		for _, node := range nodes {
			out, fan := step(node, seg)
			if fan {
				fanned = true
			}
			next = append(next, out...)
		}
		if len(next) == 0 {
			return Value{}
		}
		nodes = next
	}
	if !fanned && len(nodes) == 1 {
		if arr, ok := nodes[0].([]interface{}); ok {
			list := flatten(arr)
			if len(list) == 0 {
				return Value{}
			}
			return Value{Kind: List, List: list}
		}
		return Value{Kind: Scalar, Scalar: nodes[0]}
	}
	list := flatten(nodes)
	if len(list) == 0 {
		return Value{}
	}
	return Value{Kind: List, List: list}
}

func splitPath(path string) []string {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	parts := strings.Split(path, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSuffix(strings.TrimSpace(p), "[]")
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func step(node interface{}, seg string) ([]interface{}, bool) {
	switch n := node.(type) {
	case map[string]interface{}:
		v, ok := n[seg]
		if !ok || v == nil {
			return nil, false
		}
		return []interface{}{v}, false
	case []interface{}:
		if idx, err := strconv.Atoi(seg); err == nil {
			if idx < 0 || idx >= len(n) || n[idx] == nil {
				return nil, false
			}
			return []interface{}{n[idx]}, false
		}
		out := make([]interface{}, 0, len(n))
		for _, elem := range n {
			res, _ := step(elem, seg)
			out = append(out, res...)
		}
		return out, true
	default:
		return nil, false
	}
}

func flatten(in []interface{}) []interface{} {
	out := make([]interface{}, 0, len(in))
	for _, v := range in {
		switch t := v.(type) {
		case nil:
		case []interface{}:
			out = append(out, flatten(t)...)
		default:
			out = append(out, t)
		}
	}
	return out
}
