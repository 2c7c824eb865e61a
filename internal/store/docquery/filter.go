// Package docquery evaluates Mongo-style filters and aggregation pipelines
// over in-process documents. The memory and sqlite backends use it so they
// answer the same queries the Mongo backend does.
package docquery

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/AvishaiDotan/mongodb-functions/internal/store"
)

// Canonical converts a marshalable document into a fresh bson.M. The result
// shares nothing with doc.
func Canonical(doc any) (bson.M, error) {
	if doc == nil {
		return nil, fmt.Errorf("document is nil")
	}
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	return Decode(raw)
}

// Decode unmarshals a raw BSON document into a bson.M.
func Decode(raw []byte) (bson.M, error) {
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return m, nil
}

// Match reports whether doc satisfies filter. A nil or empty filter matches
// every document.
func Match(doc bson.M, filter bson.M) (bool, error) {
	for key, cond := range filter {
		ok, err := matchKey(doc, key, cond)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchKey(doc bson.M, key string, cond any) (bool, error) {
	switch key {
	case "$and", "$or", "$nor":
		subs, ok := asArray(cond)
		if !ok {
			return false, fmt.Errorf("%w: %s needs an array", store.ErrUnsupported, key)
		}
		for _, sub := range subs {
			f, ok := AsM(sub)
			if !ok {
				return false, fmt.Errorf("%w: %s element is not a document", store.ErrUnsupported, key)
			}
			matched, err := Match(doc, f)
			if err != nil {
				return false, err
			}
			switch {
			case key == "$and" && !matched:
				return false, nil
			case key == "$or" && matched:
				return true, nil
			case key == "$nor" && matched:
				return false, nil
			}
		}
		return key != "$or", nil
	}
	if strings.HasPrefix(key, "$") {
		return false, fmt.Errorf("%w: top-level operator %s", store.ErrUnsupported, key)
	}

	values := Resolve(doc, key)

	if re, ok := cond.(primitive.Regex); ok {
		return matchRegex(values, re.Pattern, re.Options)
	}
	if ops, ok := AsM(cond); ok && isOperatorDoc(ops) {
		return matchOperators(values, ops)
	}
	return anyEqual(values, cond), nil
}

func matchOperators(values []any, ops bson.M) (bool, error) {
	for op, arg := range ops {
		var ok bool
		var err error
		switch op {
		case "$eq":
			ok = anyEqual(values, arg)
		case "$ne":
			ok = !anyEqual(values, arg)
		case "$in", "$nin":
			list, isArr := asArray(arg)
			if !isArr {
				return false, fmt.Errorf("%w: %s needs an array", store.ErrUnsupported, op)
			}
			for _, candidate := range list {
				if anyEqual(values, candidate) {
					ok = true
					break
				}
			}
			if op == "$nin" {
				ok = !ok
			}
		case "$gt", "$gte", "$lt", "$lte":
			ok = anyCompare(values, arg, op)
		case "$exists":
			want, _ := arg.(bool)
			ok = (len(values) > 0) == want
		case "$regex":
			pattern, isStr := arg.(string)
			if !isStr {
				if re, isRe := arg.(primitive.Regex); isRe {
					pattern = re.Pattern
				} else {
					return false, fmt.Errorf("%w: $regex needs a string", store.ErrUnsupported)
				}
			}
			options, _ := ops["$options"].(string)
			ok, err = matchRegex(values, pattern, options)
			if err != nil {
				return false, err
			}
		case "$options":
			continue
		default:
			return false, fmt.Errorf("%w: operator %s", store.ErrUnsupported, op)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func matchRegex(values []any, pattern, options string) (bool, error) {
	flags := ""
	for _, o := range options {
		switch o {
		case 'i', 'm', 's':
			flags += string(o)
		}
	}
	if flags != "" {
		pattern = "(?" + flags + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Errorf("invalid regex %q: %w", pattern, err)
	}
	for _, v := range values {
		if s, ok := v.(string); ok && re.MatchString(s) {
			return true, nil
		}
	}
	return false, nil
}

// Resolve returns every value reachable at a dotted path. Arrays along the
// path are traversed, and an array found at the end contributes both itself
// and its elements, the way Mongo compares array fields.
func Resolve(doc any, path string) []any {
	var out []any
	resolve(doc, strings.Split(path, "."), &out)
	return out
}

func resolve(node any, parts []string, out *[]any) {
	if len(parts) == 0 {
		*out = append(*out, node)
		if arr, ok := asArray(node); ok {
			*out = append(*out, arr...)
		}
		return
	}
	if arr, ok := asArray(node); ok {
		for _, el := range arr {
			if _, isDoc := AsM(el); isDoc {
				resolve(el, parts, out)
			}
		}
		return
	}
	m, ok := AsM(node)
	if !ok {
		return
	}
	v, ok := m[parts[0]]
	if !ok {
		return
	}
	resolve(v, parts[1:], out)
}

// AsM converts the document shapes the bson package produces into a bson.M.
func AsM(v any) (bson.M, bool) {
	switch d := v.(type) {
	case bson.M:
		return d, true
	case map[string]any:
		return bson.M(d), true
	case bson.D:
		m := make(bson.M, len(d))
		for _, e := range d {
			m[e.Key] = e.Value
		}
		return m, true
	default:
		return nil, false
	}
}

func asArray(v any) ([]any, bool) {
	switch a := v.(type) {
	case bson.A:
		return a, true
	case []any:
		return a, true
	case []bson.M:
		out := make([]any, len(a))
		for i := range a {
			out[i] = a[i]
		}
		return out, true
	case []string:
		out := make([]any, len(a))
		for i := range a {
			out[i] = a[i]
		}
		return out, true
	default:
		return nil, false
	}
}

func isOperatorDoc(m bson.M) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return true
}

func anyEqual(values []any, want any) bool {
	if len(values) == 0 {
		return want == nil
	}
	for _, v := range values {
		if Equal(v, want) {
			return true
		}
	}
	return false
}

func anyCompare(values []any, bound any, op string) bool {
	for _, v := range values {
		c, ok := Compare(v, bound)
		if !ok {
			continue
		}
		switch op {
		case "$gt":
			if c > 0 {
				return true
			}
		case "$gte":
			if c >= 0 {
				return true
			}
		case "$lt":
			if c < 0 {
				return true
			}
		case "$lte":
			if c <= 0 {
				return true
			}
		}
	}
	return false
}

// Equal compares two BSON values, treating all numeric types as one and
// time.Time as primitive.DateTime.
func Equal(a, b any) bool {
	if fa, ok := number(a); ok {
		fb, ok := number(b)
		return ok && fa == fb
	}
	if ta, ok := instant(a); ok {
		tb, ok := instant(b)
		return ok && ta == tb
	}
	return reflect.DeepEqual(a, b)
}

// Compare orders numbers, instants, strings and ObjectIDs. ok is false when
// the values are not comparable.
func Compare(a, b any) (int, bool) {
	if fa, ok := number(a); ok {
		fb, ok := number(b)
		if !ok {
			return 0, false
		}
		return cmp3(fa < fb, fa > fb), true
	}
	if ta, ok := instant(a); ok {
		tb, ok := instant(b)
		if !ok {
			return 0, false
		}
		return cmp3(ta < tb, ta > tb), true
	}
	if sa, ok := a.(string); ok {
		sb, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(sa, sb), true
	}
	if oa, ok := a.(primitive.ObjectID); ok {
		ob, ok := b.(primitive.ObjectID)
		if !ok {
			return 0, false
		}
		return strings.Compare(oa.Hex(), ob.Hex()), true
	}
	return 0, false
}

func cmp3(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	default:
		return 0
	}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func instant(v any) (int64, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UnixMilli(), true
	case primitive.DateTime:
		return int64(t), true
	default:
		return 0, false
	}
}
