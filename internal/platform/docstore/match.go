package docstore

import (
	"fmt"
	"reflect"
)

// Matches evaluates f against a document decoded by encoding/json into
// generic maps and slices. ByID clauses compare against id.
func Matches(f Filter, doc interface{}, id string) (bool, error) {
	switch f.op {
	case opAll:
		return true, nil
	case opID:
		want, _ := f.value.(string)
		return id == want, nil
	case opEq:
		target, err := toJSONValue(f.value)
		if err != nil {
			return false, fmt.Errorf("filter value for %s: %w", f.path, err)
		}
		return anyEqual(resolve(doc, splitPath(f.path)), target), nil
	case opIn:
		found := resolve(doc, splitPath(f.path))
		for _, v := range f.values {
			target, err := toJSONValue(v)
			if err != nil {
				return false, fmt.Errorf("filter value for %s: %w", f.path, err)
			}
			if anyEqual(found, target) {
				return true, nil
			}
		}
		return false, nil
	case opExists:
		return len(resolve(doc, splitPath(f.path))) > 0, nil
	case opElemMatch:
		for _, v := range resolve(doc, splitPath(f.path)) {
			arr, ok := v.([]interface{})
			if !ok {
				continue
			}
			for _, elem := range arr {
				ok, err := matchAll(f.children, elem)
				if err != nil {
					return false, err
				}
				if ok {
					return true, nil
				}
			}
		}
		return false, nil
	case opAnd:
		for _, c := range f.children {
			ok, err := Matches(c, doc, id)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
	return false, fmt.Errorf("unknown filter op %d", f.op)
}

func matchAll(conds []Filter, elem interface{}) (bool, error) {
	for _, c := range conds {
		ok, err := Matches(c, elem, "")
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// resolve returns every value reachable by segs. Arrays met before the last
// segment fan out over their object elements unless the segment is an index.
func resolve(v interface{}, segs []string) []interface{} {
	if len(segs) == 0 {
		return []interface{}{v}
	}
	switch t := v.(type) {
	case map[string]interface{}:
		child, ok := t[segs[0]]
		if !ok {
			return nil
		}
		return resolve(child, segs[1:])
	case []interface{}:
		if n, ok := isIndex(segs[0]); ok {
			if n < len(t) {
				return resolve(t[n], segs[1:])
			}
			return nil
		}
		var out []interface{}
		for _, e := range t {
			if m, ok := e.(map[string]interface{}); ok {
				out = append(out, resolve(m, segs)...)
			}
		}
		return out
	}
	return nil
}

func anyEqual(found []interface{}, target interface{}) bool {
	for _, v := range found {
		if reflect.DeepEqual(v, target) {
			return true
		}
		if arr, ok := v.([]interface{}); ok {
			for _, e := range arr {
				if reflect.DeepEqual(e, target) {
					return true
				}
			}
		}
	}
	return false
}

// apply mutates doc in place according to u.
func apply(doc map[string]interface{}, u Update) error {
	for _, s := range u.steps {
		switch s.op {
		case opSet:
			v, err := toJSONValue(s.value)
			if err != nil {
				return err
			}
			if err := setPath(doc, splitPath(s.path), v); err != nil {
				return err
			}
		case opPush:
			if err := pushPath(doc, splitPath(s.path), s.values); err != nil {
				return err
			}
		case opSetWhere:
			v, err := toJSONValue(s.value)
			if err != nil {
				return err
			}
			found := resolve(doc, splitPath(s.path))
			if len(found) == 0 {
				continue
			}
			arr, ok := found[0].([]interface{})
			if !ok {
				return fmt.Errorf("%s is not an array", s.path)
			}
			for _, elem := range arr {
				m, ok := elem.(map[string]interface{})
				if !ok {
					continue
				}
				hit, err := matchAll(s.conds, m)
				if err != nil {
					return err
				}
				if hit {
					if err := setPath(m, splitPath(s.subPath), v); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

func setPath(v interface{}, segs []string, value interface{}) error {
	if len(segs) == 0 {
		return fmt.Errorf("empty update path")
	}
	switch t := v.(type) {
	case map[string]interface{}:
		if len(segs) == 1 {
			t[segs[0]] = value
			return nil
		}
		child, ok := t[segs[0]]
		if !ok || child == nil {
			child = map[string]interface{}{}
			t[segs[0]] = child
		}
		return setPath(child, segs[1:], value)
	case []interface{}:
		n, ok := isIndex(segs[0])
		if !ok || n >= len(t) {
			return fmt.Errorf("cannot address %q in array of length %d", segs[0], len(t))
		}
		if len(segs) == 1 {
			t[n] = value
			return nil
		}
		return setPath(t[n], segs[1:], value)
	}
	return fmt.Errorf("cannot set %q on a scalar", segs[0])
}

func pushPath(doc map[string]interface{}, segs []string, values []interface{}) error {
	items := make([]interface{}, 0, len(values))
	for _, v := range values {
		jv, err := toJSONValue(v)
		if err != nil {
			return err
		}
		items = append(items, jv)
	}
	var current []interface{}
	if found := resolve(doc, segs); len(found) > 0 && found[0] != nil {
		arr, ok := found[0].([]interface{})
		if !ok {
			return fmt.Errorf("%v is not an array", segs)
		}
		current = arr
	}
	return setPath(doc, segs, append(current, items...))
}
