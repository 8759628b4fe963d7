package docstore

import (
	"strconv"
	"strings"
)

type filterOp int

const (
	opAll filterOp = iota
	opEq
	opIn
	opExists
	opElemMatch
	opAnd
	opID
)

// Filter is a predicate over a document. Paths are dotted ("a.b.0.c");
// numeric segments index into arrays. The zero Filter matches everything.
type Filter struct {
	op       filterOp
	path     string
	value    interface{}
	values   []interface{}
	children []Filter
}

// All matches every document.
func All() Filter { return Filter{} }

// Eq matches when any value reached by path equals value. Arrays met along
// the path fan out, so Eq("entry.resource.code.text", x) is satisfied by any
// entry; use ElemMatch to pin several conditions to one element.
func Eq(path string, value interface{}) Filter {
	return Filter{op: opEq, path: path, value: value}
}

// In matches when any value reached by path equals one of values.
func In(path string, values ...interface{}) Filter {
	return Filter{op: opIn, path: path, values: values}
}

// Exists matches when path resolves to at least one value.
func Exists(path string) Filter {
	return Filter{op: opExists, path: path}
}

// ElemMatch matches when the array at path has at least one element that
// satisfies every condition. Condition paths are relative to the element.
func ElemMatch(path string, conds ...Filter) Filter {
	return Filter{op: opElemMatch, path: path, children: conds}
}

// And matches when every filter matches. Each filter is evaluated against
// the whole document, so two ElemMatch clauses may be satisfied by
// different elements.
func And(filters ...Filter) Filter {
	return Filter{op: opAnd, children: filters}
}

// ByID matches the document with the given store identifier.
func ByID(id string) Filter {
	return Filter{op: opID, value: id}
}

// IsAll reports whether f matches every document.
func (f Filter) IsAll() bool {
	if f.op == opAll {
		return true
	}
	if f.op == opAnd {
		for _, c := range f.children {
			if !c.IsAll() {
				return false
			}
		}
		return true
	}
	return false
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

func isIndex(seg string) (int, bool) {
	n, err := strconv.Atoi(seg)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
