package docstore

type updateOp int

const (
	opSet updateOp = iota + 1
	opPush
	opSetWhere
)

type updateStep struct {
	op      updateOp
	path    string
	value   interface{}
	values  []interface{}
	conds   []Filter
	subPath string
}

// Update is an ordered list of modifications applied to one document.
type Update struct {
	steps []updateStep
}

// Set replaces the value at path.
func Set(path string, value interface{}) Update {
	return Update{}.Set(path, value)
}

// Push appends values to the end of the array at path, creating it when
// missing. Existing elements are left untouched.
func Push(path string, values ...interface{}) Update {
	return Update{}.Push(path, values...)
}

// SetWhere sets subPath to value inside every element of the array at path
// that satisfies all conds. Condition paths are relative to the element.
func SetWhere(path string, conds []Filter, subPath string, value interface{}) Update {
	return Update{}.SetWhere(path, conds, subPath, value)
}

func (u Update) Set(path string, value interface{}) Update {
	u.steps = append(u.steps[:len(u.steps):len(u.steps)], updateStep{op: opSet, path: path, value: value})
	return u
}

func (u Update) Push(path string, values ...interface{}) Update {
	u.steps = append(u.steps[:len(u.steps):len(u.steps)], updateStep{op: opPush, path: path, values: values})
	return u
}

func (u Update) SetWhere(path string, conds []Filter, subPath string, value interface{}) Update {
	u.steps = append(u.steps[:len(u.steps):len(u.steps)], updateStep{op: opSetWhere, path: path, conds: conds, subPath: subPath, value: value})
	return u
}

// Empty reports whether u has no modifications.
func (u Update) Empty() bool { return len(u.steps) == 0 }
