// Package expression implements the restricted expression language attached to flows
// (successor selection) and tasks (responsible groups).
//
// Expressions are parsed once into a closed AST and evaluated against a read-only
// context. The language has literals, lists, read-only context paths and two post-fix
// operators:
//
//	'review'|task
//	['review', 'sign-off']|task
//	["group-a", "group-b"]|groups
//	info.case.meta.owners|groups
//	null
package expression

// Node is an expression AST node. The set of implementations is closed.
type Node interface {
	node()
}

// Null evaluates to no value.
type Null struct{}

// Literal is a quoted string.
type Literal struct {
	Value string
}

// List is a bracketed list of quoted strings.
type List struct {
	Items []string
}

// Path reads a field of the evaluation context, e.g. info.case.meta.owner.
type Path struct {
	Root  string // "case" or "work_item"
	Field string
	Key   string // Meta key, only with Field "meta"
}

// TaskRef resolves its operand to existing task slugs.
type TaskRef struct {
	Operand Node
}

// GroupRef resolves its operand to a set of group identifiers.
type GroupRef struct {
	Operand Node
}

func (Null) node()     {}
func (Literal) node()  {}
func (List) node()     {}
func (Path) node()     {}
func (TaskRef) node()  {}
func (GroupRef) node() {}

const (
	rootCase     = "case"
	rootWorkItem = "work_item"
	fieldMeta    = "meta"
)

// pathFields lists the readable fields per root.
var pathFields = map[string]map[string]bool{
	rootCase: {
		"id":              true,
		"workflow_id":     true,
		"status":          true,
		"created_by_user": true,
		fieldMeta:         true,
	},
	rootWorkItem: {
		"id":               true,
		"task_id":          true,
		"status":           true,
		"addressed_groups": true,
		"assigned_users":   true,
		"created_by_user":  true,
		"closed_by_user":   true,
		fieldMeta:          true,
	},
}

// StaticTaskRefs returns the task slugs of an expression that does not depend on the
// evaluation context. The boolean is false when the result can only be known by
// evaluating the expression.
func StaticTaskRefs(n Node) ([]string, bool) {
	switch v := n.(type) {
	case TaskRef:
		return StaticTaskRefs(v.Operand)
	case Null:
		return nil, true
	case Literal:
		return []string{v.Value}, true
	case List:
		return dedupe(v.Items), true
	default:
		return nil, false
	}
}

func dedupe(items []string) []string {
	if len(items) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))

	for _, item := range items {
		if seen[item] {
			continue
		}

		seen[item] = true

		out = append(out, item)
	}

	return out
}
