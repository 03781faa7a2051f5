package expression

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dukex/casework/pkg/models"
)

// ValueKind tags the shape of an evaluation result.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindString
	KindList
)

// Value is the result of an evaluation: null, a string, or a list of strings.
type Value struct {
	Kind  ValueKind
	Items []string
}

// Strings flattens v into a slice; null yields nil.
func (v Value) Strings() []string {
	if v.Kind == KindNull {
		return nil
	}

	return v.Items
}

func null() Value { return Value{Kind: KindNull} }

func str(s string) Value { return Value{Kind: KindString, Items: []string{s}} }

func list(items []string) Value { return Value{Kind: KindList, Items: items} }

func (v Value) withItems(items []string) Value {
	v.Items = items

	return v
}

// Context is the read-only data an expression may look at.
type Context struct {
	Case     *models.Case
	WorkItem *models.WorkItem
}

// TaskLookup reports whether a task slug exists.
type TaskLookup interface {
	TaskExists(ctx context.Context, id string) (bool, error)
}

// TaskLookupFunc adapts a function to TaskLookup.
type TaskLookupFunc func(ctx context.Context, id string) (bool, error)

func (f TaskLookupFunc) TaskExists(ctx context.Context, id string) (bool, error) {
	return f(ctx, id)
}

// Evaluator evaluates expressions, caching parsed ASTs by expression text.
type Evaluator struct {
	cache sync.Map // string -> Node
}

// NewEvaluator creates an evaluator with an empty parse cache.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Parse returns the cached AST for expr, parsing it on first use.
func (e *Evaluator) Parse(expr string) (Node, error) {
	if cached, ok := e.cache.Load(expr); ok {
		return cached.(Node), nil
	}

	node, err := Parse(expr)
	if err != nil {
		return nil, err
	}

	e.cache.Store(expr, node)

	return node, nil
}

// Evaluate parses and evaluates expr. source names the flow or task owning the
// expression and is carried into errors.
func (e *Evaluator) Evaluate(ctx context.Context, expr, source string, env Context, tasks TaskLookup) (Value, error) {
	node, err := e.Parse(expr)
	if err != nil {
		return null(), withSource(err, source)
	}

	value, err := evaluate(ctx, node, env, tasks)
	if err != nil {
		return null(), evaluationError(expr, source, err)
	}

	return value, nil
}

// Tasks evaluates a successor expression to existing task slugs. Results of
// expressions without an explicit |task are validated the same way.
func (e *Evaluator) Tasks(ctx context.Context, expr, source string, env Context, tasks TaskLookup) ([]string, error) {
	node, err := e.Parse(expr)
	if err != nil {
		return nil, withSource(err, source)
	}

	if _, ok := node.(TaskRef); !ok {
		node = TaskRef{Operand: node}
	}

	value, err := evaluate(ctx, node, env, tasks)
	if err != nil {
		return nil, evaluationError(expr, source, err)
	}

	return value.Strings(), nil
}

// Groups evaluates an address groups expression to a deduplicated group set.
func (e *Evaluator) Groups(ctx context.Context, expr, source string, env Context) ([]string, error) {
	node, err := e.Parse(expr)
	if err != nil {
		return nil, withSource(err, source)
	}

	if _, ok := node.(TaskRef); ok {
		return nil, &Error{Expr: expr, Source: source, Reason: "task references cannot address groups"}
	}

	value, err := evaluate(ctx, node, env, nil)
	if err != nil {
		return nil, &Error{Expr: expr, Source: source, Reason: err.Error()}
	}

	return dedupe(value.Strings()), nil
}

// lookupError is a failure of the task lookup itself, as opposed to an unknown task.
type lookupError struct {
	id  string
	err error
}

func (e *lookupError) Error() string {
	return fmt.Sprintf("failed to look up task %q: %v", e.id, e.err)
}

func (e *lookupError) Unwrap() error {
	return e.err
}

// evaluationError reports lookup failures as they are and everything else as an
// expression error.
func evaluationError(expr, source string, err error) error {
	var lookupErr *lookupError
	if errors.As(err, &lookupErr) {
		return lookupErr
	}

	return &Error{Expr: expr, Source: source, Reason: err.Error()}
}

func withSource(err error, source string) error {
	if exprErr, ok := err.(*Error); ok && exprErr.Source == "" {
		return &Error{Expr: exprErr.Expr, Source: source, Reason: exprErr.Reason}
	}

	return err
}

func evaluate(ctx context.Context, n Node, env Context, tasks TaskLookup) (Value, error) {
	switch v := n.(type) {
	case Null:
		return null(), nil
	case Literal:
		return str(v.Value), nil
	case List:
		return list(append([]string(nil), v.Items...)), nil
	case Path:
		return evaluatePath(v, env)
	case GroupRef:
		operand, err := evaluate(ctx, v.Operand, env, tasks)
		if err != nil {
			return null(), err
		}

		return operand.withItems(dedupe(operand.Items)), nil
	case TaskRef:
		operand, err := evaluate(ctx, v.Operand, env, tasks)
		if err != nil {
			return null(), err
		}

		return resolveTasks(ctx, operand, tasks)
	default:
		return null(), fmt.Errorf("unsupported node %T", n)
	}
}

func resolveTasks(ctx context.Context, operand Value, tasks TaskLookup) (Value, error) {
	if operand.Kind == KindNull {
		return operand, nil
	}

	if tasks == nil {
		return null(), fmt.Errorf("task references are not available here")
	}

	ids := dedupe(operand.Items)

	for _, id := range ids {
		exists, err := tasks.TaskExists(ctx, id)
		if err != nil {
			return null(), &lookupError{id: id, err: err}
		}

		if !exists {
			return null(), fmt.Errorf("unknown task %q", id)
		}
	}

	return operand.withItems(ids), nil
}

func evaluatePath(p Path, env Context) (Value, error) {
	switch p.Root {
	case rootCase:
		c := env.Case
		if c == nil {
			return null(), nil
		}

		switch p.Field {
		case "id":
			return str(c.ID), nil
		case "workflow_id":
			return str(c.WorkflowID), nil
		case "status":
			return str(string(c.Status)), nil
		case "created_by_user":
			return str(c.CreatedByUser), nil
		case fieldMeta:
			return metaValue(c.Meta, p)
		}
	case rootWorkItem:
		w := env.WorkItem
		if w == nil {
			return null(), nil
		}

		switch p.Field {
		case "id":
			return str(w.ID), nil
		case "task_id":
			return str(w.TaskID), nil
		case "status":
			return str(string(w.Status)), nil
		case "addressed_groups":
			return list(append([]string(nil), w.AddressedGroups...)), nil
		case "assigned_users":
			return list(append([]string(nil), w.AssignedUsers...)), nil
		case "created_by_user":
			return str(w.CreatedByUser), nil
		case "closed_by_user":
			return str(w.ClosedByUser), nil
		case fieldMeta:
			return metaValue(w.Meta, p)
		}
	}

	return null(), fmt.Errorf("unknown identifier info.%s.%s", p.Root, p.Field)
}

func metaValue(meta map[string]any, p Path) (Value, error) {
	raw, ok := meta[p.Key]
	if !ok || raw == nil {
		return null(), nil
	}

	switch v := raw.(type) {
	case string:
		return str(v), nil
	case []string:
		return list(append([]string(nil), v...)), nil
	case []any:
		items := make([]string, 0, len(v))

		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return null(), fmt.Errorf("info.%s.meta.%s must hold strings, found %T", p.Root, p.Key, item)
			}

			items = append(items, s)
		}

		return list(items), nil
	default:
		return null(), fmt.Errorf("info.%s.meta.%s must be a string or a list of strings, found %T", p.Root, p.Key, raw)
	}
}
