package expression

import (
	"context"
	"errors"
	"testing"

	"github.com/dukex/casework/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func knownTasks(ids ...string) TaskLookup {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}

	return TaskLookupFunc(func(_ context.Context, id string) (bool, error) {
		return set[id], nil
	})
}

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		expr     string
		expected Node
	}{
		{"empty", "", Null{}},
		{"blank", "   ", Null{}},
		{"null", "null", Null{}},
		{"single quoted", "'review'", Literal{Value: "review"}},
		{"double quoted", `"review"`, Literal{Value: "review"}},
		{"escaped quote", `'it\'s'`, Literal{Value: "it's"}},
		{"list", "['a', \"b\"]", List{Items: []string{"a", "b"}}},
		{"empty list", "[]", List{Items: []string{}}},
		{"task ref", "'review'|task", TaskRef{Operand: Literal{Value: "review"}}},
		{"groups with spaces", "['a'] | groups", GroupRef{Operand: List{Items: []string{"a"}}}},
		{"case path", "info.case.status", Path{Root: "case", Field: "status"}},
		{"meta path", "info.work_item.meta.owners|groups", GroupRef{Operand: Path{Root: "work_item", Field: "meta", Key: "owners"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, err := Parse(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, node)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"unterminated string", "'review"},
		{"unknown identifier", "review"},
		{"unknown operator", "'review'|tasks"},
		{"trailing input", "'a' 'b'"},
		{"missing operator", "'a'|"},
		{"unclosed list", "['a', 'b'"},
		{"non string list item", "['a', null]"},
		{"unknown root", "info.user.id"},
		{"unknown field", "info.case.document"},
		{"meta without key", "info.case.meta"},
		{"too deep", "info.case.status.value"},
		{"incomplete path", "info.case"},
		{"bad character", "'a' & 'b'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.expr)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrExpression))
			assert.True(t, IsExpressionError(err))
		})
	}
}

func TestEvaluator_Tasks(t *testing.T) {
	ctx := context.Background()
	e := NewEvaluator()
	tasks := knownTasks("review", "approve", "archive")

	env := Context{
		Case: &models.Case{
			ID:   "c1",
			Meta: map[string]any{"next": "archive", "many": []any{"review", "approve", "review"}},
		},
	}

	tests := []struct {
		name     string
		expr     string
		expected []string
	}{
		{"literal", "'review'|task", []string{"review"}},
		{"list keeps order and dedupes", "['approve', 'review', 'approve']|task", []string{"approve", "review"}},
		{"null", "null", nil},
		{"empty", "", nil},
		{"null task", "null|task", nil},
		{"without operator", "'review'", []string{"review"}},
		{"meta string", "info.case.meta.next|task", []string{"archive"}},
		{"meta list", "info.case.meta.many|task", []string{"review", "approve"}},
		{"missing meta key", "info.case.meta.absent|task", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Tasks(ctx, tt.expr, "flow 1", env, tasks)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestEvaluator_Tasks_UnknownTask(t *testing.T) {
	e := NewEvaluator()

	_, err := e.Tasks(context.Background(), "['review', 'ghost']|task", "flow 7", Context{}, knownTasks("review"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExpression)

	var exprErr *Error
	require.ErrorAs(t, err, &exprErr)
	assert.Equal(t, "flow 7", exprErr.Source)
	assert.Contains(t, exprErr.Reason, "ghost")
}

func TestEvaluator_Tasks_LookupFailure(t *testing.T) {
	e := NewEvaluator()
	boom := errors.New("db down")

	lookup := TaskLookupFunc(func(context.Context, string) (bool, error) { return false, boom })

	_, err := e.Tasks(context.Background(), "'review'|task", "flow 1", Context{}, lookup)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrExpression)
}

func TestEvaluator_Tasks_ParseErrorCarriesSource(t *testing.T) {
	e := NewEvaluator()

	_, err := e.Tasks(context.Background(), "'review", "flow 3", Context{}, knownTasks())

	var exprErr *Error
	require.ErrorAs(t, err, &exprErr)
	assert.Equal(t, "flow 3", exprErr.Source)
	assert.Equal(t, "'review", exprErr.Expr)
}

func TestEvaluator_Groups(t *testing.T) {
	ctx := context.Background()
	e := NewEvaluator()

	env := Context{
		Case: &models.Case{
			ID:            "c1",
			CreatedByUser: "alice",
			Meta:          map[string]any{"owners": []string{"g1", "g2", "g1"}, "owner": "g3"},
		},
		WorkItem: &models.WorkItem{
			ID:              "w1",
			AddressedGroups: []string{"g4", "g5"},
			Meta:            map[string]any{"team": []any{"g6"}},
		},
	}

	tests := []struct {
		name     string
		expr     string
		expected []string
	}{
		{"list", "['g1', 'g2', 'g1']|groups", []string{"g1", "g2"}},
		{"literal", "'g1'|groups", []string{"g1"}},
		{"without operator", "['g1']", []string{"g1"}},
		{"null", "null", nil},
		{"empty", "", nil},
		{"case meta list", "info.case.meta.owners|groups", []string{"g1", "g2"}},
		{"case meta string", "info.case.meta.owner|groups", []string{"g3"}},
		{"case creator", "info.case.created_by_user|groups", []string{"alice"}},
		{"work item groups", "info.work_item.addressed_groups|groups", []string{"g4", "g5"}},
		{"work item meta", "info.work_item.meta.team|groups", []string{"g6"}},
		{"empty list", "[]|groups", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Groups(ctx, tt.expr, "task review", env)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestEvaluator_Groups_Errors(t *testing.T) {
	ctx := context.Background()
	e := NewEvaluator()

	env := Context{Case: &models.Case{Meta: map[string]any{"count": 3.0, "mixed": []any{"a", 1.0}}}}

	for _, expr := range []string{
		"'review'|task",
		"info.case.meta.count|groups",
		"info.case.meta.mixed|groups",
		"['a'",
	} {
		t.Run(expr, func(t *testing.T) {
			_, err := e.Groups(ctx, expr, "task review", env)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrExpression)
		})
	}
}

func TestEvaluator_PathWithoutContext(t *testing.T) {
	e := NewEvaluator()

	got, err := e.Groups(context.Background(), "info.work_item.addressed_groups|groups", "task t", Context{})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEvaluator_CachesParsedExpressions(t *testing.T) {
	e := NewEvaluator()

	first, err := e.Parse("['a', 'b']|groups")
	require.NoError(t, err)

	cached, ok := e.cache.Load("['a', 'b']|groups")
	require.True(t, ok)
	assert.Equal(t, first, cached)

	_, err = e.Parse("['a'")
	require.Error(t, err)

	_, ok = e.cache.Load("['a'")
	assert.False(t, ok)
}

func TestEvaluator_Evaluate(t *testing.T) {
	e := NewEvaluator()

	env := Context{Case: &models.Case{Status: models.CaseStatusRunning}}

	value, err := e.Evaluate(context.Background(), "info.case.status", "test", env, nil)
	require.NoError(t, err)
	assert.Equal(t, KindString, value.Kind)
	assert.Equal(t, []string{"running"}, value.Strings())

	value, err = e.Evaluate(context.Background(), "null", "test", env, nil)
	require.NoError(t, err)
	assert.Equal(t, KindNull, value.Kind)
	assert.Nil(t, value.Strings())

	_, err = e.Evaluate(context.Background(), "'a'|task", "test", env, nil)
	assert.ErrorIs(t, err, ErrExpression)
}

func TestStaticTaskRefs(t *testing.T) {
	tests := []struct {
		name     string
		expr     string
		expected []string
		static   bool
	}{
		{"literal", "'a'|task", []string{"a"}, true},
		{"list", "['a', 'b', 'a']|task", []string{"a", "b"}, true},
		{"null", "null", nil, true},
		{"path", "info.case.meta.next|task", nil, false},
		{"groups", "['a']|groups", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, err := Parse(tt.expr)
			require.NoError(t, err)

			refs, static := StaticTaskRefs(node)
			assert.Equal(t, tt.static, static)
			assert.Equal(t, tt.expected, refs)
		})
	}
}
