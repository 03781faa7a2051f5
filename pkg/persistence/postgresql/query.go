package postgresql

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dukex/casework/pkg/persistence"
	"github.com/lib/pq"
)

// Query translates a work item query to SQL.
func (r *WorkItemRepository) Query(ctx context.Context, query persistence.WorkItemQuery) (*persistence.WorkItemListResult, error) {
	query, err := query.Normalize()
	if err != nil {
		return nil, err
	}

	b := &sqlBuilder{}

	where, err := b.where(query.Filters)
	if err != nil {
		return nil, err
	}

	from := " FROM work_items wi JOIN cases c ON c.id = wi.case_id" + where

	var total int64

	err = r.q.QueryRowContext(ctx, "SELECT COUNT(*)"+from, b.args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count work items: %w", err)
	}

	// SortBy and SortOrder are allowlisted by Normalize.
	stmt := "SELECT " + workItemColumns + from +
		fmt.Sprintf(" ORDER BY wi.%s %s, wi.id %s", query.SortBy, strings.ToUpper(query.SortOrder), strings.ToUpper(query.SortOrder))

	if query.Limit > 0 {
		stmt += " LIMIT " + b.arg(query.Limit)
	}

	if query.Offset > 0 {
		stmt += " OFFSET " + b.arg(query.Offset)
	}

	workItems, err := r.list(ctx, stmt, b.args...)
	if err != nil {
		return nil, err
	}

	return &persistence.WorkItemListResult{
		WorkItems:   workItems,
		TotalCount:  total,
		HasNextPage: int64(query.Offset+len(workItems)) < total,
	}, nil
}

type sqlBuilder struct {
	args []any
}

// arg binds v and returns its placeholder.
func (b *sqlBuilder) arg(v any) string {
	b.args = append(b.args, v)

	return "$" + strconv.Itoa(len(b.args))
}

func (b *sqlBuilder) where(filters []persistence.WorkItemFilter) (string, error) {
	if len(filters) == 0 {
		return "", nil
	}

	clauses := make([]string, 0, len(filters))

	for _, filter := range filters {
		clause, err := b.clause(filter)
		if err != nil {
			return "", err
		}

		clauses = append(clauses, clause)
	}

	return " WHERE " + strings.Join(clauses, " AND "), nil
}

func (b *sqlBuilder) clause(filter persistence.WorkItemFilter) (string, error) {
	switch f := filter.(type) {
	case persistence.StatusFilter:
		statuses := make([]string, 0, len(f.Statuses))
		for _, status := range f.Statuses {
			statuses = append(statuses, string(status))
		}

		return "wi.status = ANY(" + b.arg(pq.Array(statuses)) + "::text[])", nil
	case persistence.AddressedGroupsFilter:
		return "wi.addressed_groups && " + b.arg(textArray(f.Groups)) + "::text[]", nil
	case persistence.CaseFilter:
		if !isUUID(f.CaseID) {
			return "FALSE", nil
		}

		return "wi.case_id = " + b.arg(f.CaseID), nil
	case persistence.TaskFilter:
		return "wi.task_id = ANY(" + b.arg(textArray(f.TaskIDs)) + "::text[])", nil
	case persistence.DocumentHasAnswerFilter:
		return b.hasAnswer("wi.document_id", f.QuestionID, f.Value)
	case persistence.CaseDocumentHasAnswerFilter:
		return b.hasAnswer("c.document_id", f.QuestionID, f.Value)
	case persistence.CaseMetaValueFilter:
		return b.metaValue("c.meta", f.Key, f.Lookup, f.Value)
	case persistence.MetaValueFilter:
		return b.metaValue("wi.meta", f.Key, f.Lookup, f.Value)
	default:
		return "", fmt.Errorf("%w: unsupported filter %T", persistence.ErrInvalidQuery, filter)
	}
}

func (b *sqlBuilder) hasAnswer(documentColumn, questionID string, value any) (string, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("%w: answer value: %w", persistence.ErrInvalidQuery, err)
	}

	return fmt.Sprintf(
		"EXISTS (SELECT 1 FROM answers a WHERE a.document_id = %s AND a.question_id = %s AND a.value = %s::jsonb)",
		documentColumn, b.arg(questionID), b.arg(string(encoded)),
	), nil
}

func (b *sqlBuilder) metaValue(column, key string, lookup persistence.Lookup, value any) (string, error) {
	k := b.arg(key) + "::text"

	switch {
	case lookup.IsOrdering():
		op := map[persistence.Lookup]string{
			persistence.LookupGTE: ">=",
			persistence.LookupGT:  ">",
			persistence.LookupLTE: "<=",
			persistence.LookupLT:  "<",
		}[lookup]

		return fmt.Sprintf(
			"(CASE WHEN jsonb_typeof(%[1]s -> %[2]s) = 'number' THEN (%[1]s ->> %[2]s)::numeric END) %[3]s %[4]s::numeric",
			column, k, op, b.arg(value),
		), nil
	case lookup.IsText():
		pattern := escapeLike(jsonText(value))

		operator := "LIKE"

		switch lookup {
		case persistence.LookupStartsWith:
			pattern += "%"
		case persistence.LookupIContains:
			operator = "ILIKE"
			pattern = "%" + pattern + "%"
		default:
			pattern = "%" + pattern + "%"
		}

		return fmt.Sprintf("%s ->> %s %s %s", column, k, operator, b.arg(pattern)), nil
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			return "", fmt.Errorf("%w: meta value: %w", persistence.ErrInvalidQuery, err)
		}

		return fmt.Sprintf("%s -> %s = %s::jsonb", column, k, b.arg(string(encoded))), nil
	}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func jsonText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}

	return string(data)
}
