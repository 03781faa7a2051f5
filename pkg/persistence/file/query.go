package file

import (
	"encoding/json"
	"reflect"
	"slices"
	"strings"

	"github.com/dukex/casework/pkg/models"
	"github.com/dukex/casework/pkg/persistence"
)

func matchAll(st *state, workItem *models.WorkItem, filters []persistence.WorkItemFilter) bool {
	for _, filter := range filters {
		if !match(st, workItem, filter) {
			return false
		}
	}

	return true
}

func match(st *state, workItem *models.WorkItem, filter persistence.WorkItemFilter) bool {
	switch f := filter.(type) {
	case persistence.StatusFilter:
		return slices.Contains(f.Statuses, workItem.Status)
	case persistence.AddressedGroupsFilter:
		return slices.ContainsFunc(workItem.AddressedGroups, func(group string) bool {
			return slices.Contains(f.Groups, group)
		})
	case persistence.CaseFilter:
		return workItem.CaseID == f.CaseID
	case persistence.TaskFilter:
		return slices.Contains(f.TaskIDs, workItem.TaskID)
	case persistence.DocumentHasAnswerFilter:
		return hasAnswer(st, workItem.DocumentID, f.QuestionID, f.Value)
	case persistence.CaseDocumentHasAnswerFilter:
		c, ok := st.Cases[workItem.CaseID]

		return ok && hasAnswer(st, c.DocumentID, f.QuestionID, f.Value)
	case persistence.CaseMetaValueFilter:
		c, ok := st.Cases[workItem.CaseID]

		return ok && matchMeta(c.Meta, f.Key, f.Lookup, f.Value)
	case persistence.MetaValueFilter:
		return matchMeta(workItem.Meta, f.Key, f.Lookup, f.Value)
	default:
		return false
	}
}

func hasAnswer(st *state, documentID *string, questionID string, value any) bool {
	if documentID == nil {
		return false
	}

	answer, ok := st.Answers[answerKey(*documentID, questionID)]

	return ok && jsonEqual(answer.Value, value)
}

func matchMeta(meta map[string]any, key string, lookup persistence.Lookup, value any) bool {
	actual, ok := meta[key]
	if !ok {
		return false
	}

	switch {
	case lookup.IsOrdering():
		return compareNumbers(actual, lookup, value)
	case lookup.IsText():
		return matchText(jsonText(actual), lookup, jsonText(value))
	default:
		return jsonEqual(actual, value)
	}
}

func compareNumbers(actual any, lookup persistence.Lookup, value any) bool {
	// Only JSON numbers take part in ordering comparisons.
	a, ok := actual.(float64)
	if !ok {
		return false
	}

	b, ok := persistence.Number(value)
	if !ok {
		return false
	}

	switch lookup {
	case persistence.LookupGTE:
		return a >= b
	case persistence.LookupGT:
		return a > b
	case persistence.LookupLTE:
		return a <= b
	case persistence.LookupLT:
		return a < b
	default:
		return false
	}
}

func matchText(actual string, lookup persistence.Lookup, value string) bool {
	switch lookup {
	case persistence.LookupStartsWith:
		return strings.HasPrefix(actual, value)
	case persistence.LookupContains:
		return strings.Contains(actual, value)
	case persistence.LookupIContains:
		return strings.Contains(strings.ToLower(actual), strings.ToLower(value))
	default:
		return false
	}
}

// jsonText renders v the way Postgres' ->> operator does: strings unquoted, anything
// else as JSON.
func jsonText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}

	return string(data)
}

// jsonEqual compares two values by their JSON form.
func jsonEqual(a, b any) bool {
	na, ok := normalizeJSON(a)
	if !ok {
		return false
	}

	nb, ok := normalizeJSON(b)
	if !ok {
		return false
	}

	return reflect.DeepEqual(na, nb)
}

func normalizeJSON(v any) (any, bool) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}

	var out any

	err = json.Unmarshal(data, &out)
	if err != nil {
		return nil, false
	}

	return out, true
}
