package persistence

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dukex/casework/pkg/models"
)

// WorkItemQuery selects work items. All filters must hold.
type WorkItemQuery struct {
	Filters   []WorkItemFilter
	SortBy    string // created_at (default), modified_at, deadline
	SortOrder string // asc (default), desc
	Limit     int    // 0 means no limit
	Offset    int
}

// WorkItemListResult is a page of work items.
type WorkItemListResult struct {
	WorkItems   []*models.WorkItem `json:"work_items"`
	TotalCount  int64              `json:"total_count"`
	HasNextPage bool               `json:"has_next_page"`
}

// WorkItemFilter is a predicate of a WorkItemQuery. The set of implementations is closed.
type WorkItemFilter interface {
	workItemFilter()
}

// StatusFilter keeps work items in one of the given statuses.
type StatusFilter struct {
	Statuses []models.WorkItemStatus
}

// AddressedGroupsFilter keeps work items whose addressed groups intersect Groups.
type AddressedGroupsFilter struct {
	Groups []string
}

// CaseFilter keeps the work items of one case.
type CaseFilter struct {
	CaseID string
}

// TaskFilter keeps work items of one of the given tasks.
type TaskFilter struct {
	TaskIDs []string
}

// DocumentHasAnswerFilter keeps work items whose own document answers QuestionID with
// exactly Value.
type DocumentHasAnswerFilter struct {
	QuestionID string
	Value      any
}

// CaseDocumentHasAnswerFilter keeps work items whose case document answers QuestionID
// with exactly Value.
type CaseDocumentHasAnswerFilter struct {
	QuestionID string
	Value      any
}

// CaseMetaValueFilter compares a key of the case meta against Value.
type CaseMetaValueFilter struct {
	Key    string
	Lookup Lookup
	Value  any
}

// MetaValueFilter compares a key of the work item meta against Value.
type MetaValueFilter struct {
	Key    string
	Lookup Lookup
	Value  any
}

func (StatusFilter) workItemFilter()                {}
func (AddressedGroupsFilter) workItemFilter()       {}
func (CaseFilter) workItemFilter()                  {}
func (TaskFilter) workItemFilter()                  {}
func (DocumentHasAnswerFilter) workItemFilter()     {}
func (CaseDocumentHasAnswerFilter) workItemFilter() {}
func (CaseMetaValueFilter) workItemFilter()         {}
func (MetaValueFilter) workItemFilter()             {}

// Lookup is the comparison applied by a meta value filter.
type Lookup string

const (
	LookupExact      Lookup = "exact"
	LookupStartsWith Lookup = "startswith"
	LookupContains   Lookup = "contains"
	LookupIContains  Lookup = "icontains"
	LookupGTE        Lookup = "gte"
	LookupGT         Lookup = "gt"
	LookupLTE        Lookup = "lte"
	LookupLT         Lookup = "lt"
)

// ParseLookup normalizes a lookup name. The empty string means exact.
func ParseLookup(s string) (Lookup, error) {
	if s == "" {
		return LookupExact, nil
	}

	lookup := Lookup(strings.ToLower(s))

	switch lookup {
	case LookupExact, LookupStartsWith, LookupContains, LookupIContains,
		LookupGTE, LookupGT, LookupLTE, LookupLT:
		return lookup, nil
	default:
		return "", fmt.Errorf("%w: unknown lookup %q", ErrInvalidQuery, s)
	}
}

// IsOrdering reports whether the lookup compares numbers.
func (l Lookup) IsOrdering() bool {
	switch l {
	case LookupGTE, LookupGT, LookupLTE, LookupLT:
		return true
	default:
		return false
	}
}

// IsText reports whether the lookup matches substrings.
func (l Lookup) IsText() bool {
	switch l {
	case LookupStartsWith, LookupContains, LookupIContains:
		return true
	default:
		return false
	}
}

var allowedWorkItemSorts = map[string]bool{
	"created_at":  true,
	"modified_at": true,
	"deadline":    true,
}

// Normalize applies defaults and validates sorting and paging.
func (q WorkItemQuery) Normalize() (WorkItemQuery, error) {
	if q.SortBy == "" {
		q.SortBy = "created_at"
	}

	if q.SortOrder == "" {
		q.SortOrder = "asc"
	}

	if !allowedWorkItemSorts[q.SortBy] {
		return q, fmt.Errorf("%w: invalid sort field %q", ErrInvalidQuery, q.SortBy)
	}

	if q.SortOrder != "asc" && q.SortOrder != "desc" {
		return q, fmt.Errorf("%w: invalid sort order %q", ErrInvalidQuery, q.SortOrder)
	}

	if q.Limit < 0 || q.Offset < 0 {
		return q, fmt.Errorf("%w: negative limit or offset", ErrInvalidQuery)
	}

	q.Filters = append([]WorkItemFilter(nil), q.Filters...)

	for i, filter := range q.Filters {
		switch f := filter.(type) {
		case CaseMetaValueFilter:
			lookup, value, err := normalizeLookup(f.Key, f.Lookup, f.Value)
			if err != nil {
				return q, err
			}

			f.Lookup, f.Value = lookup, value
			q.Filters[i] = f
		case MetaValueFilter:
			lookup, value, err := normalizeLookup(f.Key, f.Lookup, f.Value)
			if err != nil {
				return q, err
			}

			f.Lookup, f.Value = lookup, value
			q.Filters[i] = f
		case nil:
			return q, fmt.Errorf("%w: nil filter", ErrInvalidQuery)
		}
	}

	return q, nil
}

func normalizeLookup(key string, lookup Lookup, value any) (Lookup, any, error) {
	if key == "" {
		return "", nil, fmt.Errorf("%w: meta value filter needs a key", ErrInvalidQuery)
	}

	lookup, err := ParseLookup(string(lookup))
	if err != nil {
		return "", nil, err
	}

	if !lookup.IsOrdering() {
		return lookup, value, nil
	}

	number, ok := Number(value)
	if !ok {
		return "", nil, fmt.Errorf("%w: lookup %s needs a number, got %v", ErrInvalidQuery, lookup, value)
	}

	return lookup, number, nil
}

// Number converts a decoded JSON or Go numeric value to float64.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()

		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)

		return f, err == nil
	default:
		return 0, false
	}
}
