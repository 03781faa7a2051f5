package persistence_test

import (
	"errors"
	"testing"

	"github.com/dukex/casework/pkg/models"
	"github.com/dukex/casework/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("entity not found errors share a parent", func(t *testing.T) {
		for _, err := range []error{
			persistence.ErrWorkflowNotFound,
			persistence.ErrTaskNotFound,
			persistence.ErrFlowNotFound,
			persistence.ErrCaseNotFound,
			persistence.ErrWorkItemNotFound,
			persistence.ErrFormNotFound,
			persistence.ErrQuestionNotFound,
			persistence.ErrDocumentNotFound,
		} {
			assert.True(t, persistence.IsNotFound(err), err.Error())
		}

		assert.False(t, persistence.IsNotFound(persistence.ErrLockTimeout))
	})

	t.Run("entity error contains context", func(t *testing.T) {
		err := persistence.NewEntityError("GetByID", "case", "case-123", persistence.ErrCaseNotFound)

		assert.Contains(t, err.Error(), "GetByID")
		assert.Contains(t, err.Error(), "case-123")
		assert.Contains(t, err.Error(), "case not found")
		assert.True(t, errors.Is(err, persistence.ErrCaseNotFound))
		assert.True(t, persistence.IsNotFound(err))
		assert.False(t, errors.Is(err, persistence.ErrWorkItemNotFound))
	})

	t.Run("lock timeout", func(t *testing.T) {
		err := persistence.NewEntityError("Lock", "case", "case-1", persistence.ErrLockTimeout)

		assert.True(t, persistence.IsLockTimeout(err))
	})
}

func TestParseLookup(t *testing.T) {
	t.Parallel()

	lookup, err := persistence.ParseLookup("")
	require.NoError(t, err)
	assert.Equal(t, persistence.LookupExact, lookup)

	lookup, err = persistence.ParseLookup("GTE")
	require.NoError(t, err)
	assert.Equal(t, persistence.LookupGTE, lookup)
	assert.True(t, lookup.IsOrdering())
	assert.False(t, lookup.IsText())

	lookup, err = persistence.ParseLookup("ICONTAINS")
	require.NoError(t, err)
	assert.True(t, lookup.IsText())

	_, err = persistence.ParseLookup("regex")
	assert.ErrorIs(t, err, persistence.ErrInvalidQuery)
}

func TestWorkItemQuery_Normalize(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		original := persistence.WorkItemQuery{
			Filters: []persistence.WorkItemFilter{
				persistence.CaseMetaValueFilter{Key: "k", Value: 1},
				persistence.StatusFilter{Statuses: []models.WorkItemStatus{models.WorkItemStatusReady}},
			},
		}

		q, err := original.Normalize()
		require.NoError(t, err)
		assert.Equal(t, "created_at", q.SortBy)
		assert.Equal(t, "asc", q.SortOrder)
		assert.Equal(t, persistence.LookupExact, q.Filters[0].(persistence.CaseMetaValueFilter).Lookup)
		assert.Empty(t, original.Filters[0].(persistence.CaseMetaValueFilter).Lookup)
	})

	tests := []struct {
		name  string
		query persistence.WorkItemQuery
	}{
		{"bad sort field", persistence.WorkItemQuery{SortBy: "id; DROP TABLE cases"}},
		{"bad sort order", persistence.WorkItemQuery{SortOrder: "sideways"}},
		{"negative limit", persistence.WorkItemQuery{Limit: -1}},
		{"bad lookup", persistence.WorkItemQuery{Filters: []persistence.WorkItemFilter{persistence.MetaValueFilter{Key: "k", Lookup: "near"}}}},
		{"nil filter", persistence.WorkItemQuery{Filters: []persistence.WorkItemFilter{nil}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.query.Normalize()
			assert.ErrorIs(t, err, persistence.ErrInvalidQuery)
		})
	}
}
