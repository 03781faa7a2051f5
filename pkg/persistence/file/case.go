package file

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/dukex/casework/pkg/models"
	"github.com/dukex/casework/pkg/persistence"
)

type caseRepository struct {
	v view
}

func (r *caseRepository) Create(ctx context.Context, c *models.Case) error {
	stored, err := detach(c)
	if err != nil {
		return err
	}

	return r.v.write(ctx, func(st *state) error {
		if _, ok := st.Cases[stored.ID]; ok {
			return persistence.NewEntityError("Create", "case", stored.ID, persistence.ErrAlreadyExists)
		}

		st.Cases[stored.ID] = stored

		return nil
	})
}

func (r *caseRepository) Update(ctx context.Context, c *models.Case) error {
	stored, err := detach(c)
	if err != nil {
		return err
	}

	return r.v.write(ctx, func(st *state) error {
		if _, ok := st.Cases[stored.ID]; !ok {
			return persistence.NewEntityError("Update", "case", stored.ID, persistence.ErrCaseNotFound)
		}

		st.Cases[stored.ID] = stored

		return nil
	})
}

func (r *caseRepository) GetByID(_ context.Context, id string) (*models.Case, error) {
	var found *models.Case

	err := r.v.read(func(st *state) error {
		found = st.Cases[id]

		return nil
	})
	if err != nil {
		return nil, err
	}

	if found == nil {
		return nil, persistence.NewEntityError("GetByID", "case", id, persistence.ErrCaseNotFound)
	}

	return detach(found)
}

// Lock only checks that the case exists: a transaction already holds the store-wide
// writer semaphore.
func (r *caseRepository) Lock(ctx context.Context, id string) error {
	return r.v.write(ctx, func(st *state) error {
		if _, ok := st.Cases[id]; !ok {
			return persistence.NewEntityError("Lock", "case", id, persistence.ErrCaseNotFound)
		}

		return nil
	})
}

type workItemRepository struct {
	v view
}

func (r *workItemRepository) Create(ctx context.Context, workItem *models.WorkItem) error {
	stored, err := detach(workItem)
	if err != nil {
		return err
	}

	return r.v.write(ctx, func(st *state) error {
		if _, ok := st.WorkItems[stored.ID]; ok {
			return persistence.NewEntityError("Create", "work item", stored.ID, persistence.ErrAlreadyExists)
		}

		if _, ok := st.Cases[stored.CaseID]; !ok {
			return persistence.NewEntityError("Create", "case", stored.CaseID, persistence.ErrCaseNotFound)
		}

		st.WorkItems[stored.ID] = stored

		return nil
	})
}

func (r *workItemRepository) Update(ctx context.Context, workItem *models.WorkItem) error {
	stored, err := detach(workItem)
	if err != nil {
		return err
	}

	return r.v.write(ctx, func(st *state) error {
		if _, ok := st.WorkItems[stored.ID]; !ok {
			return persistence.NewEntityError("Update", "work item", stored.ID, persistence.ErrWorkItemNotFound)
		}

		st.WorkItems[stored.ID] = stored

		return nil
	})
}

func (r *workItemRepository) GetByID(_ context.Context, id string) (*models.WorkItem, error) {
	var found *models.WorkItem

	err := r.v.read(func(st *state) error {
		found = st.WorkItems[id]

		return nil
	})
	if err != nil {
		return nil, err
	}

	if found == nil {
		return nil, persistence.NewEntityError("GetByID", "work item", id, persistence.ErrWorkItemNotFound)
	}

	return detach(found)
}

func (r *workItemRepository) ByCase(_ context.Context, caseID string) ([]*models.WorkItem, error) {
	var workItems []*models.WorkItem

	err := r.v.read(func(st *state) error {
		for _, workItem := range st.WorkItems {
			if workItem.CaseID == caseID {
				workItems = append(workItems, workItem)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sortWorkItems(workItems, "created_at", "asc")

	return detachAll(workItems)
}

func (r *workItemRepository) Query(_ context.Context, query persistence.WorkItemQuery) (*persistence.WorkItemListResult, error) {
	query, err := query.Normalize()
	if err != nil {
		return nil, err
	}

	var matches []*models.WorkItem

	err = r.v.read(func(st *state) error {
		for _, workItem := range st.WorkItems {
			if matchAll(st, workItem, query.Filters) {
				matches = append(matches, workItem)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sortWorkItems(matches, query.SortBy, query.SortOrder)

	total := len(matches)

	start := min(query.Offset, total)
	end := total

	if query.Limit > 0 {
		end = min(start+query.Limit, total)
	}

	page, err := detachAll(matches[start:end])
	if err != nil {
		return nil, err
	}

	return &persistence.WorkItemListResult{
		WorkItems:   page,
		TotalCount:  int64(total),
		HasNextPage: end < total,
	}, nil
}

func sortWorkItems(workItems []*models.WorkItem, sortBy, sortOrder string) {
	slices.SortFunc(workItems, func(a, b *models.WorkItem) int {
		var c int

		switch sortBy {
		case "modified_at":
			c = a.ModifiedAt.Compare(b.ModifiedAt)
		case "deadline":
			c = compareDeadlines(a.Deadline, b.Deadline)
		default:
			c = a.CreatedAt.Compare(b.CreatedAt)
		}

		if sortOrder == "desc" {
			c = -c
		}

		return cmp.Or(c, cmp.Compare(a.ID, b.ID))
	})
}

// compareDeadlines orders missing deadlines last.
func compareDeadlines(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	default:
		return a.Compare(*b)
	}
}
