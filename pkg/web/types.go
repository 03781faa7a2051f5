// Package web provides HTTP request and response types for the casework API.
package web

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dukex/casework/pkg/models"
	"github.com/dukex/casework/pkg/persistence"
	"github.com/dukex/casework/pkg/services"
	"github.com/gofiber/fiber/v3"
)

// ActorHeader carries the acting user of a request.
const ActorHeader = "X-User"

// CreateDocumentRequest represents the request body for creating an empty document.
type CreateDocumentRequest struct {
	FormID string `json:"form_id" validate:"required"`
}

// TransitionResponse is returned by the complete and skip endpoints.
type TransitionResponse struct {
	Case     *models.Case       `json:"case"`
	WorkItem *models.WorkItem   `json:"work_item"`
	Created  []*models.WorkItem `json:"created"`
}

// WorkItemListResponse is a page of work items.
type WorkItemListResponse struct {
	WorkItems   []*models.WorkItem `json:"work_items"`
	TotalCount  int64              `json:"total_count"`
	HasNextPage bool               `json:"has_next_page"`
	Limit       int                `json:"limit"`
	Offset      int                `json:"offset"`
}

func actor(c fiber.Ctx) string {
	return c.Get(ActorHeader)
}

// parseListWorkItemsRequest parses the query parameters of GET /work-items.
func parseListWorkItemsRequest(c fiber.Ctx) (services.ListWorkItemsRequest, error) {
	req := services.ListWorkItemsRequest{
		Status:          splitList(c.Query("status")),
		AddressedGroups: splitList(c.Query("addressed_groups")),
		CaseID:          c.Query("case"),
		TaskIDs:         splitList(c.Query("task")),
		SortBy:          c.Query("sort_by"),
		SortOrder:       c.Query("sort_order"),
	}

	var err error

	if req.Limit, err = intQuery(c, "limit"); err != nil {
		return req, err
	}

	if req.Offset, err = intQuery(c, "offset"); err != nil {
		return req, err
	}

	if err = jsonQuery(c, "has_answer", &req.HasAnswer); err != nil {
		return req, err
	}

	if err = jsonQuery(c, "case_has_answer", &req.CaseHasAnswer); err != nil {
		return req, err
	}

	if err = jsonQuery(c, "case_meta_value", &req.CaseMetaValue); err != nil {
		return req, err
	}

	if err = jsonQuery(c, "meta_value", &req.MetaValue); err != nil {
		return req, err
	}

	return req, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}

	items := make([]string, 0)

	for item := range strings.SplitSeq(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}

	return items
}

func intQuery(c fiber.Ctx, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", persistence.ErrInvalidQuery, key)
	}

	return n, nil
}

func jsonQuery(c fiber.Ctx, key string, target any) error {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}

	err := json.Unmarshal([]byte(raw), target)
	if err != nil {
		return fmt.Errorf("%w: %s must be a JSON array: %w", persistence.ErrInvalidQuery, key, err)
	}

	return nil
}
