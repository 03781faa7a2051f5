package web

import (
	"net/http"
	"time"

	"github.com/dukex/casework/pkg/definition"
	"github.com/dukex/casework/pkg/models"
	"github.com/dukex/casework/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	definitions *services.Definitions
	cases       *services.Cases
	workItems   *services.WorkItems
	documents   *services.Documents
	validator   *validator.Validate
}

func NewAPIHandlers(
	definitions *services.Definitions,
	cases *services.Cases,
	workItems *services.WorkItems,
	documents *services.Documents,
) *APIHandlers {
	return &APIHandlers{
		definitions: definitions,
		cases:       cases,
		workItems:   workItems,
		documents:   documents,
		validator:   models.NewValidator(),
	}
}

// Register mounts the casework routes on router.
func (h *APIHandlers) Register(router fiber.Router) {
	router.Get("/health", h.HealthCheck)

	router.Post("/definitions", h.ImportDefinitions)
	router.Get("/workflows", h.GetWorkflows)
	router.Get("/workflows/:id", h.GetWorkflow)
	router.Get("/tasks", h.GetTasks)

	cases := router.Group("/cases")
	cases.Post("/", h.StartCase)
	cases.Get("/:id", h.GetCase)
	cases.Post("/:id/cancel", h.CancelCase)
	cases.Post("/:id/work-items", h.CreateWorkItem)

	workItems := router.Group("/work-items")
	workItems.Get("/", h.GetWorkItems)
	workItems.Get("/:id", h.GetWorkItem)
	workItems.Patch("/:id", h.SaveWorkItem)
	workItems.Post("/:id/complete", h.CompleteWorkItem)
	workItems.Post("/:id/skip", h.SkipWorkItem)

	documents := router.Group("/documents")
	documents.Post("/", h.CreateDocument)
	documents.Get("/:id", h.GetDocument)
	documents.Put("/:id/answers/:question", h.SaveAnswer)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, ok := h.definitions.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Casework API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if ok {
		status = "healthy"
		message = "Casework API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

// ImportDefinitions accepts a JSON (or YAML) definition document.
func (h *APIHandlers) ImportDefinitions(c fiber.Ctx) error {
	doc, err := definition.Parse(c.Body())
	if err != nil {
		return handleServiceError(c, err)
	}

	result, err := h.definitions.Import(c.Context(), doc)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.definitions.ListWorkflows(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"workflows": workflows})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, err := h.definitions.GetWorkflow(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) GetTasks(c fiber.Ctx) error {
	tasks, err := h.definitions.ListTasks(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"tasks": tasks})
}

func (h *APIHandlers) StartCase(c fiber.Ctx) error {
	var req services.StartCaseRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	req.Actor = actor(c)

	started, err := h.cases.Start(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(started)
}

func (h *APIHandlers) GetCase(c fiber.Ctx) error {
	detail, err := h.cases.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(detail)
}

func (h *APIHandlers) CancelCase(c fiber.Ctx) error {
	detail, err := h.cases.Cancel(c.Context(), c.Params("id"), actor(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(detail)
}

func (h *APIHandlers) CreateWorkItem(c fiber.Ctx) error {
	var req services.CreateWorkItemRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	workItem, err := h.workItems.Create(c.Context(), c.Params("id"), actor(c), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(workItem)
}

func (h *APIHandlers) GetWorkItems(c fiber.Ctx) error {
	req, err := parseListWorkItemsRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.workItems.List(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(WorkItemListResponse{
		WorkItems:   result.WorkItems,
		TotalCount:  result.TotalCount,
		HasNextPage: result.HasNextPage,
		Limit:       req.Limit,
		Offset:      req.Offset,
	})
}

func (h *APIHandlers) GetWorkItem(c fiber.Ctx) error {
	workItem, err := h.workItems.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workItem)
}

func (h *APIHandlers) SaveWorkItem(c fiber.Ctx) error {
	var req services.SaveWorkItemRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	workItem, err := h.workItems.Save(c.Context(), c.Params("id"), actor(c), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workItem)
}

func (h *APIHandlers) CompleteWorkItem(c fiber.Ctx) error {
	transition, err := h.workItems.Complete(c.Context(), c.Params("id"), actor(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(TransitionResponse(*transition))
}

func (h *APIHandlers) SkipWorkItem(c fiber.Ctx) error {
	transition, err := h.workItems.Skip(c.Context(), c.Params("id"), actor(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(TransitionResponse(*transition))
}

func (h *APIHandlers) CreateDocument(c fiber.Ctx) error {
	var req CreateDocumentRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	document, err := h.documents.Create(c.Context(), req.FormID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(document)
}

func (h *APIHandlers) GetDocument(c fiber.Ctx) error {
	detail, err := h.documents.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(detail)
}

func (h *APIHandlers) SaveAnswer(c fiber.Ctx) error {
	var req services.SaveAnswerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	answer, err := h.documents.SaveAnswer(c.Context(), c.Params("id"), c.Params("question"), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(answer)
}
