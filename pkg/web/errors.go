package web

import (
	"errors"

	"github.com/dukex/casework/pkg/persistence"
	"github.com/dukex/casework/pkg/services"
	"github.com/dukex/casework/pkg/workflow"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

// validationProblem is the body of a 422 response: the questions keeping a work item open.
type validationProblem struct {
	*problems.DefaultProblem

	Missing []string `json:"missing"`
}

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func problem(c fiber.Ctx, status int, problemType string, err error) error {
	p := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(err.Error())

	return c.Status(status).JSON(p)
}

// handleServiceError maps the casework error taxonomy to problem responses.
func handleServiceError(c fiber.Ctx, err error) error {
	var validationErr *workflow.ValidationError

	switch {
	case errors.As(err, &validationErr):
		p := problems.NewStatusProblem(422).
			WithInstance(c.Path()).
			WithType("validation_failed").
			WithDetail(err.Error())

		missing := validationErr.Missing
		if missing == nil {
			missing = []string{}
		}

		return c.Status(fiber.StatusUnprocessableEntity).JSON(validationProblem{DefaultProblem: p, Missing: missing})

	case services.IsValidationError(err):
		return problem(c, fiber.StatusBadRequest, "validation_error", err)

	case persistence.IsNotFound(err):
		return problem(c, fiber.StatusNotFound, "not_found", err)

	case errors.Is(err, workflow.ErrInvalidTask):
		return problem(c, fiber.StatusConflict, "invalid_task", err)

	case services.IsConflictError(err):
		return problem(c, fiber.StatusConflict, "invalid_state", err)

	case errors.Is(err, workflow.ErrTimeout):
		c.Set(fiber.HeaderRetryAfter, "1")

		return problem(c, fiber.StatusServiceUnavailable, "timeout", err)

	default:
		// Don't expose details of unexpected errors
		p := problems.NewStatusProblem(500).
			WithInstance(c.Path()).
			WithType("internal_error")

		return c.Status(fiber.StatusInternalServerError).JSON(p)
	}
}
