package validation

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/dukex/casework/pkg/models"
	"github.com/dukex/casework/pkg/persistence"
	"github.com/xeipuuv/gojsonschema"
)

// SchemaService validates documents by translating their form into a JSON schema.
type SchemaService struct {
	store  persistence.Store
	logger *slog.Logger
}

func NewSchemaService(logger *slog.Logger, store persistence.Store) *SchemaService {
	return &SchemaService{
		store:  store,
		logger: logger.With("module", "schema_validation"),
	}
}

// ValidateDocument checks the answers of a document against its form. Rows of table
// answers are validated against the row form; an invalid row marks the table question.
func (s *SchemaService) ValidateDocument(ctx context.Context, documentID string) (Result, error) {
	document, err := s.store.Documents().GetDocument(ctx, documentID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load document: %w", err)
	}

	missing, err := s.validate(ctx, document)
	if err != nil {
		return Result{}, err
	}

	if len(missing) > 0 {
		s.logger.DebugContext(ctx, "Document is incomplete", "document_id", documentID, "missing", missing)
	}

	return Result{OK: len(missing) == 0, Missing: missing}, nil
}

func (s *SchemaService) validate(ctx context.Context, document *models.Document) ([]string, error) {
	form, err := s.store.Forms().GetForm(ctx, document.FormID)
	if err != nil {
		return nil, fmt.Errorf("failed to load form of document %s: %w", document.ID, err)
	}

	questions := make([]*models.Question, 0, len(form.QuestionIDs))

	for _, id := range form.QuestionIDs {
		question, err := s.store.Forms().GetQuestion(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load question %s of form %s: %w", id, form.ID, err)
		}

		questions = append(questions, question)
	}

	answers, err := s.store.Documents().Answers(ctx, document.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load answers of document %s: %w", document.ID, err)
	}

	byQuestion := make(map[string]*models.Answer, len(answers))
	for _, answer := range answers {
		byQuestion[answer.QuestionID] = answer
	}

	invalid := make(map[string]bool)
	instance := make(map[string]any)

	for _, question := range questions {
		answer := byQuestion[question.ID]

		switch question.Type {
		case models.QuestionTypeStatic:
			continue
		case models.QuestionTypeTable:
			ok, err := s.validateRows(ctx, question, answer)
			if err != nil {
				return nil, err
			}

			if !ok {
				invalid[question.ID] = true
			}
		default:
			if answer != nil && answer.Value != nil {
				instance[question.ID] = answer.Value
			}
		}
	}

	fields, err := validateInstance(FormSchema(questions), instance)
	if err != nil {
		return nil, fmt.Errorf("failed to validate document %s: %w", document.ID, err)
	}

	for _, field := range fields {
		invalid[field] = true
	}

	missing := make([]string, 0, len(invalid))

	for _, question := range questions {
		if invalid[question.ID] {
			missing = append(missing, question.ID)
		}
	}

	return missing, nil
}

func (s *SchemaService) validateRows(ctx context.Context, question *models.Question, answer *models.Answer) (bool, error) {
	if answer == nil || len(answer.RowDocumentIDs) == 0 {
		return !question.IsRequired, nil
	}

	for _, rowID := range answer.RowDocumentIDs {
		row, err := s.store.Documents().GetDocument(ctx, rowID)
		if err != nil {
			return false, fmt.Errorf("failed to load row document %s: %w", rowID, err)
		}

		missing, err := s.validate(ctx, row)
		if err != nil {
			return false, err
		}

		if len(missing) > 0 {
			return false, nil
		}
	}

	return true, nil
}

// FormSchema builds the JSON schema of the answer map of a form. Table and static
// questions are not part of it.
func FormSchema(questions []*models.Question) map[string]any {
	properties := make(map[string]any)
	required := make([]any, 0)

	for _, question := range questions {
		property := questionSchema(question)
		if property == nil {
			continue
		}

		properties[question.ID] = property

		if question.IsRequired {
			required = append(required, question.ID)
		}
	}

	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func questionSchema(question *models.Question) map[string]any {
	options := make([]any, 0, len(question.Options))
	for _, option := range question.Options {
		options = append(options, option)
	}

	switch question.Type {
	case models.QuestionTypeText, models.QuestionTypeTextarea, models.QuestionTypeDate, models.QuestionTypeFile:
		schema := map[string]any{"type": "string"}
		if question.IsRequired {
			schema["minLength"] = 1
		}

		return schema
	case models.QuestionTypeInteger:
		return map[string]any{"type": "integer"}
	case models.QuestionTypeFloat:
		return map[string]any{"type": "number"}
	case models.QuestionTypeChoice:
		return withEnum(map[string]any{"type": "string"}, options)
	case models.QuestionTypeMultipleChoice:
		schema := map[string]any{
			"type":  "array",
			"items": withEnum(map[string]any{"type": "string"}, options),
		}
		if question.IsRequired {
			schema["minItems"] = 1
		}

		return schema
	default:
		return nil
	}
}

// withEnum restricts schema to options. An empty enum is not a valid schema.
func withEnum(schema map[string]any, options []any) map[string]any {
	if len(options) > 0 {
		schema["enum"] = options
	}

	return schema
}

// validateInstance returns the top-level properties of instance violating schema.
func validateInstance(schema, instance map[string]any) ([]string, error) {
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(instance))
	if err != nil {
		return nil, err
	}

	if result.Valid() {
		return nil, nil
	}

	fields := make([]string, 0, len(result.Errors()))

	for _, resultErr := range result.Errors() {
		field := resultErr.Field()

		if property, ok := resultErr.Details()["property"].(string); ok && resultErr.Type() == "required" {
			field = property
		}

		field, _, _ = strings.Cut(field, ".")

		if !slices.Contains(fields, field) {
			fields = append(fields, field)
		}
	}

	return fields, nil
}
