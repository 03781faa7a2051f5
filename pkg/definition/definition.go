// Package definition reads workflow definition documents: forms, tasks, workflows and the
// flows between their tasks. Documents are YAML; JSON is accepted as well.
package definition

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dukex/casework/pkg/expression"
	"github.com/dukex/casework/pkg/models"
	"gopkg.in/yaml.v3"
)

// ErrInvalidDefinition indicates a structurally invalid definition document.
var ErrInvalidDefinition = errors.New("invalid definition")

// Document is a set of definitions imported together.
type Document struct {
	Forms     []Form     `json:"forms"     yaml:"forms"     validate:"dive"`
	Tasks     []Task     `json:"tasks"     yaml:"tasks"     validate:"dive"`
	Workflows []Workflow `json:"workflows" yaml:"workflows" validate:"dive"`
}

type Form struct {
	ID        string     `json:"id"        yaml:"id"        validate:"required,slug"`
	Name      string     `json:"name"      yaml:"name"      validate:"required"`
	Questions []Question `json:"questions" yaml:"questions" validate:"dive"`
}

type Question struct {
	ID       string   `json:"id"                 yaml:"id"                 validate:"required,slug"`
	Label    string   `json:"label"              yaml:"label"`
	Type     string   `json:"type"               yaml:"type"               validate:"required"`
	Required bool     `json:"required,omitempty" yaml:"required,omitempty"`
	Options  []string `json:"options,omitempty"  yaml:"options,omitempty"`
	RowForm  string   `json:"row_form,omitempty" yaml:"row_form,omitempty"`
}

type Task struct {
	ID               string         `json:"id"                          yaml:"id"                          validate:"required,slug"`
	Name             string         `json:"name"                        yaml:"name"                        validate:"required"`
	Description      string         `json:"description,omitempty"       yaml:"description,omitempty"`
	Type             string         `json:"type,omitempty"              yaml:"type,omitempty"`
	Form             string         `json:"form,omitempty"              yaml:"form,omitempty"`
	AddressGroups    string         `json:"address_groups,omitempty"    yaml:"address_groups,omitempty"`
	MultipleInstance bool           `json:"multiple_instance,omitempty" yaml:"multiple_instance,omitempty"`
	LeadTime         int64          `json:"lead_time,omitempty"         yaml:"lead_time,omitempty"`
	Meta             map[string]any `json:"meta,omitempty"              yaml:"meta,omitempty"`
}

type Workflow struct {
	ID          string         `json:"id"                    yaml:"id"                    validate:"required,slug"`
	Name        string         `json:"name"                  yaml:"name"                  validate:"required"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Form        string         `json:"form,omitempty"        yaml:"form,omitempty"`
	StartTasks  []string       `json:"start_tasks"           yaml:"start_tasks"           validate:"required,min=1"`
	Published   bool           `json:"published"             yaml:"published"`
	Meta        map[string]any `json:"meta,omitempty"        yaml:"meta,omitempty"`
	Flows       []Flow         `json:"flows,omitempty"       yaml:"flows,omitempty"       validate:"dive"`
}

// Flow leads from Tasks to the successors its Next expression resolves to.
type Flow struct {
	ID    string   `json:"id,omitempty" yaml:"id,omitempty"`
	Tasks []string `json:"tasks"        yaml:"tasks"        validate:"required,min=1"`
	Next  string   `json:"next"         yaml:"next"         validate:"required"`
}

// Parse decodes and validates a definition document.
func Parse(data []byte) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: definition payload is empty", ErrInvalidDefinition)
	}

	var doc Document

	err := yaml.Unmarshal(data, &doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	err = doc.Validate()
	if err != nil {
		return nil, err
	}

	return &doc, nil
}

// Load reads a definition document from r.
func Load(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition: %w", err)
	}

	return Parse(data)
}

// LoadFile reads a definition document from path.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition %s: %w", path, err)
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return doc, nil
}

// Validate checks the document structure and parses every expression. Expression
// failures match expression.ErrExpression; the rest match ErrInvalidDefinition.
func (d *Document) Validate() error {
	err := models.NewValidator().Struct(d)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	_, err = d.Graph()
	if err != nil {
		return err
	}

	for _, task := range d.Tasks {
		if task.AddressGroups == "" {
			continue
		}

		node, err := expression.Parse(task.AddressGroups)
		if err != nil {
			return withSource(err, "task "+task.ID)
		}

		if _, ok := node.(expression.TaskRef); ok {
			return &expression.Error{Expr: task.AddressGroups, Source: "task " + task.ID, Reason: "task references cannot address groups"}
		}
	}

	for _, workflow := range d.Workflows {
		for i, flow := range workflow.Flows {
			_, err := expression.Parse(flow.Next)
			if err != nil {
				return withSource(err, "flow "+FlowID(workflow.ID, i, flow))
			}
		}
	}

	return nil
}

// FlowID returns the id of the i-th flow of a workflow, generated when not declared.
func FlowID(workflowID string, i int, flow Flow) string {
	if flow.ID != "" {
		return flow.ID
	}

	return fmt.Sprintf("%s-%d", workflowID, i+1)
}

// Graph is the model form of a definition document.
type Graph struct {
	Forms     []*models.Form
	Questions []*models.Question
	Tasks     []*models.Task
	Workflows []*WorkflowGraph
}

// WorkflowGraph is a workflow with its flows and their task attachments.
type WorkflowGraph struct {
	Workflow  *models.Workflow
	Flows     []*models.Flow
	TaskFlows []*models.TaskFlow
}

// Graph converts the document to validated models.
func (d *Document) Graph() (*Graph, error) {
	validate := models.NewValidator()
	graph := &Graph{}

	for _, form := range d.Forms {
		f := &models.Form{ID: form.ID, Name: form.Name}

		for _, question := range form.Questions {
			q := &models.Question{
				ID:         question.ID,
				Label:      question.Label,
				Type:       models.QuestionType(question.Type),
				IsRequired: question.Required,
				Options:    question.Options,
				RowFormID:  question.RowForm,
			}

			graph.Questions = append(graph.Questions, q)
			f.QuestionIDs = append(f.QuestionIDs, q.ID)
		}

		graph.Forms = append(graph.Forms, f)
	}

	for _, task := range d.Tasks {
		taskType := models.TaskType(task.Type)
		if taskType == "" {
			taskType = models.TaskTypeSimple
		}

		graph.Tasks = append(graph.Tasks, &models.Task{
			ID:                 task.ID,
			Name:               task.Name,
			Description:        task.Description,
			Type:               taskType,
			FormID:             task.Form,
			AddressGroups:      task.AddressGroups,
			IsMultipleInstance: task.MultipleInstance,
			LeadTime:           task.LeadTime,
			Meta:               task.Meta,
		})
	}

	for _, workflow := range d.Workflows {
		wg := &WorkflowGraph{
			Workflow: &models.Workflow{
				ID:           workflow.ID,
				Name:         workflow.Name,
				Description:  workflow.Description,
				StartTaskIDs: workflow.StartTasks,
				FormID:       workflow.Form,
				IsPublished:  workflow.Published,
				Meta:         workflow.Meta,
			},
		}

		for i, flow := range workflow.Flows {
			id := FlowID(workflow.ID, i, flow)

			wg.Flows = append(wg.Flows, &models.Flow{ID: id, Next: flow.Next})

			for _, taskID := range flow.Tasks {
				wg.TaskFlows = append(wg.TaskFlows, &models.TaskFlow{
					ID:         fmt.Sprintf("%s/%s/%s", workflow.ID, taskID, id),
					WorkflowID: workflow.ID,
					TaskID:     taskID,
					FlowID:     id,
				})
			}
		}

		graph.Workflows = append(graph.Workflows, wg)
	}

	var errs []error

	for _, q := range graph.Questions {
		errs = appendInvalid(errs, validate.Struct(q), "question "+q.ID)
	}

	for _, t := range graph.Tasks {
		errs = appendInvalid(errs, validate.Struct(t), "task "+t.ID)
	}

	for _, wg := range graph.Workflows {
		errs = appendInvalid(errs, validate.Struct(wg.Workflow), "workflow "+wg.Workflow.ID)

		for _, tf := range wg.TaskFlows {
			errs = appendInvalid(errs, validate.Struct(tf), "flow "+tf.FlowID)
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, errors.Join(errs...))
	}

	return graph, nil
}

func appendInvalid(errs []error, err error, subject string) []error {
	if err == nil {
		return errs
	}

	return append(errs, fmt.Errorf("%s: %w", subject, err))
}

func withSource(err error, source string) error {
	var exprErr *expression.Error
	if errors.As(err, &exprErr) && exprErr.Source == "" {
		return &expression.Error{Expr: exprErr.Expr, Source: source, Reason: exprErr.Reason}
	}

	return err
}
