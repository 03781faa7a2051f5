package file

import (
	"encoding/json"
	"fmt"
	"maps"

	"github.com/dukex/casework/pkg/models"
)

// state is the complete task graph. Stored entities are never mutated in place: writes
// replace the pointer, so a shallow copy of the maps is an isolated snapshot.
type state struct {
	Workflows map[string]*models.Workflow `json:"workflows"`
	Tasks     map[string]*models.Task     `json:"tasks"`
	Flows     map[string]*models.Flow     `json:"flows"`
	TaskFlows map[string]*models.TaskFlow `json:"task_flows"`
	Cases     map[string]*models.Case     `json:"cases"`
	WorkItems map[string]*models.WorkItem `json:"work_items"`
	Forms     map[string]*models.Form     `json:"forms"`
	Questions map[string]*models.Question `json:"questions"`
	Documents map[string]*models.Document `json:"documents"`
	Answers   map[string]*models.Answer   `json:"answers"` // Keyed by answerKey
}

func newState() *state {
	st := &state{}
	st.ensure()

	return st
}

func (s *state) ensure() {
	if s.Workflows == nil {
		s.Workflows = map[string]*models.Workflow{}
	}

	if s.Tasks == nil {
		s.Tasks = map[string]*models.Task{}
	}

	if s.Flows == nil {
		s.Flows = map[string]*models.Flow{}
	}

	if s.TaskFlows == nil {
		s.TaskFlows = map[string]*models.TaskFlow{}
	}

	if s.Cases == nil {
		s.Cases = map[string]*models.Case{}
	}

	if s.WorkItems == nil {
		s.WorkItems = map[string]*models.WorkItem{}
	}

	if s.Forms == nil {
		s.Forms = map[string]*models.Form{}
	}

	if s.Questions == nil {
		s.Questions = map[string]*models.Question{}
	}

	if s.Documents == nil {
		s.Documents = map[string]*models.Document{}
	}

	if s.Answers == nil {
		s.Answers = map[string]*models.Answer{}
	}
}

func (s *state) clone() *state {
	return &state{
		Workflows: maps.Clone(s.Workflows),
		Tasks:     maps.Clone(s.Tasks),
		Flows:     maps.Clone(s.Flows),
		TaskFlows: maps.Clone(s.TaskFlows),
		Cases:     maps.Clone(s.Cases),
		WorkItems: maps.Clone(s.WorkItems),
		Forms:     maps.Clone(s.Forms),
		Questions: maps.Clone(s.Questions),
		Documents: maps.Clone(s.Documents),
		Answers:   maps.Clone(s.Answers),
	}
}

func answerKey(documentID, questionID string) string {
	return documentID + "/" + questionID
}

// detach returns a deep copy of v through its JSON form, the same shape a reload from
// disk would produce.
func detach[T any](v *T) (*T, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %T: %w", v, err)
	}

	out := new(T)

	err = json.Unmarshal(data, out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %T: %w", v, err)
	}

	return out, nil
}

// detachAll copies every entity of a result set.
func detachAll[T any](items []*T) ([]*T, error) {
	out := make([]*T, 0, len(items))

	for _, item := range items {
		copied, err := detach(item)
		if err != nil {
			return nil, err
		}

		out = append(out, copied)
	}

	return out, nil
}
