package file

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/dukex/casework/pkg/models"
	"github.com/dukex/casework/pkg/persistence"
)

type workflowRepository struct {
	v view
}

func (r *workflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	stored, err := detach(workflow)
	if err != nil {
		return err
	}

	return r.v.write(ctx, func(st *state) error {
		st.Workflows[stored.ID] = stored

		return nil
	})
}

func (r *workflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	var found *models.Workflow

	err := r.v.read(func(st *state) error {
		found = st.Workflows[id]

		return nil
	})
	if err != nil {
		return nil, err
	}

	if found == nil {
		return nil, persistence.NewEntityError("GetByID", "workflow", id, persistence.ErrWorkflowNotFound)
	}

	return detach(found)
}

func (r *workflowRepository) List(_ context.Context) ([]*models.Workflow, error) {
	var workflows []*models.Workflow

	err := r.v.read(func(st *state) error {
		workflows = sortedValues(st.Workflows, func(w *models.Workflow) string { return w.ID })

		return nil
	})
	if err != nil {
		return nil, err
	}

	return detachAll(workflows)
}

type taskRepository struct {
	v view
}

func (r *taskRepository) Save(ctx context.Context, task *models.Task) error {
	stored, err := detach(task)
	if err != nil {
		return err
	}

	return r.v.write(ctx, func(st *state) error {
		st.Tasks[stored.ID] = stored

		return nil
	})
}

func (r *taskRepository) GetByID(_ context.Context, id string) (*models.Task, error) {
	var found *models.Task

	err := r.v.read(func(st *state) error {
		found = st.Tasks[id]

		return nil
	})
	if err != nil {
		return nil, err
	}

	if found == nil {
		return nil, persistence.NewEntityError("GetByID", "task", id, persistence.ErrTaskNotFound)
	}

	return detach(found)
}

func (r *taskRepository) List(_ context.Context) ([]*models.Task, error) {
	var tasks []*models.Task

	err := r.v.read(func(st *state) error {
		tasks = sortedValues(st.Tasks, func(t *models.Task) string { return t.ID })

		return nil
	})
	if err != nil {
		return nil, err
	}

	return detachAll(tasks)
}

func (r *taskRepository) Exists(_ context.Context, id string) (bool, error) {
	var exists bool

	err := r.v.read(func(st *state) error {
		_, exists = st.Tasks[id]

		return nil
	})

	return exists, err
}

type flowRepository struct {
	v view
}

func (r *flowRepository) Save(ctx context.Context, flow *models.Flow) error {
	stored, err := detach(flow)
	if err != nil {
		return err
	}

	return r.v.write(ctx, func(st *state) error {
		st.Flows[stored.ID] = stored

		return nil
	})
}

func (r *flowRepository) GetByID(_ context.Context, id string) (*models.Flow, error) {
	var found *models.Flow

	err := r.v.read(func(st *state) error {
		found = st.Flows[id]

		return nil
	})
	if err != nil {
		return nil, err
	}

	if found == nil {
		return nil, persistence.NewEntityError("GetByID", "flow", id, persistence.ErrFlowNotFound)
	}

	return detach(found)
}

func (r *flowRepository) SaveTaskFlow(ctx context.Context, taskFlow *models.TaskFlow) error {
	stored, err := detach(taskFlow)
	if err != nil {
		return err
	}

	if stored.ID == "" {
		stored.ID = fmt.Sprintf("%s/%s/%s", stored.WorkflowID, stored.TaskID, stored.FlowID)
		taskFlow.ID = stored.ID
	}

	return r.v.write(ctx, func(st *state) error {
		if _, ok := st.Flows[stored.FlowID]; !ok {
			return persistence.NewEntityError("SaveTaskFlow", "flow", stored.FlowID, persistence.ErrFlowNotFound)
		}

		for id, existing := range st.TaskFlows {
			if id != stored.ID && existing.WorkflowID == stored.WorkflowID &&
				existing.TaskID == stored.TaskID && existing.FlowID == stored.FlowID {
				delete(st.TaskFlows, id)
			}
		}

		st.TaskFlows[stored.ID] = stored

		return nil
	})
}

func (r *flowRepository) DeleteTaskFlows(ctx context.Context, workflowID string) error {
	return r.v.write(ctx, func(st *state) error {
		for id, taskFlow := range st.TaskFlows {
			if taskFlow.WorkflowID == workflowID {
				delete(st.TaskFlows, id)
			}
		}

		return nil
	})
}

func (r *flowRepository) TaskFlows(_ context.Context, workflowID string) ([]*models.TaskFlow, error) {
	var taskFlows []*models.TaskFlow

	err := r.v.read(func(st *state) error {
		for _, taskFlow := range st.TaskFlows {
			if taskFlow.WorkflowID == workflowID {
				taskFlows = append(taskFlows, taskFlow)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(taskFlows, func(a, b *models.TaskFlow) int {
		return cmp.Or(cmp.Compare(a.TaskID, b.TaskID), cmp.Compare(a.FlowID, b.FlowID))
	})

	return detachAll(taskFlows)
}

func (r *flowRepository) ByTask(_ context.Context, workflowID, taskID string) ([]*models.Flow, error) {
	var flows []*models.Flow

	err := r.v.read(func(st *state) error {
		seen := map[string]bool{}

		for _, taskFlow := range st.TaskFlows {
			if taskFlow.WorkflowID != workflowID || taskFlow.TaskID != taskID || seen[taskFlow.FlowID] {
				continue
			}

			seen[taskFlow.FlowID] = true

			if flow, ok := st.Flows[taskFlow.FlowID]; ok {
				flows = append(flows, flow)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(flows, func(a, b *models.Flow) int { return cmp.Compare(a.ID, b.ID) })

	return detachAll(flows)
}

func sortedValues[T any](m map[string]*T, key func(*T) string) []*T {
	out := make([]*T, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}

	slices.SortFunc(out, func(a, b *T) int { return cmp.Compare(key(a), key(b)) })

	return out
}
