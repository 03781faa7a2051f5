package file

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/dukex/casework/pkg/models"
	"github.com/dukex/casework/pkg/persistence"
)

type formRepository struct {
	v view
}

func (r *formRepository) SaveForm(ctx context.Context, form *models.Form) error {
	stored, err := detach(form)
	if err != nil {
		return err
	}

	return r.v.write(ctx, func(st *state) error {
		st.Forms[stored.ID] = stored

		return nil
	})
}

func (r *formRepository) GetForm(_ context.Context, id string) (*models.Form, error) {
	var found *models.Form

	err := r.v.read(func(st *state) error {
		found = st.Forms[id]

		return nil
	})
	if err != nil {
		return nil, err
	}

	if found == nil {
		return nil, persistence.NewEntityError("GetForm", "form", id, persistence.ErrFormNotFound)
	}

	return detach(found)
}

func (r *formRepository) SaveQuestion(ctx context.Context, question *models.Question) error {
	stored, err := detach(question)
	if err != nil {
		return err
	}

	return r.v.write(ctx, func(st *state) error {
		st.Questions[stored.ID] = stored

		return nil
	})
}

func (r *formRepository) GetQuestion(_ context.Context, id string) (*models.Question, error) {
	var found *models.Question

	err := r.v.read(func(st *state) error {
		found = st.Questions[id]

		return nil
	})
	if err != nil {
		return nil, err
	}

	if found == nil {
		return nil, persistence.NewEntityError("GetQuestion", "question", id, persistence.ErrQuestionNotFound)
	}

	return detach(found)
}

type documentRepository struct {
	v view
}

func (r *documentRepository) CreateDocument(ctx context.Context, document *models.Document) error {
	if document.ID == "" {
		document.ID = models.NewID()
	}

	if document.CreatedAt.IsZero() {
		document.CreatedAt = time.Now().UTC()
	}

	stored, err := detach(document)
	if err != nil {
		return err
	}

	return r.v.write(ctx, func(st *state) error {
		if _, ok := st.Documents[stored.ID]; ok {
			return persistence.NewEntityError("CreateDocument", "document", stored.ID, persistence.ErrAlreadyExists)
		}

		st.Documents[stored.ID] = stored

		return nil
	})
}

func (r *documentRepository) GetDocument(_ context.Context, id string) (*models.Document, error) {
	var found *models.Document

	err := r.v.read(func(st *state) error {
		found = st.Documents[id]

		return nil
	})
	if err != nil {
		return nil, err
	}

	if found == nil {
		return nil, persistence.NewEntityError("GetDocument", "document", id, persistence.ErrDocumentNotFound)
	}

	return detach(found)
}

func (r *documentRepository) SaveAnswer(ctx context.Context, answer *models.Answer) error {
	now := time.Now().UTC()

	return r.v.write(ctx, func(st *state) error {
		if _, ok := st.Documents[answer.DocumentID]; !ok {
			return persistence.NewEntityError("SaveAnswer", "document", answer.DocumentID, persistence.ErrDocumentNotFound)
		}

		key := answerKey(answer.DocumentID, answer.QuestionID)

		if existing, ok := st.Answers[key]; ok {
			answer.ID = existing.ID
			answer.CreatedAt = existing.CreatedAt
		}

		if answer.ID == "" {
			answer.ID = models.NewID()
		}

		if answer.CreatedAt.IsZero() {
			answer.CreatedAt = now
		}

		answer.ModifiedAt = now

		stored, err := detach(answer)
		if err != nil {
			return err
		}

		st.Answers[key] = stored

		return nil
	})
}

func (r *documentRepository) Answers(_ context.Context, documentID string) ([]*models.Answer, error) {
	var answers []*models.Answer

	err := r.v.read(func(st *state) error {
		for _, answer := range st.Answers {
			if answer.DocumentID == documentID {
				answers = append(answers, answer)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(answers, func(a, b *models.Answer) int { return cmp.Compare(a.QuestionID, b.QuestionID) })

	return detachAll(answers)
}
