package models

import "time"

// QuestionType defines how an answer to a question is shaped.
type QuestionType string

const (
	QuestionTypeText           QuestionType = "text"
	QuestionTypeTextarea       QuestionType = "textarea"
	QuestionTypeInteger        QuestionType = "integer"
	QuestionTypeFloat          QuestionType = "float"
	QuestionTypeChoice         QuestionType = "choice"
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	QuestionTypeDate           QuestionType = "date"
	QuestionTypeTable          QuestionType = "table"
	QuestionTypeFile           QuestionType = "file"
	QuestionTypeStatic         QuestionType = "static" // Display only, never answered
)

// Form is an ordered set of questions.
type Form struct {
	ID          string    `json:"id"        validate:"required,slug"`
	Name        string    `json:"name"      validate:"required"`
	QuestionIDs []string  `json:"questions" validate:"dive,slug"`
	CreatedAt   time.Time `json:"created_at"`
}

// Question is a single field of a form.
type Question struct {
	ID         string       `json:"id"                validate:"required,slug"`
	Label      string       `json:"label"`
	Type       QuestionType `json:"type"              validate:"required,oneof=text textarea integer float choice multiple_choice date table file static"`
	IsRequired bool         `json:"is_required"`
	Options    []string     `json:"options,omitempty" validate:"required_if=Type choice,required_if=Type multiple_choice"`
	RowFormID  string       `json:"row_form,omitempty" validate:"required_if=Type table"`
	CreatedAt  time.Time    `json:"created_at"`
}

// Document is the answer set of a form.
type Document struct {
	ID        string    `json:"id"`
	FormID    string    `json:"form_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Answer holds the value given to a question within a document. Table answers
// reference their row documents instead of carrying a value.
type Answer struct {
	ID             string    `json:"id"`
	DocumentID     string    `json:"document_id"                validate:"required"`
	QuestionID     string    `json:"question_id"                validate:"required"`
	Value          any       `json:"value"`
	RowDocumentIDs []string  `json:"row_documents,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	ModifiedAt     time.Time `json:"modified_at"`
}
