package model

import (
	"time"

	"gorm.io/datatypes"
)

// FieldType enumerates the input kinds a form renderer understands.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldEmail    FieldType = "email"
	FieldTextarea FieldType = "textarea"
	FieldSelect   FieldType = "select"
	FieldRadio    FieldType = "radio"
	FieldNumber   FieldType = "number"
)

// Valid reports whether t is one of the supported field types.
func (t FieldType) Valid() bool {
	switch t {
	case FieldText, FieldEmail, FieldTextarea, FieldSelect, FieldRadio, FieldNumber:
		return true
	}
	return false
}

// Reserved answer keys carrying the respondent's contact details.
const (
	AnswerKeyClientName  = "clientName"
	AnswerKeyClientEmail = "clientEmail"
)

// FieldSpec is one answerable item of a questionnaire.
type FieldSpec struct {
	Key      string    `json:"key"`
	Label    string    `json:"label"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
	Options  []string  `json:"options,omitempty"`
}

// Questionnaire is a named form schema rendered behind a link.
type Questionnaire struct {
	ID          string                         `json:"id" gorm:"primaryKey;type:uuid"`
	Slug        string                         `json:"slug" gorm:"size:128;uniqueIndex"`
	Title       string                         `json:"title" gorm:"type:text;not null"`
	Description string                         `json:"description" gorm:"type:text"`
	Fields      datatypes.JSONSlice[FieldSpec] `json:"fields" gorm:"type:json;not null"`
	IsActive    bool                           `json:"is_active" gorm:"not null;default:true"`
	NotifyEmail string                         `json:"notify_email,omitempty" gorm:"size:320"`
	CreatedAt   time.Time                      `json:"created_at" gorm:"autoCreateTime"`
}

func (Questionnaire) TableName() string {
	return "questionnaires"
}

// DefaultQuestionnaireSlug identifies the questionnaire synthesized when a
// deployment has none configured.
const DefaultQuestionnaireSlug = "default"

// DefaultFields is the field set of the synthesized questionnaire.
func DefaultFields() []FieldSpec {
	return []FieldSpec{
		{Key: AnswerKeyClientName, Label: "Your name", Type: FieldText, Required: true},
		{Key: AnswerKeyClientEmail, Label: "Email address", Type: FieldEmail, Required: true},
		{Key: "message", Label: "Tell us about your project", Type: FieldTextarea},
	}
}
