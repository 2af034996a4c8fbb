package model

import (
	"time"

	"gorm.io/datatypes"
)

// Response is the answer set recorded when a link is consumed.
type Response struct {
	ID              string         `json:"id" gorm:"column:id"`
	QuestionnaireID string         `json:"questionnaire_id" gorm:"column:questionnaire_ref"`
	ClientID        *string        `json:"client_id,omitempty" gorm:"column:client_id"`
	Token           string         `json:"token" gorm:"column:token"`
	Answers         datatypes.JSON `json:"answers" gorm:"column:answers"`
	ClientName      string         `json:"client_name" gorm:"column:client_name"`
	ClientEmail     string         `json:"client_email" gorm:"column:client_email"`
	SubmittedAt     time.Time      `json:"submitted_at" gorm:"column:submitted_at"`
}
