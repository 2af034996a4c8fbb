package model

import "time"

// Link is a single-use capability granting one submission to a questionnaire.
// Its questionnaire reference lives in a column whose name depends on the
// deployment's schema generation, so it is read and written with raw SQL.
type Link struct {
	Token           string     `json:"token" gorm:"column:token"`
	QuestionnaireID string     `json:"questionnaire_id" gorm:"column:questionnaire_ref"`
	ClientID        *string    `json:"client_id,omitempty" gorm:"column:client_id"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty" gorm:"column:expires_at"`
	IsUsed          bool       `json:"is_used" gorm:"column:is_used"`
	CreatedAt       time.Time  `json:"created_at" gorm:"column:created_at"`
}

// ExpiredAt reports whether the link's expiry has been reached at now.
// A link without expiry never expires.
func (l *Link) ExpiredAt(now time.Time) bool {
	return l.ExpiresAt != nil && !now.Before(*l.ExpiresAt)
}
