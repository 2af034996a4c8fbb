package model

import "gorm.io/datatypes"

// LegacySurvey is the pre-questionnaire form record some deployments still carry.
type LegacySurvey struct {
	ID          string         `gorm:"column:id"`
	Title       string         `gorm:"column:title"`
	Description string         `gorm:"column:description"`
	Pages       datatypes.JSON `gorm:"column:pages"`
}

func (LegacySurvey) TableName() string {
	return "surveys"
}

// LegacySurveyPage is one page of a legacy survey's pages document.
type LegacySurveyPage struct {
	Title     string                 `json:"title"`
	Questions []LegacySurveyQuestion `json:"questions"`
}

// LegacySurveyQuestion is a question as stored by the legacy survey builder.
type LegacySurveyQuestion struct {
	ID       string   `json:"id"`
	Key      string   `json:"key"`
	Label    string   `json:"label"`
	Text     string   `json:"text"`
	Type     string   `json:"type"`
	Required bool     `json:"required"`
	Options  []string `json:"options"`
}
