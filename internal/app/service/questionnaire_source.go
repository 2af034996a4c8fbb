package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/sifan077/PowerForm/internal/app/apperr"
	"github.com/sifan077/PowerForm/internal/app/model"
	"github.com/sifan077/PowerForm/internal/app/repository"
)

// questionnaireSource finds questionnaires by id, including those derived from
// legacy surveys.
type questionnaireSource struct {
	questionnaires repository.QuestionnaireRepository
	legacy         repository.LegacySurveyRepository
}

func legacySlug(surveyID string) string {
	return "survey-" + surveyID
}

// find looks id up as a questionnaire id, then as the id of an already
// converted legacy survey.
func (s questionnaireSource) find(ctx context.Context, id string) (*model.Questionnaire, error) {
	q, err := s.questionnaires.GetByID(ctx, id)
	if err == nil || !errors.Is(err, apperr.ErrNotFound) {
		return q, err
	}
	return s.questionnaires.GetBySlug(ctx, legacySlug(id))
}

// deriveFromLegacy converts legacy survey id without persisting the result.
func (s questionnaireSource) deriveFromLegacy(ctx context.Context, id string) (*model.Questionnaire, error) {
	if s.legacy == nil {
		return nil, repository.ErrLegacySurveyNotFound
	}
	survey, err := s.legacy.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return convertLegacySurvey(survey)
}

var nonIdentifier = regexp.MustCompile(`\W+`)

// convertLegacySurvey maps the first page of a legacy survey onto a
// questionnaire. Question types are inferred; anything unrecognised is text.
func convertLegacySurvey(survey *model.LegacySurvey) (*model.Questionnaire, error) {
	var pages []model.LegacySurveyPage
	if len(survey.Pages) > 0 {
		if err := json.Unmarshal(survey.Pages, &pages); err != nil {
			return nil, fmt.Errorf("convert legacy survey %s: %w", survey.ID, err)
		}
	}

	var fields []model.FieldSpec
	if len(pages) > 0 {
		fields = make([]model.FieldSpec, 0, len(pages[0].Questions))
		seen := make(map[string]int)
		for i, question := range pages[0].Questions {
			field := model.FieldSpec{
				Key:      fieldKey(question, i),
				Label:    firstNonEmpty(question.Label, question.Text, fmt.Sprintf("Question %d", i+1)),
				Type:     inferFieldType(question),
				Required: question.Required,
				Options:  question.Options,
			}
			if n := seen[field.Key]; n > 0 {
				seen[field.Key]++
				field.Key = fmt.Sprintf("%s__%d", field.Key, n)
			} else {
				seen[field.Key] = 1
			}
			fields = append(fields, field)
		}
	}
	if len(fields) == 0 {
		fields = model.DefaultFields()
	}

	title := survey.Title
	if title == "" {
		title = "Questionnaire"
	}

	return &model.Questionnaire{
		ID:          uuid.NewString(),
		Slug:        legacySlug(survey.ID),
		Title:       title,
		Description: survey.Description,
		Fields:      fields,
		IsActive:    true,
	}, nil
}

func fieldKey(q model.LegacySurveyQuestion, index int) string {
	if key := firstNonEmpty(q.Key, q.ID); key != "" {
		return key
	}
	name := strings.ToLower(firstNonEmpty(q.Label, q.Text))
	name = nonIdentifier.ReplaceAllLiteralString(name, " ")
	name = strings.Join(strings.Fields(name), "_")
	if name == "" {
		return fmt.Sprintf("q%d", index+1)
	}
	return name
}

func inferFieldType(q model.LegacySurveyQuestion) model.FieldType {
	switch strings.ToLower(strings.TrimSpace(q.Type)) {
	case "text", "short_text", "string", "input":
		return model.FieldText
	case "email":
		return model.FieldEmail
	case "textarea", "long_text", "paragraph", "comment":
		return model.FieldTextarea
	case "select", "dropdown":
		return model.FieldSelect
	case "radio", "radiogroup", "single_choice", "multiple_choice", "choice":
		return model.FieldRadio
	case "number", "numeric", "integer", "rating":
		return model.FieldNumber
	}

	if len(q.Options) > 0 {
		return model.FieldSelect
	}
	if strings.Contains(strings.ToLower(firstNonEmpty(q.Label, q.Text)), "email") {
		return model.FieldEmail
	}
	return model.FieldText
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
