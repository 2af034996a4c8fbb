package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sifan077/PowerForm/internal/app/apperr"
	"github.com/sifan077/PowerForm/internal/app/model"
	"gorm.io/gorm"
)

// ErrQuestionnaireNotFound signals that the requested questionnaire does not exist.
var ErrQuestionnaireNotFound = fmt.Errorf("questionnaire %w", apperr.ErrNotFound)

// QuestionnaireRepository defines the data access contract for questionnaires.
type QuestionnaireRepository interface {
	Create(ctx context.Context, q *model.Questionnaire) error
	GetByID(ctx context.Context, id string) (*model.Questionnaire, error)
	GetBySlug(ctx context.Context, slug string) (*model.Questionnaire, error)
	OldestActive(ctx context.Context) (*model.Questionnaire, error)
}

type questionnaireRepository struct {
	db *gorm.DB
}

// NewQuestionnaireRepository returns a GORM-backed QuestionnaireRepository.
func NewQuestionnaireRepository(db *gorm.DB) QuestionnaireRepository {
	return &questionnaireRepository{db: db}
}

func (r *questionnaireRepository) Create(ctx context.Context, q *model.Questionnaire) error {
	if err := r.db.WithContext(ctx).Create(q).Error; err != nil {
		return apperr.Transient("questionnaires: insert", err)
	}
	return nil
}

func (r *questionnaireRepository) GetByID(ctx context.Context, id string) (*model.Questionnaire, error) {
	// Ids are uuids; anything else cannot match and would only make Postgres
	// reject the cast.
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrQuestionnaireNotFound
	}
	return r.first(r.db.WithContext(ctx).Where("id = ?", id), "questionnaires: get by id")
}

func (r *questionnaireRepository) GetBySlug(ctx context.Context, slug string) (*model.Questionnaire, error) {
	return r.first(r.db.WithContext(ctx).Where("slug = ?", slug), "questionnaires: get by slug")
}

func (r *questionnaireRepository) OldestActive(ctx context.Context) (*model.Questionnaire, error) {
	return r.first(r.db.WithContext(ctx).Where("is_active = ?", true).Order("created_at ASC"), "questionnaires: oldest active")
}

func (r *questionnaireRepository) first(query *gorm.DB, op string) (*model.Questionnaire, error) {
	var q model.Questionnaire
	if err := query.Take(&q).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuestionnaireNotFound
		}
		return nil, apperr.Transient(op, err)
	}
	return &q, nil
}
