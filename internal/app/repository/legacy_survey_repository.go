package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/sifan077/PowerForm/internal/app/apperr"
	"github.com/sifan077/PowerForm/internal/app/model"
	"gorm.io/gorm"
)

// ErrLegacySurveyNotFound signals that no legacy survey matches the id.
var ErrLegacySurveyNotFound = fmt.Errorf("legacy survey %w", apperr.ErrNotFound)

// LegacySurveyRepository reads survey records predating questionnaires.
type LegacySurveyRepository interface {
	GetByID(ctx context.Context, id string) (*model.LegacySurvey, error)
}

type legacySurveyRepository struct {
	db      *gorm.DB
	catalog ColumnProber
}

// NewLegacySurveyRepository returns a GORM-backed LegacySurveyRepository.
func NewLegacySurveyRepository(db *gorm.DB, catalog ColumnProber) LegacySurveyRepository {
	return &legacySurveyRepository{db: db, catalog: catalog}
}

func (r *legacySurveyRepository) GetByID(ctx context.Context, id string) (*model.LegacySurvey, error) {
	ok, err := r.catalog.ColumnExists(ctx, "surveys", "pages")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLegacySurveyNotFound
	}

	var survey model.LegacySurvey
	err = r.db.WithContext(ctx).
		Select("id", "title", "description", "pages").
		Where("CAST(id AS TEXT) = ?", id).
		Take(&survey).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLegacySurveyNotFound
		}
		return nil, apperr.Transient("surveys: get by id", err)
	}
	return &survey, nil
}
