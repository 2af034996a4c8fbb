package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sifan077/PowerForm/internal/app/apperr"
	"github.com/sifan077/PowerForm/internal/app/model"
	"gorm.io/gorm"
)

var (
	// ErrLinkNotFound signals that no link carries the requested token.
	ErrLinkNotFound = fmt.Errorf("link %w", apperr.ErrNotFound)
	// ErrTokenCollision signals an insert against a token that already exists.
	ErrTokenCollision = errors.New("link token already exists")
)

// LinkRepository defines the data access contract for questionnaire links.
type LinkRepository interface {
	Create(ctx context.Context, link *model.Link) error
	GetByToken(ctx context.Context, token string) (*model.Link, error)
}

// linkStatements is the SQL for one schema variant, built once.
type linkStatements struct {
	insert        string
	selectByToken string
}

func newLinkStatements(v SchemaVariant) linkStatements {
	ref := v.RefColumn()
	return linkStatements{
		insert: fmt.Sprintf(
			`INSERT INTO %s (token, %s, client_id, expires_at, is_used, created_at) VALUES (?, ?, ?, ?, false, ?)`,
			LinksTable, ref),
		selectByToken: fmt.Sprintf(
			`SELECT token, %s AS questionnaire_ref, client_id, expires_at, is_used, created_at FROM %s WHERE token = ? LIMIT 1`,
			ref, LinksTable),
	}
}

type linkRepository struct {
	db    *gorm.DB
	stmts linkStatements
}

// NewLinkRepository returns a GORM-backed LinkRepository speaking the given
// schema variant.
func NewLinkRepository(db *gorm.DB, variant SchemaVariant) LinkRepository {
	return &linkRepository{db: db, stmts: newLinkStatements(variant)}
}

func (r *linkRepository) Create(ctx context.Context, link *model.Link) error {
	err := r.db.WithContext(ctx).Exec(r.stmts.insert,
		link.Token,
		link.QuestionnaireID,
		link.ClientID,
		link.ExpiresAt,
		link.CreatedAt,
	).Error
	if err != nil {
		if isUniqueViolation(err) {
			return ErrTokenCollision
		}
		return apperr.Transient("links: insert", err)
	}
	return nil
}

func (r *linkRepository) GetByToken(ctx context.Context, token string) (*model.Link, error) {
	var link model.Link
	result := r.db.WithContext(ctx).Raw(r.stmts.selectByToken, token).Scan(&link)
	if result.Error != nil {
		return nil, apperr.Transient("links: select", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrLinkNotFound
	}
	return &link, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
