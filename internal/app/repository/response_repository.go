package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sifan077/PowerForm/internal/app/apperr"
	"github.com/sifan077/PowerForm/internal/app/model"
	"gorm.io/gorm"
)

var (
	// ErrResponseNotFound signals that no response carries the requested id.
	ErrResponseNotFound = fmt.Errorf("response %w", apperr.ErrNotFound)
	// ErrLinkAlreadyConsumed signals that the conditional consumption matched no row.
	ErrLinkAlreadyConsumed = fmt.Errorf("consume link: %w", apperr.ErrAlreadyConsumed)
)

// ResponseFilter narrows ListResponses. Empty fields do not filter.
type ResponseFilter struct {
	QuestionnaireID string
	ClientID        string
	Limit           int
	Offset          int
}

// ResponseRepository defines the data access contract for recorded responses.
type ResponseRepository interface {
	// ConsumeAndRecord flips the link identified by resp.Token from unused to used
	// and inserts resp in the same transaction. It returns ErrLinkAlreadyConsumed
	// when the link was not consumable at now.
	ConsumeAndRecord(ctx context.Context, resp *model.Response, now time.Time) error
	GetByID(ctx context.Context, id string) (*model.Response, error)
	List(ctx context.Context, filter ResponseFilter) ([]model.Response, int64, error)
	AttachClient(ctx context.Context, id, clientID string) (*model.Response, error)
}

type responseStatements struct {
	consume     string
	insert      string
	selectCols  string
	byQuestion  string
	attachQuery string
}

func newResponseStatements(schema Schema) responseStatements {
	ref := schema.Responses.RefColumn()
	return responseStatements{
		// The WHERE clause is the whole concurrency story: two racing submissions
		// cannot both match is_used = false.
		consume: fmt.Sprintf(
			`UPDATE %s SET is_used = true WHERE token = ? AND is_used = false AND (expires_at IS NULL OR expires_at > ?)`,
			LinksTable),
		insert: fmt.Sprintf(
			`INSERT INTO %s (id, %s, client_id, token, answers, client_name, client_email, submitted_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			ResponsesTable, ref),
		selectCols: fmt.Sprintf(
			`id, %s AS questionnaire_ref, client_id, token, answers, client_name, client_email, submitted_at`, ref),
		byQuestion:  ref + " = ?",
		attachQuery: fmt.Sprintf(`UPDATE %s SET client_id = ? WHERE id = ?`, ResponsesTable),
	}
}

type responseRepository struct {
	db    *gorm.DB
	stmts responseStatements
}

// NewResponseRepository returns a GORM-backed ResponseRepository for schema.
func NewResponseRepository(db *gorm.DB, schema Schema) ResponseRepository {
	return &responseRepository{db: db, stmts: newResponseStatements(schema)}
}

func (r *responseRepository) ConsumeAndRecord(ctx context.Context, resp *model.Response, now time.Time) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		consumed := tx.Exec(r.stmts.consume, resp.Token, now)
		if consumed.Error != nil {
			return apperr.Transient("responses: consume link", consumed.Error)
		}
		if consumed.RowsAffected == 0 {
			return ErrLinkAlreadyConsumed
		}

		err := tx.Exec(r.stmts.insert,
			resp.ID,
			resp.QuestionnaireID,
			resp.ClientID,
			resp.Token,
			resp.Answers,
			resp.ClientName,
			resp.ClientEmail,
			resp.SubmittedAt,
		).Error
		if err != nil {
			if isUniqueViolation(err) {
				return ErrLinkAlreadyConsumed
			}
			return apperr.Transient("responses: insert", err)
		}
		return nil
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, apperr.ErrAlreadyConsumed) || errors.Is(err, apperr.ErrTransientStore) {
		return err
	}
	return apperr.Transient("responses: transaction", err)
}

func (r *responseRepository) GetByID(ctx context.Context, id string) (*model.Response, error) {
	var resp model.Response
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ? LIMIT 1`, r.stmts.selectCols, ResponsesTable)
	result := r.db.WithContext(ctx).Raw(query, id).Scan(&resp)
	if result.Error != nil {
		return nil, apperr.Transient("responses: select", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrResponseNotFound
	}
	return &resp, nil
}

func (r *responseRepository) List(ctx context.Context, filter ResponseFilter) ([]model.Response, int64, error) {
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var (
		conds []string
		args  []interface{}
	)
	if filter.QuestionnaireID != "" {
		conds = append(conds, r.stmts.byQuestion)
		args = append(args, filter.QuestionnaireID)
	}
	if filter.ClientID != "" {
		conds = append(conds, "client_id = ?")
		args = append(args, filter.ClientID)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s%s`, ResponsesTable, where)
	if err := r.db.WithContext(ctx).Raw(countQuery, args...).Scan(&total).Error; err != nil {
		return nil, 0, apperr.Transient("responses: count", err)
	}

	var result []model.Response
	listQuery := fmt.Sprintf(`SELECT %s FROM %s%s ORDER BY submitted_at DESC LIMIT ? OFFSET ?`,
		r.stmts.selectCols, ResponsesTable, where)
	listArgs := append(append([]interface{}{}, args...), filter.Limit, filter.Offset)
	if err := r.db.WithContext(ctx).Raw(listQuery, listArgs...).Scan(&result).Error; err != nil {
		return nil, 0, apperr.Transient("responses: list", err)
	}

	return result, total, nil
}

func (r *responseRepository) AttachClient(ctx context.Context, id, clientID string) (*model.Response, error) {
	result := r.db.WithContext(ctx).Exec(r.stmts.attachQuery, clientID, id)
	if result.Error != nil {
		return nil, apperr.Transient("responses: attach client", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrResponseNotFound
	}
	return r.GetByID(ctx, id)
}
