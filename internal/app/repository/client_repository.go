package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/sifan077/PowerForm/internal/app/apperr"
	"github.com/sifan077/PowerForm/internal/app/model"
	"gorm.io/gorm"
)

// ErrClientNotFound signals that the directory holds no matching client.
var ErrClientNotFound = fmt.Errorf("client %w", apperr.ErrNotFound)

// ClientDirectory is the read-only view of the CRM client table.
type ClientDirectory interface {
	// FindByReference matches ref against the internal id or the business code.
	FindByReference(ctx context.Context, ref string) (*model.Client, error)
}

type clientDirectory struct {
	db      *gorm.DB
	catalog ColumnProber
}

// NewClientDirectory returns a GORM-backed ClientDirectory. Deployments without a
// clients table report every reference as not found.
func NewClientDirectory(db *gorm.DB, catalog ColumnProber) ClientDirectory {
	return &clientDirectory{db: db, catalog: catalog}
}

func (d *clientDirectory) FindByReference(ctx context.Context, ref string) (*model.Client, error) {
	if ref == "" {
		return nil, ErrClientNotFound
	}

	hasTable, err := d.catalog.ColumnExists(ctx, "clients", "id")
	if err != nil {
		return nil, err
	}
	if !hasTable {
		return nil, ErrClientNotFound
	}
	hasCode, err := d.catalog.ColumnExists(ctx, "clients", "client_code")
	if err != nil {
		return nil, err
	}

	query := d.db.WithContext(ctx).Where("CAST(id AS TEXT) = ?", ref)
	if hasCode {
		query = query.Or("client_code = ?", ref)
	}

	var client model.Client
	if err := query.Take(&client).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClientNotFound
		}
		return nil, apperr.Transient("clients: find", err)
	}
	return &client, nil
}
