package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sifan077/PowerForm/internal/app/apperr"
)

const (
	LinksTable     = "questionnaire_links"
	ResponsesTable = "questionnaire_responses"
)

// ErrUnsupportedSchema signals a table carrying none of the known questionnaire
// reference columns.
var ErrUnsupportedSchema = errors.New("unsupported schema")

// ColumnProber answers catalog questions about the live database.
type ColumnProber interface {
	ColumnExists(ctx context.Context, table, column string) (bool, error)
}

// SchemaCatalog memoizes successful probes for the lifetime of the process.
// Failed probes are not cached.
type SchemaCatalog struct {
	prober ColumnProber

	mu    sync.RWMutex
	cache map[string]bool
}

// NewSchemaCatalog wraps prober with a per-process cache.
func NewSchemaCatalog(prober ColumnProber) *SchemaCatalog {
	return &SchemaCatalog{prober: prober, cache: make(map[string]bool)}
}

// ColumnExists reports whether table.column exists. Probe failures surface as
// TransientStoreError instead of a guessed answer.
func (c *SchemaCatalog) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	key := table + "." + column

	c.mu.RLock()
	exists, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		return exists, nil
	}

	exists, err := c.prober.ColumnExists(ctx, table, column)
	if err != nil {
		return false, apperr.Transient("schema: probe "+key, err)
	}

	c.mu.Lock()
	c.cache[key] = exists
	c.mu.Unlock()
	return exists, nil
}

// SchemaVariant names the generation of a table's questionnaire reference column.
type SchemaVariant uint8

const (
	// SchemaCurrent stores the reference in questionnaire_id.
	SchemaCurrent SchemaVariant = iota
	// SchemaLegacy stores the reference in template_id.
	SchemaLegacy
)

// RefColumn returns the column holding the questionnaire reference.
func (v SchemaVariant) RefColumn() string {
	if v == SchemaLegacy {
		return "template_id"
	}
	return "questionnaire_id"
}

func (v SchemaVariant) String() string {
	if v == SchemaLegacy {
		return "legacy"
	}
	return "current"
}

// Schema is the resolved variant of every table whose layout drifted across
// deployments. It is resolved once at startup.
type Schema struct {
	Links     SchemaVariant
	Responses SchemaVariant
}

// ResolveSchema probes the link and response tables.
func ResolveSchema(ctx context.Context, catalog ColumnProber) (Schema, error) {
	links, err := ResolveVariant(ctx, catalog, LinksTable)
	if err != nil {
		return Schema{}, err
	}
	responses, err := ResolveVariant(ctx, catalog, ResponsesTable)
	if err != nil {
		return Schema{}, err
	}
	return Schema{Links: links, Responses: responses}, nil
}

// ResolveVariant picks the variant for table. The current column wins when both
// are present.
func ResolveVariant(ctx context.Context, catalog ColumnProber, table string) (SchemaVariant, error) {
	for _, v := range []SchemaVariant{SchemaCurrent, SchemaLegacy} {
		ok, err := catalog.ColumnExists(ctx, table, v.RefColumn())
		if err != nil {
			return 0, apperr.Transient("schema: resolve "+table, err)
		}
		if ok {
			return v, nil
		}
	}
	return 0, apperr.Transient("schema: resolve "+table,
		fmt.Errorf("%w: %s has neither questionnaire_id nor template_id", ErrUnsupportedSchema, table))
}
