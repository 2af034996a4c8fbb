package repository

import (
	"context"
	"testing"

	"github.com/sifan077/PowerForm/internal/app/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaCatalog_CachesSuccessfulProbes(t *testing.T) {
	prober := &staticProber{columns: map[string]bool{"questionnaire_links.template_id": true}}
	catalog := NewSchemaCatalog(prober)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := catalog.ColumnExists(ctx, LinksTable, "template_id")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := catalog.ColumnExists(ctx, LinksTable, "questionnaire_id")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 2, prober.calls)
}

func TestSchemaCatalog_ProbeFailureIsTransientAndNotCached(t *testing.T) {
	prober := &staticProber{err: errProbe}
	catalog := NewSchemaCatalog(prober)

	_, err := catalog.ColumnExists(context.Background(), LinksTable, "questionnaire_id")
	assert.ErrorIs(t, err, apperr.ErrTransientStore)
	assert.ErrorIs(t, err, errProbe)

	prober.err = nil
	prober.columns = map[string]bool{"questionnaire_links.questionnaire_id": true}
	ok, err := catalog.ColumnExists(context.Background(), LinksTable, "questionnaire_id")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestResolveSchema(t *testing.T) {
	tests := []struct {
		name      string
		columns   map[string]bool
		links     SchemaVariant
		responses SchemaVariant
		wantErr   bool
	}{
		{
			name: "current deployment",
			columns: map[string]bool{
				"questionnaire_links.questionnaire_id":     true,
				"questionnaire_responses.questionnaire_id": true,
			},
			links:     SchemaCurrent,
			responses: SchemaCurrent,
		},
		{
			name: "legacy deployment",
			columns: map[string]bool{
				"questionnaire_links.template_id":     true,
				"questionnaire_responses.template_id": true,
			},
			links:     SchemaLegacy,
			responses: SchemaLegacy,
		},
		{
			name: "half migrated prefers current column",
			columns: map[string]bool{
				"questionnaire_links.template_id":      true,
				"questionnaire_links.questionnaire_id": true,
				"questionnaire_responses.template_id":  true,
			},
			links:     SchemaCurrent,
			responses: SchemaLegacy,
		},
		{
			name:    "unknown layout",
			columns: map[string]bool{"questionnaire_links.form_id": true},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schema, err := ResolveSchema(context.Background(), &staticProber{columns: tt.columns})
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedSchema)
				assert.ErrorIs(t, err, apperr.ErrTransientStore)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.links, schema.Links)
			assert.Equal(t, tt.responses, schema.Responses)
		})
	}
}

func TestSchemaVariant_RefColumn(t *testing.T) {
	assert.Equal(t, "questionnaire_id", SchemaCurrent.RefColumn())
	assert.Equal(t, "template_id", SchemaLegacy.RefColumn())
	assert.Equal(t, "legacy", SchemaLegacy.String())
}
