package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newMockDB opens GORM over sqlmock. The optional matcher replaces the
// default regexp query matcher.
func newMockDB(t *testing.T, matchers ...sqlmock.QueryMatcher) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	var matcher sqlmock.QueryMatcher = sqlmock.QueryMatcherRegexp
	if len(matchers) > 0 {
		matcher = matchers[0]
	}
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(matcher))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

// staticProber answers from a fixed set of "table.column" keys.
type staticProber struct {
	columns map[string]bool
	err     error
	calls   int
}

func (p *staticProber) ColumnExists(_ context.Context, table, column string) (bool, error) {
	p.calls++
	if p.err != nil {
		return false, p.err
	}
	return p.columns[table+"."+column], nil
}

var errProbe = errors.New("catalog unreachable")
