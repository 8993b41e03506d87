package migrate

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedAppliesPendingFilesOnce(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	seeds := fstest.MapFS{
		"0001_admin.sql": {Data: []byte("insert into users (id) values ('a;b');\ninsert into users (id) values ('c');")},
		"0002_zones.sql": {Data: []byte("insert into zones (id) values ('z1');")},
		"README.md":      {Data: []byte("ignored")},
	}
	m := NewManager(db, WithSeeds(seeds))

	mock.ExpectExec("create table if not exists schema_seeds").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from schema_seeds").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_admin.sql"))
	mock.ExpectBegin()
	mock.ExpectExec(`insert into zones \(id\) values \('z1'\)`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into schema_seeds").
		WithArgs("0002_zones.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, m.Seed(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSplitStatementsKeepsQuotedSemicolons(t *testing.T) {
	stmts := splitStatements("insert into t values ('a;b'); select 1;\n")
	require.Len(t, stmts, 2)
	assert.Equal(t, "insert into t values ('a;b');", stmts[0])
	assert.Equal(t, " select 1;", stmts[1])
}

func TestEmbeddedSeedsAreCollected(t *testing.T) {
	m := NewManager(nil)
	files, err := collectSQL(m.seeds)
	require.NoError(t, err)
	assert.Contains(t, files, "0001_bootstrap_admin.sql")
}
