package migrations

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var exampleMigration = Migration{
	Version:     1,
	Description: "Add example test table",
	Up:          `CREATE TABLE IF NOT EXISTS test_table (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
	Down:        `DROP TABLE IF EXISTS test_table`,
}

var secondMigration = Migration{
	Version:     2,
	Description: "Add note column",
	Up:          `ALTER TABLE test_table ADD COLUMN note TEXT`,
	Down:        `ALTER TABLE test_table DROP COLUMN note`,
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", "file:"+filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestApplyAndRollback(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	// registered out of order on purpose
	manager := NewManager(secondMigration, exampleMigration)
	require.NoError(t, manager.Apply(ctx, db))

	version, err := Version(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	_, err = db.Exec("INSERT INTO test_table (id, name, note) VALUES (1, 'a', 'b')")
	require.NoError(t, err)

	// idempotent
	require.NoError(t, manager.Apply(ctx, db))

	require.NoError(t, manager.Rollback(ctx, db))
	version, err = Version(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
	_, err = db.Exec("INSERT INTO test_table (id, name, note) VALUES (2, 'a', 'b')")
	assert.Error(t, err, "note column dropped")

	require.NoError(t, manager.Rollback(ctx, db))
	_, err = db.Exec("INSERT INTO test_table (id, name) VALUES (3, 'a')")
	assert.Error(t, err, "table dropped")

	assert.ErrorContains(t, manager.Rollback(ctx, db), "no migrations to rollback")
}

func TestFailedMigrationLeavesVersion(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	bad := Migration{Version: 2, Description: "broken", Up: "CREATE TABLE oops ("}
	err := NewManager(exampleMigration, bad).Apply(ctx, db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration 2")

	version, err := Version(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}
