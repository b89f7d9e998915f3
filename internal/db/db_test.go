package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSqliteDB_Memory(t *testing.T) {
	database, err := NewSqliteDB()
	require.NoError(t, err)
	defer database.Close()

	_, err = database.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT);")
	require.NoError(t, err)
	_, err = database.Exec("INSERT INTO t (v) VALUES ('a');")
	require.NoError(t, err)

	// single connection, so the table is visible to later queries
	var n int
	require.NoError(t, database.Get(&n, "SELECT COUNT(*) FROM t"))
	assert.Equal(t, 1, n)
}

func TestNewSqliteDB_File_CreatesParent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "state.db")

	database, err := NewSqliteDB(WithPath(dbPath))
	require.NoError(t, err)
	defer database.Close()

	assert.DirExists(t, filepath.Dir(dbPath))
	assert.FileExists(t, dbPath)
}

func TestNewSqliteDB_Schema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")
	schema := WithSchema(`CREATE TABLE IF NOT EXISTS kv (k TEXT PRIMARY KEY, v TEXT NOT NULL);`)

	database, err := NewSqliteDB(WithPath(dbPath), schema)
	require.NoError(t, err)
	_, err = database.Exec(`INSERT INTO kv (k, v) VALUES ('a', 'b')`)
	require.NoError(t, err)
	require.NoError(t, database.Close())

	// reopening keeps the data
	database, err = NewSqliteDB(WithPath(dbPath), schema)
	require.NoError(t, err)
	defer database.Close()

	var v string
	require.NoError(t, database.Get(&v, `SELECT v FROM kv WHERE k = 'a'`))
	assert.Equal(t, "b", v)
}

func TestNewSqliteDB_BadSchema(t *testing.T) {
	_, err := NewSqliteDB(WithSchema("CREATE NONSENSE"))
	assert.Error(t, err)
}
