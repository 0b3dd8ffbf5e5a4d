package db

import (
	"path/filepath"
	"testing"

	"github.com/kasuganosora/rtsmicro/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_SQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(config.DatabaseConfig{Mode: ModeSQLite, SQLitePath: path})
	require.NoError(t, err)
	require.NoError(t, db.Exec("CREATE TABLE t (id INTEGER)").Error)
	var n int64
	require.NoError(t, db.Raw("SELECT COUNT(*) FROM t").Scan(&n).Error)
	assert.Equal(t, int64(0), n)
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Mode: "oracle"})
	assert.ErrorContains(t, err, "unknown mode")

	_, err = Open(config.DatabaseConfig{Mode: ModeSQLite})
	assert.ErrorContains(t, err, "sqlite_path")

	_, err = Open(config.DatabaseConfig{Mode: ModeMySQL})
	assert.ErrorContains(t, err, "mysql_dsn")
}
