package db

import (
	"fmt"

	"github.com/kasuganosora/rtsmicro/config"
	dbmysql "github.com/kasuganosora/rtsmicro/db/mysql"
	dbsqlite "github.com/kasuganosora/rtsmicro/db/sqlite"
	"gorm.io/gorm"
)

const (
	ModeSQLite = "sqlite"
	ModeMySQL  = "mysql"
)

// Open returns a *gorm.DB for the configured database mode.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Mode {
	case ModeSQLite, "":
		path := cfg.SQLitePath
		if path == "" {
			return nil, fmt.Errorf("db: sqlite_path is required")
		}
		return dbsqlite.Open(path)
	case ModeMySQL:
		if cfg.MySQLDSN == "" {
			return nil, fmt.Errorf("db: mysql_dsn is required")
		}
		return dbmysql.Open(cfg.MySQLDSN, cfg.MySQLMaxOpen, cfg.MySQLMaxIdle, cfg.MySQLMaxLife)
	default:
		return nil, fmt.Errorf("db: unknown mode %q", cfg.Mode)
	}
}
