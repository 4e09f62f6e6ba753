// Package datastore opens the relational store and owns its lifecycle.
package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq" // registers the "postgres" database/sql driver
	"github.com/velociti/velociti/internal/conf"
	"github.com/velociti/velociti/internal/datastore/entities"
	"github.com/velociti/velociti/internal/errors"
	"github.com/velociti/velociti/internal/logger"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Dialect identifies the SQL backend.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
)

// Manager holds the GORM handle for one database.
type Manager struct {
	db      *gorm.DB
	dialect Dialect
	log     logger.Logger
}

// Open connects to the database described by settings and verifies it with a ping.
func Open(ctx context.Context, settings *conf.DatabaseSettings, log logger.Logger) (*Manager, error) {
	log = log.Module("datastore")
	dialect := Dialect(settings.Driver)
	if dialect == "" {
		dialect = Dialect(conf.DriverFromURL(settings.URL))
	}

	gormCfg := &gorm.Config{
		Logger:  NewGormLogger(log, settings.SlowThreshold.Std()),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}

	var (
		db  *gorm.DB
		err error
	)
	switch dialect {
	case DialectSQLite:
		db, err = gorm.Open(sqlite.Open(sqliteDSN(settings.URL)), gormCfg)
	case DialectMySQL:
		var dsn string
		dsn, err = mysqlDSN(settings.URL)
		if err == nil {
			db, err = gorm.Open(mysql.Open(dsn), gormCfg)
		}
	case DialectPostgres:
		db, err = openPostgres(settings.URL, gormCfg)
	default:
		return nil, errors.Newf("unsupported database driver %q", dialect).
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to open %s database: %w", dialect, err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("driver", string(dialect)).
			Build()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if dialect == DialectSQLite {
		// sqlite serializes writers; one connection also keeps :memory: databases shared
		sqlDB.SetMaxOpenConns(1)
	} else {
		if settings.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(settings.MaxOpenConns)
		}
		if settings.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(settings.MaxIdleConns)
		}
		sqlDB.SetConnMaxLifetime(settings.ConnMaxLifetime.Std())
	}

	m := &Manager{db: db, dialect: dialect, log: log}
	if err := m.Ping(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	log.Info("database connected", logger.String("driver", string(dialect)))
	return m, nil
}

// NewManager wraps an already open GORM handle. Used by tests.
func NewManager(db *gorm.DB, dialect Dialect, log logger.Logger) *Manager {
	return &Manager{db: db, dialect: dialect, log: log.Module("datastore")}
}

// openPostgres opens through lib/pq and hands the pool to GORM.
func openPostgres(dsn string, cfg *gorm.Config) (*gorm.DB, error) {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), cfg)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// sqliteDSN enables foreign keys unless the caller already set pragmas.
func sqliteDSN(url string) string {
	path := strings.TrimPrefix(url, "sqlite://")
	if strings.Contains(path, "_foreign_keys") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=ON"
}

// mysqlDSN converts mysql:// URLs to the go-sql-driver format and forces
// parseTime so DATETIME columns scan into time.Time.
func mysqlDSN(url string) (string, error) {
	dsn := url
	if rest, ok := strings.CutPrefix(url, "mysql://"); ok {
		// user:pass@host:port/db?params
		creds, hostPath, found := strings.Cut(rest, "@")
		if !found {
			creds, hostPath = "", rest
		}
		host, path, _ := strings.Cut(hostPath, "/")
		dsn = fmt.Sprintf("tcp(%s)/%s", host, path)
		if creds != "" {
			dsn = creds + "@" + dsn
		}
	}
	cfg, err := mysqldrv.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	if cfg.Loc == nil || cfg.Loc == time.Local {
		cfg.Loc = time.UTC
	}
	return cfg.FormatDSN(), nil
}

// DB returns the GORM handle.
func (m *Manager) DB() *gorm.DB { return m.db }

// Dialect returns the SQL backend in use.
func (m *Manager) Dialect() Dialect { return m.dialect }

// Migrate creates or updates every table.
func (m *Manager) Migrate(ctx context.Context) error {
	if err := m.db.WithContext(ctx).AutoMigrate(entities.All()...); err != nil {
		return errors.New(fmt.Errorf("failed to migrate schema: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	m.log.Info("schema migrated", logger.Int("tables", len(entities.All())))
	return nil
}

// Ping checks connectivity.
func (m *Manager) Ping(ctx context.Context) error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return errors.New(fmt.Errorf("database ping failed: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return nil
}

// Close releases the connection pool.
func (m *Manager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
