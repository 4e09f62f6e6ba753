// Package testdb provides migrated in-memory databases for tests.
package testdb

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/velociti/velociti/internal/datastore/entities"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
)

// New creates an in-memory SQLite database with every table migrated.
// Each call gets its own named database so parallel tests stay isolated;
// a single connection keeps all statements on the same in-memory instance.
func New(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=ON", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	require.NoError(t, err, "failed to open in-memory database")

	sqlDB, err := db.DB()
	require.NoError(t, err, "failed to get sql.DB")
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(entities.All()...), "failed to migrate tables")
	return db
}

// SeedAgent inserts a minimal agent row.
func SeedAgent(t *testing.T, db *gorm.DB, id string) *entities.Agent {
	t.Helper()
	agent := &entities.Agent{ID: id, Name: id + " agent", Status: entities.AgentStatusActive}
	require.NoError(t, db.Create(agent).Error)
	return agent
}
