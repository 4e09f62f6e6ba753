package datastore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/velociti/velociti/internal/conf"
	"github.com/velociti/velociti/internal/datastore/entities"
	"github.com/velociti/velociti/internal/errors"
	"github.com/velociti/velociti/internal/logger"
)

func TestOpen_SQLiteMigrate(t *testing.T) {
	t.Parallel()

	settings := &conf.DatabaseSettings{URL: filepath.Join(t.TempDir(), "velociti.db")}
	m, err := Open(t.Context(), settings, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	assert.Equal(t, DialectSQLite, m.Dialect())
	require.NoError(t, m.Migrate(t.Context()))
	require.NoError(t, m.Ping(t.Context()))

	for _, table := range []string{"agents", "alerts", "alert_feedback", "route_performance",
		"action_agent_configs", "action_agent_executions", "action_agent_metrics"} {
		assert.True(t, m.DB().Migrator().HasTable(table), "missing table %s", table)
	}

	// migration is idempotent
	require.NoError(t, m.Migrate(t.Context()))
	assert.True(t, m.DB().Migrator().HasIndex(&entities.RoutePerformance{}, "idx_route_date"))
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	t.Parallel()

	_, err := Open(t.Context(), &conf.DatabaseSettings{Driver: "oracle", URL: "x"}, logger.NewNop())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestMySQLDSN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"native dsn", "rm:pw@tcp(db:3306)/velociti", "rm:pw@tcp(db:3306)/velociti?parseTime=true"},
		{"url form", "mysql://rm:pw@db:3306/velociti", "rm:pw@tcp(db:3306)/velociti?parseTime=true"},
		{"url without credentials", "mysql://db:3306/velociti", "tcp(db:3306)/velociti?parseTime=true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := mysqlDSN(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := mysqlDSN("not a dsn at all")
	require.Error(t, err)
}

func TestSQLiteDSN(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "velociti.db?_foreign_keys=ON", sqliteDSN("velociti.db"))
	assert.Equal(t, "file:x.db?cache=shared&_foreign_keys=ON", sqliteDSN("file:x.db?cache=shared"))
	assert.Equal(t, "a.db?_foreign_keys=off", sqliteDSN("sqlite://a.db?_foreign_keys=off"))
}
