//go:build integration

package containers

import (
	"context"
	"fmt"

	"github.com/testcontainers/testcontainers-go/modules/mysql"
)

// MySQLContainer is a disposable MySQL server.
type MySQLContainer struct {
	container *mysql.MySQLContainer
	dsn       string
}

// MySQLConfig selects the image and credentials.
type MySQLConfig struct {
	ImageTag string
	Database string
	Username string
	Password string
}

// DefaultMySQLConfig returns MySQL 8.0 with a velociti_test database.
func DefaultMySQLConfig() MySQLConfig {
	return MySQLConfig{
		ImageTag: "8.0",
		Database: "velociti_test",
		Username: "velociti",
		Password: "velociti",
	}
}

// NewMySQLContainer starts MySQL and waits until it accepts connections.
// A nil config uses DefaultMySQLConfig.
func NewMySQLContainer(ctx context.Context, config *MySQLConfig) (*MySQLContainer, error) {
	if config == nil {
		def := DefaultMySQLConfig()
		config = &def
	}
	c, err := mysql.Run(ctx, "mysql:"+config.ImageTag,
		mysql.WithDatabase(config.Database),
		mysql.WithUsername(config.Username),
		mysql.WithPassword(config.Password),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start mysql container: %w", err)
	}
	dsn, err := c.ConnectionString(ctx, "parseTime=true")
	if err != nil {
		_ = c.Terminate(context.Background())
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}
	return &MySQLContainer{container: c, dsn: dsn}, nil
}

// DSN returns a go-sql-driver DSN, usable as database.url.
func (c *MySQLContainer) DSN() string {
	return c.dsn
}

// Terminate removes the container.
func (c *MySQLContainer) Terminate(ctx context.Context) error {
	if c.container == nil {
		return nil
	}
	return c.container.Terminate(ctx)
}
