// Package helpers provides testing utilities for integration tests.
package helpers

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/chuanzhoupan/goingest/internal/config"
)

const (
	// DefaultPostgresImage is the image used for test databases.
	DefaultPostgresImage = "postgres:16-alpine"
	// DefaultPostgresStartupTimeout is the default timeout for Postgres to start.
	DefaultPostgresStartupTimeout = 60 * time.Second

	testDBName     = "goingest_test"
	testDBUser     = "goingest"
	testDBPassword = "goingest"
)

// PostgresContainer manages a test PostgreSQL instance.
type PostgresContainer struct {
	Container *postgres.PostgresContainer
	Config    config.DatabaseConfig
}

// StartPostgres starts a PostgreSQL container for testing.
// It returns a container instance that should be stopped with Stop().
func StartPostgres(ctx context.Context) (*PostgresContainer, error) {
	pgContainer, err := postgres.Run(
		ctx,
		DefaultPostgresImage,
		postgres.WithDatabase(testDBName),
		postgres.WithUsername(testDBUser),
		postgres.WithPassword(testDBPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(DefaultPostgresStartupTimeout),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start Postgres container: %w", err)
	}

	host, err := pgContainer.Host(ctx)
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	mappedPort, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	return &PostgresContainer{
		Container: pgContainer,
		Config: config.DatabaseConfig{
			Host:     host,
			Port:     mappedPort.Port(),
			User:     testDBUser,
			Password: testDBPassword,
			DBName:   testDBName,
			SSLMode:  "disable",
		},
	}, nil
}

// Stop terminates the container.
func (c *PostgresContainer) Stop(ctx context.Context) error {
	if c.Container == nil {
		return nil
	}
	return c.Container.Terminate(ctx)
}
