// Package testutil provides PostgreSQL helpers for tests.
package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dcipher-network/dcipher/log"
	"github.com/dcipher-network/dcipher/storage/postgres"
)

// ConnString returns the connection string of the CI test database, skipping
// the test when none is configured.
func ConnString(t *testing.T) string {
	connString := os.Getenv("CI_TEST_CONN_STRING")
	if connString == "" {
		t.Skip("CI_TEST_CONN_STRING not set, skipping postgres test")
	}
	return connString
}

// NewTestClient returns a postgres client on a freshly migrated test database.
func NewTestClient(t *testing.T) *postgres.Client {
	connString := ConnString(t)
	logger, err := log.NewLogger("postgres-test", os.Stdout, log.FmtJSON, log.LevelError)
	require.NoError(t, err, "log.NewLogger")

	client, err := postgres.NewClient(context.Background(), connString, logger)
	require.NoError(t, err, "postgres.NewClient")
	t.Cleanup(client.Close)

	require.NoError(t, client.Wipe(context.Background()), "wiping test database")
	require.NoError(t, postgres.Migrate("file://../migrations", connString, logger), "migrating test database")
	return client
}
