//go:build e2e

package storage

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("deployvault"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	store, err := NewPostgresStore(url, logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(ctx))

	d := &Deployment{ChainID: 31337, Name: "Foo", Context: "local", Address: "0x5FbDB2315678afecb367f032d93F642f64180aa3"}
	require.NoError(t, store.UpsertDeployment(ctx, d))
	require.NoError(t, store.MarkVerified(ctx, 31337, "Foo", "0.8.28"))

	got, err := store.GetDeployment(ctx, 31337, "Foo")
	require.NoError(t, err)
	assert.True(t, got.Verified)
	assert.Equal(t, "local", got.Context)

	found, err := store.FindByAddress(ctx, "0x5fbdb2315678afecb367f032d93f642f64180aa3")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Foo", found[0].Name)

	_, err = store.GetDeployment(ctx, 1, "Foo")
	assert.ErrorIs(t, err, ErrNotFound)
}
