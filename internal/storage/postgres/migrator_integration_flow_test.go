package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMigrator_PostgresLifecycle(t *testing.T) {
	store := openRawPostgresStoreForIntegrationTest(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	require.NoError(t, store.MigrateDown(ctx, 100))
	status, err := store.MigrationStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), status.Version)
	require.Empty(t, status.Applied)
	require.Len(t, status.Pending, 5)

	require.NoError(t, store.MigrateUp(ctx, 2))
	status, err = store.MigrationStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), status.Version)
	require.Equal(t, []string{"0001_billing_core", "0002_outbox_timeline"}, status.Applied)

	require.NoError(t, store.MigrateUp(ctx, 0))
	require.NoError(t, store.MigrateUp(ctx, 0), "second up must be a no-op")
	status, err = store.MigrationStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(5), status.Version)
	require.True(t, status.UpToDate())

	require.NoError(t, store.MigrateDown(ctx, 0))
	status, err = store.MigrationStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(4), status.Version)
	require.Equal(t, []string{"0005_item_stock_flag"}, status.Pending)

	require.NoError(t, store.MigrateUp(ctx, 0))
}

func TestMigrator_PostgresRefusesModifiedMigration(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := store.DB().ExecContext(ctx, `UPDATE pos_schema_migrations SET checksum = 'edited' WHERE version = 3`)
	require.NoError(t, err)
	t.Cleanup(func() {
		migrations, loadErr := loadMigrationsFromFS(migrationsFS)
		if loadErr != nil {
			return
		}
		_, _ = store.DB().ExecContext(context.Background(),
			`UPDATE pos_schema_migrations SET checksum = $1 WHERE version = 3`, migrations[2].Checksum())
	})

	status, err := store.MigrationStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"0003_idempotency_keys"}, status.Modified)
	require.False(t, status.UpToDate())

	require.ErrorIs(t, store.MigrateUp(ctx, 0), ErrMigrationModified)
	require.ErrorIs(t, store.MigrateDown(ctx, 1), ErrMigrationModified)
}

func TestMigrator_GuardsAndUnsupportedDirection(t *testing.T) {
	var nilStore *Store
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.ErrorIs(t, nilStore.MigrateUp(ctx, 0), errStoreNotInitialized)
	require.ErrorIs(t, nilStore.MigrateDown(ctx, 1), errStoreNotInitialized)
	_, err := nilStore.MigrationStatus(ctx)
	require.ErrorIs(t, err, errStoreNotInitialized)

	store := &Store{db: nil}
	require.ErrorIs(t, store.migrate(ctx, migrationDirection("sideways"), 0), errStoreNotInitialized)

	raw := openRawPostgresStoreForIntegrationTest(t)
	require.Error(t, raw.migrate(ctx, migrationDirection("sideways"), 0))
}
