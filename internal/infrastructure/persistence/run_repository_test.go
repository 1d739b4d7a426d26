package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/erp/agreementclone/internal/domain/pipeline"
	"github.com/erp/agreementclone/internal/domain/shared"
	"github.com/erp/agreementclone/internal/infrastructure/config"
	"github.com/erp/agreementclone/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupRunTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.RunModel{})
	require.NoError(t, err)

	return db
}

func newRun(t *testing.T, agreementID string, stage pipeline.Stage, startedAt time.Time) *pipeline.Run {
	t.Helper()
	run, err := pipeline.NewRun(agreementID, stage, "", false)
	require.NoError(t, err)
	run.StartedAt = startedAt
	return run
}

func TestGormRunRepository_Save(t *testing.T) {
	repo := NewGormRunRepository(setupRunTestDB(t))
	ctx := context.Background()

	run := newRun(t, "AGR-1", pipeline.StageTerminate, time.Now().UTC())
	require.NoError(t, repo.Save(ctx, run))

	require.NoError(t, run.Complete(pipeline.Counts{Succeeded: 4, Failed: 1}, "1 subscription failed"))
	require.NoError(t, repo.Save(ctx, run))

	found, err := repo.Latest(ctx, "AGR-1", pipeline.StageTerminate)
	require.NoError(t, err)
	assert.Equal(t, run.ID, found.ID)
	assert.Equal(t, pipeline.RunStatusPartial, found.Status)
	assert.Equal(t, 4, found.Succeeded)
	assert.Equal(t, 1, found.Failed)
	assert.Equal(t, "1 subscription failed", found.Message)
	require.NotNil(t, found.CompletedAt)

	runs, err := repo.FindByAgreement(ctx, "AGR-1", 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestGormRunRepository_FindByAgreement(t *testing.T) {
	repo := NewGormRunRepository(setupRunTestDB(t))
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Save(ctx, newRun(t, "AGR-1", pipeline.StageDump, base)))
	require.NoError(t, repo.Save(ctx, newRun(t, "AGR-1", pipeline.StageCreate, base.Add(time.Hour))))
	require.NoError(t, repo.Save(ctx, newRun(t, "AGR-1", pipeline.StageReprice, base.Add(2*time.Hour))))
	require.NoError(t, repo.Save(ctx, newRun(t, "AGR-2", pipeline.StageDump, base.Add(3*time.Hour))))

	runs, err := repo.FindByAgreement(ctx, "AGR-1", 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, pipeline.StageReprice, runs[0].Stage)
	assert.Equal(t, pipeline.StageDump, runs[2].Stage)

	limited, err := repo.FindByAgreement(ctx, "AGR-1", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	none, err := repo.FindByAgreement(ctx, "AGR-9", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGormRunRepository_Latest(t *testing.T) {
	repo := NewGormRunRepository(setupRunTestDB(t))
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	older := newRun(t, "AGR-1", pipeline.StageReprice, base)
	newer := newRun(t, "AGR-1", pipeline.StageReprice, base.Add(time.Minute))
	require.NoError(t, repo.Save(ctx, older))
	require.NoError(t, repo.Save(ctx, newer))

	found, err := repo.Latest(ctx, "AGR-1", pipeline.StageReprice)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, found.ID)

	_, err = repo.Latest(ctx, "AGR-1", pipeline.StageAudit)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestNewDatabase(t *testing.T) {
	t.Run("sqlite file", func(t *testing.T) {
		dsn := filepath.Join(t.TempDir(), "nested", "ledger.db")
		db, err := NewDatabase(config.LedgerConfig{Driver: "sqlite", DSN: dsn}, zaptest.NewLogger(t))
		require.NoError(t, err)
		defer db.Close()

		repo := NewGormRunRepository(db.DB)
		require.NoError(t, repo.Save(context.Background(), newRun(t, "AGR-1", pipeline.StageAudit, time.Now().UTC())))
		assert.FileExists(t, dsn)
	})

	t.Run("unsupported driver", func(t *testing.T) {
		_, err := NewDatabase(config.LedgerConfig{Driver: "none"}, nil)
		assert.Error(t, err)
	})
}
