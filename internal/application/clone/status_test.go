package clone

import (
	"context"
	"testing"

	"github.com/erp/agreementclone/internal/domain/agreement"
	"github.com/erp/agreementclone/internal/domain/pipeline"
	"github.com/erp/agreementclone/internal/infrastructure/checkpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	f := newFixture(t, "AGR-1")
	ctx := context.Background()

	empty, err := f.service.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, pipeline.State(""), empty.Current)
	assert.Equal(t, []pipeline.Stage{pipeline.StageDump}, empty.Runnable)
	assert.Empty(t, empty.History)

	f.write(t, pipeline.ArtifactAgreement, agreement.Record{"id": "AGR-1"})
	f.write(t, pipeline.ArtifactNewAgreement, agreement.Record{})
	require.NoError(t, f.store.WriteWorksheet(ctx, nil))
	f.write(t, pipeline.ArtifactFinalAgreement, agreement.Record{"id": "AGR-NEW"})

	run, err := pipeline.NewRun("AGR-1", pipeline.StageCreate, "worksheet", false)
	require.NoError(t, err)
	require.NoError(t, run.Complete(pipeline.Counts{Succeeded: 3}, "created agreement AGR-NEW"))
	require.NoError(t, f.runs.Save(ctx, run))

	report, err := f.service.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "AGR-1", report.AgreementID)
	assert.Equal(t, []pipeline.State{pipeline.StateDumped, pipeline.StateCreated}, report.Reached)
	assert.Equal(t, pipeline.StateCreated, report.Current)
	assert.Equal(t, []pipeline.Stage{pipeline.StageReprice, pipeline.StageTerminate, pipeline.StageAudit}, report.Runnable)
	assert.Equal(t, []pipeline.Artifact{
		pipeline.ArtifactAgreement,
		pipeline.ArtifactNewAgreement,
		pipeline.ArtifactWorksheet,
		pipeline.ArtifactFinalAgreement,
	}, report.Artifacts)
	require.Len(t, report.History, 1)
	assert.Equal(t, run.ID, report.History[0].ID)
	assert.Zero(t, f.platform.count())
}

func TestNewService(t *testing.T) {
	_, err := NewService(nil, APIs{})
	assert.Error(t, err)

	_, err = NewService(checkpoint.NewStore(t.TempDir(), "XYZ-1"), APIs{})
	assert.ErrorIs(t, err, agreement.ErrInvalidAgreementID)

	svc, err := NewService(checkpoint.NewStore(t.TempDir(), "AGR-1"), APIs{})
	require.NoError(t, err)
	_, err = svc.Terminate(context.Background())
	assert.ErrorIs(t, err, pipeline.ErrPrerequisiteMissing)
}
