package checkpoint

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/erp/agreementclone/internal/domain/agreement"
	"github.com/erp/agreementclone/internal/domain/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeMirror struct {
	keys  []string
	types []string
	err   error
}

func (m *fakeMirror) Put(_ context.Context, key string, _ []byte, contentType string) error {
	m.keys = append(m.keys, key)
	m.types = append(m.types, contentType)
	return m.err
}

func TestStoreJSON(t *testing.T) {
	ctx := context.Background()

	t.Run("format", func(t *testing.T) {
		s := NewStore(t.TempDir(), "AGR-1")
		require.NoError(t, s.WriteJSON(ctx, pipeline.ArtifactAgreement,
			agreement.Record{"name": "Contoso <Ünïcode> & Co"}))

		data, err := os.ReadFile(s.Path(pipeline.ArtifactAgreement))
		require.NoError(t, err)
		assert.Equal(t, "{\n  \"name\": \"Contoso <Ünïcode> & Co\"\n}", string(data))
	})

	t.Run("numbers survive a round trip", func(t *testing.T) {
		s := NewStore(t.TempDir(), "AGR-1")
		rec, err := agreement.DecodeRecord([]byte(`{"id":"AGR-1","price":{"defaultMarkup":12.50,"big":12345678901234567890}}`))
		require.NoError(t, err)
		require.NoError(t, s.WriteJSON(ctx, pipeline.ArtifactFinalAgreement, rec))

		back, err := s.ReadRecord(pipeline.ArtifactFinalAgreement)
		require.NoError(t, err)
		assert.Equal(t, "12.50", back.String("price.defaultMarkup"))
		assert.Equal(t, "12345678901234567890", back.String("price.big"))
	})

	t.Run("missing artifact", func(t *testing.T) {
		s := NewStore(t.TempDir(), "AGR-1")
		assert.False(t, s.Has(pipeline.ArtifactFinalAgreement))
		_, err := s.ReadRecord(pipeline.ArtifactFinalAgreement)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		s := NewStore(t.TempDir(), "AGR-1")
		require.NoError(t, os.MkdirAll(s.Dir(), 0o755))
		require.NoError(t, os.WriteFile(s.Path(pipeline.ArtifactAgreement), []byte("[1,2]"), 0o644))
		_, err := s.ReadRecord(pipeline.ArtifactAgreement)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotFound)
	})
}

func TestStoreMirror(t *testing.T) {
	ctx := context.Background()
	mirror := &fakeMirror{err: errors.New("bucket unavailable")}
	s := NewStore(t.TempDir(), "AGR-1", WithMirror(mirror), WithLogger(zaptest.NewLogger(t)))

	require.NoError(t, s.WriteJSON(ctx, pipeline.SubscriptionArtifact("SUB-1"), agreement.Record{}))
	require.NoError(t, s.WriteWorksheet(ctx, nil))

	assert.Equal(t, []string{"AGR-1/SUB-1.json", "AGR-1/subscriptions.xlsx"}, mirror.keys)
	assert.Equal(t, []string{contentTypeJSON, contentTypeXLSX}, mirror.types)
	assert.True(t, s.Has(pipeline.SubscriptionArtifact("SUB-1")))
}

func TestStoreWorksheet(t *testing.T) {
	ctx := context.Background()
	s := NewStore(t.TempDir(), "AGR-1")

	row := make([]any, len(agreement.WorksheetHeaders))
	for i := range row {
		row[i] = ""
	}
	row[0] = "SUB-1"
	row[1] = "vendor-1"
	row[18] = "ITM-1"
	row[22] = 15.5
	row[26] = 100.0
	require.NoError(t, s.WriteWorksheet(ctx, [][]any{row}))

	rows, err := s.ReadWorksheet()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, agreement.WorksheetHeaders, rows[0])
	assert.Equal(t, "SUB-1", rows[1][0])
	assert.Equal(t, "vendor-1", rows[1][1])
	assert.Equal(t, "15.5", rows[1][22])
	assert.Equal(t, "100", rows[1][26])

	sheet, err := agreement.ReadRepriceSheet(rows)
	require.NoError(t, err)
	require.Contains(t, sheet.Groups, "vendor-1")
	assert.Equal(t, "15.5", sheet.Groups["vendor-1"].Items["ITM-1"].Markup.String())

	ids, err := agreement.SubscriptionIDs(rows)
	require.NoError(t, err)
	assert.Equal(t, []string{"SUB-1"}, ids)
}

func TestStoreSnapshot(t *testing.T) {
	ctx := context.Background()
	s := NewStore(t.TempDir(), "AGR-1")
	assert.Empty(t, s.Snapshot())

	require.NoError(t, s.WriteJSON(ctx, pipeline.ArtifactAgreement, agreement.Record{"id": "AGR-1"}))
	require.NoError(t, s.WriteJSON(ctx, pipeline.ArtifactNewAgreement, agreement.Record{}))
	require.NoError(t, s.WriteWorksheet(ctx, nil))

	snap := s.Snapshot()
	assert.Len(t, snap, 3)
	assert.Equal(t, pipeline.StateDumped, pipeline.Machine{}.Current(snap))

	_, err := NewStore(t.TempDir(), "AGR-2").ReadWorksheet()
	assert.ErrorIs(t, err, ErrNotFound)
}
