// Package checkpoint persists the artifacts exchanged between pipeline
// stages under <root>/<agreementId>/.
package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/erp/agreementclone/internal/domain/agreement"
	"github.com/erp/agreementclone/internal/domain/pipeline"
	"go.uber.org/zap"
)

// ErrNotFound is returned when an artifact does not exist.
var ErrNotFound = errors.New("checkpoint: artifact not found")

// Content types of mirrored artifacts.
const (
	contentTypeJSON = "application/json"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Mirror receives a copy of every artifact written.
type Mirror interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// Store reads and writes the checkpoint artifacts of one agreement.
type Store struct {
	root        string
	agreementID string
	mirror      Mirror
	logger      *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithMirror uploads every written artifact to m.
func WithMirror(m Mirror) Option {
	return func(s *Store) { s.mirror = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore returns the store of agreementID under root.
func NewStore(root, agreementID string, opts ...Option) *Store {
	s := &Store{root: root, agreementID: agreementID, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AgreementID returns the agreement the store belongs to.
func (s *Store) AgreementID() string {
	return s.agreementID
}

// Dir returns the agreement directory.
func (s *Store) Dir() string {
	return filepath.Join(s.root, s.agreementID)
}

// Path returns the file path of an artifact.
func (s *Store) Path(a pipeline.Artifact) string {
	return filepath.Join(s.Dir(), string(a))
}

// Has reports whether an artifact exists. It implements pipeline.Artifacts.
func (s *Store) Has(a pipeline.Artifact) bool {
	info, err := os.Stat(s.Path(a))
	return err == nil && !info.IsDir()
}

// Snapshot returns the set of well-known artifacts currently present.
func (s *Store) Snapshot() pipeline.ArtifactSet {
	set := pipeline.NewArtifactSet()
	for _, a := range []pipeline.Artifact{
		pipeline.ArtifactAgreement,
		pipeline.ArtifactNewAgreement,
		pipeline.ArtifactAuthorization,
		pipeline.ArtifactFinalAgreement,
		pipeline.ArtifactWorksheet,
		pipeline.ArtifactRepriceReport,
		pipeline.ArtifactTerminationReport,
		pipeline.ArtifactAuditReport,
	} {
		if s.Has(a) {
			set[a] = true
		}
	}
	return set
}

// WriteJSON writes v as UTF-8 JSON with a two space indent. Non-ASCII and
// HTML characters are written as is.
func (s *Store) WriteJSON(ctx context.Context, a pipeline.Artifact, v any) error {
	data, err := EncodeJSON(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", a, err)
	}
	return s.write(ctx, a, data, contentTypeJSON)
}

// ReadJSON decodes an artifact into v.
func (s *Store) ReadJSON(a pipeline.Artifact, v any) error {
	data, err := s.read(a)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid JSON in %s: %w", s.Path(a), err)
	}
	return nil
}

// ReadRecord decodes an artifact holding a JSON object.
func (s *Store) ReadRecord(a pipeline.Artifact) (agreement.Record, error) {
	data, err := s.read(a)
	if err != nil {
		return nil, err
	}
	rec, err := agreement.DecodeRecord(data)
	if err != nil {
		return nil, fmt.Errorf("invalid JSON in %s: %w", s.Path(a), err)
	}
	return rec, nil
}

// EncodeJSON renders v the way checkpoint files are written.
func EncodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (s *Store) read(a pipeline.Artifact) ([]byte, error) {
	data, err := os.ReadFile(s.Path(a))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.Path(a))
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.Path(a), err)
	}
	return data, nil
}

func (s *Store) write(ctx context.Context, a pipeline.Artifact, data []byte, contentType string) error {
	if err := os.MkdirAll(s.Dir(), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", s.Dir(), err)
	}
	path := s.Path(a)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	s.logger.Debug("Checkpoint written", zap.String("path", path), zap.Int("bytes", len(data)))

	if s.mirror != nil {
		key := s.agreementID + "/" + string(a)
		if err := s.mirror.Put(ctx, key, data, contentType); err != nil {
			s.logger.Warn("Failed to mirror checkpoint", zap.String("key", key), zap.Error(err))
		}
	}
	return nil
}
