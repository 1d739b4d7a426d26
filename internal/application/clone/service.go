// Package clone runs the stages of the agreement clone pipeline: dump,
// create, reprice, terminate and audit. Stages exchange data only through
// the checkpoint store.
package clone

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/agreementclone/internal/domain/agreement"
	"github.com/erp/agreementclone/internal/domain/pipeline"
	"github.com/erp/agreementclone/internal/infrastructure/checkpoint"
	"github.com/erp/agreementclone/internal/infrastructure/commerce"
	"github.com/erp/agreementclone/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// APIs groups the commerce clients used by a stage.
type APIs struct {
	// Ops authenticates with the operations token.
	Ops *commerce.API
	// Vendor authenticates with the vendor token.
	Vendor *commerce.API
	// Tunnel reaches the vendor platform; only platform-sync create uses it.
	Tunnel *commerce.API
}

// Service orchestrates the pipeline stages of one agreement.
type Service struct {
	store     *checkpoint.Store
	apis      APIs
	validator Preconditions
	runs      pipeline.RunRepository
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithValidator replaces the precondition checks.
func WithValidator(v Preconditions) Option {
	return func(s *Service) {
		if v != nil {
			s.validator = v
		}
	}
}

// WithRunRepository records every stage run in repo.
func WithRunRepository(repo pipeline.RunRepository) Option {
	return func(s *Service) { s.runs = repo }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the clock used for subscription cutoffs and sync keys.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates the orchestrator for the agreement of store.
func NewService(store *checkpoint.Store, apis APIs, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("clone: checkpoint store is required")
	}
	if err := agreement.ValidateAgreementID(store.AgreementID()); err != nil {
		return nil, err
	}

	s := &Service{
		store:  store,
		apis:   apis,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.validator == nil && apis.Ops != nil && apis.Vendor != nil {
		s.validator = NewValidator(apis.Ops, apis.Vendor, s.logger)
	}
	return s, nil
}

// AgreementID returns the source agreement id.
func (s *Service) AgreementID() string {
	return s.store.AgreementID()
}

// validate runs the precondition checks; a failure aborts the stage.
func (s *Service) validate(ctx context.Context) error {
	if s.validator == nil {
		return abort(errors.New("clone: no validator configured"))
	}
	if _, err := s.validator.Validate(ctx, s.AgreementID()); err != nil {
		return abort(err)
	}
	return nil
}

// require checks the stage prerequisites against the checkpoint store.
func (s *Service) require(stage pipeline.Stage, mode pipeline.CreateMode) error {
	if err := (pipeline.Machine{Mode: mode}).Require(stage, s.store); err != nil {
		return abort(err)
	}
	return nil
}

// readRecord loads an artifact; a missing or unreadable one aborts the stage.
func (s *Service) readRecord(a pipeline.Artifact) (agreement.Record, error) {
	rec, err := s.store.ReadRecord(a)
	if err != nil {
		return nil, abort(err)
	}
	return rec, nil
}

func (s *Service) api(name string, api *commerce.API) (*commerce.API, error) {
	if api == nil {
		return nil, abortf("clone: %s API client is not configured", name)
	}
	return api, nil
}

// tracker follows one stage run and records it in the ledger.
type tracker struct {
	runs   pipeline.RunRepository
	run    *pipeline.Run
	logger *zap.Logger
}

// begin starts a run of stage. The returned context carries the run id.
func (s *Service) begin(ctx context.Context, stage pipeline.Stage, mode string, dryRun bool) (context.Context, *tracker) {
	t := &tracker{runs: s.runs, logger: s.logger}

	run, err := pipeline.NewRun(s.AgreementID(), stage, mode, dryRun)
	if err != nil {
		t.logger.Warn("Failed to start run record", zap.Error(err))
		return ctx, t
	}
	t.run = run
	ctx, t.logger = logger.WithRunID(ctx, t.logger, run.ID.String())
	t.save(ctx)
	return ctx, t
}

// end classifies the outcome of the run and returns err unchanged.
func (t *tracker) end(ctx context.Context, counts pipeline.Counts, message string, err error) error {
	if t.run == nil {
		return err
	}

	var transition error
	switch {
	case err == nil:
		transition = t.run.Complete(counts, message)
	case errors.Is(err, ErrStageAborted):
		transition = t.run.Abort(err.Error())
	default:
		transition = t.run.Fail(err.Error())
	}
	if transition != nil {
		t.logger.Warn("Invalid run transition", zap.Error(transition))
	}

	t.logger.Debug("Run finished",
		zap.String("status", string(t.run.Status)),
		zap.Int("succeeded", t.run.Succeeded),
		zap.Int("failed", t.run.Failed),
		zap.Int("skipped", t.run.Skipped),
		zap.Duration("duration", t.run.Duration()),
	)
	t.save(ctx)
	return err
}

func (t *tracker) save(ctx context.Context) {
	if t.runs == nil || t.run == nil {
		return
	}
	if err := t.runs.Save(ctx, t.run); err != nil {
		t.logger.Warn("Failed to record run in ledger", zap.Error(err))
	}
}

// succeeded reports whether resp carries one of the accepted statuses.
func succeeded(resp *commerce.Response, accepted ...int) bool {
	if resp == nil {
		return false
	}
	for _, code := range accepted {
		if resp.StatusCode == code {
			return true
		}
	}
	return false
}

func statusError(resp *commerce.Response) error {
	if resp == nil {
		return errors.New("no response")
	}
	return fmt.Errorf("unexpected status %d", resp.StatusCode)
}
