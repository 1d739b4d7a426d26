// Package models holds the GORM persistence models of the run ledger.
package models

import (
	"time"

	"github.com/erp/agreementclone/internal/domain/pipeline"
	"github.com/google/uuid"
)

// RunModel is the persistence model for the pipeline.Run entity.
type RunModel struct {
	ID          uuid.UUID          `gorm:"type:varchar(36);primaryKey"`
	AgreementID string             `gorm:"type:varchar(64);not null;index:idx_runs_agreement_stage"`
	Stage       pipeline.Stage     `gorm:"type:varchar(20);not null;index:idx_runs_agreement_stage"`
	Status      pipeline.RunStatus `gorm:"type:varchar(20);not null;default:'running'"`
	Mode        string             `gorm:"type:varchar(32)"`
	DryRun      bool               `gorm:"not null;default:false"`
	Succeeded   int                `gorm:"not null;default:0"`
	Failed      int                `gorm:"not null;default:0"`
	Skipped     int                `gorm:"not null;default:0"`
	Message     string             `gorm:"type:text"`
	StartedAt   time.Time          `gorm:"not null;index"`
	CompletedAt *time.Time
}

// TableName returns the table name for GORM
func (RunModel) TableName() string {
	return "runs"
}

// ToDomain converts the persistence model to a domain Run entity.
func (m *RunModel) ToDomain() *pipeline.Run {
	return &pipeline.Run{
		ID:          m.ID,
		AgreementID: m.AgreementID,
		Stage:       m.Stage,
		Status:      m.Status,
		Mode:        m.Mode,
		DryRun:      m.DryRun,
		Succeeded:   m.Succeeded,
		Failed:      m.Failed,
		Skipped:     m.Skipped,
		Message:     m.Message,
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
	}
}

// FromDomain populates the persistence model from a domain Run entity.
func (m *RunModel) FromDomain(r *pipeline.Run) {
	m.ID = r.ID
	m.AgreementID = r.AgreementID
	m.Stage = r.Stage
	m.Status = r.Status
	m.Mode = r.Mode
	m.DryRun = r.DryRun
	m.Succeeded = r.Succeeded
	m.Failed = r.Failed
	m.Skipped = r.Skipped
	m.Message = r.Message
	m.StartedAt = r.StartedAt
	m.CompletedAt = r.CompletedAt
}

// RunModelFromDomain creates a new persistence model from a domain Run entity.
func RunModelFromDomain(r *pipeline.Run) *RunModel {
	m := &RunModel{}
	m.FromDomain(r)
	return m
}
