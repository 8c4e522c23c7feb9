package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/capitalize-ai/support-agent/internal/model"
)

type checkpointRow struct {
	ThreadID  string         `gorm:"primaryKey;size:64"`
	TenantID  string         `gorm:"size:64;not null;index"`
	Status    string         `gorm:"size:16;not null"`
	Node      string         `gorm:"size:32;not null"`
	State     datatypes.JSON `gorm:"not null"`
	Version   int64          `gorm:"not null"`
	UpdatedAt time.Time      `gorm:"not null"`
}

func (checkpointRow) TableName() string { return "agent_checkpoints" }

// CheckpointStore persists one versioned AgentState snapshot per thread.
type CheckpointStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewCheckpointStore creates a checkpoint store.
func NewCheckpointStore(db *gorm.DB) *CheckpointStore {
	return &CheckpointStore{db: db, now: utcNow}
}

// Load returns the thread's checkpoint, or nil when the tenant has none for it.
func (s *CheckpointStore) Load(ctx context.Context, tenantID, threadID string) (*model.Checkpoint, error) {
	var row checkpointRow
	err := s.db.WithContext(ctx).
		Where("thread_id = ? AND tenant_id = ?", threadID, tenantID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	var state model.AgentState
	if err := json.Unmarshal(row.State, &state); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}

	return &model.Checkpoint{
		State:     state,
		Version:   row.Version,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

// Save writes state if the stored version still equals expected and returns
// the new version. expected 0 means no checkpoint may exist yet.
func (s *CheckpointStore) Save(ctx context.Context, state model.AgentState, expected int64) (int64, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return 0, fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	now := s.now()

	if expected == 0 {
		row := checkpointRow{
			ThreadID:  state.ThreadID,
			TenantID:  state.TenantID,
			Status:    string(state.Status),
			Node:      string(state.CurrentNode),
			State:     datatypes.JSON(data),
			Version:   1,
			UpdatedAt: now,
		}
		res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error != nil {
			return 0, fmt.Errorf("failed to insert checkpoint: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return 0, model.ErrConcurrentResumeConflict
		}
		return 1, nil
	}

	res := s.db.WithContext(ctx).
		Model(&checkpointRow{}).
		Where("thread_id = ? AND tenant_id = ? AND version = ?", state.ThreadID, state.TenantID, expected).
		Updates(map[string]any{
			"status":     string(state.Status),
			"node":       string(state.CurrentNode),
			"state":      datatypes.JSON(data),
			"version":    expected + 1,
			"updated_at": now,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to update checkpoint: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, model.ErrConcurrentResumeConflict
	}

	return expected + 1, nil
}
