package model

import (
	"time"

	"gorm.io/gorm"
)

type SyncStatus string

const (
	StatusSuccess SyncStatus = "SUCCESS"
	StatusFailed  SyncStatus = "FAILED"
)

type History struct {
	gorm.Model
	RunID      string     `gorm:"index"`
	Status     SyncStatus `gorm:"not null"`
	Action     SyncAction `gorm:"not null"`
	SrcPath    string     `gorm:"not null"`
	TargetPath string
	ErrMsg     string
	SyncedAt   time.Time `gorm:"not null;index"`
}

func HistoryFromRecord(rec SyncRecord) History {
	status := StatusSuccess
	if !rec.Success {
		status = StatusFailed
	}

	return History{
		RunID:      rec.RunID,
		Status:     status,
		Action:     rec.Action,
		SrcPath:    rec.SourcePath,
		TargetPath: rec.TargetPath,
		ErrMsg:     rec.Error,
		SyncedAt:   rec.Timestamp,
	}
}
