package repository

import (
	"docsync/internal/db"
	"docsync/internal/model"
)

// HistoryRepository mirrors sync records into the history database for
// querying. The metadata file stays the source of truth.
type HistoryRepository struct{}

func NewHistoryRepository() *HistoryRepository {
	return &HistoryRepository{}
}

func (r *HistoryRepository) Save(rec model.SyncRecord) error {
	h := model.HistoryFromRecord(rec)
	return db.DB.Create(&h).Error
}

func (r *HistoryRepository) SaveAll(recs []model.SyncRecord) error {
	if len(recs) == 0 {
		return nil
	}

	histories := make([]model.History, 0, len(recs))
	for _, rec := range recs {
		histories = append(histories, model.HistoryFromRecord(rec))
	}
	return db.DB.Create(&histories).Error
}

type Stats struct {
	Total   int64 `json:"total"`
	Success int64 `json:"success"`
	Failed  int64 `json:"failed"`
}

func (r *HistoryRepository) GetStats() (Stats, error) {
	var stats Stats
	if err := db.DB.Model(&model.History{}).Count(&stats.Total).Error; err != nil {
		return stats, err
	}

	if err := db.DB.Model(&model.History{}).
		Where("status = ?", model.StatusSuccess).
		Count(&stats.Success).Error; err != nil {
		return stats, err
	}

	stats.Failed = stats.Total - stats.Success
	return stats, nil
}

func (r *HistoryRepository) GetRecent(limit int) ([]model.History, error) {
	var histories []model.History
	result := db.DB.
		Order("synced_at desc").
		Limit(limit).
		Find(&histories)

	return histories, result.Error
}

func (r *HistoryRepository) GetFailed() ([]model.History, error) {
	var histories []model.History
	result := db.DB.
		Where("status = ?", model.StatusFailed).
		Order("synced_at desc").
		Find(&histories)

	return histories, result.Error
}

func (r *HistoryRepository) GetRun(runID string) ([]model.History, error) {
	var histories []model.History
	result := db.DB.
		Where("run_id = ?", runID).
		Order("id asc").
		Find(&histories)

	return histories, result.Error
}
