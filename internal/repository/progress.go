package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/brianli99/edu-tiktok/internal/model"
)

const progressKey = "progress_snapshot"

// ProgressRepository 学习进度快照存储
type ProgressRepository struct {
	db *sql.DB
}

func NewProgressRepository(db *sql.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// Load 读取进度快照，没有历史数据时返回 nil
func (r *ProgressRepository) Load() (*model.ProgressSnapshot, error) {
	var raw string
	err := r.db.QueryRow("SELECT value FROM kv_store WHERE key = ?", progressKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var snapshot model.ProgressSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return nil, fmt.Errorf("解析进度快照失败: %w", err)
	}
	return &snapshot, nil
}

// Save 保存进度快照
func (r *ProgressRepository) Save(snapshot *model.ProgressSnapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("序列化进度快照失败: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		progressKey, string(raw))
	return err
}

// Delete 删除进度快照（重置进度时调用）
func (r *ProgressRepository) Delete() error {
	_, err := r.db.Exec("DELETE FROM kv_store WHERE key = ?", progressKey)
	return err
}
