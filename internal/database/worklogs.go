package database

import (
	"context"
	"fmt"
	"time"
)

// DayFormat is the layout of the Day column: the calendar date of an entry in
// the bot's reference timezone.
const DayFormat = "2006-01-02"

// WorkLog is one immutable record of a user's daily work-log action. Rows are
// only ever inserted or deleted, never updated. The most recent entry for a
// user is the one with the highest ID, regardless of LoggedAt.
type WorkLog struct {
	ID          uint64    `json:"id" gorm:"primaryKey"`
	UserID      string    `json:"user_id" gorm:"not null"`
	Day         string    `json:"day" gorm:"not null"`
	LoggedAt    time.Time `json:"logged_at"`
	Description string    `json:"description"`
}

// WorkLogCount is one leaderboard row.
type WorkLogCount struct {
	UserID string `json:"user_id"`
	Count  int64  `json:"count"`
}

func (db *DB) WorkLogCreate(ctx context.Context, entry *WorkLog) error {
	tx := db.WithContext(ctx).Create(entry)
	if tx.Error != nil {
		return fmt.Errorf("tx.Error: %w", tx.Error)
	}

	return nil
}

func (db *DB) WorkLogCountForUser(ctx context.Context, userID string) (int64, error) {
	var cnt int64
	tx := db.WithContext(ctx).Model(&WorkLog{}).Where("user_id = ?", userID).Count(&cnt)
	if tx.Error != nil {
		return 0, fmt.Errorf("tx.Error: %w", tx.Error)
	}

	return cnt, nil
}

// WorkLogLatestForUser returns the entry with the highest ID for the user.
// Returns gorm.ErrRecordNotFound (wrapped) when the user has no entries.
func (db *DB) WorkLogLatestForUser(ctx context.Context, userID string) (*WorkLog, error) {
	var entry WorkLog
	tx := db.WithContext(ctx).Where("user_id = ?", userID).Last(&entry)
	if tx.Error != nil {
		return nil, fmt.Errorf("tx.Error: %w", tx.Error)
	}

	return &entry, nil
}

func (db *DB) WorkLogExistsForUser(ctx context.Context, userID string) (bool, error) {
	cnt, err := db.WorkLogCountForUser(ctx, userID)
	if err != nil {
		return false, err
	}

	return cnt > 0, nil
}

func (db *DB) WorkLogExistsForUserOnDay(ctx context.Context, userID, day string) (bool, error) {
	var cnt int64
	tx := db.WithContext(ctx).Model(&WorkLog{}).Where("user_id = ? AND day = ?", userID, day).Count(&cnt)
	if tx.Error != nil {
		return false, fmt.Errorf("tx.Error: %w", tx.Error)
	}

	return cnt > 0, nil
}

// WorkLogCountsByUser returns (user_id, count) rows sorted by count descending.
// Users with equal counts are ordered by the ID of their first entry, so the
// user who started logging earlier ranks higher. When since is non-nil only
// entries logged at or after it are counted.
func (db *DB) WorkLogCountsByUser(ctx context.Context, since *time.Time) ([]WorkLogCount, error) {
	var counts []WorkLogCount
	tx := db.WithContext(ctx).
		Model(&WorkLog{}).
		Select("user_id, COUNT(*) AS count, MIN(id) AS first_id").
		Group("user_id").
		Order("count DESC, first_id ASC")
	if since != nil {
		tx = tx.Where("logged_at >= ?", *since)
	}
	tx = tx.Scan(&counts)
	if tx.Error != nil {
		return nil, fmt.Errorf("tx.Error: %w", tx.Error)
	}

	return counts, nil
}

func (db *DB) WorkLogDeleteForUser(ctx context.Context, userID string) (int64, error) {
	tx := db.WithContext(ctx).Where("user_id = ?", userID).Delete(&WorkLog{})
	if tx.Error != nil {
		return 0, fmt.Errorf("tx.Error: %w", tx.Error)
	}

	return tx.RowsAffected, nil
}

func (db *DB) WorkLogDeleteAll(ctx context.Context) (int64, error) {
	tx := db.WithContext(ctx).Exec("DELETE FROM work_logs")
	if tx.Error != nil {
		return 0, fmt.Errorf("tx.Error: %w", tx.Error)
	}

	return tx.RowsAffected, nil
}
