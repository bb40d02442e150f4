// Package worklog holds the one business rule of the bot: a user may record
// at most one work-log entry per calendar day. Everything else in here is a
// read-only aggregate over the work_logs table.
package worklog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timeclock-bot/timeclock/internal/database"
	"gorm.io/gorm"
)

var (
	// ErrAlreadyLogged means the user already has an entry for the current
	// calendar day in the reference timezone.
	ErrAlreadyLogged = errors.New("work already logged today")
	// ErrNoEntries means the user has never logged any work.
	ErrNoEntries = errors.New("no work log entries")
)

const DefaultTopN = 10

type Service struct {
	db         *database.DB
	loc        *time.Location
	windowDays int
}

func New(db *database.DB, loc *time.Location, windowDays int) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if windowDays <= 0 {
		windowDays = 30
	}
	return &Service{db: db, loc: loc, windowDays: windowDays}
}

// Location is the reference timezone used for all day boundaries.
func (s *Service) Location() *time.Location {
	return s.loc
}

// DayOf converts an instant to its calendar day in the reference timezone.
// It is the single day-boundary definition for both the eligibility check
// and the leaderboard window.
func (s *Service) DayOf(t time.Time) string {
	return t.In(s.loc).Format(database.DayFormat)
}

// CanLogToday reports whether userID may record a new entry at the instant
// now. Kept as its own predicate so the once-per-day rule stays independently
// testable and swappable.
func (s *Service) CanLogToday(ctx context.Context, userID string, now time.Time) (bool, error) {
	exists, err := s.db.WorkLogExistsForUserOnDay(ctx, userID, s.DayOf(now))
	if err != nil {
		return false, fmt.Errorf("db.WorkLogExistsForUserOnDay: %w", err)
	}

	return !exists, nil
}

// Record appends a new entry for userID at now and returns it along with
// the user's updated day count. Returns ErrAlreadyLogged when the user has
// already logged today, whether caught by the pre-check or by the unique
// (user_id, day) index when a concurrent writer got there first.
func (s *Service) Record(ctx context.Context, userID string, now time.Time, description string) (*database.WorkLog, int64, error) {
	canLog, err := s.CanLogToday(ctx, userID, now)
	if err != nil {
		return nil, 0, err
	}
	if !canLog {
		return nil, 0, ErrAlreadyLogged
	}

	entry := &database.WorkLog{
		UserID:      userID,
		Day:         s.DayOf(now),
		LoggedAt:    now,
		Description: description,
	}
	if err := s.db.WorkLogCreate(ctx, entry); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, 0, ErrAlreadyLogged
		}
		return nil, 0, fmt.Errorf("db.WorkLogCreate: %w", err)
	}

	count, err := s.db.WorkLogCountForUser(ctx, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("db.WorkLogCountForUser: %w", err)
	}

	return entry, count, nil
}

func (s *Service) DaysWorked(ctx context.Context, userID string) (int64, error) {
	return s.db.WorkLogCountForUser(ctx, userID)
}

func (s *Service) HasLogged(ctx context.Context, userID string) (bool, error) {
	return s.db.WorkLogExistsForUser(ctx, userID)
}

// LastLog returns the user's most recent entry, defined as the entry with the
// highest ID. Returns ErrNoEntries when the user has never logged.
func (s *Service) LastLog(ctx context.Context, userID string) (*database.WorkLog, error) {
	entry, err := s.db.WorkLogLatestForUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoEntries
		}
		return nil, fmt.Errorf("db.WorkLogLatestForUser: %w", err)
	}

	return entry, nil
}

// Leaderboard returns the all-time top topN users by entry count.
func (s *Service) Leaderboard(ctx context.Context, topN int) ([]database.WorkLogCount, error) {
	counts, err := s.db.WorkLogCountsByUser(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("db.WorkLogCountsByUser: %w", err)
	}

	return topCounts(counts, topN), nil
}

// RecentLeaderboard is Leaderboard restricted to the configured window: the
// last windowDays calendar days ending today, in the reference timezone.
func (s *Service) RecentLeaderboard(ctx context.Context, topN int, now time.Time) ([]database.WorkLogCount, error) {
	since := s.windowStart(now)
	counts, err := s.db.WorkLogCountsByUser(ctx, &since)
	if err != nil {
		return nil, fmt.Errorf("db.WorkLogCountsByUser: %w", err)
	}

	return topCounts(counts, topN), nil
}

func (s *Service) ClearUser(ctx context.Context, userID string) (int64, error) {
	return s.db.WorkLogDeleteForUser(ctx, userID)
}

func (s *Service) ClearAll(ctx context.Context) (int64, error) {
	return s.db.WorkLogDeleteAll(ctx)
}

// windowStart is the start of day now-(windowDays-1), so a 1-day window
// covers just today.
func (s *Service) windowStart(now time.Time) time.Time {
	d := now.In(s.loc)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, s.loc).AddDate(0, 0, -(s.windowDays - 1))
}

func topCounts(counts []database.WorkLogCount, topN int) []database.WorkLogCount {
	if topN <= 0 {
		topN = DefaultTopN
	}
	if len(counts) > topN {
		counts = counts[:topN]
	}
	return counts
}
