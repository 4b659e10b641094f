package cycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Million-art/auto-referral/internal/models"
)

// ErrNothingToArchive means the current cycle has no winners; the closure is
// aborted without side effects.
var ErrNothingToArchive = errors.New("no winners found, nothing to archive")

type Service struct {
	db        *gorm.DB
	threshold int
}

func NewService(db *gorm.DB, threshold int) *Service {
	return &Service{db: db, threshold: threshold}
}

// CurrentWeek labels the week by splitting the month into 4 equal segments of
// calendar days. Not an ISO week; weekly-archive rows key off this same label,
// so the formula must stay as-is.
func CurrentWeek(now time.Time) int {
	daysInMonth := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, now.Location()).Day()
	return int(math.Ceil(float64(now.Day()) / (float64(daysInMonth) / 4)))
}

// WeekResult is the outcome of a weekly closure, enough to build the report
// artifact.
type WeekResult struct {
	OpID        string
	WeekNumber  int
	GeneratedAt time.Time
	Winners     []models.ThisWeekWinner
	Archived    bool
}

// CloseWeek settles the weekly cycle in a single transaction: archive the
// current winners (skipped when their count is at or below the threshold),
// mark all new referrals as counted, and truncate the current-winner table.
// Any failure rolls back everything; with no winners at all the transaction
// aborts with ErrNothingToArchive and leaves every table untouched.
func (s *Service) CloseWeek(ctx context.Context) (*WeekResult, error) {
	now := time.Now()
	result := &WeekResult{
		OpID:        shortOpID(),
		WeekNumber:  CurrentWeek(now),
		GeneratedAt: now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Order("referral_count DESC").Find(&result.Winners).Error; err != nil {
			return fmt.Errorf("failed to load current winners: %w", err)
		}
		if len(result.Winners) == 0 {
			return ErrNothingToArchive
		}

		if len(result.Winners) > s.threshold {
			archive := make([]models.WeeklyWinner, 0, len(result.Winners))
			for _, w := range result.Winners {
				archive = append(archive, models.WeeklyWinner{
					WeekNumber:    result.WeekNumber,
					TelegramID:    w.TelegramID,
					FirstName:     w.FirstName,
					Phone:         w.Phone,
					ReferralCount: w.ReferralCount,
				})
			}
			if err := tx.Create(&archive).Error; err != nil {
				return fmt.Errorf("failed to archive weekly winners: %w", err)
			}
			result.Archived = true
		}

		err := tx.Model(&models.Referral{}).
			Where("status = ?", models.ReferralStatusNew).
			Update("status", models.ReferralStatusCounted).Error
		if err != nil {
			return fmt.Errorf("failed to settle referrals: %w", err)
		}

		if err := tx.Where("1 = 1").Delete(&models.ThisWeekWinner{}).Error; err != nil {
			return fmt.Errorf("failed to clear current winners: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[%s] Week %d closed: %d winners, archived=%v",
		result.OpID, result.WeekNumber, len(result.Winners), result.Archived)
	return result, nil
}

// ReportFilename names the downloadable weekly report artifact.
func (r *WeekResult) ReportFilename() string {
	return fmt.Sprintf("week_%d_winners.txt", r.WeekNumber)
}

// Report renders the ranked winner list as a UTF-8 text document.
func (r *WeekResult) Report() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "🏆 Week %d Winners (%s)\n\n", r.WeekNumber, r.GeneratedAt.Format("2006-01-02"))
	for i, w := range r.Winners {
		fmt.Fprintf(&b, "%s %s\nPhone: %s\nReferrals: %d\n\n",
			medal(i), w.FirstName, w.Phone, w.ReferralCount)
	}
	return []byte(b.String())
}

var medals = []string{"🥇", "🥈", "🥉"}

func medal(rank int) string {
	if rank < len(medals) {
		return medals[rank]
	}
	return "▫️"
}

func shortOpID() string {
	return uuid.New().String()[:8]
}
