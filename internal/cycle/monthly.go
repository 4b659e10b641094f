package cycle

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Million-art/auto-referral/internal/models"
)

// MonthLeader is one all-time leader for the closing month, with contact
// info collected through the weekly cycles.
type MonthLeader struct {
	TelegramID    int64
	FirstName     string
	Phone         string
	ReferralCount int
}

// MonthResult carries the state of a monthly closure between its steps. The
// closure is deliberately not one transaction: archive, clearing and
// notifications are separate fallible steps, and notifications already sent
// cannot be rolled back. OpID ties admin-facing error reports to log lines.
type MonthResult struct {
	OpID        string
	MonthYear   string
	GeneratedAt time.Time
	Leaders     []MonthLeader
}

// MonthlyLeaders aggregates the month's weekly archive per user: summed
// referral counts for everyone with a phone on file, best first.
func (s *Service) MonthlyLeaders(ctx context.Context) (*MonthResult, error) {
	now := time.Now()
	result := &MonthResult{
		OpID:        shortOpID(),
		MonthYear:   now.Format("January 2006"),
		GeneratedAt: now,
	}

	err := s.db.WithContext(ctx).Model(&models.WeeklyWinner{}).
		Select("telegram_id, MAX(first_name) AS first_name, MAX(phone) AS phone, SUM(referral_count) AS referral_count").
		Where("phone <> ''").
		Group("telegram_id").
		Order("referral_count DESC").
		Scan(&result.Leaders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load monthly leaders: %w", err)
	}
	return result, nil
}

// ArchiveMonth bulk-inserts one archive row per leader under the month label.
func (s *Service) ArchiveMonth(ctx context.Context, result *MonthResult) error {
	archive := make([]models.MonthlyWinner, 0, len(result.Leaders))
	for _, leader := range result.Leaders {
		archive = append(archive, models.MonthlyWinner{
			MonthYear:     result.MonthYear,
			TelegramID:    leader.TelegramID,
			FirstName:     leader.FirstName,
			Phone:         leader.Phone,
			ReferralCount: leader.ReferralCount,
		})
	}
	if err := s.db.WithContext(ctx).Create(&archive).Error; err != nil {
		return fmt.Errorf("failed to archive monthly winners: %w", err)
	}
	log.Printf("[%s] Archived %d monthly winners for %s", result.OpID, len(archive), result.MonthYear)
	return nil
}

// ClearMonthData truncates the month-scoped working data (the weekly
// archive) once the monthly winners are recorded.
func (s *Service) ClearMonthData(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Where("1 = 1").Delete(&models.WeeklyWinner{}).Error; err != nil {
		return fmt.Errorf("failed to clear weekly archive: %w", err)
	}
	return nil
}

// ReportFilename names the downloadable monthly report artifact.
func (r *MonthResult) ReportFilename() string {
	return fmt.Sprintf("monthly_winners_%d_%d.txt", r.GeneratedAt.Year(), int(r.GeneratedAt.Month()))
}

// Report renders the monthly winner list as a UTF-8 text document.
func (r *MonthResult) Report() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "🏆 Monthly Referral Report (%s)\n\n", r.MonthYear)
	fmt.Fprintf(&b, "Generated: %s\n", r.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Total Winners: %d\n\n", len(r.Leaders))
	for i, leader := range r.Leaders {
		fmt.Fprintf(&b, "%s %s\nTelegram ID: %d\nPhone: %s\nReferrals: %d\n\n",
			medal(i), leader.FirstName, leader.TelegramID, leader.Phone, leader.ReferralCount)
	}
	return []byte(b.String())
}
