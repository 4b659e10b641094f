package cycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Million-art/auto-referral/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.Referral{},
		&models.ThisWeekWinner{},
		&models.WeeklyWinner{},
		&models.MonthlyWinner{},
	)
	if err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}

	return db
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 12, 0, 0, 0, time.UTC)
}

func TestCurrentWeek(t *testing.T) {
	cases := []struct {
		now  time.Time
		want int
	}{
		{date(2025, time.June, 1), 1},   // 30-day month, segment 7.5 days
		{date(2025, time.June, 8), 2},
		{date(2025, time.June, 15), 2},
		{date(2025, time.June, 30), 4},
		{date(2025, time.January, 8), 2}, // 31-day month, segment 7.75 days
		{date(2025, time.January, 31), 4},
		{date(2025, time.February, 7), 1}, // 28-day month, segment 7 days
		{date(2025, time.February, 8), 2},
		{date(2024, time.February, 29), 4}, // leap year
	}

	for _, tc := range cases {
		if got := CurrentWeek(tc.now); got != tc.want {
			t.Errorf("CurrentWeek(%s) = %d, want %d", tc.now.Format("2006-01-02"), got, tc.want)
		}
	}
}

func TestCloseWeekNothingToArchive(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db, 2)

	db.Create(&models.Referral{TelegramID: 1, ReferredID: 11, Status: models.ReferralStatusNew})

	_, err := service.CloseWeek(context.Background())
	if !errors.Is(err, ErrNothingToArchive) {
		t.Fatalf("expected ErrNothingToArchive, got %v", err)
	}

	// Aborted closure must leave everything untouched.
	var ref models.Referral
	db.First(&ref, "referred_id = ?", 11)
	if ref.Status != models.ReferralStatusNew {
		t.Errorf("referral status changed to %s on aborted closure", ref.Status)
	}

	var archived int64
	db.Model(&models.WeeklyWinner{}).Count(&archived)
	if archived != 0 {
		t.Errorf("expected empty weekly archive, got %d rows", archived)
	}
}

func TestCloseWeekArchivesAndSettles(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db, 2)

	winners := []models.ThisWeekWinner{
		{TelegramID: 1, FirstName: "A", Phone: "+1", ReferralCount: 3},
		{TelegramID: 2, FirstName: "B", Phone: "+2", ReferralCount: 5},
		{TelegramID: 3, FirstName: "C", Phone: "+3", ReferralCount: 2},
	}
	db.Create(&winners)

	db.Create(&models.Referral{TelegramID: 1, ReferredID: 11, Status: models.ReferralStatusNew})
	db.Create(&models.Referral{TelegramID: 2, ReferredID: 21, Status: models.ReferralStatusNew})
	db.Create(&models.Referral{TelegramID: 3, ReferredID: 31, Status: models.ReferralStatusEnd})

	result, err := service.CloseWeek(context.Background())
	if err != nil {
		t.Fatalf("CloseWeek failed: %v", err)
	}
	if !result.Archived {
		t.Fatal("expected archival with 3 winners over threshold 2")
	}
	if want := CurrentWeek(time.Now()); result.WeekNumber != want {
		t.Errorf("week number %d, want %d", result.WeekNumber, want)
	}

	var archived []models.WeeklyWinner
	db.Order("referral_count DESC").Find(&archived)
	if len(archived) != 3 {
		t.Fatalf("expected 3 archive rows, got %d", len(archived))
	}
	if archived[0].TelegramID != 2 || archived[0].WeekNumber != result.WeekNumber {
		t.Errorf("unexpected top archive row: %+v", archived[0])
	}

	var newLeft, counted int64
	db.Model(&models.Referral{}).Where("status = ?", models.ReferralStatusNew).Count(&newLeft)
	db.Model(&models.Referral{}).Where("status = ?", models.ReferralStatusCounted).Count(&counted)
	if newLeft != 0 || counted != 2 {
		t.Errorf("expected 0 new and 2 counted referrals, got %d and %d", newLeft, counted)
	}

	// Ended referrals stay ended through closure.
	var ended models.Referral
	db.First(&ended, "referred_id = ?", 31)
	if ended.Status != models.ReferralStatusEnd {
		t.Errorf("ended referral became %s", ended.Status)
	}

	var current int64
	db.Model(&models.ThisWeekWinner{}).Count(&current)
	if current != 0 {
		t.Errorf("expected truncated current-winner table, got %d rows", current)
	}
}

func TestCloseWeekAtThresholdSkipsArchive(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db, 2)

	db.Create(&[]models.ThisWeekWinner{
		{TelegramID: 1, FirstName: "A", Phone: "+1", ReferralCount: 3},
		{TelegramID: 2, FirstName: "B", Phone: "+2", ReferralCount: 2},
	})
	db.Create(&models.Referral{TelegramID: 1, ReferredID: 11, Status: models.ReferralStatusNew})

	result, err := service.CloseWeek(context.Background())
	if err != nil {
		t.Fatalf("CloseWeek failed: %v", err)
	}
	if result.Archived {
		t.Error("expected archival skipped at threshold")
	}

	var archived int64
	db.Model(&models.WeeklyWinner{}).Count(&archived)
	if archived != 0 {
		t.Errorf("expected empty archive, got %d rows", archived)
	}

	// Closure still settles and truncates.
	var newLeft, current int64
	db.Model(&models.Referral{}).Where("status = ?", models.ReferralStatusNew).Count(&newLeft)
	db.Model(&models.ThisWeekWinner{}).Count(&current)
	if newLeft != 0 || current != 0 {
		t.Errorf("expected settled referrals and empty current table, got %d new and %d current", newLeft, current)
	}
}

func TestCloseWeekRollsBackOnFailure(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db, 2)

	db.Create(&[]models.ThisWeekWinner{
		{TelegramID: 1, FirstName: "A", Phone: "+1", ReferralCount: 3},
		{TelegramID: 2, FirstName: "B", Phone: "+2", ReferralCount: 2},
		{TelegramID: 3, FirstName: "C", Phone: "+3", ReferralCount: 4},
	})
	db.Create(&models.Referral{TelegramID: 1, ReferredID: 11, Status: models.ReferralStatusNew})

	// Make the archive insert fail mid-transaction.
	if err := db.Migrator().DropTable(&models.WeeklyWinner{}); err != nil {
		t.Fatalf("failed to drop archive table: %v", err)
	}

	_, err := service.CloseWeek(context.Background())
	if err == nil {
		t.Fatal("expected CloseWeek to fail")
	}

	var current int64
	db.Model(&models.ThisWeekWinner{}).Count(&current)
	if current != 3 {
		t.Errorf("expected current winners intact after rollback, got %d", current)
	}

	var ref models.Referral
	db.First(&ref, "referred_id = ?", 11)
	if ref.Status != models.ReferralStatusNew {
		t.Errorf("referral settled despite rollback: %s", ref.Status)
	}
}

func TestWeekReportFormat(t *testing.T) {
	result := &WeekResult{
		WeekNumber:  3,
		GeneratedAt: date(2025, time.June, 21),
		Winners: []models.ThisWeekWinner{
			{TelegramID: 2, FirstName: "B", Phone: "+2", ReferralCount: 5},
			{TelegramID: 1, FirstName: "A", Phone: "+1", ReferralCount: 3},
		},
	}

	if got, want := result.ReportFilename(), "week_3_winners.txt"; got != want {
		t.Errorf("filename %q, want %q", got, want)
	}

	report := string(result.Report())
	if !strings.Contains(report, "Week 3 Winners (2025-06-21)") {
		t.Errorf("report missing header: %q", report)
	}
	if !strings.Contains(report, "🥇 B") || !strings.Contains(report, "🥈 A") {
		t.Errorf("report missing medal markers: %q", report)
	}
}
