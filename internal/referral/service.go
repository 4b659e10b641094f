package referral

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/Million-art/auto-referral/internal/models"
)

var (
	ErrSelfReferral      = errors.New("you cannot refer yourself")
	ErrAlreadyRegistered = errors.New("user is already registered")
	ErrReferrerNotMember = errors.New("referral code owner is not a channel member")
	ErrAlreadyReferred   = errors.New("user has already been referred")
)

// MemberChecker reports channel membership. Implemented by
// membership.Checker; tests substitute a fake.
type MemberChecker interface {
	IsMember(ctx context.Context, userID int64) bool
}

type Service struct {
	db        *gorm.DB
	members   MemberChecker
	threshold int
}

func NewService(db *gorm.DB, members MemberChecker, threshold int) *Service {
	return &Service{
		db:        db,
		members:   members,
		threshold: threshold,
	}
}

// IsRegistered reports whether a user row already exists.
func (s *Service) IsRegistered(ctx context.Context, telegramID int64) (bool, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "telegram_id = ?", telegramID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check registration: %w", err)
	}
	return true, nil
}

// Register upserts the user and reports whether they are already a channel
// member. The caller decides between sending the referral link and a join
// prompt based on the result.
func (s *Service) Register(ctx context.Context, telegramID int64, firstName string) (bool, error) {
	if err := s.upsertUser(s.db.WithContext(ctx), telegramID, firstName); err != nil {
		return false, err
	}
	return s.members.IsMember(ctx, telegramID), nil
}

// RegisterWithReferral registers a new user under a referral code. Checks run
// in order: self-referral, prior registration, referrer channel membership.
// The user upsert and referral insert are one transaction; a concurrent
// duplicate referral surfaces as ErrAlreadyReferred and rolls back both.
func (s *Service) RegisterWithReferral(ctx context.Context, telegramID int64, firstName string, referralCode int64) error {
	if referralCode == telegramID {
		return ErrSelfReferral
	}

	registered, err := s.IsRegistered(ctx, telegramID)
	if err != nil {
		return err
	}
	if registered {
		return ErrAlreadyRegistered
	}

	if !s.members.IsMember(ctx, referralCode) {
		return ErrReferrerNotMember
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.upsertUser(tx, telegramID, firstName); err != nil {
			return err
		}

		ref := models.Referral{
			TelegramID: referralCode,
			ReferredID: telegramID,
			Status:     models.ReferralStatusNew,
		}
		if err := tx.Create(&ref).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyReferred
			}
			return fmt.Errorf("failed to create referral: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Printf("User %d registered with referral from %d", telegramID, referralCode)
	return nil
}

// ConfirmContact re-validates every pending referral under the user and
// returns the valid count plus whether the user qualified for the current
// cycle. Referrals whose referred person left the channel transition to end
// and are never counted again, so reruns can only shrink the count.
func (s *Service) ConfirmContact(ctx context.Context, telegramID int64, firstName, phone string) (int, bool, error) {
	var pending []models.Referral
	err := s.db.WithContext(ctx).
		Where("telegram_id = ? AND status = ?", telegramID, models.ReferralStatusNew).
		Find(&pending).Error
	if err != nil {
		return 0, false, fmt.Errorf("failed to load pending referrals: %w", err)
	}

	validCount := 0
	for _, ref := range pending {
		if s.members.IsMember(ctx, ref.ReferredID) {
			validCount++
			continue
		}
		err := s.db.WithContext(ctx).Model(&models.Referral{}).
			Where("id = ?", ref.ID).
			Update("status", models.ReferralStatusEnd).Error
		if err != nil {
			return 0, false, fmt.Errorf("failed to end referral %d: %w", ref.ID, err)
		}
	}

	if validCount < s.threshold {
		return validCount, false, nil
	}

	if err := s.upsertWinner(ctx, telegramID, firstName, phone, validCount); err != nil {
		return validCount, false, err
	}
	return validCount, true, nil
}

// LeaderboardEntry is one row of the top-referrer ranking.
type LeaderboardEntry struct {
	TelegramID    int64
	FirstName     string
	ReferralCount int
}

// Leaderboard returns the top referrers ranked by count of non-end referrals.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	var entries []LeaderboardEntry
	err := s.db.WithContext(ctx).Model(&models.Referral{}).
		Select("referrals.telegram_id, users.first_name, COUNT(referrals.id) AS referral_count").
		Joins("JOIN users ON users.telegram_id = referrals.telegram_id").
		Where("referrals.status <> ?", models.ReferralStatusEnd).
		Group("referrals.telegram_id, users.first_name").
		Order("referral_count DESC").
		Limit(limit).
		Scan(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}
	return entries, nil
}

// Stats is a user's own standing in the current round.
type Stats struct {
	NewReferrals int
	// Rank is the 1-based position among all referrers by new-referral
	// count, 0 when the user has none.
	Rank int
}

// MyStats counts the user's new referrals and their rank among all
// referrers' new-referral counts.
func (s *Service) MyStats(ctx context.Context, telegramID int64) (Stats, error) {
	type refCount struct {
		TelegramID    int64
		ReferralCount int
	}
	var counts []refCount
	err := s.db.WithContext(ctx).Model(&models.Referral{}).
		Select("telegram_id, COUNT(referred_id) AS referral_count").
		Where("status = ?", models.ReferralStatusNew).
		Group("telegram_id").
		Order("referral_count DESC").
		Scan(&counts).Error
	if err != nil {
		return Stats{}, fmt.Errorf("failed to load referral counts: %w", err)
	}

	var stats Stats
	for i, c := range counts {
		if c.TelegramID == telegramID {
			stats.NewReferrals = c.ReferralCount
			stats.Rank = i + 1
			break
		}
	}
	return stats, nil
}

// EligibleUsers lists referrers whose new-referral count has reached the
// qualification threshold.
func (s *Service) EligibleUsers(ctx context.Context) ([]LeaderboardEntry, error) {
	var entries []LeaderboardEntry
	err := s.db.WithContext(ctx).Model(&models.Referral{}).
		Select("telegram_id, COUNT(id) AS referral_count").
		Where("status = ?", models.ReferralStatusNew).
		Group("telegram_id").
		Having("COUNT(id) >= ?", s.threshold).
		Scan(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load eligible users: %w", err)
	}
	return entries, nil
}

func (s *Service) upsertUser(tx *gorm.DB, telegramID int64, firstName string) error {
	if firstName == "" {
		firstName = "Unknown"
	}
	var user models.User
	err := tx.Where(models.User{TelegramID: telegramID}).
		Attrs(models.User{FirstName: firstName}).
		FirstOrCreate(&user).Error
	if err != nil {
		return fmt.Errorf("failed to upsert user %d: %w", telegramID, err)
	}
	return nil
}

func (s *Service) upsertWinner(ctx context.Context, telegramID int64, firstName, phone string, count int) error {
	db := s.db.WithContext(ctx)

	var winner models.ThisWeekWinner
	err := db.First(&winner, "telegram_id = ?", telegramID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		winner = models.ThisWeekWinner{
			TelegramID:    telegramID,
			FirstName:     firstName,
			Phone:         phone,
			ReferralCount: count,
		}
		if err := db.Create(&winner).Error; err != nil {
			return fmt.Errorf("failed to add winner %d: %w", telegramID, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up winner %d: %w", telegramID, err)
	}

	winner.FirstName = firstName
	winner.Phone = phone
	winner.ReferralCount = count
	if err := db.Save(&winner).Error; err != nil {
		return fmt.Errorf("failed to update winner %d: %w", telegramID, err)
	}
	return nil
}
