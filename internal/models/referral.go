package models

const (
	// ReferralStatusNew is an outstanding referral awaiting settlement.
	ReferralStatusNew = "new"
	// ReferralStatusCounted marks referrals credited by a weekly closure.
	ReferralStatusCounted = "counted"
	// ReferralStatusEnd marks referrals whose referred user left the
	// channel before confirmation. Terminal, never reverts to new.
	ReferralStatusEnd = "end"
)

// Referral records that TelegramID referred ReferredID. A person can be
// referred at most once system-wide; the unique index on referred_id is the
// only guard against double-referral races.
type Referral struct {
	ID         uint   `gorm:"primaryKey"`
	TelegramID int64  `gorm:"not null;index:idx_referrer_referred"`
	ReferredID int64  `gorm:"not null;uniqueIndex;index:idx_referrer_referred"`
	Status     string `gorm:"size:16;not null;default:'new';index"`
}
