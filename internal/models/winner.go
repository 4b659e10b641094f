package models

// ThisWeekWinner is one user currently qualifying in the active weekly cycle.
// Rows are upserted on contact confirmation and truncated at weekly closure.
type ThisWeekWinner struct {
	TelegramID    int64  `gorm:"primaryKey"`
	FirstName     string `gorm:"size:255;not null"`
	Phone         string `gorm:"size:32;not null"`
	ReferralCount int    `gorm:"not null;default:0"`
}

// WeeklyWinner is an immutable archive row written at weekly closure.
type WeeklyWinner struct {
	ID            uint   `gorm:"primaryKey"`
	WeekNumber    int    `gorm:"not null;index;uniqueIndex:idx_week_user"`
	TelegramID    int64  `gorm:"not null;uniqueIndex:idx_week_user"`
	FirstName     string `gorm:"size:255;not null"`
	Phone         string `gorm:"size:32;not null"`
	ReferralCount int    `gorm:"not null;default:0"`
}

// MonthlyWinner is an immutable archive row written at monthly closure.
type MonthlyWinner struct {
	ID            uint   `gorm:"primaryKey"`
	MonthYear     string `gorm:"size:32;not null;index"`
	TelegramID    int64  `gorm:"not null"`
	FirstName     string `gorm:"size:255;not null"`
	Phone         string `gorm:"size:32;not null"`
	ReferralCount int    `gorm:"not null;default:0"`
}
