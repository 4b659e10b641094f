package models

import (
	"time"
)

type User struct {
	TelegramID int64  `gorm:"primaryKey"`
	FirstName  string `gorm:"size:255;not null"`
	CreatedAt  time.Time
}
