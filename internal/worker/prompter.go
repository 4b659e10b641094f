package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Million-art/auto-referral/internal/referral"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/redis/go-redis/v9"
)

// Prompter periodically finds referrers who crossed the qualification
// threshold and asks them to share their contact. Redis keys keep a user
// from being re-prompted on every sweep.
type Prompter struct {
	Referrals *referral.Service
	Redis     *redis.Client
	Bot       *telego.Bot
	Interval  time.Duration
}

func NewPrompter(referrals *referral.Service, rdb *redis.Client, bot *telego.Bot, interval time.Duration) *Prompter {
	return &Prompter{
		Referrals: referrals,
		Redis:     rdb,
		Bot:       bot,
		Interval:  interval,
	}
}

func (p *Prompter) Start() {
	ticker := time.NewTicker(p.Interval)
	log.Println("Background eligibility prompter started")

	// Run once at start
	p.promptEligible()

	for range ticker.C {
		p.promptEligible()
	}
}

func (p *Prompter) promptEligible() {
	ctx := context.Background()

	eligible, err := p.Referrals.EligibleUsers(ctx)
	if err != nil {
		log.Printf("Error querying eligible referrers: %v", err)
		return
	}

	for _, user := range eligible {
		key := fmt.Sprintf("contact_prompt_%d", user.TelegramID)
		exists, _ := p.Redis.Exists(ctx, key).Result()
		if exists != 0 {
			continue
		}

		keyboard := tu.Keyboard(
			tu.KeyboardRow(
				tu.KeyboardButton("📱 Share Contact").WithRequestContact(),
			),
		).WithOneTimeKeyboard()

		_, err := p.Bot.SendMessage(ctx, tu.Message(
			tu.ID(user.TelegramID),
			"Congratulations! You have qualified for rewards with your referrals. Please share your contact information:",
		).WithReplyMarkup(keyboard))
		if err != nil {
			log.Printf("Failed to prompt user %d: %v", user.TelegramID, err)
			continue
		}

		p.Redis.Set(ctx, key, "true", 72*time.Hour)
		log.Printf("Sent contact prompt to user %d (%d new referrals)", user.TelegramID, user.ReferralCount)
	}
}
