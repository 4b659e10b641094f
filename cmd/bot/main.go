package main

import (
	"log"

	"github.com/Million-art/auto-referral/internal/bot"
	"github.com/Million-art/auto-referral/internal/config"
	"github.com/Million-art/auto-referral/internal/cycle"
	"github.com/Million-art/auto-referral/internal/database"
	"github.com/Million-art/auto-referral/internal/membership"
	"github.com/Million-art/auto-referral/internal/referral"
	"github.com/Million-art/auto-referral/internal/worker"
)

func main() {
	// Load Configuration
	cfg := config.LoadConfig()

	// Connect to Database
	db, err := database.ConnectPostgres(cfg)
	if err != nil {
		log.Fatalf("Could not connect to database: %v", err)
	}

	// Connect to Redis
	rdb, err := database.ConnectRedis(cfg)
	if err != nil {
		log.Fatalf("Could not connect to redis: %v", err)
	}

	// Create Bot and Services
	campaignBot, err := bot.NewBot(cfg.BotToken, cfg)
	if err != nil {
		log.Fatalf("Could not create bot: %v", err)
	}

	members := membership.NewChecker(campaignBot.Instance, cfg.ChannelID)
	referrals := referral.NewService(db, members, cfg.ReferralThreshold)
	cycles := cycle.NewService(db, cfg.ReferralThreshold)

	campaignBot.Referrals = referrals
	campaignBot.Cycles = cycles

	// Background prompter for users who crossed the threshold
	prompter := worker.NewPrompter(referrals, rdb, campaignBot.Instance, cfg.PromptInterval)
	go prompter.Start()

	log.Println("Referral campaign bot started")
	campaignBot.Start()
}
