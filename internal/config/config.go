package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBUser     string
	DBPassword string
	DBName     string
	DBHost     string
	DBPort     string

	RedisHost     string
	RedisPort     string
	RedisPassword string

	BotToken string
	AdminID  int64
	// ChannelID is the channel users must join before their referrals count.
	ChannelID int64
	// ReferralThreshold is the minimum number of valid referrals required
	// to qualify for the current cycle's winner table.
	ReferralThreshold int

	BotURL          string
	ChannelURL      string
	CardImageURL    string
	CampaignCaption string

	PromptInterval time.Duration
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	return &Config{
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "referral_bot"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		BotToken:          getEnv("TELEGRAM_BOT_TOKEN", ""),
		AdminID:           getEnvInt64("ADMIN_ID", 0),
		ChannelID:         getEnvInt64("CHANNEL_ID", 0),
		ReferralThreshold: getEnvInt("REFERRAL_COUNT", 2),

		BotURL:       getEnv("BOT_URL", "https://t.me/auto_referral_bot"),
		ChannelURL:   getEnv("CHANNEL_URL", ""),
		CardImageURL: getEnv("CARD_IMAGE_URL", ""),
		CampaignCaption: getEnv("CAMPAIGN_CAPTION",
			"Invite your friends and win prizes! Your personal link:\n"),

		PromptInterval: getEnvDuration("PROMPT_INTERVAL", 6*time.Hour),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("Invalid value for %s, using default %d", key, fallback)
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
		log.Printf("Invalid value for %s, using default %d", key, fallback)
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("Invalid value for %s, using default %s", key, fallback)
	}
	return fallback
}
