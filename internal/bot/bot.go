package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/Million-art/auto-referral/internal/config"
	"github.com/Million-art/auto-referral/internal/cycle"
	"github.com/Million-art/auto-referral/internal/referral"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"
)

// Callback-button actions.
const (
	actionGetMyReferral       = "get_my_referral"
	actionJoinedChannel       = "joined_channel"
	actionReferredUsersNumber = "referred_users_number"
)

type Bot struct {
	Instance  *telego.Bot
	Referrals *referral.Service
	Cycles    *cycle.Service
	Cfg       *config.Config
}

// NewBot creates the Telegram client. The referral and cycle services are
// attached afterwards since they need the client for membership checks.
func NewBot(token string, cfg *config.Config) (*Bot, error) {
	tgBot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Bot{
		Instance: tgBot,
		Cfg:      cfg,
	}, nil
}

func (b *Bot) Start() {
	updates, _ := b.Instance.UpdatesViaLongPolling(context.Background(), nil)

	handler, _ := th.NewBotHandler(b.Instance, updates)

	// /start command, with optional referral payload
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		message := update.Message
		from := message.From

		payload := ""
		if parts := strings.Split(message.Text, " "); len(parts) > 1 {
			payload = parts[1]
		}

		if payload != "" {
			b.handleStartWithReferral(ctx, from, payload)
			return nil
		}

		b.registerAndRespond(ctx, from)
		return nil
	}, th.CommandEqual("start"))

	// Callbacks that re-send the referral card after the user (re)joins
	handler.Handle(b.handleRegisterCallback, th.CallbackDataEqual(actionGetMyReferral))
	handler.Handle(b.handleRegisterCallback, th.CallbackDataEqual(actionJoinedChannel))

	// Callback with the user's own referral stats
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		callback := update.CallbackQuery
		telegramID := callback.From.ID

		stats, err := b.Referrals.MyStats(ctx.Context(), telegramID)
		if err != nil {
			log.Printf("Error counting referrals for %d: %v", telegramID, err)
			_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(telegramID), "❌ Error occurred. Please try again."))
			_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(callback.ID))
			return nil
		}

		rank := "Not ranked"
		if stats.Rank > 0 {
			rank = strconv.Itoa(stats.Rank)
		}

		msg := fmt.Sprintf("📊 Your Referral Stats:\n\n"+
			"👥 Your this round referrals: %d\n"+
			"🏅 Your rank (by new referrals): %s\n\n"+
			"Keep sharing your link to climb the leaderboard!", stats.NewReferrals, rank)

		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(telegramID), msg))
		_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(callback.ID))
		return nil
	}, th.CallbackDataEqual(actionReferredUsersNumber))

	// Admin command to prompt qualifying users to share contact
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		message := update.Message
		if !b.isAdmin(message.From.ID) {
			_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(message.Chat.ID), "🚫 Only admin can use this command"))
			return nil
		}

		eligible, err := b.Referrals.EligibleUsers(ctx.Context())
		if err != nil {
			log.Printf("Error in share_contact: %v", err)
			_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(message.Chat.ID), "❌ Failed to process command. Please try again."))
			return nil
		}

		if len(eligible) == 0 {
			_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(
				tu.ID(message.Chat.ID),
				fmt.Sprintf("No users currently qualify (need ≥%d new referrals)", b.Cfg.ReferralThreshold),
			))
			return nil
		}

		for _, user := range eligible {
			keyboard := tu.Keyboard(
				tu.KeyboardRow(
					tu.KeyboardButton("📱 Share Contact").WithRequestContact(),
				),
			).WithOneTimeKeyboard()

			_, err := ctx.Bot().SendMessage(ctx.Context(), tu.Message(
				tu.ID(user.TelegramID),
				"Congratulations! You have qualified for rewards with your referrals. Please share your contact information:",
			).WithReplyMarkup(keyboard))
			if err != nil {
				log.Printf("Failed to message user %d: %v", user.TelegramID, err)
			}
		}

		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(
			tu.ID(message.Chat.ID),
			fmt.Sprintf("✅ Contact requests sent to %d eligible users", len(eligible)),
		))
		return nil
	}, th.CommandEqual("share_contact"))

	// Contact sharing confirms the user's pending referrals
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		b.handleContact(ctx, update.Message)
		return nil
	}, messageWithContact)

	// /end_week archives current winners and settles outstanding referrals
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		b.handleEndWeek(ctx, update.Message)
		return nil
	}, th.CommandEqual("end_week"))

	// /end_month archives the month and congratulates the top referrers
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		b.handleEndMonth(ctx, update.Message)
		return nil
	}, th.CommandEqual("end_month"))

	// /leaderboard shows the current top 3 referrers
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		chatID := update.Message.Chat.ID

		_ = ctx.Bot().SendChatAction(ctx.Context(), &telego.SendChatActionParams{
			ChatID: tu.ID(chatID),
			Action: telego.ChatActionTyping,
		})

		leaders, err := b.Referrals.Leaderboard(ctx.Context(), 3)
		if err != nil {
			log.Printf("Leaderboard error: %v", err)
			_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(chatID), "Failed to load leaderboard. Please try again later."))
			return nil
		}

		if len(leaders) == 0 {
			_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(chatID), "No active referrals yet. Be the first to refer someone!"))
			return nil
		}

		var sb strings.Builder
		sb.WriteString("🏆 Top 3 Referrers:\n\n")
		medals := []string{"🥇", "🥈", "🥉"}
		for i, leader := range leaders {
			fmt.Fprintf(&sb, "%s %s - %d referrals\n", medals[i], leader.FirstName, leader.ReferralCount)
		}

		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(chatID), sb.String()))
		return nil
	}, th.CommandEqual("leaderboard"))

	handler.Start()
}

func messageWithContact(_ context.Context, update telego.Update) bool {
	return update.Message != nil && update.Message.Contact != nil
}

func (b *Bot) isAdmin(userID int64) bool {
	return userID == b.Cfg.AdminID
}

func (b *Bot) referralLink(telegramID int64) string {
	return fmt.Sprintf("%s?start=%d", b.Cfg.BotURL, telegramID)
}

func (b *Bot) handleStartWithReferral(ctx *th.Context, from *telego.User, payload string) {
	referralCode, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(from.ID), "Invalid referral link."))
		return
	}

	err = b.Referrals.RegisterWithReferral(ctx.Context(), from.ID, from.FirstName, referralCode)
	switch {
	case err == nil:
		b.sendJoinPrompt(ctx, from.ID, "Join the channel to complete the process:")
	case errors.Is(err, referral.ErrSelfReferral):
		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(from.ID), "You cannot refer yourself."))
	case errors.Is(err, referral.ErrAlreadyRegistered):
		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(from.ID), "You have already registered, you cannot be referred"))
	case errors.Is(err, referral.ErrReferrerNotMember):
		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(from.ID), "Invalid referral link."))
	case errors.Is(err, referral.ErrAlreadyReferred):
		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(from.ID), "You have already been referred."))
	default:
		log.Printf("Referral registration error for %d: %v", from.ID, err)
		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(from.ID), "An error occurred. Please try again."))
	}
}

// registerAndRespond upserts the user and answers with either their referral
// card (channel member) or a join prompt.
func (b *Bot) registerAndRespond(ctx *th.Context, from *telego.User) {
	isMember, err := b.Referrals.Register(ctx.Context(), from.ID, from.FirstName)
	if err != nil {
		log.Printf("Registration error for %d: %v", from.ID, err)
		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(from.ID), "Registration failed. Please try again."))
		return
	}

	if isMember {
		b.sendReferralCard(ctx, from.ID)
	} else {
		b.sendJoinPrompt(ctx, from.ID, "Please join our channel:")
	}
}

func (b *Bot) handleRegisterCallback(ctx *th.Context, update telego.Update) error {
	callback := update.CallbackQuery

	if msg := callback.Message; msg != nil {
		_ = ctx.Bot().DeleteMessage(ctx.Context(), &telego.DeleteMessageParams{
			ChatID:    tu.ID(msg.GetChat().ID),
			MessageID: msg.GetMessageID(),
		})
	}

	b.registerAndRespond(ctx, &callback.From)
	_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(callback.ID))
	return nil
}

func (b *Bot) sendReferralCard(ctx *th.Context, telegramID int64) {
	caption := b.Cfg.CampaignCaption + b.referralLink(telegramID)

	keyboard := tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("Check how many users you referred").WithCallbackData(actionReferredUsersNumber),
		),
	)

	_, err := ctx.Bot().SendPhoto(ctx.Context(), tu.Photo(
		tu.ID(telegramID),
		tu.FileFromURL(b.Cfg.CardImageURL),
	).WithCaption(caption).WithReplyMarkup(keyboard))
	if err != nil {
		log.Printf("Error sending referral card to %d: %v", telegramID, err)
	}
}

func (b *Bot) sendJoinPrompt(ctx *th.Context, telegramID int64, text string) {
	keyboard := tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("📢 Join Channel").WithURL(b.Cfg.ChannelURL),
		),
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("✅ I joined").WithCallbackData(actionJoinedChannel),
		),
	)

	_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(telegramID), text).WithReplyMarkup(keyboard))
}

func (b *Bot) handleContact(ctx *th.Context, message *telego.Message) {
	from := message.From
	contact := message.Contact

	// The shared contact must be the sender's own
	if contact.UserID != from.ID {
		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(message.Chat.ID), "Please share your own contact information."))
		return
	}

	validCount, qualified, err := b.Referrals.ConfirmContact(ctx.Context(), from.ID, from.FirstName, contact.PhoneNumber)
	if err != nil {
		log.Printf("Error processing contact from %d: %v", from.ID, err)
		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(message.Chat.ID), "An error occurred. Please try again later."))
		return
	}

	removeKeyboard := &telego.ReplyKeyboardRemove{RemoveKeyboard: true}

	if qualified {
		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(
			tu.ID(message.Chat.ID),
			fmt.Sprintf("Thank you, %s! Admin will contact you soon about your %d valid referrals.", from.FirstName, validCount),
		).WithReplyMarkup(removeKeyboard))

		b.notifyAdmin(ctx.Context(), fmt.Sprintf(
			"📞 New contact from %s (%s)\nThey have %d valid referrals.",
			from.FirstName, contact.PhoneNumber, validCount,
		))
		return
	}

	_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(
		tu.ID(message.Chat.ID),
		fmt.Sprintf("You only have %d valid referrals (need %d). Keep sharing your link!", validCount, b.Cfg.ReferralThreshold),
	).WithReplyMarkup(removeKeyboard))
}

func (b *Bot) handleEndWeek(ctx *th.Context, message *telego.Message) {
	if !b.isAdmin(message.From.ID) {
		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(message.Chat.ID), "🚫 Only admin can end the week"))
		return
	}

	processing, err := ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(message.Chat.ID), "⏳ Processing week closure... Please wait"))
	if err != nil {
		log.Printf("Failed to send processing message: %v", err)
		return
	}

	result, err := b.Cycles.CloseWeek(ctx.Context())
	if errors.Is(err, cycle.ErrNothingToArchive) {
		b.editText(ctx, message.Chat.ID, processing.MessageID, "ℹ️ No winners found this week - nothing to archive")
		return
	}
	if err != nil {
		log.Printf("End week error: %v", err)
		b.editText(ctx, message.Chat.ID, processing.MessageID, "❌ Failed to process week: "+err.Error())
		b.notifyAdmin(ctx.Context(), fmt.Sprintf("⚠️ Weekly Closure Error\n\nError: %v", err))
		return
	}

	_ = ctx.Bot().DeleteMessage(ctx.Context(), &telego.DeleteMessageParams{
		ChatID:    tu.ID(message.Chat.ID),
		MessageID: processing.MessageID,
	})

	doc := tu.Document(
		tu.ID(message.Chat.ID),
		tu.File(tu.NameReader(bytes.NewReader(result.Report()), result.ReportFilename())),
	).WithCaption(fmt.Sprintf("✅ Week %d successfully closed!\n📊 %d winners archived",
		result.WeekNumber, len(result.Winners)))

	if _, err := ctx.Bot().SendDocument(ctx.Context(), doc); err != nil {
		log.Printf("Failed to send weekly report: %v", err)
	}
}

func (b *Bot) handleEndMonth(ctx *th.Context, message *telego.Message) {
	if !b.isAdmin(message.From.ID) {
		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(message.Chat.ID), "🚫 Only admin can end the month"))
		return
	}

	processing, err := ctx.Bot().SendMessage(ctx.Context(), tu.Message(
		tu.ID(message.Chat.ID),
		"⏳ Starting monthly closure process...\n\nPlease wait, this may take a moment...",
	))
	if err != nil {
		log.Printf("Failed to send processing message: %v", err)
		return
	}

	b.editText(ctx, message.Chat.ID, processing.MessageID, "⏳ Collecting monthly winner data...\n\nPlease wait...")

	result, err := b.Cycles.MonthlyLeaders(ctx.Context())
	if err != nil {
		b.reportMonthFailure(ctx, message.Chat.ID, processing.MessageID, "", err)
		return
	}

	if len(result.Leaders) == 0 {
		b.editText(ctx, message.Chat.ID, processing.MessageID, "ℹ️ No eligible winners this month\n\nNo data to archive.")
		return
	}

	b.editText(ctx, message.Chat.ID, processing.MessageID, "⏳ Archiving monthly winners...\n\nAlmost done...")

	// Archive, clear and notify are separate fallible steps: once rows are
	// archived or messages sent there is no undo, so failures are reported
	// to the admin instead of rolled back.
	if err := b.Cycles.ArchiveMonth(ctx.Context(), result); err != nil {
		b.reportMonthFailure(ctx, message.Chat.ID, processing.MessageID, result.OpID, err)
		return
	}

	if err := b.Cycles.ClearMonthData(ctx.Context()); err != nil {
		b.reportMonthFailure(ctx, message.Chat.ID, processing.MessageID, result.OpID, err)
		return
	}

	_ = ctx.Bot().DeleteMessage(ctx.Context(), &telego.DeleteMessageParams{
		ChatID:    tu.ID(message.Chat.ID),
		MessageID: processing.MessageID,
	})

	doc := tu.Document(
		tu.ID(message.Chat.ID),
		tu.File(tu.NameReader(bytes.NewReader(result.Report()), result.ReportFilename())),
	).WithCaption(fmt.Sprintf("✅ Monthly Report: %s\n\n🏆 %d winners archived\n📅 Month successfully closed!",
		result.MonthYear, len(result.Leaders)))

	if _, err := ctx.Bot().SendDocument(ctx.Context(), doc); err != nil {
		log.Printf("Failed to send monthly report: %v", err)
	}

	medalNames := []string{"🥇 Gold", "🥈 Silver", "🥉 Bronze"}
	top3 := result.Leaders
	if len(top3) > 3 {
		top3 = top3[:3]
	}

	for i, winner := range top3 {
		_, err := ctx.Bot().SendMessage(ctx.Context(), tu.Message(
			tu.ID(winner.TelegramID),
			fmt.Sprintf("🎉 %s Medal Winner! 🎉\n\nCongratulations %s!\n"+
				"You ranked %d this month with %d referrals!\n\n🏆 Keep up the great work!",
				medalNames[i], winner.FirstName, i+1, winner.ReferralCount),
		))
		if err != nil {
			log.Printf("Failed to congratulate %d: %v", winner.TelegramID, err)
			b.notifyAdmin(ctx.Context(), fmt.Sprintf("⚠️ Failed to congratulate %s (%d)", winner.FirstName, winner.TelegramID))
		}
	}

	b.notifyAdmin(ctx.Context(), fmt.Sprintf(
		"📊 Monthly Closure Complete\n\n📅 %s\n👑 %d winners\n🏅 Top 3 notified\n🕒 %s",
		result.MonthYear, len(result.Leaders), result.GeneratedAt.Format("15:04:05"),
	))
}

func (b *Bot) reportMonthFailure(ctx *th.Context, chatID int64, messageID int, opID string, err error) {
	log.Printf("End month error [%s]: %v", opID, err)

	b.editText(ctx, chatID, messageID,
		"❌ Monthly closure failed!\n\nError: "+err.Error()+"\n\nPlease check logs and try again.")

	detail := fmt.Sprintf("⚠️ Monthly Closure Error\n\nError: %v", err)
	if opID != "" {
		detail += fmt.Sprintf("\nOperation: %s", opID)
	}
	b.notifyAdmin(ctx.Context(), detail)
}

func (b *Bot) editText(ctx *th.Context, chatID int64, messageID int, text string) {
	_, err := ctx.Bot().EditMessageText(ctx.Context(), &telego.EditMessageTextParams{
		ChatID:    tu.ID(chatID),
		MessageID: messageID,
		Text:      text,
	})
	if err != nil {
		log.Printf("Failed to edit message %d: %v", messageID, err)
	}
}

func (b *Bot) notifyAdmin(ctx context.Context, text string) {
	if _, err := b.Instance.SendMessage(ctx, tu.Message(tu.ID(b.Cfg.AdminID), text)); err != nil {
		log.Printf("Failed to notify admin: %v", err)
	}
}
