package membership

import (
	"context"
	"log"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// chatMemberAPI is the slice of the Telegram API the checker needs.
type chatMemberAPI interface {
	GetChatMember(ctx context.Context, params *telego.GetChatMemberParams) (telego.ChatMember, error)
}

// Checker answers whether a user currently belongs to the required channel.
type Checker struct {
	api       chatMemberAPI
	channelID int64
}

func NewChecker(bot *telego.Bot, channelID int64) *Checker {
	return &Checker{api: bot, channelID: channelID}
}

// IsMember reports whether userID is a member, administrator or creator of
// the required channel. Any API failure (bot lacks admin rights, channel not
// found, user unknown, transport error) is treated as "not a member".
func (c *Checker) IsMember(ctx context.Context, userID int64) bool {
	member, err := c.api.GetChatMember(ctx, &telego.GetChatMemberParams{
		ChatID: tu.ID(c.channelID),
		UserID: userID,
	})
	if err != nil {
		log.Printf("Member check failed for user %d: %v", userID, err)
		return false
	}

	switch member.MemberStatus() {
	case telego.MemberStatusCreator, telego.MemberStatusAdministrator, telego.MemberStatusMember:
		return true
	default:
		return false
	}
}
