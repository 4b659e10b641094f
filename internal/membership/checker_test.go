package membership

import (
	"context"
	"errors"
	"testing"

	"github.com/mymmrac/telego"
)

type fakeAPI struct {
	member telego.ChatMember
	err    error
}

func (f *fakeAPI) GetChatMember(_ context.Context, _ *telego.GetChatMemberParams) (telego.ChatMember, error) {
	return f.member, f.err
}

func TestIsMemberStatuses(t *testing.T) {
	cases := []struct {
		name   string
		member telego.ChatMember
		want   bool
	}{
		{"creator", &telego.ChatMemberOwner{Status: telego.MemberStatusCreator}, true},
		{"administrator", &telego.ChatMemberAdministrator{Status: telego.MemberStatusAdministrator}, true},
		{"member", &telego.ChatMemberMember{Status: telego.MemberStatusMember}, true},
		{"left", &telego.ChatMemberLeft{Status: telego.MemberStatusLeft}, false},
		{"banned", &telego.ChatMemberBanned{Status: telego.MemberStatusBanned}, false},
		{"restricted", &telego.ChatMemberRestricted{Status: telego.MemberStatusRestricted}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			checker := &Checker{api: &fakeAPI{member: tc.member}, channelID: -100}
			if got := checker.IsMember(context.Background(), 42); got != tc.want {
				t.Errorf("IsMember with status %s = %v, want %v", tc.member.MemberStatus(), got, tc.want)
			}
		})
	}
}

func TestIsMemberAPIErrorIsNotMember(t *testing.T) {
	checker := &Checker{
		api:       &fakeAPI{err: errors.New("Forbidden: bot is not a member of the channel chat")},
		channelID: -100,
	}
	if checker.IsMember(context.Background(), 42) {
		t.Error("expected API errors to map to not-a-member")
	}
}
