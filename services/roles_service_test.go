package services

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"crew-registry-system/models"

	"github.com/bwmarrin/discordgo"
)

type fakeDiscord struct {
	roles       []*discordgo.Role
	member      *discordgo.Member
	memberRoles map[string]bool

	addErr    error
	removeErr error
	nickErr   error

	added    []string
	removed  []string
	nicks    []string
	messages []string
}

func (f *fakeDiscord) GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error) {
	return f.roles, nil
}

func (f *fakeDiscord) GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error) {
	if f.member == nil {
		return nil, errors.New("member not found")
	}
	return f.member, nil
}

func (f *fakeDiscord) GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, roleID)
	return nil
}

func (f *fakeDiscord) GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, roleID)
	return nil
}

func (f *fakeDiscord) GuildMemberNickname(guildID, userID, nickname string, options ...discordgo.RequestOption) error {
	if f.nickErr != nil {
		return f.nickErr
	}
	f.nicks = append(f.nicks, nickname)
	return nil
}

func (f *fakeDiscord) ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.messages = append(f.messages, content)
	return &discordgo.Message{}, nil
}

func guildWithStandardRoles() *fakeDiscord {
	return &fakeDiscord{
		roles: []*discordgo.Role{
			{ID: "r-nd", Name: models.DivisionNone},
			{ID: "r-recruit", Name: models.RankRecruit},
			{ID: "r-specialist", Name: "Specialist"},
			{ID: "r-associate", Name: models.RankAssociate},
			{ID: "r-everyone", Name: "@everyone"},
			// A vanity role whose name merely contains a rank name. The old
			// substring matcher would have stripped this; exact-id matching
			// must leave it alone.
			{ID: "r-vanity", Name: "Recruit of the Month"},
		},
		member: &discordgo.Member{
			User:  &discordgo.User{ID: "42", Username: "tanis"},
			Roles: []string{"r-everyone", "r-vanity"},
		},
	}
}

func TestTargetRoleNames(t *testing.T) {
	member := TargetRoleNames(models.MemberTypeMember)
	if len(member) != 2 || member[0] != models.DivisionNone || member[1] != models.RankRecruit {
		t.Fatalf("Member roles = %v", member)
	}
	assoc := TargetRoleNames(models.MemberTypeAssociate)
	if len(assoc) != 1 || assoc[0] != models.RankAssociate {
		t.Fatalf("Associate roles = %v", assoc)
	}
}

func TestAssignInitialRolesMember(t *testing.T) {
	discord := guildWithStandardRoles()
	svc := NewRolesService(discord, "guild-1", "")

	if err := svc.AssignInitialRoles("42", models.MemberTypeMember); err != nil {
		t.Fatalf("AssignInitialRoles failed: %v", err)
	}
	if len(discord.added) != 2 || discord.added[0] != "r-nd" || discord.added[1] != "r-recruit" {
		t.Fatalf("added roles = %v, want [r-nd r-recruit]", discord.added)
	}
	if len(discord.removed) != 0 {
		t.Fatalf("removed roles = %v, want none (vanity role must survive)", discord.removed)
	}
}

func TestAssignInitialRolesStripsStaleRankRoles(t *testing.T) {
	discord := guildWithStandardRoles()
	// Re-registration: the member still wears Specialist from a past life.
	discord.member.Roles = []string{"r-everyone", "r-specialist", "r-vanity"}
	svc := NewRolesService(discord, "guild-1", "")

	if err := svc.AssignInitialRoles("42", models.MemberTypeAssociate); err != nil {
		t.Fatalf("AssignInitialRoles failed: %v", err)
	}
	if len(discord.removed) != 1 || discord.removed[0] != "r-specialist" {
		t.Fatalf("removed = %v, want [r-specialist]", discord.removed)
	}
	if len(discord.added) != 1 || discord.added[0] != "r-associate" {
		t.Fatalf("added = %v, want [r-associate]", discord.added)
	}
}

func TestAssignInitialRolesMissingRole(t *testing.T) {
	discord := guildWithStandardRoles()
	// Guild admin deleted the Recruit role.
	var kept []*discordgo.Role
	for _, r := range discord.roles {
		if r.ID != "r-recruit" {
			kept = append(kept, r)
		}
	}
	discord.roles = kept
	svc := NewRolesService(discord, "guild-1", "admin-chan")

	err := svc.AssignInitialRoles("42", models.MemberTypeMember)
	if !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("err = %v, want ErrRoleNotFound", err)
	}
	// Nothing was touched and the admins heard about it.
	if len(discord.added) != 0 || len(discord.removed) != 0 {
		t.Fatalf("roles mutated despite missing config: added=%v removed=%v", discord.added, discord.removed)
	}
	if len(discord.messages) != 1 {
		t.Fatalf("admin reports = %v, want 1", discord.messages)
	}
}

func TestAssignInitialRolesPermissionDenied(t *testing.T) {
	discord := guildWithStandardRoles()
	discord.addErr = &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusForbidden}}
	svc := NewRolesService(discord, "guild-1", "admin-chan")

	err := svc.AssignInitialRoles("42", models.MemberTypeMember)
	if !errors.Is(err, ErrRolePermissionDenied) {
		t.Fatalf("err = %v, want ErrRolePermissionDenied", err)
	}
	if len(discord.messages) != 1 {
		t.Fatalf("admin reports = %v, want 1", discord.messages)
	}
}

func TestBuildNickname(t *testing.T) {
	if got := BuildNickname(models.RankRecruit, "Tanis_Vale"); got != "RCT Tanis_Vale" {
		t.Fatalf("BuildNickname = %q, want RCT Tanis_Vale", got)
	}

	// The handle gives way, never the prefix.
	long := strings.Repeat("x", 40)
	got := BuildNickname(models.RankRecruit, long)
	if len(got) != 32 {
		t.Fatalf("len = %d, want 32", len(got))
	}
	if !strings.HasPrefix(got, "RCT ") {
		t.Fatalf("prefix lost: %q", got)
	}
}

func TestStripRankPrefix(t *testing.T) {
	if got := StripRankPrefix("RCT Tanis_Vale"); got != "Tanis_Vale" {
		t.Fatalf("StripRankPrefix = %q, want Tanis_Vale", got)
	}
	if got := StripRankPrefix("Tanis_Vale"); got != "Tanis_Vale" {
		t.Fatalf("StripRankPrefix = %q, want unchanged", got)
	}
}

func TestUpdateNicknameFallsBackToDisplayName(t *testing.T) {
	discord := guildWithStandardRoles()
	// Previous registration left a prefixed nickname; no handle stored.
	discord.member.Nick = "SPC OldHandle"
	svc := NewRolesService(discord, "guild-1", "")

	if err := svc.UpdateNickname("42", models.RankRecruit, ""); err != nil {
		t.Fatalf("UpdateNickname failed: %v", err)
	}
	if len(discord.nicks) != 1 || discord.nicks[0] != "RCT OldHandle" {
		t.Fatalf("nick = %v, want [RCT OldHandle]", discord.nicks)
	}
}
