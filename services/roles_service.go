// crew-registry-system/services/roles_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"crew-registry-system/models"

	"github.com/bwmarrin/discordgo"
)

var (
	// ErrRolePermissionDenied means the bot lacks Manage Roles (or the role
	// sits above the bot in the hierarchy).
	ErrRolePermissionDenied = errors.New("missing permission to manage roles")
	// ErrRoleNotFound means a required role doesn't exist in the guild.
	ErrRoleNotFound = errors.New("required role not configured in guild")
)

// DiscordAPI is the slice of the Discord REST surface this service touches.
// *discordgo.Session satisfies it; tests use a fake.
type DiscordAPI interface {
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberNickname(guildID, userID, nickname string, options ...discordgo.RequestOption) error
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// RolesService decides and applies the role set and nickname for a freshly
// redeemed registration. Role assignment is required for redemption to
// succeed; the nickname is best-effort.
type RolesService struct {
	Discord        DiscordAPI
	GuildID        string
	AdminChannelID string // optional; failures are reported here when set
}

func NewRolesService(discord DiscordAPI, guildID, adminChannelID string) *RolesService {
	return &RolesService{Discord: discord, GuildID: guildID, AdminChannelID: adminChannelID}
}

// TargetRoleNames is the role set a member type maps to.
func TargetRoleNames(memberType models.MemberType) []string {
	switch memberType {
	case models.MemberTypeAssociate:
		return []string{models.RankAssociate}
	default:
		return []string{models.DivisionNone, models.RankRecruit}
	}
}

// AssignInitialRoles removes whatever rank roles the member currently holds
// and applies the set for their member type. Stale roles are matched by
// exact role id against the rank-role registry, not by name substring, so a
// custom role that merely contains a rank name is left alone.
func (s *RolesService) AssignInitialRoles(userID string, memberType models.MemberType) error {
	guildRoles, err := s.Discord.GuildRoles(s.GuildID)
	if err != nil {
		return s.classifyRoleErr(userID, fmt.Errorf("failed to list guild roles: %w", err))
	}

	// Resolve the rank-role registry (rank name → role id) from the live
	// guild role set.
	rankRoleIDs := make(map[string]string)
	for _, role := range guildRoles {
		if _, ok := models.RankCodes[role.Name]; ok {
			rankRoleIDs[role.Name] = role.ID
		}
	}
	divisionRoleID := ""
	for _, role := range guildRoles {
		if role.Name == models.DivisionNone {
			divisionRoleID = role.ID
		}
	}

	// Resolve target role ids up front so a misconfigured guild fails before
	// we remove anything.
	var targetIDs []string
	for _, name := range TargetRoleNames(memberType) {
		id := rankRoleIDs[name]
		if name == models.DivisionNone {
			id = divisionRoleID
		}
		if id == "" {
			log.Printf("❌ [ROLES] Guild %s has no role named %q", s.GuildID, name)
			s.reportToAdmins(fmt.Sprintf("⚠️ Onboarding blocked: guild role %q is missing", name))
			return ErrRoleNotFound
		}
		targetIDs = append(targetIDs, id)
	}

	member, err := s.Discord.GuildMember(s.GuildID, userID)
	if err != nil {
		return s.classifyRoleErr(userID, fmt.Errorf("failed to fetch member: %w", err))
	}

	// Strip stale rank roles from previous registrations.
	staleIDs := make(map[string]bool, len(rankRoleIDs))
	for _, id := range rankRoleIDs {
		staleIDs[id] = true
	}
	for _, roleID := range member.Roles {
		if staleIDs[roleID] {
			if err := s.Discord.GuildMemberRoleRemove(s.GuildID, userID, roleID); err != nil {
				return s.classifyRoleErr(userID, fmt.Errorf("failed to remove stale rank role %s: %w", roleID, err))
			}
		}
	}

	for _, roleID := range targetIDs {
		if err := s.Discord.GuildMemberRoleAdd(s.GuildID, userID, roleID); err != nil {
			return s.classifyRoleErr(userID, fmt.Errorf("failed to add role %s: %w", roleID, err))
		}
	}

	log.Printf("✅ [ROLES] Assigned %v to user %s", TargetRoleNames(memberType), userID)
	return nil
}

const discordNicknameMax = 32

// BuildNickname composes "{RankAbbrev} {Handle}". When the handle would blow
// the platform limit the handle is truncated, never the prefix.
func BuildNickname(rank, handle string) string {
	abbrev := models.RankAbbrevs[rank]
	if abbrev == "" {
		return truncate(handle, discordNicknameMax)
	}
	room := discordNicknameMax - len(abbrev) - 1
	return abbrev + " " + truncate(handle, room)
}

func truncate(s string, max int) string {
	if max < 0 {
		max = 0
	}
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// StripRankPrefix drops a leading known rank abbreviation from a display
// name, for members whose record has no stored handle.
func StripRankPrefix(displayName string) string {
	for _, abbrev := range models.RankAbbrevs {
		if strings.HasPrefix(displayName, abbrev+" ") {
			return strings.TrimPrefix(displayName, abbrev+" ")
		}
	}
	return displayName
}

// UpdateNickname sets the member's server nickname. Best-effort: failures
// are logged and never unwind the roles or the record status.
func (s *RolesService) UpdateNickname(userID, rank, handle string) error {
	if handle == "" {
		member, err := s.Discord.GuildMember(s.GuildID, userID)
		if err != nil {
			log.Printf("⚠️ [ROLES] Nickname skipped, could not fetch member %s: %v", userID, err)
			return err
		}
		current := member.Nick
		if current == "" && member.User != nil {
			current = member.User.Username
		}
		handle = StripRankPrefix(current)
	}

	nick := BuildNickname(rank, handle)
	if err := s.Discord.GuildMemberNickname(s.GuildID, userID, nick); err != nil {
		log.Printf("⚠️ [ROLES] Nickname update failed for user %s: %v", userID, err)
		return err
	}
	log.Printf("✅ [ROLES] Nickname for user %s set to %q", userID, nick)
	return nil
}

// classifyRoleErr maps Discord REST failures onto the service's error
// taxonomy and reports them to the admin channel.
func (s *RolesService) classifyRoleErr(userID string, err error) error {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusForbidden {
		log.Printf("🚫 [ROLES] Permission denied while updating user %s: %v", userID, err)
		s.reportToAdmins(fmt.Sprintf("⚠️ Onboarding blocked for <@%s>: bot lacks role permissions", userID))
		return ErrRolePermissionDenied
	}
	log.Printf("❌ [ROLES] Role update failed for user %s: %v", userID, err)
	s.reportToAdmins(fmt.Sprintf("⚠️ Role assignment failed for <@%s>: %v", userID, err))
	return err
}

func (s *RolesService) reportToAdmins(message string) {
	if s.AdminChannelID == "" {
		return
	}
	if _, err := s.Discord.ChannelMessageSend(s.AdminChannelID, message); err != nil {
		log.Printf("⚠️ [ROLES] Failed to post admin report: %v", err)
	}
}
