// Copyright 2025 The Gompei Bot Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gateway

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/bwmarrin/discordgo"
	"github.com/gompeibot/gompei/event"
)

// ErrMemberNotFound is returned when a member lookup targets a user that
// isn't (or is no longer) a member of the guild
var ErrMemberNotFound = errors.New("member not found")

// Member is a point-in-time snapshot of a guild member's role set. It is
// supplied by the platform and never persisted.
type Member struct {
	Id    uint64
	Roles []uint64
}

type GatewayConfig struct {
	Logger   *slog.Logger
	EventBus *event.EventBus
	Token    string
}

// Gateway owns the Discord session. It converts inbound gateway dispatches
// into event bus publishes with snowflakes parsed at this edge, and exposes
// the role mutation and member listing surface consumed by the reconciler.
type Gateway struct {
	config   GatewayConfig
	logger   *slog.Logger
	eventBus *event.EventBus
	session  *discordgo.Session
}

func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	if cfg.Token == "" {
		return nil, errors.New("no bot token provided")
	}
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentGuilds |
		discordgo.IntentGuildMembers |
		discordgo.IntentGuildIntegrations |
		discordgo.IntentGuildMessages
	return &Gateway{
		config:   cfg,
		logger:   cfg.Logger,
		eventBus: cfg.EventBus,
		session:  session,
	}, nil
}

// Session returns the underlying Discord session. The command surface
// registers its interaction handlers against it.
func (g *Gateway) Session() *discordgo.Session {
	return g.session
}

// Start registers the dispatch handlers and opens the gateway connection
func (g *Gateway) Start() error {
	g.session.AddHandler(g.handleReady)
	g.session.AddHandler(g.handleGuildCreate)
	g.session.AddHandler(g.handleMemberAdd)
	g.session.AddHandler(g.handleMemberUpdate)
	if err := g.session.Open(); err != nil {
		return fmt.Errorf("failed to open gateway connection: %w", err)
	}
	return nil
}

// Stop closes the gateway connection and releases the session
func (g *Gateway) Stop() error {
	return g.session.Close()
}

func (g *Gateway) handleReady(_ *discordgo.Session, r *discordgo.Ready) {
	guildIds := make([]uint64, 0, len(r.Guilds))
	for _, guild := range r.Guilds {
		guildId, err := parseSnowflake(guild.ID)
		if err != nil {
			g.logger.Warn(
				"ignoring guild with malformed ID",
				"component", "gateway",
				"guild", guild.ID,
			)
			continue
		}
		guildIds = append(guildIds, guildId)
	}
	g.logger.Info(
		"gateway session established",
		"component", "gateway",
		"user", r.User.Username,
		"guilds", len(guildIds),
	)
	g.eventBus.Publish(
		ReadyEventType,
		event.NewEvent(ReadyEventType, ReadyEvent{GuildIds: guildIds}),
	)
}

func (g *Gateway) handleGuildCreate(
	_ *discordgo.Session,
	gc *discordgo.GuildCreate,
) {
	guildId, err := parseSnowflake(gc.ID)
	if err != nil {
		g.logger.Warn(
			"ignoring guild with malformed ID",
			"component", "gateway",
			"guild", gc.ID,
		)
		return
	}
	g.eventBus.Publish(
		GuildJoinEventType,
		event.NewEvent(GuildJoinEventType, GuildJoinEvent{GuildId: guildId}),
	)
}

func (g *Gateway) handleMemberAdd(
	_ *discordgo.Session,
	ma *discordgo.GuildMemberAdd,
) {
	guildId, memberId, roles, err := parseMember(ma.Member)
	if err != nil {
		g.logger.Warn(
			"ignoring member join with malformed IDs",
			"component", "gateway",
			"error", err,
		)
		return
	}
	g.eventBus.Publish(
		MemberJoinEventType,
		event.NewEvent(MemberJoinEventType, MemberJoinEvent{
			GuildId:  guildId,
			MemberId: memberId,
			Roles:    roles,
		}),
	)
}

func (g *Gateway) handleMemberUpdate(
	_ *discordgo.Session,
	mu *discordgo.GuildMemberUpdate,
) {
	guildId, memberId, roles, err := parseMember(mu.Member)
	if err != nil {
		g.logger.Warn(
			"ignoring member update with malformed IDs",
			"component", "gateway",
			"error", err,
		)
		return
	}
	g.eventBus.Publish(
		MemberUpdateEventType,
		event.NewEvent(MemberUpdateEventType, MemberUpdateEvent{
			GuildId:  guildId,
			MemberId: memberId,
			Roles:    roles,
		}),
	)
}

// AddMemberRole grants a role to a guild member
func (g *Gateway) AddMemberRole(guildId, memberId, roleId uint64) error {
	return g.session.GuildMemberRoleAdd(
		formatSnowflake(guildId),
		formatSnowflake(memberId),
		formatSnowflake(roleId),
	)
}

// RemoveMemberRole revokes a role from a guild member
func (g *Gateway) RemoveMemberRole(guildId, memberId, roleId uint64) error {
	return g.session.GuildMemberRoleRemove(
		formatSnowflake(guildId),
		formatSnowflake(memberId),
		formatSnowflake(roleId),
	)
}

// Member fetches a single member's current role snapshot. Returns
// ErrMemberNotFound when the user isn't a member of the guild.
func (g *Gateway) Member(guildId, memberId uint64) (*Member, error) {
	member, err := g.session.GuildMember(
		formatSnowflake(guildId),
		formatSnowflake(memberId),
	)
	if err != nil {
		var restErr *discordgo.RESTError
		if errors.As(err, &restErr) && restErr.Message != nil &&
			restErr.Message.Code == discordgo.ErrCodeUnknownMember {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	_, tmpMemberId, roles, err := parseMember(member)
	if err != nil {
		return nil, err
	}
	return &Member{Id: tmpMemberId, Roles: roles}, nil
}

// Members returns up to limit members of a guild with an ID greater than
// afterId, for paginating over the full member list
func (g *Gateway) Members(
	guildId uint64,
	afterId uint64,
	limit int,
) ([]Member, error) {
	after := ""
	if afterId > 0 {
		after = formatSnowflake(afterId)
	}
	members, err := g.session.GuildMembers(
		formatSnowflake(guildId),
		after,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	ret := make([]Member, 0, len(members))
	for _, member := range members {
		_, memberId, roles, err := parseMember(member)
		if err != nil {
			g.logger.Warn(
				"skipping member with malformed IDs",
				"component", "gateway",
				"error", err,
			)
			continue
		}
		ret = append(ret, Member{Id: memberId, Roles: roles})
	}
	return ret, nil
}

func parseMember(
	member *discordgo.Member,
) (guildId, memberId uint64, roles []uint64, err error) {
	if member == nil || member.User == nil {
		return 0, 0, nil, errors.New("member payload missing user")
	}
	// GuildID is empty on some REST member payloads, only require it when set
	if member.GuildID != "" {
		guildId, err = parseSnowflake(member.GuildID)
		if err != nil {
			return 0, 0, nil, err
		}
	}
	memberId, err = parseSnowflake(member.User.ID)
	if err != nil {
		return 0, 0, nil, err
	}
	roles = make([]uint64, 0, len(member.Roles))
	for _, role := range member.Roles {
		roleId, err := parseSnowflake(role)
		if err != nil {
			return 0, 0, nil, err
		}
		roles = append(roles, roleId)
	}
	return guildId, memberId, roles, nil
}

func parseSnowflake(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed snowflake %q: %w", s, err)
	}
	return id, nil
}

func formatSnowflake(id uint64) string {
	return strconv.FormatUint(id, 10)
}
