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

// Package commands implements the bot's slash command surface: the admin
// commands that manage a guild's verification config and the member-facing
// verify command.
package commands

import (
	"context"
	"io"
	"log/slog"
	"strconv"

	"github.com/bwmarrin/discordgo"
	"github.com/gompeibot/gompei/database"
	"github.com/gompeibot/gompei/event"
	"github.com/gompeibot/gompei/gateway"
)

const DefaultVerifyURL = "https://www.gompeibot.com"

// Sweeper re-checks every member of a guild after a config change
type Sweeper interface {
	SweepGuild(ctx context.Context, guildId uint64) error
}

type CommandsConfig struct {
	Logger    *slog.Logger
	EventBus  *event.EventBus
	Database  *database.Database
	Session   *discordgo.Session
	Sweeper   Sweeper
	VerifyURL string
}

type Commands struct {
	config        CommandsConfig
	logger        *slog.Logger
	ctx           context.Context
	removeHandler func()
	readySubId    event.EventSubscriberId
	// replyFunc delivers command replies; it is only swapped out by tests
	replyFunc func(*discordgo.Session, *discordgo.InteractionCreate, string)
}

func NewCommands(cfg CommandsConfig) *Commands {
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.VerifyURL == "" {
		cfg.VerifyURL = DefaultVerifyURL
	}
	c := &Commands{
		config: cfg,
		logger: cfg.Logger,
	}
	c.replyFunc = c.respond
	return c
}

// Start attaches the interaction handler to the session. Command
// definitions are pushed to the platform once the gateway reports ready,
// since the application identity isn't known before then.
func (c *Commands) Start(ctx context.Context) error {
	c.ctx = ctx
	c.removeHandler = c.config.Session.AddHandler(c.handleInteraction)
	c.readySubId = c.config.EventBus.SubscribeFunc(
		gateway.ReadyEventType,
		func(_ event.Event) {
			c.registerCommands()
		},
	)
	return nil
}

func (c *Commands) Stop() {
	c.config.EventBus.Unsubscribe(gateway.ReadyEventType, c.readySubId)
	if c.removeHandler != nil {
		c.removeHandler()
		c.removeHandler = nil
	}
}

func (c *Commands) registerCommands() {
	appId := c.config.Session.State.User.ID
	for _, command := range commandDefinitions() {
		if _, err := c.config.Session.ApplicationCommandCreate(
			appId,
			"",
			command,
		); err != nil {
			c.logger.Error(
				"failed to register command",
				"component", "commands",
				"command", command.Name,
				"error", err,
			)
		}
	}
}

func (c *Commands) handleInteraction(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	// Commands are guild-only
	if i.GuildID == "" || i.Member == nil {
		return
	}
	guildId, err := strconv.ParseUint(i.GuildID, 10, 64)
	if err != nil {
		c.logger.Error(
			"malformed guild id",
			"component", "commands",
			"guild", i.GuildID,
			"error", err,
		)
		return
	}
	data := i.ApplicationCommandData()

	if data.Name != "verify" &&
		i.Member.Permissions&discordgo.PermissionAdministrator == 0 {
		c.logger.Warn(
			"permission denied",
			"component", "commands",
			"command", data.Name,
			"user", i.Member.User.ID,
		)
		c.replyFunc(s, i, "You don't have permission to use this command")
		return
	}

	var response string
	var sweep bool
	switch data.Name {
	case "ping":
		response = c.pingResponse(s)
	case "role", "require", "remove":
		roleId := optionRoleId(data)
		if roleId == 0 {
			c.replyFunc(s, i, "Could not find the role")
			return
		}
		switch data.Name {
		case "role":
			response, sweep, err = c.roleResponse(guildId, roleId)
		case "require":
			response, sweep, err = c.requireResponse(guildId, roleId)
		case "remove":
			response, sweep, err = c.removeResponse(guildId, roleId)
		}
	case "disable":
		response, err = c.disableResponse(guildId)
	case "config":
		response, err = c.configResponse(guildId)
	case "verify":
		response, err = c.verifyResponse(guildId, i.Member)
	default:
		return
	}
	if err != nil {
		c.logger.Error(
			"command failed",
			"component", "commands",
			"command", data.Name,
			"guild", guildId,
			"error", err,
		)
		response = "Something went wrong, try again later"
	}
	c.replyFunc(s, i, response)
	if sweep {
		// Re-check members in the background so the reply isn't delayed
		// by a large guild
		go func() {
			if err := c.config.Sweeper.SweepGuild(c.ctx, guildId); err != nil {
				c.logger.Warn(
					"post-command sweep failed",
					"component", "commands",
					"guild", guildId,
					"error", err,
				)
			}
		}()
	}
}

// respond sends an ephemeral reply with role mentions suppressed
func (c *Commands) respond(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
	content string,
) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:         content,
			Flags:           discordgo.MessageFlagsEphemeral,
			AllowedMentions: &discordgo.MessageAllowedMentions{},
		},
	})
	if err != nil {
		c.logger.Error(
			"failed to respond to interaction",
			"component", "commands",
			"error", err,
		)
	}
}

// optionRoleId extracts the role option's snowflake. Returns 0 when the
// payload carries no role option or a malformed one; the value is
// platform-supplied, so it is never trusted to be well-formed.
func optionRoleId(data discordgo.ApplicationCommandInteractionData) uint64 {
	for _, option := range data.Options {
		if option.Type == discordgo.ApplicationCommandOptionRole {
			value, ok := option.Value.(string)
			if !ok {
				return 0
			}
			roleId, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return 0
			}
			return roleId
		}
	}
	return 0
}

func commandDefinitions() []*discordgo.ApplicationCommand {
	adminOnly := int64(discordgo.PermissionAdministrator)
	dmDisabled := false
	roleOption := func(name, description string) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionRole,
			Name:        name,
			Description: description,
			Required:    true,
		}
	}
	return []*discordgo.ApplicationCommand{
		{
			Name:                     "ping",
			Description:              "Sends bot latency",
			DefaultMemberPermissions: &adminOnly,
			DMPermission:             &dmDisabled,
		},
		{
			Name:                     "role",
			Description:              "Sets the verification role to give to users",
			DefaultMemberPermissions: &adminOnly,
			DMPermission:             &dmDisabled,
			Options: []*discordgo.ApplicationCommandOption{
				roleOption("role", "Role to grant verified users"),
			},
		},
		{
			Name:                     "disable",
			Description:              "Disables verification updates",
			DefaultMemberPermissions: &adminOnly,
			DMPermission:             &dmDisabled,
		},
		{
			Name:                     "require",
			Description:              "Sets a required role to pick up the verification role",
			DefaultMemberPermissions: &adminOnly,
			DMPermission:             &dmDisabled,
			Options: []*discordgo.ApplicationCommandOption{
				roleOption("role", "Role to require"),
			},
		},
		{
			Name:                     "remove",
			Description:              "Removes a required role",
			DefaultMemberPermissions: &adminOnly,
			DMPermission:             &dmDisabled,
			Options: []*discordgo.ApplicationCommandOption{
				roleOption("role", "Role to remove"),
			},
		},
		{
			Name:                     "config",
			Description:              "Shows the config for the current server",
			DefaultMemberPermissions: &adminOnly,
			DMPermission:             &dmDisabled,
		},
		{
			Name:         "verify",
			Description:  "Sends verification information",
			DMPermission: &dmDisabled,
		},
	}
}
