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

package commands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/gompeibot/gompei/database"
	"github.com/gompeibot/gompei/database/models"
	"github.com/gompeibot/gompei/database/types"
)

func roleMention(roleId uint64) string {
	return "<@&" + strconv.FormatUint(roleId, 10) + ">"
}

func roleMentionList(roleIds types.RoleList) string {
	if len(roleIds) == 0 {
		return "None"
	}
	mentions := make([]string, 0, len(roleIds))
	for _, roleId := range roleIds {
		mentions = append(mentions, roleMention(roleId))
	}
	return strings.Join(mentions, ", ")
}

// guildConfig loads a guild's config, treating a missing row as defaults
func (c *Commands) guildConfig(guildId uint64) (*models.GuildConfig, error) {
	cfg, err := c.config.Database.GuildConfig(guildId)
	if err != nil {
		if errors.Is(err, database.ErrGuildConfigNotFound) {
			return &models.GuildConfig{GuildID: guildId}, nil
		}
		return nil, err
	}
	return cfg, nil
}

func (c *Commands) pingResponse(s *discordgo.Session) string {
	return fmt.Sprintf(
		"Pong! %dms",
		s.HeartbeatLatency().Milliseconds(),
	)
}

func (c *Commands) roleResponse(
	guildId uint64,
	roleId uint64,
) (string, bool, error) {
	cfg, err := c.guildConfig(guildId)
	if err != nil {
		return "", false, err
	}
	if cfg.VerificationRole != nil && *cfg.VerificationRole == roleId {
		return "This is already the verified role", false, nil
	}
	if err := c.config.Database.SetVerificationRole(guildId, &roleId); err != nil {
		return "", false, err
	}
	return fmt.Sprintf(
		"Updated verification role to %s",
		roleMention(roleId),
	), true, nil
}

func (c *Commands) disableResponse(guildId uint64) (string, error) {
	cfg, err := c.guildConfig(guildId)
	if err != nil {
		return "", err
	}
	if cfg.VerificationRole == nil {
		return "Verification is already disabled", nil
	}
	if err := c.config.Database.SetVerificationRole(guildId, nil); err != nil {
		return "", err
	}
	return "Disabled verifications.", nil
}

func (c *Commands) requireResponse(
	guildId uint64,
	roleId uint64,
) (string, bool, error) {
	added, err := c.config.Database.AddRequiredRole(guildId, roleId)
	if err != nil {
		return "", false, err
	}
	if !added {
		return fmt.Sprintf(
			"%s is already a required role",
			roleMention(roleId),
		), false, nil
	}
	return fmt.Sprintf(
		"Added %s to the list of required roles",
		roleMention(roleId),
	), true, nil
}

func (c *Commands) removeResponse(
	guildId uint64,
	roleId uint64,
) (string, bool, error) {
	cfg, err := c.guildConfig(guildId)
	if err != nil {
		return "", false, err
	}
	if len(cfg.RequiredRoles) == 0 {
		return "You don't have any required roles", false, nil
	}
	removed, err := c.config.Database.RemoveRequiredRole(guildId, roleId)
	if err != nil {
		return "", false, err
	}
	if !removed {
		return fmt.Sprintf(
			"Couldn't find %s in the list of required roles",
			roleMention(roleId),
		), false, nil
	}
	return fmt.Sprintf(
		"Removed %s from the list of required roles",
		roleMention(roleId),
	), true, nil
}

func (c *Commands) configResponse(guildId uint64) (string, error) {
	cfg, err := c.guildConfig(guildId)
	if err != nil {
		return "", err
	}
	verificationRole := "None"
	if cfg.VerificationRole != nil {
		verificationRole = roleMention(*cfg.VerificationRole)
	}
	return fmt.Sprintf(
		"Verification Role: %s\nRequired Roles: %s",
		verificationRole,
		roleMentionList(cfg.RequiredRoles),
	), nil
}

func (c *Commands) verifyResponse(
	guildId uint64,
	member *discordgo.Member,
) (string, error) {
	memberId, err := strconv.ParseUint(member.User.ID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("malformed member id: %w", err)
	}
	verified, err := c.config.Database.IsVerified(memberId)
	if err != nil {
		return "", err
	}
	if !verified {
		return fmt.Sprintf("You can verify at %s", c.config.VerifyURL), nil
	}
	cfg, err := c.guildConfig(guildId)
	if err != nil {
		return "", err
	}
	if cfg.VerificationRole == nil {
		return "You've already verified but this guild doesn't have a verification role", nil
	}
	verifiedRole := strconv.FormatUint(*cfg.VerificationRole, 10)
	for _, role := range member.Roles {
		if role == verifiedRole {
			return "You're already verified!", nil
		}
	}
	return fmt.Sprintf(
		"You're verified, but need to have one of these roles to verify: %s",
		roleMentionList(cfg.RequiredRoles),
	), nil
}
