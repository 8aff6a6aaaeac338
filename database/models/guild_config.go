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

package models

import (
	"github.com/gompeibot/gompei/database/types"
)

// GuildConfig holds the per-guild verification configuration. A row is
// created with both fields unset the first time the bot observes a guild
// and is only ever mutated by administrator commands.
type GuildConfig struct {
	ID               uint           `gorm:"primarykey"`
	GuildID          uint64         `gorm:"uniqueIndex"`
	VerificationRole *uint64        // nil means verification is disabled
	RequiredRoles    types.RoleList `gorm:"type:text"`
}

func (GuildConfig) TableName() string {
	return "guild_config"
}

// VerificationEnabled returns whether a verification role is configured
func (g *GuildConfig) VerificationEnabled() bool {
	return g != nil && g.VerificationRole != nil
}

// RequirementsMet returns whether the given role set satisfies the required
// role list. An empty (or unset) list means the verified role is granted
// unconditionally; otherwise holding any one required role is sufficient.
func (g *GuildConfig) RequirementsMet(currentRoles []uint64) bool {
	if g == nil || len(g.RequiredRoles) == 0 {
		return true
	}
	for _, roleId := range currentRoles {
		if g.RequiredRoles.Contains(roleId) {
			return true
		}
	}
	return false
}
