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

package database

import (
	"errors"
	"fmt"

	"github.com/gompeibot/gompei/database/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GuildConfig gets the config for a guild. Returns ErrGuildConfigNotFound
// when the guild has never been bootstrapped.
func (d *Database) GuildConfig(guildId uint64) (*models.GuildConfig, error) {
	ret := &models.GuildConfig{}
	result := d.db.Where("guild_id = ?", guildId).First(ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrGuildConfigNotFound
		}
		return nil, result.Error
	}
	return ret, nil
}

// GuildIds returns the IDs of all guilds known to the store
func (d *Database) GuildIds() ([]uint64, error) {
	var ret []uint64
	result := d.db.Model(&models.GuildConfig{}).
		Order("guild_id").
		Pluck("guild_id", &ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// EnsureGuildConfig inserts a default config row for a guild if one doesn't
// already exist. Safe to call repeatedly and from concurrent callers; the
// unique index on guild_id prevents duplicate rows.
func (d *Database) EnsureGuildConfig(
	guildId uint64,
) (*models.GuildConfig, error) {
	ret := &models.GuildConfig{GuildID: guildId}
	result := d.db.
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(ret)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to ensure guild config: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// Row already existed, fetch it
		return d.GuildConfig(guildId)
	}
	return ret, nil
}

// SetVerificationRole sets (or clears, with nil) the verification role for
// a guild, bootstrapping the config row if needed
func (d *Database) SetVerificationRole(guildId uint64, roleId *uint64) error {
	return d.db.Transaction(func(txn *gorm.DB) error {
		cfg := &models.GuildConfig{}
		result := txn.FirstOrCreate(cfg, models.GuildConfig{GuildID: guildId})
		if result.Error != nil {
			return result.Error
		}
		updates := map[string]any{"verification_role": roleId}
		if err := txn.Model(cfg).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update verification role: %w", err)
		}
		return nil
	})
}

// AddRequiredRole appends a role to a guild's required role list. Returns
// whether the role was added; adding an already-present role is a no-op.
func (d *Database) AddRequiredRole(
	guildId uint64,
	roleId uint64,
) (bool, error) {
	var added bool
	err := d.db.Transaction(func(txn *gorm.DB) error {
		cfg := &models.GuildConfig{}
		result := txn.FirstOrCreate(cfg, models.GuildConfig{GuildID: guildId})
		if result.Error != nil {
			return result.Error
		}
		newRoles, ok := cfg.RequiredRoles.Add(roleId)
		if !ok {
			return nil
		}
		updates := map[string]any{"required_roles": newRoles}
		if err := txn.Model(cfg).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update required roles: %w", err)
		}
		added = true
		return nil
	})
	return added, err
}

// RemoveRequiredRole removes a role from a guild's required role list.
// Returns whether the role was present and removed.
func (d *Database) RemoveRequiredRole(
	guildId uint64,
	roleId uint64,
) (bool, error) {
	var removed bool
	err := d.db.Transaction(func(txn *gorm.DB) error {
		cfg := &models.GuildConfig{}
		result := txn.FirstOrCreate(cfg, models.GuildConfig{GuildID: guildId})
		if result.Error != nil {
			return result.Error
		}
		newRoles, ok := cfg.RequiredRoles.Remove(roleId)
		if !ok {
			return nil
		}
		updates := map[string]any{"required_roles": newRoles}
		if err := txn.Model(cfg).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update required roles: %w", err)
		}
		removed = true
		return nil
	})
	return removed, err
}
