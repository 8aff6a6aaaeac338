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
	"fmt"

	"github.com/gompeibot/gompei/database/models"
	"gorm.io/gorm/clause"
)

// IsVerified returns whether a member has a completed verification on record
func (d *Database) IsVerified(discordId uint64) (bool, error) {
	var count int64
	result := d.db.Model(&models.VerifiedUser{}).
		Where("discord_id = ?", discordId).
		Count(&count)
	if result.Error != nil {
		return false, result.Error
	}
	return count > 0, nil
}

// RecordVerification inserts a verification record if one doesn't already
// exist for the home ID. Returns whether a new record was inserted; a
// duplicate call is a no-op, not an error. The check-and-insert is atomic
// via the unique index on home_id.
func (d *Database) RecordVerification(
	homeId string,
	discordId uint64,
) (bool, error) {
	record := &models.VerifiedUser{
		HomeID:    homeId,
		DiscordID: discordId,
	}
	result := d.db.
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(record)
	if result.Error != nil {
		return false, fmt.Errorf(
			"failed to record verification: %w",
			result.Error,
		)
	}
	return result.RowsAffected > 0, nil
}
