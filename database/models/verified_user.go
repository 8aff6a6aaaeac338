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

// VerifiedUser records one completed verification reported by the external
// identity system. Rows are written exactly once per home ID by the feed
// poller and are immutable afterwards; the member binding is first-write-wins.
type VerifiedUser struct {
	ID        uint   `gorm:"primarykey"`
	HomeID    string `gorm:"uniqueIndex;size:128"`
	DiscordID uint64 `gorm:"index"`
}

func (VerifiedUser) TableName() string {
	return "verified_user"
}
