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
	"github.com/gompeibot/gompei/event"
)

const (
	// ReadyEventType is emitted once the gateway session is established
	ReadyEventType event.EventType = "gateway.ready"
	// GuildJoinEventType is emitted when the bot joins a guild (and once
	// per guild on session resume)
	GuildJoinEventType event.EventType = "gateway.guild_join"
	// MemberJoinEventType is emitted when a member joins a guild
	MemberJoinEventType event.EventType = "gateway.member_join"
	// MemberUpdateEventType is emitted when a member's roles (or other
	// attributes) change
	MemberUpdateEventType event.EventType = "gateway.member_update"
)

type ReadyEvent struct {
	GuildIds []uint64
}

type GuildJoinEvent struct {
	GuildId uint64
}

type MemberJoinEvent struct {
	GuildId  uint64
	MemberId uint64
	// Roles the platform assigned pre-join, if any
	Roles []uint64
}

type MemberUpdateEvent struct {
	GuildId  uint64
	MemberId uint64
	// Roles after the change
	Roles []uint64
}
