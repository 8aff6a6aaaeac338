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
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSnowflake(t *testing.T) {
	// Snowflakes exceed float64 precision, so they must round-trip exactly
	id, err := parseSnowflake("1012707426107134002")
	require.NoError(t, err)
	assert.Equal(t, uint64(1012707426107134002), id)
	assert.Equal(t, "1012707426107134002", formatSnowflake(id))

	_, err = parseSnowflake("not-a-snowflake")
	assert.Error(t, err)
}

func TestParseMember(t *testing.T) {
	guildId, memberId, roles, err := parseMember(&discordgo.Member{
		GuildID: "1",
		User:    &discordgo.User{ID: "42"},
		Roles:   []string{"100", "200"},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), guildId)
	assert.Equal(t, uint64(42), memberId)
	assert.Equal(t, []uint64{100, 200}, roles)
}

func TestParseMemberNoGuildId(t *testing.T) {
	// REST member payloads often omit the guild ID
	guildId, memberId, roles, err := parseMember(&discordgo.Member{
		User: &discordgo.User{ID: "42"},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), guildId)
	assert.Equal(t, uint64(42), memberId)
	assert.Empty(t, roles)
}

func TestParseMemberMalformed(t *testing.T) {
	_, _, _, err := parseMember(nil)
	assert.Error(t, err)

	_, _, _, err = parseMember(&discordgo.Member{
		GuildID: "1",
		User:    &discordgo.User{ID: "42"},
		Roles:   []string{"bogus"},
	})
	assert.Error(t, err)
}

func TestNewGatewayRequiresToken(t *testing.T) {
	_, err := NewGateway(GatewayConfig{})
	assert.Error(t, err)
}
