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

package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gompeibot/gompei/database"
	"github.com/gompeibot/gompei/event"
	"github.com/gompeibot/gompei/feed"
	"github.com/gompeibot/gompei/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roleMutation struct {
	guildId  uint64
	memberId uint64
	roleId   uint64
	add      bool
}

// fakeGateway records role mutations and serves canned member pages
type fakeGateway struct {
	mu        sync.Mutex
	mutations []roleMutation
	members   map[uint64][]gateway.Member
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		members: make(map[uint64][]gateway.Member),
	}
}

func (f *fakeGateway) AddMemberRole(guildId, memberId, roleId uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutations = append(
		f.mutations,
		roleMutation{guildId, memberId, roleId, true},
	)
	return nil
}

func (f *fakeGateway) RemoveMemberRole(guildId, memberId, roleId uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutations = append(
		f.mutations,
		roleMutation{guildId, memberId, roleId, false},
	)
	return nil
}

func (f *fakeGateway) Member(guildId, memberId uint64) (*gateway.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, member := range f.members[guildId] {
		if member.Id == memberId {
			return &member, nil
		}
	}
	return nil, gateway.ErrMemberNotFound
}

func (f *fakeGateway) Members(
	guildId uint64,
	afterId uint64,
	limit int,
) ([]gateway.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var page []gateway.Member
	for _, member := range f.members[guildId] {
		if member.Id <= afterId {
			continue
		}
		page = append(page, member)
		if len(page) == limit {
			break
		}
	}
	return page, nil
}

func (f *fakeGateway) recorded() []roleMutation {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]roleMutation, len(f.mutations))
	copy(out, f.mutations)
	return out
}

type reconcilerTest struct {
	db         *database.Database
	eventBus   *event.EventBus
	gw         *fakeGateway
	reconciler *Reconciler
}

func newReconcilerTest(t *testing.T) *reconcilerTest {
	t.Helper()
	db, err := database.New(&database.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	eventBus := event.NewEventBus(nil, nil)
	gw := newFakeGateway()
	r := NewReconciler(ReconcilerConfig{
		EventBus: eventBus,
		Database: db,
		Gateway:  gw,
	})
	require.NoError(t, r.Start(context.Background()))
	t.Cleanup(func() {
		r.Stop()
		eventBus.Stop()
		db.Close() //nolint:errcheck
	})
	return &reconcilerTest{
		db:         db,
		eventBus:   eventBus,
		gw:         gw,
		reconciler: r,
	}
}

// seedGuild configures a guild with a verification role and one required
// role
func (rt *reconcilerTest) seedGuild(
	t *testing.T,
	guildId uint64,
) {
	t.Helper()
	_, err := rt.db.EnsureGuildConfig(guildId)
	require.NoError(t, err)
	roleId := testVerifiedRoleId
	require.NoError(t, rt.db.SetVerificationRole(guildId, &roleId))
	_, err = rt.db.AddRequiredRole(guildId, testRequiredRoleA)
	require.NoError(t, err)
}

func (rt *reconcilerTest) verify(
	t *testing.T,
	homeId string,
	discordId uint64,
) {
	t.Helper()
	inserted, err := rt.db.RecordVerification(homeId, discordId)
	require.NoError(t, err)
	require.True(t, inserted)
}

func TestReconcileMemberGrantsRole(t *testing.T) {
	rt := newReconcilerTest(t)
	rt.seedGuild(t, 1)
	rt.verify(t, "alice", 42)

	decision := rt.reconciler.ReconcileMember(1, 42, []uint64{testRequiredRoleA})
	assert.Equal(t, DecisionAddRole, decision)
	assert.Equal(
		t,
		[]roleMutation{{1, 42, testVerifiedRoleId, true}},
		rt.gw.recorded(),
	)
}

func TestReconcileMemberRevokesRole(t *testing.T) {
	rt := newReconcilerTest(t)
	rt.seedGuild(t, 1)
	rt.verify(t, "alice", 42)

	// Member holds the verified role but lost the required role
	decision := rt.reconciler.ReconcileMember(1, 42, []uint64{testVerifiedRoleId})
	assert.Equal(t, DecisionRemoveRole, decision)

	// The follow-up update event carries the post-removal role set
	decision = rt.reconciler.ReconcileMember(1, 42, []uint64{})
	assert.Equal(t, DecisionNone, decision)
	assert.Equal(
		t,
		[]roleMutation{{1, 42, testVerifiedRoleId, false}},
		rt.gw.recorded(),
	)
}

func TestReconcileMemberIgnoresUnverified(t *testing.T) {
	rt := newReconcilerTest(t)
	rt.seedGuild(t, 1)

	decision := rt.reconciler.ReconcileMember(1, 42, []uint64{testRequiredRoleA})
	assert.Equal(t, DecisionNone, decision)
	assert.Empty(t, rt.gw.recorded())
}

func TestReconcileMemberUnknownGuild(t *testing.T) {
	rt := newReconcilerTest(t)
	rt.verify(t, "alice", 42)

	decision := rt.reconciler.ReconcileMember(9, 42, []uint64{testRequiredRoleA})
	assert.Equal(t, DecisionNone, decision)
	assert.Empty(t, rt.gw.recorded())
}

func TestMemberUpdateEventTriggersReconcile(t *testing.T) {
	rt := newReconcilerTest(t)
	rt.seedGuild(t, 1)
	rt.verify(t, "alice", 42)

	rt.eventBus.Publish(
		gateway.MemberUpdateEventType,
		event.NewEvent(
			gateway.MemberUpdateEventType,
			gateway.MemberUpdateEvent{
				GuildId:  1,
				MemberId: 42,
				Roles:    []uint64{testRequiredRoleA},
			},
		),
	)
	require.Eventually(
		t,
		func() bool { return len(rt.gw.recorded()) == 1 },
		2*time.Second,
		10*time.Millisecond,
	)
	assert.Equal(
		t,
		[]roleMutation{{1, 42, testVerifiedRoleId, true}},
		rt.gw.recorded(),
	)
}

func TestGuildJoinEventBootstrapsConfig(t *testing.T) {
	rt := newReconcilerTest(t)

	rt.eventBus.Publish(
		gateway.GuildJoinEventType,
		event.NewEvent(
			gateway.GuildJoinEventType,
			gateway.GuildJoinEvent{GuildId: 7},
		),
	)
	require.Eventually(
		t,
		func() bool {
			guildIds, err := rt.db.GuildIds()
			return err == nil && len(guildIds) == 1 && guildIds[0] == 7
		},
		2*time.Second,
		10*time.Millisecond,
	)
}

func TestVerifiedEventReconcilesAcrossGuilds(t *testing.T) {
	rt := newReconcilerTest(t)
	rt.seedGuild(t, 1)
	rt.seedGuild(t, 2)
	// Member is present in guild 1 only
	rt.gw.members[1] = []gateway.Member{
		{Id: 42, Roles: []uint64{testRequiredRoleA}},
	}
	rt.verify(t, "alice", 42)

	rt.eventBus.Publish(
		feed.VerifiedEventType,
		event.NewEvent(
			feed.VerifiedEventType,
			feed.VerifiedEvent{HomeId: "alice", DiscordId: 42},
		),
	)
	require.Eventually(
		t,
		func() bool { return len(rt.gw.recorded()) == 1 },
		2*time.Second,
		10*time.Millisecond,
	)
	assert.Equal(
		t,
		[]roleMutation{{1, 42, testVerifiedRoleId, true}},
		rt.gw.recorded(),
	)
}
