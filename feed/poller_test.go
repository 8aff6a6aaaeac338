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

package feed_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gompeibot/gompei/database"
	"github.com/gompeibot/gompei/event"
	"github.com/gompeibot/gompei/feed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPoller(t *testing.T, feedPath string) (*feed.Poller, *database.Database, *event.EventBus) {
	t.Helper()
	db, err := database.New(&database.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	eb := event.NewEventBus(nil, nil)
	t.Cleanup(eb.Stop)
	p := feed.NewPoller(feed.PollerConfig{
		EventBus: eb,
		Recorder: db,
		Path:     feedPath,
	})
	return p, db, eb
}

func writeFeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "verifications.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPollIngestsNewVerifications(t *testing.T) {
	path := writeFeed(t, `{"token-1": 1001, "token-2": "1002"}`)
	p, db, eb := testPoller(t, path)

	_, evtCh := eb.Subscribe(feed.VerifiedEventType)

	inserted, err := p.Poll()
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	for range 2 {
		select {
		case evt := <-evtCh:
			data, ok := evt.Data.(feed.VerifiedEvent)
			require.True(t, ok)
			assert.Contains(t, []uint64{1001, 1002}, data.DiscordId)
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for verified event")
		}
	}

	verified, err := db.IsVerified(1001)
	require.NoError(t, err)
	assert.True(t, verified)
	verified, err = db.IsVerified(1002)
	require.NoError(t, err)
	assert.True(t, verified)
}

func TestPollSkipsKnownTokens(t *testing.T) {
	path := writeFeed(t, `{"token-1": 1001}`)
	p, db, _ := testPoller(t, path)

	_, err := db.RecordVerification("token-1", 1001)
	require.NoError(t, err)

	// Tick completes with zero new insertions
	inserted, err := p.Poll()
	require.NoError(t, err)
	assert.Zero(t, inserted)
}

func TestPollMissingFeed(t *testing.T) {
	p, db, _ := testPoller(t, filepath.Join(t.TempDir(), "missing.json"))

	inserted, err := p.Poll()
	assert.Error(t, err)
	assert.Zero(t, inserted)

	verified, err := db.IsVerified(1001)
	require.NoError(t, err)
	assert.False(t, verified)
}

func TestPollCorruptFeed(t *testing.T) {
	path := writeFeed(t, `{"token-1": `)
	p, _, _ := testPoller(t, path)

	inserted, err := p.Poll()
	assert.Error(t, err)
	assert.Zero(t, inserted)
}

func TestPollLargeSnowflake(t *testing.T) {
	// Snowflakes don't fit in a float64 mantissa; the decoder must not
	// round them
	path := writeFeed(t, `{"token-1": 1012707426107134002}`)
	p, db, _ := testPoller(t, path)

	inserted, err := p.Poll()
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)

	verified, err := db.IsVerified(1012707426107134002)
	require.NoError(t, err)
	assert.True(t, verified)
}

func TestPollerStartStop(t *testing.T) {
	path := writeFeed(t, `{"token-1": 1001}`)
	p, db, eb := testPoller(t, path)

	require.NoError(t, p.Start(context.Background()))
	// Wait for the immediate first tick to land
	require.Eventually(t, func() bool {
		verified, err := db.IsVerified(1001)
		return err == nil && verified
	}, 2*time.Second, 10*time.Millisecond)
	p.Stop()
	eb.Stop()
}

func TestPollerRestart(t *testing.T) {
	path := writeFeed(t, `{"token-1": 1001}`)
	p, db, _ := testPoller(t, path)

	require.NoError(t, p.Start(context.Background()))
	require.Eventually(t, func() bool {
		verified, err := db.IsVerified(1001)
		return err == nil && verified
	}, 2*time.Second, 10*time.Millisecond)
	p.Stop()

	// A stopped poller picks up new feed entries after a restart
	require.NoError(
		t,
		os.WriteFile(path, []byte(`{"token-1": 1001, "token-2": 1002}`), 0o644),
	)
	require.NoError(t, p.Start(context.Background()))
	require.Eventually(t, func() bool {
		verified, err := db.IsVerified(1002)
		return err == nil && verified
	}, 2*time.Second, 10*time.Millisecond)
	p.Stop()
}
