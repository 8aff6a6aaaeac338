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

// Package feed ingests completed verifications from the external identity
// system. The feed is a JSON object at a well-known path mapping external
// home ID tokens to Discord member IDs, re-read in full on every tick.
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gompeibot/gompei/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const DefaultPollInterval = 5 * time.Second

// VerifiedEventType is emitted for each newly ingested verification
const VerifiedEventType event.EventType = "feed.verified"

type VerifiedEvent struct {
	HomeId    string
	DiscordId uint64
}

// Recorder is the storage contract needed by feed ingestion
type Recorder interface {
	RecordVerification(homeId string, discordId uint64) (bool, error)
}

type PollerConfig struct {
	PromRegistry prometheus.Registerer
	Logger       *slog.Logger
	EventBus     *event.EventBus
	Recorder     Recorder
	Path         string
	Interval     time.Duration
}

// Poller merges externally reported verification completions into durable
// storage on a fixed interval. It only establishes verification status;
// role granting is driven separately by the reconciler.
type Poller struct {
	config  PollerConfig
	logger  *slog.Logger
	metrics struct {
		ticks      prometheus.Counter
		tickErrors prometheus.Counter
		inserted   prometheus.Counter
	}
	ticker *time.Ticker
	stopCh chan struct{}
	mu     sync.Mutex
}

func NewPoller(cfg PollerConfig) *Poller {
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultPollInterval
	}
	p := &Poller{
		config: cfg,
		logger: cfg.Logger,
	}
	promRegistry := cfg.PromRegistry
	if promRegistry == nil {
		promRegistry = prometheus.NewRegistry()
	}
	p.metrics.ticks = promauto.With(promRegistry).NewCounter(
		prometheus.CounterOpts{
			Name: "gompei_feed_ticks_total",
			Help: "total feed poll ticks",
		},
	)
	p.metrics.tickErrors = promauto.With(promRegistry).NewCounter(
		prometheus.CounterOpts{
			Name: "gompei_feed_tick_errors_total",
			Help: "total feed poll ticks skipped due to errors",
		},
	)
	p.metrics.inserted = promauto.With(promRegistry).NewCounter(
		prometheus.CounterOpts{
			Name: "gompei_feed_verifications_total",
			Help: "total new verifications ingested from the feed",
		},
	)
	return p
}

// Start begins the poll loop. The first poll happens immediately rather
// than one interval in. A stopped poller can be started again.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		return nil
	}
	ticker := time.NewTicker(p.config.Interval)
	p.ticker = ticker
	// Fresh channel per run, since Stop closes the previous one
	stopCh := make(chan struct{})
	p.stopCh = stopCh
	p.mu.Unlock()
	go func(t *time.Ticker, stop <-chan struct{}) {
		defer t.Stop()
		p.tick()
		for {
			select {
			case <-t.C:
				p.tick()
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}(ticker, stopCh)
	return nil
}

// Stop halts the poll loop. The current tick, if any, runs to completion.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ticker != nil {
		p.ticker.Stop()
		close(p.stopCh)
		p.ticker = nil
	}
}

func (p *Poller) tick() {
	p.metrics.ticks.Inc()
	inserted, err := p.Poll()
	if err != nil {
		// Feed read failures are logged and the tick skipped, never fatal
		p.metrics.tickErrors.Inc()
		p.logger.Warn(
			"skipping feed poll tick",
			"component", "feed",
			"error", err,
		)
		return
	}
	if inserted > 0 {
		p.logger.Info(
			"ingested new verifications",
			"component", "feed",
			"count", inserted,
		)
	}
}

// Poll reads the feed once and records any completions not already present.
// Returns the number of new records inserted. Pairs already recorded are
// skipped by the store's uniqueness guarantee, so a partially applied poll
// can't double-insert on retry.
func (p *Poller) Poll() (int, error) {
	data, err := os.ReadFile(p.config.Path)
	if err != nil {
		return 0, fmt.Errorf("failed to read feed: %w", err)
	}
	verifications, err := parseFeed(data)
	if err != nil {
		return 0, fmt.Errorf("failed to parse feed: %w", err)
	}
	var inserted int
	for homeId, discordId := range verifications {
		tmpInserted, err := p.config.Recorder.RecordVerification(
			homeId,
			discordId,
		)
		if err != nil {
			return inserted, fmt.Errorf(
				"failed to record verification: %w",
				err,
			)
		}
		if !tmpInserted {
			continue
		}
		inserted++
		p.metrics.inserted.Inc()
		if p.config.EventBus != nil {
			p.config.EventBus.Publish(
				VerifiedEventType,
				event.NewEvent(VerifiedEventType, VerifiedEvent{
					HomeId:    homeId,
					DiscordId: discordId,
				}),
			)
		}
	}
	return inserted, nil
}

// parseFeed decodes the feed object. Member IDs appear as JSON numbers or
// strings depending on the producer; both are accepted here, at the edge.
func parseFeed(data []byte) (map[string]uint64, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	// Snowflakes exceed float64 precision
	decoder.UseNumber()
	var raw map[string]any
	if err := decoder.Decode(&raw); err != nil {
		return nil, err
	}
	ret := make(map[string]uint64, len(raw))
	for homeId, val := range raw {
		var idStr string
		switch v := val.(type) {
		case json.Number:
			idStr = v.String()
		case string:
			idStr = v
		default:
			return nil, fmt.Errorf(
				"unexpected member ID type %T for token %q",
				val,
				homeId,
			)
		}
		discordId, err := strconv.ParseUint(idStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf(
				"malformed member ID %q for token %q",
				idStr,
				homeId,
			)
		}
		ret[homeId] = discordId
	}
	return ret, nil
}
