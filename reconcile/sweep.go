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
	"fmt"

	"golang.org/x/sync/errgroup"
)

// SweepGuild reconciles every member of a guild. Members are fetched in
// snowflake-ordered pages and reconciled with bounded concurrency. A page
// fetch failure aborts the sweep; per-member mutation failures do not.
func (r *Reconciler) SweepGuild(ctx context.Context, guildId uint64) error {
	r.metrics.sweeps.Inc()
	var swept int
	var afterId uint64
	for {
		members, err := r.config.Gateway.Members(
			guildId,
			afterId,
			r.config.SweepPageSize,
		)
		if err != nil {
			return fmt.Errorf("fetch members after %d: %w", afterId, err)
		}
		if len(members) == 0 {
			break
		}
		g, _ := errgroup.WithContext(ctx)
		g.SetLimit(r.config.SweepWorkers)
		for _, member := range members {
			g.Go(func() error {
				r.ReconcileMember(guildId, member.Id, member.Roles)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		swept += len(members)
		afterId = members[len(members)-1].Id
		if len(members) < r.config.SweepPageSize {
			break
		}
	}
	r.logger.Info(
		"guild sweep complete",
		"component", "reconcile",
		"guild", guildId,
		"members", swept,
	)
	return nil
}
