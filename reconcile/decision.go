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
	"slices"

	"github.com/gompeibot/gompei/database/models"
)

// Decision is the role mutation required to bring a member's verified role
// in line with the guild's configuration
type Decision int

const (
	DecisionNone Decision = iota
	DecisionAddRole
	DecisionRemoveRole
)

func (d Decision) String() string {
	switch d {
	case DecisionNone:
		return "none"
	case DecisionAddRole:
		return "add"
	case DecisionRemoveRole:
		return "remove"
	default:
		return "unknown"
	}
}

// Evaluate decides the verified-role mutation for a member given the
// guild's config, the member's verification status, and the member's
// current role set. It is pure and deterministic, and applying the
// returned decision exactly once yields a state that re-evaluates to
// DecisionNone, so re-running on every event cannot oscillate.
//
// A nil config is treated the same as a row with both fields unset.
// Unverified members are never touched, whatever roles they hold.
func Evaluate(
	cfg *models.GuildConfig,
	verified bool,
	currentRoles []uint64,
) Decision {
	if !cfg.VerificationEnabled() {
		return DecisionNone
	}
	if !verified {
		return DecisionNone
	}
	hasVerifiedRole := slices.Contains(currentRoles, *cfg.VerificationRole)
	requirementsMet := cfg.RequirementsMet(currentRoles)
	switch {
	case hasVerifiedRole && !requirementsMet:
		return DecisionRemoveRole
	case !hasVerifiedRole && requirementsMet:
		return DecisionAddRole
	default:
		return DecisionNone
	}
}
