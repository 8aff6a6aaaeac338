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
	"testing"

	"github.com/gompeibot/gompei/database/models"
	"github.com/gompeibot/gompei/database/types"
	"github.com/stretchr/testify/assert"
)

const (
	testVerifiedRoleId uint64 = 100
	testRequiredRoleA  uint64 = 200
	testRequiredRoleB  uint64 = 201
)

func uint64Ptr(v uint64) *uint64 {
	return &v
}

func TestEvaluate(t *testing.T) {
	enabled := &models.GuildConfig{
		GuildID:          1,
		VerificationRole: uint64Ptr(testVerifiedRoleId),
		RequiredRoles:    types.RoleList{testRequiredRoleA, testRequiredRoleB},
	}
	noRequirements := &models.GuildConfig{
		GuildID:          1,
		VerificationRole: uint64Ptr(testVerifiedRoleId),
	}
	disabled := &models.GuildConfig{
		GuildID:       1,
		RequiredRoles: types.RoleList{testRequiredRoleA},
	}
	testDefs := []struct {
		name     string
		cfg      *models.GuildConfig
		verified bool
		roles    []uint64
		expected Decision
	}{
		{
			name:     "verified member gains verified role",
			cfg:      enabled,
			verified: true,
			roles:    []uint64{testRequiredRoleA},
			expected: DecisionAddRole,
		},
		{
			name:     "any required role suffices",
			cfg:      enabled,
			verified: true,
			roles:    []uint64{testRequiredRoleB},
			expected: DecisionAddRole,
		},
		{
			name:     "member losing requirements loses verified role",
			cfg:      enabled,
			verified: true,
			roles:    []uint64{testVerifiedRoleId},
			expected: DecisionRemoveRole,
		},
		{
			name:     "converged member is untouched",
			cfg:      enabled,
			verified: true,
			roles:    []uint64{testVerifiedRoleId, testRequiredRoleA},
			expected: DecisionNone,
		},
		{
			name:     "member with neither role nor requirements",
			cfg:      enabled,
			verified: true,
			roles:    []uint64{},
			expected: DecisionNone,
		},
		{
			name:     "unverified member is never granted",
			cfg:      enabled,
			verified: false,
			roles:    []uint64{testRequiredRoleA},
			expected: DecisionNone,
		},
		{
			name:     "unverified member keeps a manually granted role",
			cfg:      enabled,
			verified: false,
			roles:    []uint64{testVerifiedRoleId},
			expected: DecisionNone,
		},
		{
			name:     "empty requirements admit every verified member",
			cfg:      noRequirements,
			verified: true,
			roles:    []uint64{},
			expected: DecisionAddRole,
		},
		{
			name:     "disabled verification is inert",
			cfg:      disabled,
			verified: true,
			roles:    []uint64{testRequiredRoleA},
			expected: DecisionNone,
		},
		{
			name:     "missing config is inert",
			cfg:      nil,
			verified: true,
			roles:    []uint64{testRequiredRoleA},
			expected: DecisionNone,
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			assert.Equal(
				t,
				testDef.expected,
				Evaluate(testDef.cfg, testDef.verified, testDef.roles),
			)
		})
	}
}

// TestEvaluateConverges checks that applying a decision once always yields
// a role set that evaluates to DecisionNone, so repeated events for the
// same member can't flip the role back and forth
func TestEvaluateConverges(t *testing.T) {
	cfg := &models.GuildConfig{
		GuildID:          1,
		VerificationRole: uint64Ptr(testVerifiedRoleId),
		RequiredRoles:    types.RoleList{testRequiredRoleA},
	}
	roleSets := [][]uint64{
		{},
		{testVerifiedRoleId},
		{testRequiredRoleA},
		{testVerifiedRoleId, testRequiredRoleA},
	}
	for _, verified := range []bool{true, false} {
		for _, roles := range roleSets {
			decision := Evaluate(cfg, verified, roles)
			next := slices.Clone(roles)
			switch decision {
			case DecisionAddRole:
				next = append(next, testVerifiedRoleId)
			case DecisionRemoveRole:
				next = slices.DeleteFunc(next, func(id uint64) bool {
					return id == testVerifiedRoleId
				})
			}
			assert.Equal(
				t,
				DecisionNone,
				Evaluate(cfg, verified, next),
				"roles %v (verified=%v) did not converge",
				roles,
				verified,
			)
		}
	}
}
