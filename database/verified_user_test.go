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

package database_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordVerification(t *testing.T) {
	db := testDatabase(t)

	inserted, err := db.RecordVerification("token-abc", 5000)
	require.NoError(t, err)
	assert.True(t, inserted)

	// Same home ID again is a no-op, not an error
	inserted, err = db.RecordVerification("token-abc", 5000)
	require.NoError(t, err)
	assert.False(t, inserted)

	verified, err := db.IsVerified(5000)
	require.NoError(t, err)
	assert.True(t, verified)

	verified, err = db.IsVerified(6000)
	require.NoError(t, err)
	assert.False(t, verified)
}

func TestRecordVerificationFirstWriteWins(t *testing.T) {
	db := testDatabase(t)

	inserted, err := db.RecordVerification("token-abc", 5000)
	require.NoError(t, err)
	assert.True(t, inserted)

	// The binding is permanent; a conflicting member ID for the same home
	// ID is dropped rather than re-bound
	inserted, err = db.RecordVerification("token-abc", 9999)
	require.NoError(t, err)
	assert.False(t, inserted)

	verified, err := db.IsVerified(9999)
	require.NoError(t, err)
	assert.False(t, verified)
	verified, err = db.IsVerified(5000)
	require.NoError(t, err)
	assert.True(t, verified)
}
