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

package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"slices"
)

// RoleList is an ordered set of role IDs stored as a JSON array in a single
// text column. JSON (de)serialization happens only here, at the storage
// edge. A nil RoleList maps to SQL NULL and means "no required roles".
//
//nolint:recvcheck
type RoleList []uint64

func (r RoleList) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	data, err := json.Marshal([]uint64(r))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal role list: %w", err)
	}
	return string(data), nil
}

func (r *RoleList) Scan(val any) error {
	if val == nil {
		*r = nil
		return nil
	}
	var data []byte
	switch v := val.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf(
			"value was not expected type, wanted string, got %T",
			val,
		)
	}
	var tmpRoles []uint64
	if err := json.Unmarshal(data, &tmpRoles); err != nil {
		return fmt.Errorf("failed to unmarshal role list: %w", err)
	}
	*r = RoleList(tmpRoles)
	return nil
}

// Contains returns whether the given role ID is present in the list
func (r RoleList) Contains(roleId uint64) bool {
	return slices.Contains(r, roleId)
}

// Add returns a copy of the list with the given role ID appended, or the
// list unchanged (and false) when the ID is already present
func (r RoleList) Add(roleId uint64) (RoleList, bool) {
	if r.Contains(roleId) {
		return r, false
	}
	ret := make(RoleList, 0, len(r)+1)
	ret = append(ret, r...)
	ret = append(ret, roleId)
	return ret, true
}

// Remove returns a copy of the list with the given role ID removed, or the
// list unchanged (and false) when the ID is not present
func (r RoleList) Remove(roleId uint64) (RoleList, bool) {
	idx := slices.Index(r, roleId)
	if idx < 0 {
		return r, false
	}
	ret := make(RoleList, 0, len(r)-1)
	ret = append(ret, r[:idx]...)
	ret = append(ret, r[idx+1:]...)
	return ret, true
}
