// Copyright 2026 The Lectern Authors
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

package rbac

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// RoleFile is the on-disk form of role permission overrides:
//
//	version: v1
//	roles:
//	  student:
//	    - course:view
//	    - course:enroll
//	    - analytics:view
//
// Each listed role's set replaces its declared defaults; unlisted roles keep them.
type RoleFile struct {
	Version string                `yaml:"version"`
	Roles   map[Role][]Permission `yaml:"roles"`
}

// RoleFileVersion is the only supported RoleFile version.
const RoleFileVersion = "v1"

// ParseOverrides decodes a RoleFile into the overrides form accepted by
// NewTable. Unknown keys, roles and permissions are rejected.
func ParseOverrides(r io.Reader) (map[Role][]Permission, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f RoleFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return map[Role][]Permission{}, nil
		}
		return nil, fmt.Errorf("failed to decode role file: %w", err)
	}
	if f.Version != "" && f.Version != RoleFileVersion {
		return nil, fmt.Errorf("unsupported role file version %q", f.Version)
	}

	for role, perms := range f.Roles {
		if !role.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
		}
		for _, p := range perms {
			if !p.Valid() {
				return nil, fmt.Errorf("%w: %q for role %q", ErrUnknownPermission, p, role)
			}
		}
	}
	if f.Roles == nil {
		return map[Role][]Permission{}, nil
	}
	return f.Roles, nil
}

// LoadOverridesFile reads and parses the RoleFile at path.
func LoadOverridesFile(path string) (map[Role][]Permission, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open role file: %w", err)
	}
	defer f.Close()
	return ParseOverrides(f)
}
