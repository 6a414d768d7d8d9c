package rbac

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy is the on-disk form of a role -> permissions table:
//
//	roles:
//	  teacher: ["quiz:create", "quiz:edit_own"]
//	  grader:  ["attempt:grade", "attempt:view-all"]
type Policy struct {
	Roles map[string][]string `yaml:"roles"`
}

// LoadPolicy reads a YAML policy and overlays it on the defaults. Roles named
// in the file replace the default entry for that role; other roles are kept.
func LoadPolicy(path string) (map[string][]string, error) {
	out := make(map[string][]string, len(RolePermissions))
	for role, perms := range RolePermissions {
		out[role] = append([]string(nil), perms...)
	}
	if path == "" {
		return out, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rbac: read policy: %w", err)
	}
	var p Policy
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("rbac: parse policy %s: %w", path, err)
	}
	for role, perms := range p.Roles {
		out[role] = perms
	}
	return out, nil
}
