// Package permissions implements sinkron's role-based access model:
// collections and documents each carry a Permissions object naming which
// roles may read/create/update/delete. Grounded on
// original_source/sinkron/src/permissions.rs.
package permissions

import "encoding/json"

// Role is a tagged union: Any, User{id}, or Group{id}.
type Role struct {
	Kind string `json:"kind"` // "any" | "user" | "group"
	Id   string `json:"id,omitempty"`
}

func Any() Role                { return Role{Kind: "any"} }
func ForUser(id string) Role   { return Role{Kind: "user", Id: id} }
func ForGroup(id string) Role  { return Role{Kind: "group", Id: id} }

// Permissions lists the roles permitted for each action. A nil slice
// denies the action to everyone.
type Permissions struct {
	Read   []Role `json:"read"`
	Create []Role `json:"create"`
	Update []Role `json:"update"`
	Delete []Role `json:"delete"`
}

// Action names the permission being checked.
type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Empty denies every action. Used as the safe default when permissions
// JSON is absent or fails to parse.
func Empty() Permissions {
	return Permissions{}
}

// ParseOrEmpty decodes a permissions JSON blob, falling back to Empty()
// on any malformed input rather than erroring — a deny-all default is
// always safe, matching the original's parse_or_empty.
func ParseOrEmpty(raw []byte) Permissions {
	if len(raw) == 0 {
		return Empty()
	}
	var p Permissions
	if err := json.Unmarshal(raw, &p); err != nil {
		return Empty()
	}
	return p
}

func (p Permissions) rolesFor(action Action) []Role {
	switch action {
	case ActionRead:
		return p.Read
	case ActionCreate:
		return p.Create
	case ActionUpdate:
		return p.Update
	case ActionDelete:
		return p.Delete
	default:
		return nil
	}
}

// User is the identity resolved for a connected client: its id and the
// groups it belongs to (as returned by GroupsAPI).
type User struct {
	Id     string   `json:"id"`
	Groups []string `json:"groups"`
}

func (u User) inGroup(id string) bool {
	for _, g := range u.Groups {
		if g == id {
			return true
		}
	}
	return false
}

// Check reports whether user may perform action under these permissions.
func (p Permissions) Check(user User, action Action) bool {
	for _, role := range p.rolesFor(action) {
		switch role.Kind {
		case "any":
			return true
		case "user":
			if role.Id == user.Id {
				return true
			}
		case "group":
			if user.inGroup(role.Id) {
				return true
			}
		}
	}
	return false
}

// String reserializes Permissions to its canonical JSON form, the way the
// original's Display impl does for logging and storage round-trips.
func (p Permissions) String() string {
	b, err := json.Marshal(p)
	if err != nil {
		return "{}"
	}
	return string(b)
}
