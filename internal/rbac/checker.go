package rbac

import (
	"context"
	"strings"
)

// Actor is whoever is performing an operation. It is passed explicitly into
// every capability-sensitive call instead of being read from request globals.
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// Anonymous reports whether the actor carries no identity.
func (a Actor) Anonymous() bool { return a.ID == "" }

// Resource identifies what a capability is being checked against.
type Resource struct {
	Kind    string // "quiz" | "question" | "attempt"
	ID      int64
	OwnerID string
}

type Checker struct {
	RolePermissions map[string][]string
}

func NewChecker(rp map[string][]string) *Checker {
	if rp == nil {
		rp = RolePermissions
	}
	return &Checker{RolePermissions: rp}
}

func (c *Checker) Has(role, perm string) bool {
	perms, ok := c.RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == "*" || matchPerm(p, perm) {
			return true
		}
	}
	return false
}

func (c *Checker) Any(role string, perms ...string) bool {
	for _, p := range perms {
		if c.Has(role, p) {
			return true
		}
	}
	return false
}

func (c *Checker) All(role string, perms ...string) bool {
	for _, p := range perms {
		if !c.Has(role, p) {
			return false
		}
	}
	return true
}

// Allowed grants capability when the role holds it outright, or when the
// actor owns the resource and the role holds the "<capability>_own" variant.
func (c *Checker) Allowed(actor Actor, res Resource, capability string) bool {
	if c.Has(actor.Role, capability) {
		return true
	}
	if actor.ID != "" && res.OwnerID != "" && actor.ID == res.OwnerID {
		return c.Has(actor.Role, capability+"_own")
	}
	return false
}

func matchPerm(pattern, perm string) bool {
	if pattern == "*" || pattern == perm {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(perm, strings.TrimSuffix(pattern, "*"))
	}
	return false
}

// ---- actor in context ----

type ctxKey struct{}

var ctxKeyActor = ctxKey{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKeyActor, a)
}

func ActorFromContext(ctx context.Context) Actor {
	if v := ctx.Value(ctxKeyActor); v != nil {
		if a, ok := v.(Actor); ok {
			return a
		}
	}
	return Actor{}
}
