package rbac

import (
	"sort"
	"sync"
)

type Policy struct {
	mu        sync.RWMutex
	rolePerms map[string]map[Permission]struct{}
}

func NewPolicy(roles []Role) *Policy {
	p := &Policy{rolePerms: map[string]map[Permission]struct{}{}}
	p.Replace(roles)
	return p
}

func (p *Policy) Allowed(role string, perm Permission) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	perms, ok := p.rolePerms[role]
	if !ok {
		return false
	}
	_, ok = perms[perm]
	return ok
}

func (p *Policy) PermissionsForRole(role string) []Permission {
	p.mu.RLock()
	defer p.mu.RUnlock()
	perms, ok := p.rolePerms[role]
	if !ok {
		return nil
	}
	out := make([]Permission, 0, len(perms))
	for perm := range perms {
		out = append(out, perm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (p *Policy) Replace(roles []Role) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rp := make(map[string]map[Permission]struct{})
	for _, r := range roles {
		m := make(map[Permission]struct{})
		for _, perm := range r.Permissions {
			m[perm] = struct{}{}
		}
		rp[r.Name] = m
	}
	p.rolePerms = rp
}
