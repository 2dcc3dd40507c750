package rbac

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/platinummonkey/authsvc/pkg/auth"
)

// CachedStore keeps resolved roles in an expiring LRU in front of a RoleResolver
type CachedStore struct {
	next  RoleResolver
	cache *lru.LRU[string, *auth.Role]
}

// NewCachedStore creates a cache holding up to size roles for ttl
func NewCachedStore(next RoleResolver, size int, ttl time.Duration) *CachedStore {
	if size < 1 {
		size = 16
	}
	return &CachedStore{
		next:  next,
		cache: lru.NewLRU[string, *auth.Role](size, nil, ttl),
	}
}

// RoleByID retrieves a role by id
func (c *CachedStore) RoleByID(ctx context.Context, id string) (*auth.Role, error) {
	if role, ok := c.cache.Get("id:" + id); ok {
		return role, nil
	}
	role, err := c.next.RoleByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.add(role)
	return role, nil
}

// RoleByName retrieves a role by name
func (c *CachedStore) RoleByName(ctx context.Context, name auth.RoleName) (*auth.Role, error) {
	if role, ok := c.cache.Get("name:" + string(name)); ok {
		return role, nil
	}
	role, err := c.next.RoleByName(ctx, name)
	if err != nil {
		return nil, err
	}
	c.add(role)
	return role, nil
}

// Purge drops every cached role
func (c *CachedStore) Purge() {
	c.cache.Purge()
}

func (c *CachedStore) add(role *auth.Role) {
	c.cache.Add("id:"+role.ID, role)
	c.cache.Add("name:"+string(role.Name), role)
}
