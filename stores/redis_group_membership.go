package stores

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/oarkflow/permit"
)

// RedisGroupMembershipStore keeps direct user->group membership in Redis sets
// (key: usergroups:{tenantID}:{userID}). It backs the hot ListUserGroups path
// when the SQL directory is too far away; nesting edges and the rest of the
// directory stay in SQL.
type RedisGroupMembershipStore struct {
	client *redis.Client
	keyFmt string // format string, e.g. "usergroups:%s:%s"
}

func NewRedisGroupMembershipStore(client *redis.Client) *RedisGroupMembershipStore {
	return &RedisGroupMembershipStore{client: client, keyFmt: "usergroups:%s:%s"}
}

func (r *RedisGroupMembershipStore) key(tenantID, userID string) string {
	return fmt.Sprintf(r.keyFmt, tenantID, userID)
}

func (r *RedisGroupMembershipStore) AddUserGroup(ctx context.Context, tenantID, userID, groupID string) error {
	return r.client.SAdd(ctx, r.key(tenantID, userID), groupID).Err()
}

func (r *RedisGroupMembershipStore) RemoveUserGroup(ctx context.Context, tenantID, userID, groupID string) error {
	return r.client.SRem(ctx, r.key(tenantID, userID), groupID).Err()
}

func (r *RedisGroupMembershipStore) ListUserGroups(ctx context.Context, tenantID, userID string) ([]string, error) {
	res, err := r.client.SMembers(ctx, r.key(tenantID, userID)).Result()
	if err != nil {
		return nil, infra(err)
	}
	return res, nil
}

// CachedDirectoryStore overlays the Redis membership sets on a base
// DirectoryStore. ListUserGroups prefers Redis and falls back to the base
// when the set is empty; every other call passes through.
type CachedDirectoryStore struct {
	permit.DirectoryStore
	Membership *RedisGroupMembershipStore
}

func NewCachedDirectoryStore(base permit.DirectoryStore, membership *RedisGroupMembershipStore) *CachedDirectoryStore {
	return &CachedDirectoryStore{DirectoryStore: base, Membership: membership}
}

func (c *CachedDirectoryStore) ListUserGroups(ctx context.Context, tenantID, userID string) ([]string, error) {
	groups, err := c.Membership.ListUserGroups(ctx, tenantID, userID)
	if err == nil && len(groups) > 0 {
		return groups, nil
	}
	return c.DirectoryStore.ListUserGroups(ctx, tenantID, userID)
}
