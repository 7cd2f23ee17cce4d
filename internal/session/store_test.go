package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore runs the behavior every Store implementation must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	c, err := s.Credentials(ctx)
	require.NoError(t, err)
	assert.False(t, c.Valid(), "fresh store must not be authenticated")

	u, err := s.User(ctx)
	require.NoError(t, err)
	assert.Nil(t, u)

	wid, err := s.WorkspaceID(ctx)
	require.NoError(t, err)
	assert.Empty(t, wid)

	require.NoError(t, s.SetTokens(ctx, Credentials{AccessToken: "a1", RefreshToken: "r1"}))
	require.NoError(t, s.SetUser(ctx, Identity{
		ID:         "u1",
		Name:       "Sam",
		Workspaces: []Membership{{ID: "w1", Role: "owner"}, {ID: "w2", Role: "member"}},
	}))
	require.NoError(t, s.SetWorkspaceID(ctx, "w2"))

	c, err = s.Credentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, Credentials{AccessToken: "a1", RefreshToken: "r1"}, c)

	u, err = s.User(ctx)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "u1", u.ID)
	m, ok := u.Membership("w2")
	assert.True(t, ok)
	assert.Equal(t, "member", m.Role)

	wid, err = s.WorkspaceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "w2", wid)

	require.NoError(t, s.Clear(ctx))

	c, err = s.Credentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, Credentials{}, c)
	u, err = s.User(ctx)
	require.NoError(t, err)
	assert.Nil(t, u)
	wid, err = s.WorkspaceID(ctx)
	require.NoError(t, err)
	assert.Empty(t, wid)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStore_UserIsCopied(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	in := Identity{ID: "u1", Workspaces: []Membership{{ID: "w1", Role: "owner"}}}
	require.NoError(t, s.SetUser(ctx, in))
	in.Workspaces[0].Role = "member"

	u, err := s.User(ctx)
	require.NoError(t, err)
	assert.Equal(t, "owner", u.Workspaces[0].Role)
}

func TestMemoryBackend_SeparatesSessions(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()

	s1, err := b.Open("one")
	require.NoError(t, err)
	s2, err := b.Open("two")
	require.NoError(t, err)

	require.NoError(t, s1.SetTokens(ctx, Credentials{AccessToken: "a", RefreshToken: "r"}))
	c, err := s2.Credentials(ctx)
	require.NoError(t, err)
	assert.False(t, c.Valid())

	again, err := b.Open("one")
	require.NoError(t, err)
	c, err = again.Credentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", c.AccessToken)

	_, err = b.Open("")
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	b := NewRedisBackend(rdb, "test:session:", time.Hour)
	s, err := b.Open("sid-1")
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestRedisStore_WritesSlideTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	s := NewRedisStore(rdb, "test:session:ttl", time.Minute)
	ctx := context.Background()
	require.NoError(t, s.SetTokens(ctx, Credentials{AccessToken: "a", RefreshToken: "r"}))
	assert.Equal(t, time.Minute, mr.TTL("test:session:ttl"))

	mr.FastForward(2 * time.Minute)
	c, err := s.Credentials(ctx)
	require.NoError(t, err)
	assert.False(t, c.Valid(), "expired session must read as logged out")
}

func TestRedisStore_ClearIsSingleKeyDelete(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	s := NewRedisStore(rdb, "test:session:clear", time.Hour)
	ctx := context.Background()
	require.NoError(t, s.SetTokens(ctx, Credentials{AccessToken: "a", RefreshToken: "r"}))
	require.NoError(t, s.SetWorkspaceID(ctx, "w1"))
	require.NoError(t, s.Clear(ctx))
	assert.False(t, mr.Exists("test:session:clear"))
}

func TestRedisStore_EmptyTokensRemoveBoth(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	s := NewRedisStore(rdb, "test:session:empty", time.Hour)
	ctx := context.Background()
	require.NoError(t, s.SetTokens(ctx, Credentials{AccessToken: "a", RefreshToken: "r"}))
	require.NoError(t, s.SetTokens(ctx, Credentials{RefreshToken: "dangling"}))

	c, err := s.Credentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, Credentials{}, c)
}
