// ABOUTME: Tests for the session manager lifecycle
// ABOUTME: Covers cross-channel touch, CAS retry, revocation and sweep

package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/nexus-gateway/internal/apperr"
	"github.com/2389/nexus-gateway/internal/store"
)

func newTestManager(t *testing.T) (*Manager, *store.MockStore) {
	t.Helper()
	s := store.NewMockStore()
	return NewManager(s, time.Hour, nil), s
}

func strptr(v string) *string { return &v }

func TestManager_CreateAndGet(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	sess, err := m.Create(ctx, strptr("alice"), strptr("acme"), "httpapi", map[string]any{"locale": "en"})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, int64(0), sess.Version)

	got, err := m.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, "alice", *got.UserID)
	assert.Equal(t, []string{"httpapi"}, got.Channels)
}

func TestManager_Anonymous(t *testing.T) {
	m, _ := newTestManager(t)

	sess, err := m.Anonymous(context.Background(), "tools")
	require.NoError(t, err)
	assert.Nil(t, sess.UserID)
	assert.Nil(t, sess.TenantID)
}

func TestManager_TouchAddsChannel(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	sess, err := m.Create(ctx, strptr("alice"), nil, "httpapi", nil)
	require.NoError(t, err)

	touched, err := m.Touch(ctx, sess.ID, "command")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"httpapi", "command"}, touched.Channels)
	assert.Greater(t, touched.Version, sess.Version)

	// Touching with a known channel does not duplicate it
	again, err := m.Touch(ctx, sess.ID, "command")
	require.NoError(t, err)
	assert.Len(t, again.Channels, 2)
}

func TestManager_TouchConcurrent(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	sess, err := m.Create(ctx, strptr("alice"), nil, "httpapi", nil)
	require.NoError(t, err)

	channels := []string{"command", "tools", "httpapi", "command", "tools"}
	var wg sync.WaitGroup
	errs := make([]error, len(channels))
	for i, ch := range channels {
		wg.Add(1)
		go func(i int, ch string) {
			defer wg.Done()
			_, errs[i] = m.Touch(ctx, sess.ID, ch)
		}(i, ch)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}

	got, err := m.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"httpapi", "command", "tools"}, got.Channels)
}

func TestManager_GetExpired(t *testing.T) {
	s := store.NewMockStore()
	m := NewManager(s, -time.Minute, nil) // already expired on creation
	ctx := context.Background()

	sess, err := m.Create(ctx, strptr("alice"), nil, "httpapi", nil)
	require.NoError(t, err)

	_, err = m.Get(ctx, sess.ID)
	assert.Equal(t, apperr.KindAuthentication, apperr.KindOf(err))
}

func TestManager_Revoke(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	sess, err := m.Create(ctx, strptr("alice"), nil, "httpapi", nil)
	require.NoError(t, err)

	require.NoError(t, m.Revoke(ctx, sess.ID))

	_, err = m.Get(ctx, sess.ID)
	assert.Equal(t, apperr.KindAuthentication, apperr.KindOf(err))

	// Terminal: touch fails too
	_, err = m.Touch(ctx, sess.ID, "command")
	assert.Equal(t, apperr.KindAuthentication, apperr.KindOf(err))
}

func TestManager_RevokeUnknown(t *testing.T) {
	m, _ := newTestManager(t)

	err := m.Revoke(context.Background(), "ghost")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestManager_Sweep(t *testing.T) {
	s := store.NewMockStore()
	short := NewManager(s, time.Millisecond, nil)
	ctx := context.Background()

	sess, err := short.Create(ctx, strptr("alice"), nil, "httpapi", nil)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	count, err := short.Sweep(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, store.SessionExpired, got.Status)
}
