package game

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_GetOrCreateSingleConstruction(t *testing.T) {
	r := NewRegistry(time.Minute, testLogger())
	store := &fakeStore{}
	hub := &fakeHub{}

	var built int32
	build := func() *Session {
		atomic.AddInt32(&built, 1)
		return newTestSession(store, hub)
	}

	var wg sync.WaitGroup
	sessions := make([]*Session, 8)
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessions[i], _ = r.GetOrCreate(7, build)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&built))
	for _, s := range sessions[1:] {
		assert.Same(t, sessions[0], s)
	}
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_GraceWindowInterruptsUnjoinedMatch(t *testing.T) {
	store := &fakeStore{}
	hub := &fakeHub{}
	r := NewRegistry(20*time.Millisecond, testLogger())

	s, created := r.GetOrCreate(7, func() *Session { return newTestSession(store, hub) })
	require.True(t, created)

	require.Eventually(t, func() bool {
		return s.State() == StateInterrupted && r.Len() == 0
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{GroupName(7)}, hub.closedTopics)
}

func TestRegistry_CancelGuardKeepsSessionAlive(t *testing.T) {
	store := &fakeStore{}
	r := NewRegistry(20*time.Millisecond, testLogger())

	s, _ := r.GetOrCreate(7, func() *Session { return newTestSession(store, &fakeHub{}) })
	r.CancelGuard(7)

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, StateAwaitingPlayers, s.State())
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_AbandonedSessionIsEvicted(t *testing.T) {
	r := NewRegistry(time.Minute, testLogger())
	ctx := context.Background()

	s, _ := r.GetOrCreate(7, func() *Session {
		return NewSession(testMatch(), &fakeStore{}, &fakeHub{}, testLogger(), nil, r.Remove)
	})

	// Both sides connect (cancelling the guard), then walk away unready.
	s.HandleConnect(0, "alice")
	s.HandleConnect(1, "bob")
	r.CancelGuard(7)

	require.NoError(t, s.HandleDisconnect(ctx, 0))
	require.NoError(t, s.HandleDisconnect(ctx, 1))

	require.Eventually(t, func() bool { return r.Len() == 0 },
		time.Second, 5*time.Millisecond)
}

func TestRegistry_RemoveIsIdempotent(t *testing.T) {
	r := NewRegistry(time.Minute, testLogger())
	r.GetOrCreate(7, func() *Session { return newTestSession(&fakeStore{}, &fakeHub{}) })

	r.Remove(7)
	r.Remove(7)
	assert.Equal(t, 0, r.Len())
	assert.Nil(t, r.Get(7))
}

func TestRegistry_SeparateMatchesGetSeparateSessions(t *testing.T) {
	r := NewRegistry(time.Minute, testLogger())

	a, _ := r.GetOrCreate(1, func() *Session { return newTestSession(&fakeStore{}, &fakeHub{}) })
	b, _ := r.GetOrCreate(2, func() *Session { return newTestSession(&fakeStore{}, &fakeHub{}) })

	assert.NotSame(t, a, b)
	assert.Equal(t, 2, r.Len())
}
