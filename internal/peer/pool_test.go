package peer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teleforge/smppgw/internal/config"
)

func poolOf(t *testing.T, peers ...config.Peer) *Pool {
	t.Helper()
	return NewPool(peers, &captureHandler{}, nil, 0)
}

func TestPoolPreservesConfigOrderAndLookup(t *testing.T) {
	a, b := testPeerConfig(), testPeerConfig()
	a.ID, b.ID = "alpha", "beta"
	p := poolOf(t, a, b)

	require.Len(t, p.Sessions(), 2)
	assert.Equal(t, "alpha", p.Sessions()[0].ID())
	assert.Equal(t, "beta", p.Sessions()[1].ID())
	assert.Same(t, p.Sessions()[1], p.Get("beta"))
	assert.Nil(t, p.Get("missing"))
}

func TestWaitForAnyBoundReturnsImmediately(t *testing.T) {
	p := poolOf(t, testPeerConfig())
	p.Sessions()[0].setState(StateBound)

	start := time.Now()
	ok := p.WaitForAnyBound(context.Background(), 15*time.Second)
	assert.True(t, ok)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWaitForAnyBoundTimesOut(t *testing.T) {
	p := poolOf(t, testPeerConfig())

	start := time.Now()
	ok := p.WaitForAnyBound(context.Background(), 300*time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
}

func TestWaitForAnyBoundSeesLateBind(t *testing.T) {
	p := poolOf(t, testPeerConfig())
	go func() {
		time.Sleep(150 * time.Millisecond)
		p.Sessions()[0].setState(StateBound)
	}()

	assert.True(t, p.WaitForAnyBound(context.Background(), 2*time.Second))
}

func TestBoundStates(t *testing.T) {
	a, b := testPeerConfig(), testPeerConfig()
	a.ID, b.ID = "alpha", "beta"
	p := poolOf(t, a, b)
	p.Get("beta").setState(StateBound)

	assert.Equal(t, map[string]bool{"alpha": false, "beta": true}, p.BoundStates())
}
