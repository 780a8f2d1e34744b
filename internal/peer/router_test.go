package peer

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func routedPool(t *testing.T) *Pool {
	t.Helper()

	p1 := testPeerConfig()
	p1.ID = "p1"
	p1.RouteRegex = "^49"
	p1.RouteRE = regexp.MustCompile("^49")

	p2 := testPeerConfig()
	p2.ID = "p2"
	p2.Default = true

	return poolOf(t, p1, p2)
}

func TestRouteByRegexThenDefault(t *testing.T) {
	pool := routedPool(t)
	pool.Get("p1").setState(StateBound)
	pool.Get("p2").setState(StateBound)
	r := NewRouter(pool)

	got := r.Route("4911")
	require.NotNil(t, got)
	assert.Equal(t, "p1", got.ID())

	got = r.Route("3342012856")
	require.NotNil(t, got)
	assert.Equal(t, "p2", got.ID())
}

func TestRouteSkipsUnboundRegexPeer(t *testing.T) {
	pool := routedPool(t)
	pool.Get("p2").setState(StateBound)
	r := NewRouter(pool)

	got := r.Route("4911")
	require.NotNil(t, got, "default peer should pick up traffic for an unbound regex peer")
	assert.Equal(t, "p2", got.ID())
}

func TestRouteReturnsNilWhenNothingBound(t *testing.T) {
	pool := routedPool(t)
	r := NewRouter(pool)
	assert.Nil(t, r.Route("4911"))
}

func TestRouteFirstMatchWinsInConfigOrder(t *testing.T) {
	p1 := testPeerConfig()
	p1.ID = "p1"
	p1.RouteRE = regexp.MustCompile("^49")

	p2 := testPeerConfig()
	p2.ID = "p2"
	p2.RouteRE = regexp.MustCompile("^4") // also matches, configured later

	pool := poolOf(t, p1, p2)
	pool.Get("p1").setState(StateBound)
	pool.Get("p2").setState(StateBound)

	got := NewRouter(pool).Route("4911")
	require.NotNil(t, got)
	assert.Equal(t, "p1", got.ID())
}

func TestRoutePeerWithoutRegexCanOnlyBeDefault(t *testing.T) {
	p1 := testPeerConfig()
	p1.ID = "p1" // no regex, not default

	pool := poolOf(t, p1)
	pool.Get("p1").setState(StateBound)

	assert.Nil(t, NewRouter(pool).Route("12345"))
}
