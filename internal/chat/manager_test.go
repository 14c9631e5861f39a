package chat

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/graphchat/internal/metrics"
)

func TestManager_Lifecycle(t *testing.T) {
	m := metrics.NewCollector("test")
	mgr := NewManager(newStore(t), Options{}, m, nil)

	a := mgr.Create("alice", &fakeConn{})
	b := mgr.Create("bob", &fakeConn{})
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, 2, mgr.Count())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ActiveSessions))

	got, ok := mgr.Get(a.ID())
	require.True(t, ok)
	assert.Equal(t, "alice", got.UserID())

	mgr.End(a.ID())
	mgr.End(a.ID())
	_, ok = mgr.Get(a.ID())
	assert.False(t, ok)
	assert.Equal(t, 1, mgr.Count())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveSessions))
}
