package browser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTouchUpdatesMetadata(t *testing.T) {
	m := NewSessionManager(DefaultConfig())
	old := time.Now().Add(-time.Hour)
	m.sessions["s1"] = &sessionRecord{meta: Session{ID: "s1", Status: "active", CreatedAt: old, LastActive: old}}

	m.Touch("s1", "searching")
	sess, ok := m.GetSession("s1")
	require.True(t, ok)
	assert.Equal(t, "searching", sess.Status)
	assert.True(t, sess.LastActive.After(old))
	assert.Equal(t, old, sess.CreatedAt)

	stamp := sess.LastActive
	m.Touch("s1", "")
	sess, _ = m.GetSession("s1")
	assert.Equal(t, "searching", sess.Status, "empty status keeps the previous one")
	assert.False(t, sess.LastActive.Before(stamp))

	m.Touch("missing", "searching")
	_, ok = m.GetSession("missing")
	assert.False(t, ok)
}
