package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_RotatesProxies(t *testing.T) {
	m, err := NewManager([]string{"http://p1:8000", "http://p2:8000"}, nil)
	require.NoError(t, err)

	var hosts []string
	for i := 0; i < 3; i++ {
		u, err := m.Proxy(nil)
		require.NoError(t, err)
		hosts = append(hosts, u.Host)
	}
	assert.Equal(t, []string{"p1:8000", "p2:8000", "p1:8000"}, hosts)
}

func TestManager_NoProxies(t *testing.T) {
	m, err := NewManager(nil, []string{"agent/1"})
	require.NoError(t, err)

	u, err := m.Proxy(nil)
	require.NoError(t, err)
	assert.Nil(t, u)
	assert.Equal(t, "agent/1", m.UserAgent())
}

func TestManager_InvalidProxy(t *testing.T) {
	_, err := NewManager([]string{"::bad"}, nil)
	assert.Error(t, err)
}

func TestManager_DefaultUserAgents(t *testing.T) {
	m, err := NewManager(nil, nil)
	require.NoError(t, err)
	assert.Contains(t, defaultUserAgents, m.UserAgent())
}
