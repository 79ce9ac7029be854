package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadHostDefaults(t *testing.T) {
	s := New()
	require.NoError(t, s.Parse(strings.NewReader("Address = 203.0.113.9\n")))

	h, err := LoadHost("peer1", s)
	require.NoError(t, err)
	assert.Equal(t, "peer1", h.Name)
	assert.Equal(t, "203.0.113.9", h.Address)
	assert.Equal(t, defaultPort, h.Port)
	assert.True(t, h.PMTUDiscovery)
	assert.Equal(t, 1, h.Weight)
	assert.Empty(t, h.Subnets)
}

func TestLoadHostFullTree(t *testing.T) {
	s := New()
	require.NoError(t, s.Parse(strings.NewReader(`
Address = 203.0.113.9
Port = 656
Subnet = 10.0.0.0/24
Subnet = 10.0.1.0/24
IndirectData = yes
TCPOnly = yes
PMTUDiscovery = no
Weight = 5
PMTU = 1400
`)))

	h, err := LoadHost("peer1", s)
	require.NoError(t, err)
	assert.Equal(t, "656", h.Port)
	assert.Equal(t, []string{"10.0.0.0/24", "10.0.1.0/24"}, h.Subnets)
	assert.True(t, h.IndirectData)
	assert.True(t, h.TCPOnly)
	assert.False(t, h.PMTUDiscovery)
	assert.Equal(t, 5, h.Weight)
	assert.Equal(t, 1400, h.PMTU)
}

func TestLoadHostRejectsEmptyName(t *testing.T) {
	_, err := LoadHost("", New())
	assert.Error(t, err)
}
