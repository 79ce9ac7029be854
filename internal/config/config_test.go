package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBasicLines(t *testing.T) {
	s := New()
	err := s.Parse(strings.NewReader(`
# a comment
Name = relay1

ConnectOn = 655
`))
	require.NoError(t, err)

	v, ok := s.First("name")
	require.True(t, ok)
	assert.Equal(t, "relay1", v)
}

func TestRepeatableKeyOrder(t *testing.T) {
	s := New()
	err := s.Parse(strings.NewReader("ConnectTo = a\nConnectTo = b\nConnectTo = c\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, s.All("connectto"))
}

func TestCaseInsensitiveKeyCaseSensitiveValue(t *testing.T) {
	s := New()
	err := s.Parse(strings.NewReader("Name = MixedCase\n"))
	require.NoError(t, err)
	v, ok := s.First("NAME")
	require.True(t, ok)
	assert.Equal(t, "MixedCase", v)
}

func TestVerbatimBlockPassthrough(t *testing.T) {
	s := New()
	err := s.Parse(strings.NewReader(`PublicKey = unused
-----BEGIN RSA PUBLIC KEY-----
abc123
def456
-----END RSA PUBLIC KEY-----
Port = 655
`))
	require.NoError(t, err)
	blob, ok := s.First("publickey.block")
	require.True(t, ok)
	assert.Equal(t, "abc123\ndef456\n", blob)

	port, ok := s.First("port")
	require.True(t, ok)
	assert.Equal(t, "655", port)
}

func TestUnterminatedBlockIsError(t *testing.T) {
	s := New()
	err := s.Parse(strings.NewReader("Key = v\n-----BEGIN X-----\nabc\n"))
	assert.Error(t, err)
}

func TestMalformedLineIsError(t *testing.T) {
	s := New()
	err := s.Parse(strings.NewReader("this is not a key value line\n"))
	assert.Error(t, err)
}

func TestBoolCoercion(t *testing.T) {
	s := New()
	require.NoError(t, s.Parse(strings.NewReader("Hostnames = yes\n")))
	v, err := s.Bool("hostnames", false)
	require.NoError(t, err)
	assert.True(t, v)

	_, err = s.Bool("missing", true)
	require.NoError(t, err)
}

func TestPeriodCoercion(t *testing.T) {
	cases := map[string]int64{
		"30":  30,
		"30s": 30,
		"5m":  300,
		"2h":  7200,
		"1d":  86400,
		"1W":  7 * 86400,
	}
	for in, want := range cases {
		got, err := parsePeriod(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestChoiceCoercion(t *testing.T) {
	s := New()
	require.NoError(t, s.Parse(strings.NewReader("Mode = Switch\n")))
	v, err := s.Choice("mode", modeChoices, int(ModeRouter))
	require.NoError(t, err)
	assert.Equal(t, int(ModeSwitch), v)
}

func TestMergeOverridePriority(t *testing.T) {
	base := New()
	require.NoError(t, base.Parse(strings.NewReader("Name = base\nConnectTo = base-peer\n")))
	override := New()
	require.NoError(t, override.Parse(strings.NewReader("Name = override\n")))

	merged := base.Merge(override)
	v, ok := merged.First("name")
	require.True(t, ok)
	assert.Equal(t, "override", v, "override value must win")

	peer, ok := merged.First("connectto")
	require.True(t, ok)
	assert.Equal(t, "base-peer", peer, "keys only present in base still surface")
}

func TestLoadDaemonDefaults(t *testing.T) {
	s := New()
	require.NoError(t, s.Parse(strings.NewReader("Name = relay1\n")))
	d, err := LoadDaemon(s)
	require.NoError(t, err)
	assert.Equal(t, "relay1", d.Name)
	assert.Equal(t, ModeRouter, d.Mode)
	assert.Equal(t, AddressFamilyAny, d.AddressFamily)
}

func TestLoadDaemonMissingNameIsError(t *testing.T) {
	s := New()
	_, err := LoadDaemon(s)
	assert.Error(t, err)
}
