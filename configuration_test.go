package rtcdc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigurationWithDefaultsEnablesBothFamilies(t *testing.T) {
	cfg := Configuration{}.withDefaults()
	assert.True(t, cfg.ICEUseIPv4)
	assert.True(t, cfg.ICEUseIPv6)
}

func TestConfigurationWithDefaultsPreservesExplicitChoice(t *testing.T) {
	cfg := Configuration{ICEUseIPv4: true, ICEUseIPv6: false}.withDefaults()
	assert.True(t, cfg.ICEUseIPv4)
	assert.False(t, cfg.ICEUseIPv6)
}

func TestConfigurationValidateRejectsBadPortRange(t *testing.T) {
	cfg := Configuration{ICEPortRangeMin: 5000, ICEPortRangeMax: 4000, ICEUseIPv4: true}
	err := cfg.validate()
	require.Error(t, err)
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, KindInvalidState, rerr.Kind)
}

func TestConfigurationValidateRejectsNoAddressFamily(t *testing.T) {
	cfg := Configuration{}
	err := cfg.validate()
	require.Error(t, err)
}

func TestConfigurationICEServersClassifiesTURNAsRelay(t *testing.T) {
	cfg := Configuration{
		ICEServers: []ICEServer{
			{URLs: []string{"stun:stun.example.com:3478"}},
			{URLs: []string{"turn:turn.example.com:3478"}, Username: "u", Credential: "p"},
		},
	}
	servers := cfg.iceServers()
	require.Len(t, servers, 2)
	assert.False(t, servers[0].Relay)
	assert.True(t, servers[1].Relay)
	assert.Equal(t, "u", servers[1].Username)
	assert.Equal(t, "p", servers[1].Password)
}

func TestConfigurationICEServersRelayPolicyForcesRelayOnAllServers(t *testing.T) {
	cfg := Configuration{
		ICETransportPolicy: ICETransportPolicyRelay,
		ICEServers: []ICEServer{
			{URLs: []string{"stun:stun.example.com:3478"}},
		},
	}
	servers := cfg.iceServers()
	require.Len(t, servers, 1)
	assert.True(t, servers[0].Relay)
}

func TestGenerateCertificateProducesFingerprint(t *testing.T) {
	cert, err := GenerateCertificate()
	require.NoError(t, err)
	assert.NotEmpty(t, cert.Fingerprint())
}
