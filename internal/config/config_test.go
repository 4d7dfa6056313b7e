package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laggyluke/bud/internal/buderr"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "bud.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{"frontend":{"cert":"c.pem","key":"k.pem"}}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultWorkers, cfg.Workers)
	assert.Equal(t, DefaultFrontendPort, cfg.Frontend.Port)
	assert.Equal(t, DefaultFrontendHost, cfg.Frontend.Host)
	assert.Equal(t, DefaultSecurity, cfg.Frontend.Security)
	assert.Equal(t, DefaultBackendPort, cfg.Backend.Port)
	require.NotNil(t, cfg.SNI)
	assert.Equal(t, DefaultSNIQuery, cfg.SNI.Query)
	require.NotNil(t, cfg.Frontend.Proxyline)
	assert.False(t, *cfg.Frontend.Proxyline)
	assert.Equal(t, DefaultNPN, cfg.Frontend.NPN)
}

func TestLoadPreservesExplicitValuesOverDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"workers": 4,
		"frontend": {"cert": "c.pem", "key": "k.pem", "port": 8443},
		"backend": {"host": "10.0.0.5", "port": 9090}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 8443, cfg.Frontend.Port)
	assert.Equal(t, "10.0.0.5", cfg.Backend.Host)
	assert.Equal(t, 9090, cfg.Backend.Port)
}

func TestLoadRejectsDuplicateServernames(t *testing.T) {
	path := writeConfig(t, `{
		"frontend": {"cert": "c.pem", "key": "k.pem"},
		"contexts": [
			{"servername": "Example.com", "cert": "a.pem", "key": "a.key"},
			{"servername": "example.com", "cert": "b.pem", "key": "b.key"}
		]
	}`)

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, buderr.Is(err, buderr.KindConfig))
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	path := writeConfig(t, `{not json`)
	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, buderr.Is(err, buderr.KindConfig))
}

func TestLoadRejectsEmptyNPNToken(t *testing.T) {
	path := writeConfig(t, `{
		"frontend": {"cert": "c.pem", "key": "k.pem", "npn": ["h2", ""]}
	}`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestNormalizeNameFoldsCase(t *testing.T) {
	assert.Equal(t, "example.com", NormalizeName("Example.COM"))
}

func TestFrontendConfigRoundTripsCiphersPointer(t *testing.T) {
	raw := `{"ciphers": "AES128-SHA"}`
	var f FrontendConfig
	require.NoError(t, json.Unmarshal([]byte(raw), &f))
	require.NotNil(t, f.Ciphers)
	assert.Equal(t, "AES128-SHA", *f.Ciphers)
}
