package tlscontext

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laggyluke/bud/internal/config"
)

func writeKeyPair(t *testing.T, dir, name, servername string) (certPath, keyPath string) {
	t.Helper()
	certPEM, keyPEM := generateChain(t, servername)
	certPath = filepath.Join(dir, name+".crt")
	keyPath = filepath.Join(dir, name+".key")
	require.NoError(t, os.WriteFile(certPath, certPEM, 0o600))
	require.NoError(t, os.WriteFile(keyPath, keyPEM, 0o600))
	return certPath, keyPath
}

func TestLoadTableBuildsDefaultAndExplicitContexts(t *testing.T) {
	dir := t.TempDir()
	defCert, defKey := writeKeyPair(t, dir, "default", "default.example.com")
	aCert, aKey := writeKeyPair(t, dir, "a", "a.example.com")

	cfg := &config.Config{
		Frontend: config.FrontendConfig{
			Cert:     defCert,
			Key:      defKey,
			Security: "tls1.2",
			ECDH:     "prime256v1",
		},
		Contexts: []config.ContextConfig{
			{ServerName: "a.example.com", Cert: aCert, Key: aKey},
		},
	}

	table, err := LoadTable(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())

	got, ok := table.LookupExact("a.example.com")
	assert.True(t, ok)
	assert.Equal(t, "a.example.com", got.ServerName)

	assert.Same(t, table.Default(), table.Lookup("unknown.example.com"))
}

func TestLoadTableFailsOnMissingCertFile(t *testing.T) {
	cfg := &config.Config{
		Frontend: config.FrontendConfig{
			Cert: "/no/such/cert.pem",
			Key:  "/no/such/key.pem",
		},
	}
	_, err := LoadTable(cfg, nil)
	require.Error(t, err)
}
