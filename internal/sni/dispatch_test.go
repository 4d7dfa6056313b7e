package sni

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laggyluke/bud/internal/httpfetch"
	"github.com/laggyluke/bud/internal/tlscontext"
)

func selfSignedPEM(t *testing.T, servername string) (certPEM, keyPEM []byte) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: servername},
		DNSNames:     []string{servername},
		NotBefore:    time.Unix(0, 0),
		NotAfter:     time.Unix(0, 0).Add(100 * 365 * 24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM
}

func TestGetConfigForClientReturnsNilWhenServerNameEmpty(t *testing.T) {
	certPEM, keyPEM := selfSignedPEM(t, "default.example.com")
	def, err := tlscontext.BuildFromPEM(tlscontext.Source{}, certPEM, keyPEM, nil)
	require.NoError(t, err)
	table := tlscontext.NewTable(def, nil)

	d := New(table, nil, nil)
	cfg, err := d.GetConfigForClient(&tls.ClientHelloInfo{ServerName: ""})
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestGetConfigForClientReturnsExactTableMatch(t *testing.T) {
	defCert, defKey := selfSignedPEM(t, "default.example.com")
	def, err := tlscontext.BuildFromPEM(tlscontext.Source{}, defCert, defKey, nil)
	require.NoError(t, err)

	aCert, aKey := selfSignedPEM(t, "a.example.com")
	a, err := tlscontext.BuildFromPEM(tlscontext.Source{ServerName: "a.example.com"}, aCert, aKey, nil)
	require.NoError(t, err)

	table := tlscontext.NewTable(def, []*tlscontext.TlsContext{a})
	d := New(table, nil, nil)

	cfg, err := d.GetConfigForClient(&tls.ClientHelloInfo{ServerName: "a.example.com"})
	require.NoError(t, err)
	assert.Same(t, a.TLSConfig, cfg)
}

func TestGetConfigForClientFallsBackToDefaultWhenNoPoolConfigured(t *testing.T) {
	defCert, defKey := selfSignedPEM(t, "default.example.com")
	def, err := tlscontext.BuildFromPEM(tlscontext.Source{}, defCert, defKey, nil)
	require.NoError(t, err)
	table := tlscontext.NewTable(def, nil)

	d := New(table, nil, nil)
	cfg, err := d.GetConfigForClient(&tls.ClientHelloInfo{ServerName: "unknown.example.com"})
	require.NoError(t, err)
	assert.Same(t, def.TLSConfig, cfg)
}

func TestGetConfigForClientResolvesRemoteOnMiss(t *testing.T) {
	remoteCert, remoteKey := selfSignedPEM(t, "remote.example.com")
	env := struct {
		Cert string `json:"cert"`
		Key  string `json:"key"`
	}{Cert: string(remoteCert), Key: string(remoteKey)}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "remote.example.com"))
		json.NewEncoder(w).Encode(env)
	}))
	defer srv.Close()

	defCert, defKey := selfSignedPEM(t, "default.example.com")
	def, err := tlscontext.BuildFromPEM(tlscontext.Source{}, defCert, defKey, nil)
	require.NoError(t, err)
	table := tlscontext.NewTable(def, nil)

	pool := httpfetch.New(strings.TrimPrefix(srv.URL, "http://"), "/bud/sni/%s", nil)
	defer pool.Close()

	d := New(table, pool, nil)
	cfg, err := d.GetConfigForClient(&tls.ClientHelloInfo{ServerName: "remote.example.com"})
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.NotSame(t, def.TLSConfig, cfg)
}

func TestGetConfigForClientFallsBackToDefaultOn404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	defCert, defKey := selfSignedPEM(t, "default.example.com")
	def, err := tlscontext.BuildFromPEM(tlscontext.Source{}, defCert, defKey, nil)
	require.NoError(t, err)
	table := tlscontext.NewTable(def, nil)

	pool := httpfetch.New(strings.TrimPrefix(srv.URL, "http://"), "/bud/sni/%s", nil)
	defer pool.Close()

	d := New(table, pool, nil)
	cfg, err := d.GetConfigForClient(&tls.ClientHelloInfo{ServerName: "missing.example.com"})
	require.NoError(t, err)
	assert.Same(t, def.TLSConfig, cfg)
}

