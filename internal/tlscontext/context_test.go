package tlscontext

import (
	"crypto/tls"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFromPEMDerivesOCSPKeyWhenIssuerPresent(t *testing.T) {
	certPEM, keyPEM := generateChain(t, "example.com")

	tc, err := BuildFromPEM(Source{
		ServerName: "example.com",
		NPN:        []string{"h2", "http/1.1"},
		MinVersion: tls.VersionTLS12,
	}, certPEM, keyPEM, nil)
	require.NoError(t, err)

	assert.Equal(t, "example.com", tc.ServerName)
	assert.NotNil(t, tc.Issuer)
	assert.NotEmpty(t, tc.OCSPKey)
	assert.Equal(t, "http://ocsp.example.com", tc.OCSPURL)
	assert.Equal(t, []string{"h2", "http/1.1"}, tc.TLSConfig.NextProtos)
	assert.Equal(t, uint16(tls.VersionTLS12), tc.TLSConfig.MinVersion)

	back, err := DecodeNPN(tc.NPNLine)
	require.NoError(t, err)
	assert.Equal(t, []string{"h2", "http/1.1"}, back)
}

func TestBuildFromPEMWithoutIssuerSkipsStapling(t *testing.T) {
	full, keyPEM := generateChain(t, "solo.example.com")
	leafOnly, err := DecodePEMChain(full)
	require.NoError(t, err)
	require.Len(t, leafOnly, 2)

	// Re-encode only the leaf, dropping the issuer certificate, to
	// exercise the "chain omits issuer" branch of findIssuer.
	leafPEM := pemEncodeOne(t, leafOnly[0].Raw)

	tc, err := BuildFromPEM(Source{ServerName: "solo.example.com"}, leafPEM, keyPEM, nil)
	require.NoError(t, err)
	assert.Nil(t, tc.Issuer)
	assert.Empty(t, tc.OCSPKey)
}
