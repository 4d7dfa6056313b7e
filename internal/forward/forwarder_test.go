package forward

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProxyLineFormatV4(t *testing.T) {
	client := &net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 51234}
	backend := &net.TCPAddr{IP: net.ParseIP("10.0.0.2"), Port: 8080}

	line, err := ProxyLine(client, backend)
	require.NoError(t, err)
	assert.Equal(t, "PROXY TCP4 10.0.0.1 10.0.0.2 51234 8080\r\n", string(line))
}

func TestProxyLineFormatV6(t *testing.T) {
	client := &net.TCPAddr{IP: net.ParseIP("::1"), Port: 1111}
	backend := &net.TCPAddr{IP: net.ParseIP("::2"), Port: 2222}

	line, err := ProxyLine(client, backend)
	require.NoError(t, err)
	assert.Equal(t, "PROXY TCP6 ::1 ::2 1111 2222\r\n", string(line))
}

func TestProxyLineRejectsNilAddresses(t *testing.T) {
	_, err := ProxyLine(nil, &net.TCPAddr{})
	assert.Error(t, err)
}
