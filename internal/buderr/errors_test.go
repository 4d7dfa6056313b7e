package buderr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindConstructorsTagCorrectly(t *testing.T) {
	cases := []struct {
		err  *Error
		kind Kind
	}{
		{Config(nil, "bad field"), KindConfig},
		{Crypto(nil, "bad cert"), KindCrypto},
		{IO(nil, "dial failed"), KindIO},
		{Protocol(nil, "handshake failed"), KindProtocol},
		{Lookup(nil, "404"), KindLookup},
		{Resource(nil, "exhausted"), KindResource},
	}
	for _, c := range cases {
		assert.True(t, Is(c.err, c.kind))
		assert.Equal(t, c.kind, c.err.Kind)
	}
}

func TestFatalOnlyForConfigAndCrypto(t *testing.T) {
	assert.True(t, Config(nil, "x").Fatal())
	assert.True(t, Crypto(nil, "x").Fatal())
	assert.False(t, IO(nil, "x").Fatal())
	assert.False(t, Protocol(nil, "x").Fatal())
	assert.False(t, Lookup(nil, "x").Fatal())
	assert.False(t, Resource(nil, "x").Fatal())
}

func TestIsUnwrapsWrappedCause(t *testing.T) {
	cause := errors.New("boom")
	wrapped := IO(cause, "dialing backend")
	assert.True(t, Is(wrapped, KindIO))
	assert.False(t, Is(wrapped, KindConfig))
	assert.ErrorIs(t, wrapped, cause)
}

func TestSentinelsAreLookupAndProtocol(t *testing.T) {
	assert.True(t, Is(ErrEmpty, KindLookup))
	assert.True(t, Is(ErrRenegAbuse, KindProtocol))
}
