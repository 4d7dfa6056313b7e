package tlscontext

import "github.com/laggyluke/bud/internal/buderr"

// maxExtensionLen is the largest a single TLS extension payload can be
// (2^16 - 1), per spec section 3's npn_line invariant.
const maxExtensionLen = 1<<16 - 1

// EncodeNPN builds the length-prefixed wire form NPN (and, historically,
// the ALPN predecessor) uses to advertise protocols: one octet of length
// followed by the ASCII token, repeated for every entry in protocols.
func EncodeNPN(protocols []string) ([]byte, error) {
	var out []byte
	for _, p := range protocols {
		if len(p) > 255 {
			return nil, buderr.Config(nil, "npn token %q exceeds 255 bytes", p)
		}
		out = append(out, byte(len(p)))
		out = append(out, p...)
	}
	if len(out) > maxExtensionLen {
		return nil, buderr.Config(nil, "npn advertisement of %d bytes exceeds extension limit", len(out))
	}
	return out, nil
}

// DecodeNPN parses the wire form back into the ordered token list. Used by
// tests to assert EncodeNPN/DecodeNPN round-trip, per spec section 8.
func DecodeNPN(line []byte) ([]string, error) {
	var out []string
	for i := 0; i < len(line); {
		n := int(line[i])
		i++
		if i+n > len(line) {
			return nil, buderr.Config(nil, "truncated npn token at offset %d", i-1)
		}
		out = append(out, string(line[i:i+n]))
		i += n
	}
	return out, nil
}
