package tlscontext

import (
	"sort"

	"github.com/laggyluke/bud/internal/config"
)

// Table is the ordered set of (servername -> TlsContext) built at startup
// (spec section 4.3, C3). Lookup is case-insensitive binary search by
// full-length equality; there is no wildcard matching at this layer. The
// default context is stored separately and returned on every miss.
type Table struct {
	entries []*TlsContext // sorted by normalized ServerName
	keys    []string      // parallel normalized-name slice, kept for sort.Search
	def     *TlsContext
}

// NewTable sorts contexts by normalized servername and pairs them with
// def, the already-built default context. contexts must all have a
// non-empty ServerName; def's ServerName is ignored.
func NewTable(def *TlsContext, contexts []*TlsContext) *Table {
	sorted := append([]*TlsContext(nil), contexts...)
	sort.Slice(sorted, func(i, j int) bool {
		return config.NormalizeName(sorted[i].ServerName) < config.NormalizeName(sorted[j].ServerName)
	})
	keys := make([]string, len(sorted))
	for i, c := range sorted {
		keys[i] = config.NormalizeName(c.ServerName)
	}
	return &Table{entries: sorted, keys: keys, def: def}
}

// Default returns the implicit index-0 context, built from frontend
// defaults (see SPEC_FULL.md's resolution of the first Open Question).
func (t *Table) Default() *TlsContext { return t.def }

// Lookup performs a case-insensitive binary search by full-length
// equality. Total: it always returns a context, falling back to Default()
// on any miss (spec section 8's totality invariant).
func (t *Table) Lookup(servername string) *TlsContext {
	if servername == "" {
		return t.def
	}
	key := config.NormalizeName(servername)
	i := sort.SearchStrings(t.keys, key)
	if i < len(t.keys) && t.keys[i] == key {
		return t.entries[i]
	}
	return t.def
}

// Len reports the number of explicit (non-default) contexts.
func (t *Table) Len() int { return len(t.entries) }

// Each calls fn once for every explicit (non-default) context, in sorted
// order. Used to install per-context handshake hooks once at worker
// startup (spec section 4.7).
func (t *Table) Each(fn func(*TlsContext)) {
	for _, c := range t.entries {
		fn(c)
	}
}

// LookupExact is Lookup but also reports whether servername matched an
// explicit context, as opposed to falling back to the default. The SNI
// dispatcher needs this distinction to know whether a miss should trigger
// an async directory lookup (spec section 4.4).
func (t *Table) LookupExact(servername string) (*TlsContext, bool) {
	if servername == "" {
		return t.def, false
	}
	key := config.NormalizeName(servername)
	i := sort.SearchStrings(t.keys, key)
	if i < len(t.keys) && t.keys[i] == key {
		return t.entries[i], true
	}
	return t.def, false
}
