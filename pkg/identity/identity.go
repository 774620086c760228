package identity

import "strings"

// Provider resolves a holder address to a display name. Implementations are
// pure lookups: the only failure mode is "not found".
type Provider interface {
	Lookup(address string) (string, bool)
}

// NullProvider knows nobody. It is the default when no identity source is
// configured.
type NullProvider struct{}

func (NullProvider) Lookup(string) (string, bool) {
	return "", false
}

// MemoryProvider serves a fixed address-to-name map, matching first on the
// exact address and then case-insensitively. It is built from already-parsed
// records; parsing identity files is the caller's concern.
type MemoryProvider struct {
	exact  map[string]string
	folded map[string]string
}

func NewMemoryProvider(records map[string]string) *MemoryProvider {
	p := &MemoryProvider{
		exact:  make(map[string]string, len(records)),
		folded: make(map[string]string, len(records)),
	}
	for address, name := range records {
		p.exact[address] = name
		p.folded[strings.ToLower(address)] = name
	}
	return p
}

func (p *MemoryProvider) Lookup(address string) (string, bool) {
	if name, ok := p.exact[address]; ok {
		return name, true
	}
	name, ok := p.folded[strings.ToLower(address)]
	return name, ok
}
