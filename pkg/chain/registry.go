package chain

import (
	"fmt"
	"strings"
)

// NetworkInfo is the registry's view of one network.
type NetworkInfo struct {
	EndpointID   uint32
	NativeSymbol string
}

// TokenInfo is the registry's view of one token across networks.
type TokenInfo struct {
	Decimals  int32
	Addresses map[string]string // network -> contract address
}

// StaticRegistry implements Registry from configuration maps.
type StaticRegistry struct {
	networks map[string]NetworkInfo
	tokens   map[string]TokenInfo
}

// NewStaticRegistry builds a registry over the configured networks and
// tokens. Lookups are case-insensitive on identifiers.
func NewStaticRegistry(networks map[string]NetworkInfo, tokens map[string]TokenInfo) *StaticRegistry {
	r := &StaticRegistry{
		networks: make(map[string]NetworkInfo, len(networks)),
		tokens:   make(map[string]TokenInfo, len(tokens)),
	}
	for name, n := range networks {
		r.networks[strings.ToLower(name)] = n
	}
	for symbol, t := range tokens {
		addrs := make(map[string]string, len(t.Addresses))
		for network, addr := range t.Addresses {
			addrs[strings.ToLower(network)] = addr
		}
		t.Addresses = addrs
		r.tokens[strings.ToLower(symbol)] = t
	}
	return r
}

func (r *StaticRegistry) TokenAddress(network, token string) (string, error) {
	t, ok := r.tokens[strings.ToLower(token)]
	if !ok {
		return "", fmt.Errorf("unknown token %s", token)
	}
	addr, ok := t.Addresses[strings.ToLower(network)]
	if !ok {
		return "", fmt.Errorf("token %s not deployed on network %s", token, network)
	}
	return addr, nil
}

func (r *StaticRegistry) TokenDecimals(token string) (int32, error) {
	t, ok := r.tokens[strings.ToLower(token)]
	if !ok {
		return 0, fmt.Errorf("unknown token %s", token)
	}
	return t.Decimals, nil
}

func (r *StaticRegistry) EndpointID(network string) (uint32, error) {
	n, ok := r.networks[strings.ToLower(network)]
	if !ok {
		return 0, fmt.Errorf("unknown network %s", network)
	}
	return n.EndpointID, nil
}

func (r *StaticRegistry) NativeSymbol(network string) (string, error) {
	n, ok := r.networks[strings.ToLower(network)]
	if !ok {
		return "", fmt.Errorf("unknown network %s", network)
	}
	return n.NativeSymbol, nil
}

func (r *StaticRegistry) SupportsRoute(source, destination, token string) bool {
	if _, ok := r.networks[strings.ToLower(source)]; !ok {
		return false
	}
	if _, ok := r.networks[strings.ToLower(destination)]; !ok {
		return false
	}
	t, ok := r.tokens[strings.ToLower(token)]
	if !ok {
		return false
	}
	_, onSource := t.Addresses[strings.ToLower(source)]
	_, onDest := t.Addresses[strings.ToLower(destination)]
	return onSource && onDest
}
