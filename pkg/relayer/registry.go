package relayer

import (
	"fmt"
	"sync"
)

// Factory builds one chain's ChainConfig from its declarative settings.
// Concrete chain clients (an Ethereum JSON-RPC Mailbox, a CosmWasm
// query client, and so on) are deliberately outside this module's
// scope — only their trait contracts in pkg/chainclient are specified
// here. A deployment wires a real relayer by registering a Factory per
// chain family it needs to talk to, the same way the teacher's
// pkg/chain/strategy package registers one ChainExecutionStrategy per
// chain family rather than hard-coding them into main.go.
type Factory func(chainName string, settings map[string]string) (ChainConfig, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register associates family with the Factory that builds a
// ChainConfig for any chain of that family. Typically called from an
// init() in a package that implements pkg/chainclient's traits for one
// chain technology; registering the same family twice is a programming
// error and panics, matching the database/sql driver-registration
// idiom.
func Register(family string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[family]; exists {
		panic(fmt.Sprintf("relayer: Factory already registered for family %q", family))
	}
	registry[family] = factory
}

// Build looks up the Factory registered for family and invokes it for
// chainName. It returns an error naming every registered family when
// none matches, rather than leaving the caller to guess why wiring a
// chain failed.
func Build(family, chainName string, settings map[string]string) (ChainConfig, error) {
	registryMu.RLock()
	factory, ok := registry[family]
	registryMu.RUnlock()
	if !ok {
		return ChainConfig{}, fmt.Errorf("relayer: no chain client registered for family %q (chain %q); registered families: %v", family, chainName, registeredFamilies())
	}
	return factory(chainName, settings)
}

func registeredFamilies() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	return out
}
