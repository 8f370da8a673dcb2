package chain

import (
	"fmt"
	"sort"
	"sync"

	"wallet-engine/pkg/types"
)

// Entry is a registered adapter with its capabilities resolved once
type Entry struct {
	Adapter   Adapter
	Balance   Balance
	Transfer  Transfer
	Swap      Swap
	TokenInfo TokenInfo
	NFT       NFT
	History   History
}

// Registry maps chain identifiers to adapters
type Registry struct {
	mu      sync.RWMutex
	entries map[types.ChainID]*Entry
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{entries: make(map[types.ChainID]*Entry)}
}

// Register adds an adapter under its own chain id
func (r *Registry) Register(a Adapter) error {
	id := a.Params().ID.Normalize()
	if id == "" {
		return fmt.Errorf("adapter has no chain id")
	}

	e := &Entry{Adapter: a}
	e.Balance, _ = a.(Balance)
	e.Transfer, _ = a.(Transfer)
	e.Swap, _ = a.(Swap)
	e.TokenInfo, _ = a.(TokenInfo)
	e.NFT, _ = a.(NFT)
	e.History, _ = a.(History)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[id]; exists {
		return fmt.Errorf("chain %s already registered", id)
	}
	r.entries[id] = e
	return nil
}

// Get returns the entry for a chain
func (r *Registry) Get(id types.ChainID) (*Entry, error) {
	r.mu.RLock()
	e, ok := r.entries[id.Normalize()]
	r.mu.RUnlock()
	if !ok {
		return nil, types.E(types.UnsupportedChain, "registry", "chain %q is not configured", id)
	}
	return e, nil
}

// Chains lists registered chain ids in sorted order
func (r *Registry) Chains() []types.ChainID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]types.ChainID, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Adapters lists registered adapters in chain id order
func (r *Registry) Adapters() []Adapter {
	ids := r.Chains()
	out := make([]Adapter, 0, len(ids))
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range ids {
		out = append(out, r.entries[id].Adapter)
	}
	return out
}

func unsupported(id types.ChainID, capability string) error {
	return types.E(types.UnsupportedChain, "registry", "chain %s does not support %s", id, capability)
}

// Transferer returns the Transfer capability of a chain
func (r *Registry) Transferer(id types.ChainID) (Transfer, error) {
	e, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if e.Transfer == nil {
		return nil, unsupported(id, "transfers")
	}
	return e.Transfer, nil
}

// Swapper returns the Swap capability of a chain
func (r *Registry) Swapper(id types.ChainID) (Swap, error) {
	e, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if e.Swap == nil {
		return nil, unsupported(id, "swaps")
	}
	return e.Swap, nil
}

// NFTs returns the NFT capability of a chain
func (r *Registry) NFTs(id types.ChainID) (NFT, error) {
	e, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if e.NFT == nil {
		return nil, unsupported(id, "nft transfers")
	}
	return e.NFT, nil
}

// Balances returns the Balance capability of a chain
func (r *Registry) Balances(id types.ChainID) (Balance, error) {
	e, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if e.Balance == nil {
		return nil, unsupported(id, "balances")
	}
	return e.Balance, nil
}

// Tokens returns the TokenInfo capability of a chain
func (r *Registry) Tokens(id types.ChainID) (TokenInfo, error) {
	e, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if e.TokenInfo == nil {
		return nil, unsupported(id, "token info")
	}
	return e.TokenInfo, nil
}

// Histories returns the History capability of a chain
func (r *Registry) Histories(id types.ChainID) (History, error) {
	e, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if e.History == nil {
		return nil, unsupported(id, "history")
	}
	return e.History, nil
}
