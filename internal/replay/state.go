package replay

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"poolstates/internal/chain"
)

// Overlay is a mutable account/storage patch set on top of the committed
// state after a pinned block. Sessions clone it before mutating, so no two
// sessions observe each other's uncommitted state. An overlay never crosses
// a block boundary.
type Overlay struct {
	height    uint64
	overrides chain.StateOverride
}

// NewOverlay returns an empty overlay pinned to the state after block height.
func NewOverlay(height uint64) *Overlay {
	return &Overlay{
		height:    height,
		overrides: make(chain.StateOverride),
	}
}

// Height returns the block the base state is pinned to.
func (o *Overlay) Height() uint64 {
	return o.height
}

// Overrides exposes the accumulated patches for provider calls. Callers must
// not mutate the returned map.
func (o *Overlay) Overrides() chain.StateOverride {
	return o.overrides
}

// Clone deep-copies the overlay.
func (o *Overlay) Clone() *Overlay {
	out := NewOverlay(o.height)
	for addr, account := range o.overrides {
		copied := chain.OverrideAccount{}
		if account.Nonce != nil {
			nonce := *account.Nonce
			copied.Nonce = &nonce
		}
		if account.Balance != nil {
			copied.Balance = (*hexutil.Big)(new(big.Int).Set((*big.Int)(account.Balance)))
		}
		if account.Code != nil {
			copied.Code = append(hexutil.Bytes(nil), account.Code...)
		}
		if account.StateDiff != nil {
			copied.StateDiff = make(map[common.Hash]common.Hash, len(account.StateDiff))
			for slot, value := range account.StateDiff {
				copied.StateDiff[slot] = value
			}
		}
		out.overrides[addr] = copied
	}
	return out
}

// Commit merges a transaction's state diff into the overlay.
func (o *Overlay) Commit(diff chain.StateDiff) {
	for addr, change := range diff {
		account := o.overrides[addr]
		if change.Balance != nil {
			account.Balance = (*hexutil.Big)(new(big.Int).Set(change.Balance))
		}
		if change.Nonce != nil {
			nonce := hexutil.Uint64(*change.Nonce)
			account.Nonce = &nonce
		}
		if len(change.Code) > 0 {
			account.Code = append(hexutil.Bytes(nil), change.Code...)
		}
		if len(change.Storage) > 0 {
			if account.StateDiff == nil {
				account.StateDiff = make(map[common.Hash]common.Hash, len(change.Storage))
			}
			for slot, value := range change.Storage {
				account.StateDiff[slot] = value
			}
		}
		o.overrides[addr] = account
	}
}
