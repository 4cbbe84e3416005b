package state

import (
	"math/big"
	"sync"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	logger "github.com/sirupsen/logrus"

	"github.com/peerswap-io/relayer-go/common"
)

// Registry owns the merge semantics over the swap store. All components
// mutate swap state exclusively through Upsert; per-hashlock locking makes
// concurrent upserts from the pollers and the HTTP-triggered orchestrator
// safe. Different hashlocks proceed fully in parallel.
type Registry struct {
	db    *StateDB
	locks *keyedMutex

	// now is swappable in tests.
	now func() int64
}

func NewRegistry(db *StateDB) *Registry {
	return &Registry{
		db:    db,
		locks: newKeyedMutex(),
		now:   func() int64 { return time.Now().UnixMilli() },
	}
}

// Upsert merges rec onto any existing record with the same hashlock and
// returns the merged result. Enforced here, not by callers:
//   - deployment flags are monotonic (false→true only),
//   - 'completed' is final,
//   - a pending record with both legs deployed auto-advances to 'fulfilled'.
func (r *Registry) Upsert(rec *SwapRecord) (*SwapRecord, error) {
	key := rec.HashlockKey()
	unlock := r.locks.lock(key)
	defer unlock()

	existing, found, err := r.db.GetSwap(key)
	if err != nil {
		return nil, err
	}

	merged := r.merge(existing, rec)
	if err := r.db.PutSwap(merged); err != nil {
		return nil, err
	}

	logger.WithFields(logger.Fields{
		"hashlock":    common.Shorten(common.Prepend0xPrefix(key), 8),
		"status":      merged.Status,
		"srcDeployed": merged.SrcDeployed,
		"dstDeployed": merged.DstDeployed,
		"new":         !found,
	}).Debug("swap record upserted")

	return merged, nil
}

func (r *Registry) merge(existing, incoming *SwapRecord) *SwapRecord {
	now := r.now()

	merged := incoming.Clone()
	merged.CreatedAt = now
	merged.UpdatedAt = now
	if merged.Status == "" {
		merged.Status = StatusPending
	}

	if existing != nil {
		merged.CreatedAt = existing.CreatedAt

		// Deployment flags never regress.
		merged.SrcDeployed = merged.SrcDeployed || existing.SrcDeployed
		merged.DstDeployed = merged.DstDeployed || existing.DstDeployed

		// Completion is final.
		if existing.Status == StatusCompleted {
			merged.Status = StatusCompleted
		}

		if merged.CompletionTxHashes == nil {
			merged.CompletionTxHashes = existing.CompletionTxHashes
		}

		// A zero address in the incoming record never erases a known one.
		if merged.SrcEscrow == (ethcommon.Address{}) {
			merged.SrcEscrow = existing.SrcEscrow
		}
		if merged.DstEscrow == (ethcommon.Address{}) {
			merged.DstEscrow = existing.DstEscrow
		}
		if merged.ChainKey == "" {
			merged.ChainKey = existing.ChainKey
		}
		if merged.FactoryAddress == (ethcommon.Address{}) {
			merged.FactoryAddress = existing.FactoryAddress
		}
	}

	// Both escrows live → the swap has been fulfilled by the counterparty.
	if merged.Status == StatusPending && merged.SrcDeployed && merged.DstDeployed {
		merged.Status = StatusFulfilled
		logger.WithField("hashlock", common.Shorten(common.Prepend0xPrefix(merged.HashlockKey()), 8)).
			Info("both escrows deployed, swap fulfilled")
	}

	return merged
}

// GetByHashlock looks up a record. The hashlock is matched
// case-insensitively, with or without 0x prefix.
func (r *Registry) GetByHashlock(hashlock string) (*SwapRecord, bool, error) {
	return r.db.GetSwap(hashlock)
}

// List returns all records, optionally filtered by status. Callers must
// not assume any ordering.
func (r *Registry) List(status SwapStatus) ([]*SwapRecord, error) {
	return r.db.ListSwaps(status)
}

func (r *Registry) GetChainCursor(chainKey string) (*big.Int, bool, error) {
	return r.db.GetChainCursor(chainKey)
}

func (r *Registry) SetChainCursor(chainKey string, blockNumber *big.Int) error {
	return r.db.SetChainCursor(chainKey, blockNumber)
}

// keyedMutex hands out one mutex per hashlock. Entries are refcounted and
// dropped once the last holder unlocks, so the map stays bounded by the
// number of in-flight upserts, not by swap history.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
