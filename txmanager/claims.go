package txmanager

import (
	"sync"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/peerswap-io/relayer-go/state"
)

// PendingClaim is one accepted claim whose withdrawal sequence has not
// finished yet. Kept in memory only; after a crash the on-chain secret
// reveal re-triggers settlement through the poller.
type PendingClaim struct {
	Hashlock    [32]byte
	Secret      [32]byte
	UserAddress ethcommon.Address
	CreatedAt   time.Time
}

// ClaimStore holds pending claims keyed by hashlock.
type ClaimStore struct {
	mu     sync.Mutex
	claims map[string]*PendingClaim
}

func NewClaimStore() *ClaimStore {
	return &ClaimStore{claims: make(map[string]*PendingClaim)}
}

// Put stores a claim unless one is already pending for the hashlock.
func (s *ClaimStore) Put(c *PendingClaim) bool {
	key := claimKey(c.Hashlock)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.claims[key]; exists {
		return false
	}
	s.claims[key] = c
	return true
}

func (s *ClaimStore) Get(hashlock [32]byte) (*PendingClaim, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[claimKey(hashlock)]
	return c, ok
}

func (s *ClaimStore) Delete(hashlock [32]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claims, claimKey(hashlock))
}

func (s *ClaimStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.claims)
}

func claimKey(hashlock [32]byte) string {
	return state.NormalizeHashlock(ethcommon.Hash(hashlock).Hex())
}
