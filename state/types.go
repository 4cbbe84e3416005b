package state

import (
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/peerswap-io/relayer-go/contracts/escrow"
)

type SwapStatus string

const (
	// StatusPending: record created, escrows not both deployed yet.
	StatusPending SwapStatus = "pending"
	// StatusFulfilled: both escrow legs verified deployed.
	StatusFulfilled SwapStatus = "fulfilled"
	// StatusCompleted: both withdrawal legs succeeded. Final.
	StatusCompleted SwapStatus = "completed"
)

type CompletionTxHashes struct {
	SrcTxHash string `json:"srcTxHash"`
	DstTxHash string `json:"dstTxHash"`
}

// SwapRecord is the registry's view of one swap, keyed by hashlock.
// The registry is the sole mutator; everything else goes through Upsert.
type SwapRecord struct {
	ChainKey           string               `json:"chainKey"`
	FactoryAddress     ethcommon.Address    `json:"factoryAddress"`
	ExecutionData      escrow.ExecutionData `json:"executionData"`
	SrcEscrow          ethcommon.Address    `json:"srcEscrow"`
	DstEscrow          ethcommon.Address    `json:"dstEscrow"`
	Status             SwapStatus           `json:"status"`
	SrcDeployed        bool                 `json:"srcDeployed"`
	DstDeployed        bool                 `json:"dstDeployed"`
	CompletionTxHashes *CompletionTxHashes  `json:"completionTxHashes,omitempty"`
	CreatedAt          int64                `json:"createdAt"`
	UpdatedAt          int64                `json:"updatedAt"`
}

// HashlockKey returns the canonical storage key: lower-case hex without
// the 0x prefix.
func (r *SwapRecord) HashlockKey() string {
	return NormalizeHashlock(r.ExecutionData.HashlockHex())
}

func (r *SwapRecord) Clone() *SwapRecord {
	clone := *r
	if r.CompletionTxHashes != nil {
		hashes := *r.CompletionTxHashes
		clone.CompletionTxHashes = &hashes
	}
	return &clone
}

// NormalizeHashlock accepts a hashlock hex string with or without 0x
// prefix and in any letter case.
func NormalizeHashlock(hashlock string) string {
	s := strings.TrimPrefix(strings.TrimPrefix(hashlock, "0x"), "0X")
	return strings.ToLower(s)
}
