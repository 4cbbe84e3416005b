package etherman

import (
	"context"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/peerswap-io/relayer-go/contracts/escrow"
)

// Backend is the chain-scoped surface the relayer components consume.
// *Etherman implements it; tests substitute fakes.
type Backend interface {
	ChainKey() string
	ChainID() *big.Int
	FactoryAddress() ethcommon.Address
	Signer() ethcommon.Address

	BlockNumber(ctx context.Context) (*big.Int, error)
	FilterLogs(ctx context.Context, address ethcommon.Address, fromBlock, toBlock *big.Int) ([]types.Log, error)
	HasCode(ctx context.Context, address ethcommon.Address) (bool, error)

	FactoryRelayer(ctx context.Context) (ethcommon.Address, error)
	AddressOfEscrowSrc(ctx context.Context, data *escrow.ExecutionData) (ethcommon.Address, error)
	AddressOfEscrowDst(ctx context.Context, data *escrow.ExecutionData) (ethcommon.Address, error)
	EscrowExecutionData(ctx context.Context, escrowAddr ethcommon.Address) (*escrow.ExecutionData, error)
	EscrowIsActive(ctx context.Context, escrowAddr ethcommon.Address) (bool, error)

	SetFulfiller(ctx context.Context, escrowAddr, fulfiller ethcommon.Address) (ethcommon.Hash, error)
	Withdraw(ctx context.Context, escrowAddr ethcommon.Address, secret [32]byte, data *escrow.ExecutionData) (ethcommon.Hash, error)
	WaitMined(ctx context.Context, txHash ethcommon.Hash) (*types.Receipt, error)
}

// Set maps chain key to its backend.
type Set map[string]Backend

// ByChainID resolves a backend by numeric chain id. Used wherever the
// execution data, not the observing chain, decides which chain to touch.
func (s Set) ByChainID(id *big.Int) (Backend, bool) {
	if id == nil {
		return nil, false
	}
	for _, b := range s {
		if b.ChainID().Cmp(id) == 0 {
			return b, true
		}
	}
	return nil, false
}
