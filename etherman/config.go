package etherman

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const DefaultReceiptTimeout = 60 * time.Second

type Config struct {
	// ChainKey identifies the watched chain (e.g. "sepolia", "baseSepolia").
	ChainKey string

	// URL is the JSON-RPC endpoint of the chain's node.
	URL string

	// ChainID is the expected chain id; connecting to a node reporting a
	// different id is a configuration error.
	ChainID *big.Int

	// FactoryAddress is the deployed escrow factory on this chain.
	FactoryAddress common.Address

	// ReceiptTimeout bounds how long write calls wait for a confirmation
	// receipt before surfacing a timeout.
	ReceiptTimeout time.Duration
}
