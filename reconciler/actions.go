package reconciler

import (
	ethcommon "github.com/ethereum/go-ethereum/common"
)

// Action is a chain write the reconciler decided on but does not execute
// itself. The tx manager executes actions with its own pre-checks, so a
// stale or duplicate action degrades into a no-op there.
type Action interface {
	ActionName() string
}

// SetFulfillerAction hands the source escrow over to the relayer once both
// legs of a swap are deployed.
type SetFulfillerAction struct {
	ChainKey  string
	SrcEscrow ethcommon.Address
	Fulfiller ethcommon.Address
	Hashlock  [32]byte
}

func (a *SetFulfillerAction) ActionName() string { return "SetFulfiller" }

// WithdrawSourceAction settles the source leg with a secret revealed on the
// destination chain.
type WithdrawSourceAction struct {
	ChainKey  string
	SrcEscrow ethcommon.Address
	Secret    [32]byte
	Hashlock  [32]byte
}

func (a *WithdrawSourceAction) ActionName() string { return "WithdrawSource" }
