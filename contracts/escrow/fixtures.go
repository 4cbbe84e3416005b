package escrow

import (
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Synthetic log builders for tests. They produce the same wire shape the
// contracts emit, so decode paths can be exercised without a chain.

func NewSrcEscrowCreatedLog(factory ethcommon.Address, blockNumber uint64, data ExecutionData) (types.Log, error) {
	packed, err := FactoryABI.Events["SrcEscrowCreated"].Inputs.Pack(data)
	if err != nil {
		return types.Log{}, err
	}
	return types.Log{
		Address:     factory,
		Topics:      []ethcommon.Hash{SrcEscrowCreatedSignatureHash},
		Data:        packed,
		BlockNumber: blockNumber,
	}, nil
}

func NewDstEscrowCreatedLog(factory ethcommon.Address, blockNumber uint64, escrowAddr ethcommon.Address, hashlock [32]byte, asker ethcommon.Address) (types.Log, error) {
	packed, err := FactoryABI.Events["DstEscrowCreated"].Inputs.Pack(escrowAddr, hashlock, asker)
	if err != nil {
		return types.Log{}, err
	}
	return types.Log{
		Address:     factory,
		Topics:      []ethcommon.Hash{DstEscrowCreatedSignatureHash},
		Data:        packed,
		BlockNumber: blockNumber,
	}, nil
}

func NewFulfillerSetLog(factory ethcommon.Address, blockNumber uint64, srcEscrow, fulfiller ethcommon.Address) types.Log {
	return types.Log{
		Address: factory,
		Topics: []ethcommon.Hash{
			FulfillerSetSignatureHash,
			ethcommon.BytesToHash(srcEscrow.Bytes()),
			ethcommon.BytesToHash(fulfiller.Bytes()),
		},
		BlockNumber: blockNumber,
	}
}

func NewDstSecretRevealedLog(escrowAddr ethcommon.Address, blockNumber uint64, secret, hashlock [32]byte) (types.Log, error) {
	packed, err := EscrowABI.Events["DstSecretRevealed"].Inputs.Pack(secret, hashlock)
	if err != nil {
		return types.Log{}, err
	}
	return types.Log{
		Address:     escrowAddr,
		Topics:      []ethcommon.Hash{DstSecretRevealedSignatureHash},
		Data:        packed,
		BlockNumber: blockNumber,
	}, nil
}
