package state

import (
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/peerswap-io/relayer-go/common"
	"github.com/peerswap-io/relayer-go/contracts/escrow"
)

// RandExecutionData builds execution data with a secret-derived hashlock,
// for tests. Returns the data and the matching secret.
func RandExecutionData(srcChainId, dstChainId int64) (*escrow.ExecutionData, [32]byte) {
	secret := common.RandBytes32()
	hashlock := crypto.Keccak256Hash(secret[:])

	return &escrow.ExecutionData{
		OrderHash:        common.RandBytes32(),
		Hashlock:         [32]byte(hashlock),
		Asker:            common.RandEthAddress(),
		SrcToken:         common.RandEthAddress(),
		DstToken:         common.RandEthAddress(),
		SrcChainId:       big.NewInt(srcChainId),
		DstChainId:       big.NewInt(dstChainId),
		AskerAmount:      big.NewInt(1000000),
		FullfillerAmount: big.NewInt(990000),
		PlatformFee:      big.NewInt(100),
		FeeCollector:     common.RandEthAddress(),
		Timelocks:        common.RandBigInt(8),
		Parameters:       []byte{},
	}, secret
}

// RandSwapRecord builds a pending record for tests.
func RandSwapRecord(chainKey string, srcChainId, dstChainId int64) (*SwapRecord, [32]byte) {
	data, secret := RandExecutionData(srcChainId, dstChainId)
	return &SwapRecord{
		ChainKey:       chainKey,
		FactoryAddress: common.RandEthAddress(),
		ExecutionData:  *data,
		SrcEscrow:      common.RandEthAddress(),
		DstEscrow:      common.RandEthAddress(),
		Status:         StatusPending,
	}, secret
}
