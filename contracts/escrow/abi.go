// ABI surface of the escrow factory and the per-swap escrow contracts.
// The contracts are external collaborators; we only talk to them through
// these fragments, which must stay bit-exact with the deployed bytecode.
package escrow

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

// Components of the executionData tuple, shared by every fragment below.
// Note: "fullfiller" is the contract's own spelling, do not fix it here.
const executionDataComponents = `[
	{"name": "orderHash", "type": "bytes32"},
	{"name": "hashlock", "type": "bytes32"},
	{"name": "asker", "type": "address"},
	{"name": "fullfiller", "type": "address"},
	{"name": "srcToken", "type": "address"},
	{"name": "dstToken", "type": "address"},
	{"name": "srcChainId", "type": "uint256"},
	{"name": "dstChainId", "type": "uint256"},
	{"name": "askerAmount", "type": "uint256"},
	{"name": "fullfillerAmount", "type": "uint256"},
	{"name": "platformFee", "type": "uint256"},
	{"name": "feeCollector", "type": "address"},
	{"name": "timelocks", "type": "uint256"},
	{"name": "parameters", "type": "bytes"}
]`

const FactoryABIJson = `[
	{
		"type": "event",
		"name": "SrcEscrowCreated",
		"anonymous": false,
		"inputs": [
			{"name": "srcExecutionData", "type": "tuple", "indexed": false, "components": ` + executionDataComponents + `}
		]
	},
	{
		"type": "event",
		"name": "DstEscrowCreated",
		"anonymous": false,
		"inputs": [
			{"name": "escrow", "type": "address", "indexed": false},
			{"name": "hashlock", "type": "bytes32", "indexed": false},
			{"name": "asker", "type": "address", "indexed": false}
		]
	},
	{
		"type": "event",
		"name": "FulfillerSet",
		"anonymous": false,
		"inputs": [
			{"name": "srcEscrowAddress", "type": "address", "indexed": true},
			{"name": "fulfillerAddress", "type": "address", "indexed": true}
		]
	},
	{
		"type": "function",
		"stateMutability": "view",
		"name": "addressOfEscrowSrc",
		"inputs": [{"name": "executionData", "type": "tuple", "components": ` + executionDataComponents + `}],
		"outputs": [{"name": "", "type": "address"}]
	},
	{
		"type": "function",
		"stateMutability": "view",
		"name": "addressOfEscrowDst",
		"inputs": [{"name": "executionData", "type": "tuple", "components": ` + executionDataComponents + `}],
		"outputs": [{"name": "", "type": "address"}]
	},
	{
		"type": "function",
		"stateMutability": "view",
		"name": "relayer",
		"inputs": [],
		"outputs": [{"name": "", "type": "address"}]
	},
	{
		"type": "function",
		"stateMutability": "nonpayable",
		"name": "setFulfiller",
		"inputs": [
			{"name": "escrow", "type": "address"},
			{"name": "fulfiller", "type": "address"}
		],
		"outputs": []
	}
]`

// EscrowABIJson is the shared surface of the per-swap escrow instances.
// Source and destination escrows expose the same functions; only the
// destination side emits DstSecretRevealed.
const EscrowABIJson = `[
	{
		"type": "event",
		"name": "DstSecretRevealed",
		"anonymous": false,
		"inputs": [
			{"name": "secret", "type": "bytes32", "indexed": false},
			{"name": "hashlock", "type": "bytes32", "indexed": false}
		]
	},
	{
		"type": "function",
		"stateMutability": "nonpayable",
		"name": "withdraw",
		"inputs": [
			{"name": "secret", "type": "bytes32"},
			{"name": "executionData", "type": "tuple", "components": ` + executionDataComponents + `}
		],
		"outputs": []
	},
	{
		"type": "function",
		"stateMutability": "view",
		"name": "executionData",
		"inputs": [],
		"outputs": [{"name": "", "type": "tuple", "components": ` + executionDataComponents + `}]
	},
	{
		"type": "function",
		"stateMutability": "view",
		"name": "isActive",
		"inputs": [],
		"outputs": [{"name": "", "type": "bool"}]
	}
]`

var (
	FactoryABI = mustParseABI(FactoryABIJson)
	EscrowABI  = mustParseABI(EscrowABIJson)

	// Event topic hashes (topic0).
	SrcEscrowCreatedSignatureHash  = crypto.Keccak256Hash([]byte("SrcEscrowCreated((bytes32,bytes32,address,address,address,address,uint256,uint256,uint256,uint256,uint256,address,uint256,bytes))"))
	DstEscrowCreatedSignatureHash  = crypto.Keccak256Hash([]byte("DstEscrowCreated(address,bytes32,address)"))
	FulfillerSetSignatureHash      = crypto.Keccak256Hash([]byte("FulfillerSet(address,address)"))
	DstSecretRevealedSignatureHash = crypto.Keccak256Hash([]byte("DstSecretRevealed(bytes32,bytes32)"))
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
