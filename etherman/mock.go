package etherman

import (
	"context"
	"math/big"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/peerswap-io/relayer-go/contracts/escrow"
)

// MockBackend is an in-memory Backend for tests in the packages built on
// top of etherman. Behavior is driven by fields; all writes are recorded.
type MockBackend struct {
	mu sync.Mutex

	MockChainKey       string
	MockChainID        *big.Int
	MockFactoryAddress ethcommon.Address
	MockSigner         ethcommon.Address

	Height *big.Int
	// Logs returned by FilterLogs, keyed by queried address.
	Logs map[ethcommon.Address][]types.Log
	// Code marks addresses that have bytecode deployed.
	Code map[ethcommon.Address]bool
	// ExecutionData served per escrow address.
	Data map[ethcommon.Address]*escrow.ExecutionData
	// Active marks escrows whose isActive() returns true.
	Active map[ethcommon.Address]bool

	RelayerAddr ethcommon.Address
	SrcAddr     ethcommon.Address
	DstAddr     ethcommon.Address

	// Optional error injection, applied to every call of the matching kind.
	ReadErr  error
	WriteErr error

	SetFulfillerCalls []SetFulfillerCall
	WithdrawCalls     []WithdrawCall
}

type SetFulfillerCall struct {
	Escrow    ethcommon.Address
	Fulfiller ethcommon.Address
}

type WithdrawCall struct {
	Escrow ethcommon.Address
	Secret [32]byte
	Data   *escrow.ExecutionData
}

func NewMockBackend(chainKey string, chainID int64) *MockBackend {
	return &MockBackend{
		MockChainKey: chainKey,
		MockChainID:  big.NewInt(chainID),
		Height:       big.NewInt(0),
		Logs:         make(map[ethcommon.Address][]types.Log),
		Code:         make(map[ethcommon.Address]bool),
		Data:         make(map[ethcommon.Address]*escrow.ExecutionData),
		Active:       make(map[ethcommon.Address]bool),
	}
}

func (m *MockBackend) ChainKey() string                  { return m.MockChainKey }
func (m *MockBackend) ChainID() *big.Int                 { return m.MockChainID }
func (m *MockBackend) FactoryAddress() ethcommon.Address { return m.MockFactoryAddress }
func (m *MockBackend) Signer() ethcommon.Address         { return m.MockSigner }

func (m *MockBackend) BlockNumber(ctx context.Context) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	return new(big.Int).Set(m.Height), nil
}

func (m *MockBackend) FilterLogs(ctx context.Context, address ethcommon.Address, fromBlock, toBlock *big.Int) ([]types.Log, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	var out []types.Log
	for _, l := range m.Logs[address] {
		blk := new(big.Int).SetUint64(l.BlockNumber)
		if blk.Cmp(fromBlock) >= 0 && blk.Cmp(toBlock) <= 0 {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *MockBackend) HasCode(ctx context.Context, address ethcommon.Address) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return false, m.ReadErr
	}
	return m.Code[address], nil
}

func (m *MockBackend) FactoryRelayer(ctx context.Context) (ethcommon.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return ethcommon.Address{}, m.ReadErr
	}
	return m.RelayerAddr, nil
}

func (m *MockBackend) AddressOfEscrowSrc(ctx context.Context, data *escrow.ExecutionData) (ethcommon.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return ethcommon.Address{}, m.ReadErr
	}
	return m.SrcAddr, nil
}

func (m *MockBackend) AddressOfEscrowDst(ctx context.Context, data *escrow.ExecutionData) (ethcommon.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return ethcommon.Address{}, m.ReadErr
	}
	return m.DstAddr, nil
}

func (m *MockBackend) EscrowExecutionData(ctx context.Context, escrowAddr ethcommon.Address) (*escrow.ExecutionData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	data, ok := m.Data[escrowAddr]
	if !ok {
		return nil, rpcError("executionData", context.DeadlineExceeded)
	}
	return data, nil
}

func (m *MockBackend) EscrowIsActive(ctx context.Context, escrowAddr ethcommon.Address) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return false, m.ReadErr
	}
	return m.Active[escrowAddr], nil
}

func (m *MockBackend) SetFulfiller(ctx context.Context, escrowAddr, fulfiller ethcommon.Address) (ethcommon.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return ethcommon.Hash{}, m.WriteErr
	}
	m.SetFulfillerCalls = append(m.SetFulfillerCalls, SetFulfillerCall{Escrow: escrowAddr, Fulfiller: fulfiller})
	return fakeTxHash(len(m.SetFulfillerCalls)), nil
}

func (m *MockBackend) Withdraw(ctx context.Context, escrowAddr ethcommon.Address, secret [32]byte, data *escrow.ExecutionData) (ethcommon.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return ethcommon.Hash{}, m.WriteErr
	}
	m.WithdrawCalls = append(m.WithdrawCalls, WithdrawCall{Escrow: escrowAddr, Secret: secret, Data: data})
	return fakeTxHash(1000 + len(m.WithdrawCalls)), nil
}

func (m *MockBackend) WaitMined(ctx context.Context, txHash ethcommon.Hash) (*types.Receipt, error) {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: txHash}, nil
}

// SetReadErr swaps the injected read error, safe while goroutines use the
// mock.
func (m *MockBackend) SetReadErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReadErr = err
}

func (m *MockBackend) SetWriteErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WriteErr = err
}

// Snapshot accessors, safe against concurrent mock usage.

func (m *MockBackend) SetFulfillerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.SetFulfillerCalls)
}

func (m *MockBackend) WithdrawCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.WithdrawCalls)
}

func fakeTxHash(n int) ethcommon.Hash {
	return ethcommon.BigToHash(big.NewInt(int64(n)))
}
