package etherman

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/peerswap-io/relayer-go/contracts/escrow"
)

const receiptPollInterval = 2 * time.Second

type ethereumClient interface {
	ethereum.ChainReader
	ethereum.ChainStateReader
	ethereum.ContractCaller
	ethereum.GasEstimator
	ethereum.GasPricer
	ethereum.LogFilterer
	ethereum.TransactionReader
	ethereum.TransactionSender

	bind.DeployBackend
	bind.ContractBackend

	BlockNumber(ctx context.Context) (uint64, error)
}

var _ ethereumClient = (*ethclient.Client)(nil)

// Etherman is the read/write adapter for one chain. A dual-chain relayer
// holds one instance per chain key; both share the same signing key but
// each chain keeps its own nonce sequence.
type Etherman struct {
	cfg       *Config
	ethClient ethereumClient
	auth      *bind.TransactOpts
	signer    ethcommon.Address
	factory   *bind.BoundContract

	// Serializes writes on this chain so concurrent orchestrations never
	// race the account nonce.
	writeMu sync.Mutex
}

func NewEtherman(cfg *Config, privKey *ecdsa.PrivateKey) (*Etherman, error) {
	ethClient, err := ethclient.Dial(cfg.URL)
	if err != nil {
		return nil, rpcError("dial "+cfg.ChainKey, err)
	}

	chainID, err := ethClient.ChainID(context.Background())
	if err != nil {
		return nil, rpcError("chain id "+cfg.ChainKey, err)
	}
	if cfg.ChainID != nil && chainID.Cmp(cfg.ChainID) != 0 {
		return nil, fmt.Errorf("chain %s: chain ID mismatch: expected=%v, actual=%v", cfg.ChainKey, cfg.ChainID, chainID)
	}

	auth, err := bind.NewKeyedTransactorWithChainID(privKey, chainID)
	if err != nil {
		return nil, err
	}

	if cfg.ReceiptTimeout == 0 {
		cfg.ReceiptTimeout = DefaultReceiptTimeout
	}

	return &Etherman{
		cfg:       cfg,
		ethClient: ethClient,
		auth:      auth,
		signer:    crypto.PubkeyToAddress(privKey.PublicKey),
		factory:   bind.NewBoundContract(cfg.FactoryAddress, escrow.FactoryABI, ethClient, ethClient, ethClient),
	}, nil
}

func (e *Etherman) ChainKey() string                  { return e.cfg.ChainKey }
func (e *Etherman) ChainID() *big.Int                 { return new(big.Int).Set(e.cfg.ChainID) }
func (e *Etherman) FactoryAddress() ethcommon.Address { return e.cfg.FactoryAddress }
func (e *Etherman) Signer() ethcommon.Address         { return e.signer }

func (e *Etherman) BlockNumber(ctx context.Context) (*big.Int, error) {
	num, err := e.ethClient.BlockNumber(ctx)
	if err != nil {
		return nil, rpcError("block number", err)
	}
	return new(big.Int).SetUint64(num), nil
}

// FilterLogs returns all logs emitted by address in [fromBlock, toBlock].
func (e *Etherman) FilterLogs(ctx context.Context, address ethcommon.Address, fromBlock, toBlock *big.Int) ([]types.Log, error) {
	logs, err := e.ethClient.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: fromBlock,
		ToBlock:   toBlock,
		Addresses: []ethcommon.Address{address},
	})
	if err != nil {
		return nil, rpcError("filter logs", err)
	}
	return logs, nil
}

// HasCode reports whether deployed bytecode exists at address.
func (e *Etherman) HasCode(ctx context.Context, address ethcommon.Address) (bool, error) {
	code, err := e.ethClient.CodeAt(ctx, address, nil)
	if err != nil {
		return false, rpcError("code at", err)
	}
	return len(code) > 0, nil
}

// FactoryRelayer reads the relayer address configured in the factory.
func (e *Etherman) FactoryRelayer(ctx context.Context) (ethcommon.Address, error) {
	var out []interface{}
	if err := e.factory.Call(&bind.CallOpts{Context: ctx}, &out, "relayer"); err != nil {
		return ethcommon.Address{}, e.callError("relayer", err)
	}
	return *abi.ConvertType(out[0], new(ethcommon.Address)).(*ethcommon.Address), nil
}

// AddressOfEscrowSrc computes the deterministic source escrow address for
// the given execution data, before any deployment happened.
func (e *Etherman) AddressOfEscrowSrc(ctx context.Context, data *escrow.ExecutionData) (ethcommon.Address, error) {
	return e.escrowAddressOf(ctx, "addressOfEscrowSrc", data)
}

// AddressOfEscrowDst is the destination-side counterpart of AddressOfEscrowSrc.
func (e *Etherman) AddressOfEscrowDst(ctx context.Context, data *escrow.ExecutionData) (ethcommon.Address, error) {
	return e.escrowAddressOf(ctx, "addressOfEscrowDst", data)
}

func (e *Etherman) escrowAddressOf(ctx context.Context, method string, data *escrow.ExecutionData) (ethcommon.Address, error) {
	var out []interface{}
	if err := e.factory.Call(&bind.CallOpts{Context: ctx}, &out, method, *data); err != nil {
		return ethcommon.Address{}, e.callError(method, err)
	}
	return *abi.ConvertType(out[0], new(ethcommon.Address)).(*ethcommon.Address), nil
}

// EscrowExecutionData reads the authoritative execution data from a
// deployed escrow instance. The on-chain copy, not the local registry, is
// the source of truth for the fulfiller field.
func (e *Etherman) EscrowExecutionData(ctx context.Context, escrowAddr ethcommon.Address) (*escrow.ExecutionData, error) {
	contract := e.escrowContract(escrowAddr)

	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "executionData"); err != nil {
		return nil, e.callError("executionData", err)
	}
	data := *abi.ConvertType(out[0], new(escrow.ExecutionData)).(*escrow.ExecutionData)
	return &data, nil
}

func (e *Etherman) EscrowIsActive(ctx context.Context, escrowAddr ethcommon.Address) (bool, error) {
	contract := e.escrowContract(escrowAddr)

	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "isActive"); err != nil {
		return false, e.callError("isActive", err)
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// SetFulfiller registers fulfiller on the given source escrow through the
// factory. Only the factory-configured relayer account may call this.
func (e *Etherman) SetFulfiller(ctx context.Context, escrowAddr, fulfiller ethcommon.Address) (ethcommon.Hash, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	opts := e.transactOpts(ctx)
	tx, err := e.factory.Transact(opts, "setFulfiller", escrowAddr, fulfiller)
	if err != nil {
		return ethcommon.Hash{}, sendError("setFulfiller", err)
	}
	return tx.Hash(), nil
}

// Withdraw submits withdraw(secret, executionData) to an escrow instance.
func (e *Etherman) Withdraw(ctx context.Context, escrowAddr ethcommon.Address, secret [32]byte, data *escrow.ExecutionData) (ethcommon.Hash, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	contract := e.escrowContract(escrowAddr)
	opts := e.transactOpts(ctx)
	tx, err := contract.Transact(opts, "withdraw", secret, *data)
	if err != nil {
		return ethcommon.Hash{}, sendError("withdraw", err)
	}
	return tx.Hash(), nil
}

// WaitMined polls for the receipt of txHash until it is mined or the
// configured receipt timeout elapses.
func (e *Etherman) WaitMined(ctx context.Context, txHash ethcommon.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ReceiptTimeout)
	defer cancel()

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := e.ethClient.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !strings.Contains(err.Error(), "not found") {
			return nil, rpcError("transaction receipt", err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w", txHash.Hex(), ErrReceiptTimeout)
		case <-ticker.C:
		}
	}
}

func (e *Etherman) escrowContract(escrowAddr ethcommon.Address) *bind.BoundContract {
	return bind.NewBoundContract(escrowAddr, escrow.EscrowABI, e.ethClient, e.ethClient, e.ethClient)
}

func (e *Etherman) transactOpts(ctx context.Context) *bind.TransactOpts {
	opts := *e.auth
	opts.Context = ctx
	return &opts
}

func (e *Etherman) callError(method string, err error) error {
	if strings.Contains(strings.ToLower(err.Error()), "abi") {
		return decodeError(method, err)
	}
	return rpcError(method, err)
}

// StringToPrivateKey parses a hex-encoded secp256k1 private key, with or
// without 0x prefix.
func StringToPrivateKey(privKeyStr string) (*ecdsa.PrivateKey, error) {
	return crypto.HexToECDSA(strings.TrimPrefix(strings.TrimPrefix(privKeyStr, "0x"), "0X"))
}
