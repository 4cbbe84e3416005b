package txmanager

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	logger "github.com/sirupsen/logrus"

	"github.com/peerswap-io/relayer-go/common"
	"github.com/peerswap-io/relayer-go/etherman"
	"github.com/peerswap-io/relayer-go/reconciler"
	"github.com/peerswap-io/relayer-go/state"
)

const (
	DefaultVerifyDelay      = 5 * time.Second
	DefaultSourceRetryDelay = 30 * time.Second
)

type Config struct {
	// VerifyDelay is how long after a setFulfiller submission the on-chain
	// fulfiller is re-read as a sanity check.
	VerifyDelay time.Duration
	// SourceRetryDelay is the wait before the single source-withdrawal
	// retry when the destination leg succeeded but the source leg failed.
	SourceRetryDelay time.Duration
}

func (c *Config) withDefaults() Config {
	out := Config{VerifyDelay: DefaultVerifyDelay, SourceRetryDelay: DefaultSourceRetryDelay}
	if c == nil {
		return out
	}
	if c.VerifyDelay > 0 {
		out.VerifyDelay = c.VerifyDelay
	}
	if c.SourceRetryDelay > 0 {
		out.SourceRetryDelay = c.SourceRetryDelay
	}
	return out
}

// TxManager executes the chain writes the reconciler and the HTTP surface
// decide on: the fulfiller handoff and the two-leg withdrawal sequence.
// All submissions go through the per-chain backends, which serialize writes
// per chain.
type TxManager struct {
	reg    *state.Registry
	chains etherman.Set
	claims *ClaimStore
	cfg    Config

	// Tracks async verification/retry goroutines so shutdown and tests can
	// wait for them.
	wg sync.WaitGroup
}

func New(reg *state.Registry, chains etherman.Set, claims *ClaimStore, cfg *Config) *TxManager {
	return &TxManager{
		reg:    reg,
		chains: chains,
		claims: claims,
		cfg:    cfg.withDefaults(),
	}
}

// Wait blocks until all background verification and retry goroutines have
// finished.
func (m *TxManager) Wait() {
	m.wg.Wait()
}

// Execute runs one scheduled action.
func (m *TxManager) Execute(ctx context.Context, action reconciler.Action) error {
	switch a := action.(type) {
	case *reconciler.SetFulfillerAction:
		return m.ExecuteSetFulfiller(ctx, a)
	case *reconciler.WithdrawSourceAction:
		return m.ExecuteWithdrawSource(ctx, a)
	default:
		return fmt.Errorf("execute: unhandled action %q", action.ActionName())
	}
}

// ExecuteSetFulfiller hands the source escrow to the relayer. Pre-checks
// run in order; each one failing downgrades the action to a logged no-op or
// an error, never a blind submission.
func (m *TxManager) ExecuteSetFulfiller(ctx context.Context, a *reconciler.SetFulfillerAction) error {
	chain, ok := m.chains[a.ChainKey]
	if !ok {
		return fmt.Errorf("%w: chain %q", reconciler.ErrChainNotConfigured, a.ChainKey)
	}

	log := logger.WithFields(logger.Fields{
		"chain":    a.ChainKey,
		"escrow":   a.SrcEscrow.Hex(),
		"hashlock": common.Shorten(ethcommon.Hash(a.Hashlock).Hex(), 8),
	})

	deployed, err := chain.HasCode(ctx, a.SrcEscrow)
	if err != nil {
		return err
	}
	if !deployed {
		return fmt.Errorf("setFulfiller: no bytecode at escrow %s", a.SrcEscrow.Hex())
	}

	factoryRelayer, err := chain.FactoryRelayer(ctx)
	if err != nil {
		return err
	}
	if factoryRelayer != chain.Signer() {
		// The factory will revert the call anyway. Surface the operator
		// problem instead of burning gas on it.
		log.WithFields(logger.Fields{
			"factoryRelayer": factoryRelayer.Hex(),
			"signer":         chain.Signer().Hex(),
		}).Error("factory relayer is not this signer")
		return fmt.Errorf("%w: factory relayer %s, signer %s",
			ErrConfigMismatch, factoryRelayer.Hex(), chain.Signer().Hex())
	}

	active, err := chain.EscrowIsActive(ctx, a.SrcEscrow)
	if err != nil {
		return err
	}
	if !active {
		log.Warn("escrow no longer active, handoff skipped")
		return nil
	}

	data, err := chain.EscrowExecutionData(ctx, a.SrcEscrow)
	if err != nil {
		return err
	}
	if data.Fullfiller == a.Fulfiller {
		log.Debug("fulfiller already set, nothing to do")
		return nil
	}

	txHash, err := chain.SetFulfiller(ctx, a.SrcEscrow, a.Fulfiller)
	if err != nil {
		return err
	}
	if err := m.confirm(ctx, chain, txHash, "setFulfiller"); err != nil {
		return err
	}
	log.WithField("tx", txHash.Hex()).Info("fulfiller handoff submitted")

	m.verifyFulfillerLater(ctx, chain, a.SrcEscrow, a.Fulfiller)
	return nil
}

// verifyFulfillerLater re-reads the escrow after VerifyDelay and logs if
// the handoff did not stick. Best effort; no retry.
func (m *TxManager) verifyFulfillerLater(ctx context.Context, chain etherman.Backend, escrowAddr, want ethcommon.Address) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.cfg.VerifyDelay):
		}

		data, err := chain.EscrowExecutionData(ctx, escrowAddr)
		if err != nil {
			logger.WithError(err).WithField("escrow", escrowAddr.Hex()).
				Warn("fulfiller verification read failed")
			return
		}
		if data.Fullfiller != want {
			logger.WithFields(logger.Fields{
				"escrow": escrowAddr.Hex(),
				"want":   want.Hex(),
				"got":    data.Fullfiller.Hex(),
			}).Error("fulfiller did not persist on-chain")
			return
		}
		logger.WithField("escrow", escrowAddr.Hex()).Debug("fulfiller verified on-chain")
	}()
}

// ValidateClaim checks a claim without touching any chain. Error order
// matters to the HTTP layer: secret first, then existence, then identity.
func (m *TxManager) ValidateClaim(secret [32]byte, hashlock string, user ethcommon.Address) (*state.SwapRecord, error) {
	digest := crypto.Keccak256(secret[:])
	want := common.HexStrToBytes32(hashlock)
	if !bytes.Equal(digest, want[:]) {
		return nil, ErrSecretMismatch
	}

	rec, found, err := m.reg.GetByHashlock(hashlock)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}

	if rec.ExecutionData.Asker != user {
		return nil, ErrNotAsker
	}
	return rec, nil
}

// SubmitClaim validates a claim, stores it as pending and kicks off the
// withdrawal sequence in the background. The returned error only covers
// validation; settlement results land in the registry.
func (m *TxManager) SubmitClaim(ctx context.Context, secret [32]byte, hashlock string, user ethcommon.Address) error {
	rec, err := m.ValidateClaim(secret, hashlock, user)
	if err != nil {
		return err
	}

	claim := &PendingClaim{
		Hashlock:    rec.ExecutionData.Hashlock,
		Secret:      secret,
		UserAddress: user,
		CreatedAt:   time.Now(),
	}
	if !m.claims.Put(claim) {
		return ErrClaimPending
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.ProcessClaim(ctx, claim); err != nil {
			logger.WithError(err).
				WithField("hashlock", common.Shorten(hashlock, 8)).
				Error("claim processing failed")
		}
	}()
	return nil
}

// ProcessClaim runs the strictly ordered settlement sequence for an
// accepted claim: destination withdrawal first, then source. Execution
// data for each leg is re-read from the escrow itself right before the
// withdrawal; the on-chain copy is authoritative over the registry's.
func (m *TxManager) ProcessClaim(ctx context.Context, claim *PendingClaim) error {
	hashlock := ethcommon.Hash(claim.Hashlock).Hex()
	log := logger.WithField("hashlock", common.Shorten(hashlock, 8))

	rec, found, err := m.reg.GetByHashlock(hashlock)
	if err != nil {
		m.claims.Delete(claim.Hashlock)
		return err
	}
	if !found {
		m.claims.Delete(claim.Hashlock)
		return ErrNotFound
	}

	dstChain, ok := m.chains.ByChainID(rec.ExecutionData.DstChainId)
	if !ok {
		m.claims.Delete(claim.Hashlock)
		return fmt.Errorf("%w: dst chain id %s", reconciler.ErrChainNotConfigured, rec.ExecutionData.DstChainId)
	}
	srcChain, ok := m.chains.ByChainID(rec.ExecutionData.SrcChainId)
	if !ok {
		m.claims.Delete(claim.Hashlock)
		return fmt.Errorf("%w: src chain id %s", reconciler.ErrChainNotConfigured, rec.ExecutionData.SrcChainId)
	}

	// Destination leg. A failure here is terminal for this claim: nothing
	// was paid out yet and the user can claim again.
	dstTxHash, err := m.withdraw(ctx, dstChain, rec.DstEscrow, claim.Secret)
	if err != nil {
		m.claims.Delete(claim.Hashlock)
		return fmt.Errorf("destination withdrawal: %w", err)
	}
	log.WithField("tx", dstTxHash.Hex()).Info("destination leg withdrawn")

	// Source leg. The secret is public on the destination chain from here
	// on, so a failure is recoverable: one delayed retry, and beyond that
	// the poller picks the reveal up and settles via the event path.
	srcTxHash, err := m.withdraw(ctx, srcChain, rec.SrcEscrow, claim.Secret)
	if err != nil {
		log.WithError(err).Warn("source leg failed after destination payout, scheduling retry")
		m.recordCompletion(rec, "", dstTxHash.Hex(), state.StatusFulfilled)
		m.retrySourceLater(ctx, srcChain, rec.SrcEscrow, claim)
		return fmt.Errorf("source withdrawal: %w", err)
	}

	m.recordCompletion(rec, srcTxHash.Hex(), dstTxHash.Hex(), state.StatusCompleted)
	m.claims.Delete(claim.Hashlock)
	log.WithFields(logger.Fields{
		"srcTx": srcTxHash.Hex(),
		"dstTx": dstTxHash.Hex(),
	}).Info("swap completed")
	return nil
}

// ExecuteWithdrawSource settles the source leg from a publicly revealed
// secret (the event path, no claim involved).
func (m *TxManager) ExecuteWithdrawSource(ctx context.Context, a *reconciler.WithdrawSourceAction) error {
	chain, ok := m.chains[a.ChainKey]
	if !ok {
		return fmt.Errorf("%w: chain %q", reconciler.ErrChainNotConfigured, a.ChainKey)
	}

	hashlock := ethcommon.Hash(a.Hashlock).Hex()
	rec, found, err := m.reg.GetByHashlock(hashlock)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	if rec.Status == state.StatusCompleted {
		return nil
	}

	txHash, err := m.withdraw(ctx, chain, a.SrcEscrow, a.Secret)
	if err != nil {
		return fmt.Errorf("source withdrawal: %w", err)
	}

	// The destination payout already happened on-chain or the secret would
	// not be public.
	dstTx := ""
	if rec.CompletionTxHashes != nil {
		dstTx = rec.CompletionTxHashes.DstTxHash
	}
	m.recordCompletion(rec, txHash.Hex(), dstTx, state.StatusCompleted)

	logger.WithFields(logger.Fields{
		"hashlock": common.Shorten(hashlock, 8),
		"srcTx":    txHash.Hex(),
	}).Info("source leg settled from revealed secret")
	return nil
}

// withdraw reads the authoritative execution data from the escrow, submits
// the withdrawal and waits for a successful receipt.
func (m *TxManager) withdraw(ctx context.Context, chain etherman.Backend, escrowAddr ethcommon.Address, secret [32]byte) (ethcommon.Hash, error) {
	data, err := chain.EscrowExecutionData(ctx, escrowAddr)
	if err != nil {
		return ethcommon.Hash{}, err
	}

	txHash, err := chain.Withdraw(ctx, escrowAddr, secret, data)
	if err != nil {
		return ethcommon.Hash{}, err
	}
	if err := m.confirm(ctx, chain, txHash, "withdraw"); err != nil {
		return ethcommon.Hash{}, err
	}
	return txHash, nil
}

func (m *TxManager) confirm(ctx context.Context, chain etherman.Backend, txHash ethcommon.Hash, op string) error {
	receipt, err := chain.WaitMined(ctx, txHash)
	if err != nil {
		return err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%s %s: %w", op, txHash.Hex(), etherman.ErrTransactionRejected)
	}
	return nil
}

func (m *TxManager) recordCompletion(rec *state.SwapRecord, srcTx, dstTx string, status state.SwapStatus) {
	update := rec.Clone()
	update.Status = status
	hashes := &state.CompletionTxHashes{SrcTxHash: srcTx, DstTxHash: dstTx}
	if update.CompletionTxHashes != nil {
		if srcTx == "" {
			hashes.SrcTxHash = update.CompletionTxHashes.SrcTxHash
		}
		if dstTx == "" {
			hashes.DstTxHash = update.CompletionTxHashes.DstTxHash
		}
	}
	update.CompletionTxHashes = hashes
	if _, err := m.reg.Upsert(update); err != nil {
		logger.WithError(err).Error("failed to record settlement result")
	}
}

// retrySourceLater performs the single delayed source-withdrawal retry
// after a partial settlement. Whatever the outcome, the claim is removed;
// further recovery goes through the reveal event path.
func (m *TxManager) retrySourceLater(ctx context.Context, chain etherman.Backend, escrowAddr ethcommon.Address, claim *PendingClaim) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.claims.Delete(claim.Hashlock)

		select {
		case <-ctx.Done():
			return
		case <-time.After(m.cfg.SourceRetryDelay):
		}

		hashlock := ethcommon.Hash(claim.Hashlock).Hex()
		rec, found, err := m.reg.GetByHashlock(hashlock)
		if err != nil || !found || rec.Status == state.StatusCompleted {
			return
		}

		txHash, err := m.withdraw(ctx, chain, escrowAddr, claim.Secret)
		if err != nil {
			logger.WithError(err).
				WithField("hashlock", common.Shorten(hashlock, 8)).
				Error("source withdrawal retry failed, waiting for reveal event")
			return
		}

		dstTx := ""
		if rec.CompletionTxHashes != nil {
			dstTx = rec.CompletionTxHashes.DstTxHash
		}
		m.recordCompletion(rec, txHash.Hex(), dstTx, state.StatusCompleted)
		logger.WithField("hashlock", common.Shorten(hashlock, 8)).
			Info("source leg settled on retry")
	}()
}
