package reconciler

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	logger "github.com/sirupsen/logrus"

	"github.com/peerswap-io/relayer-go/common"
	"github.com/peerswap-io/relayer-go/contracts/escrow"
	"github.com/peerswap-io/relayer-go/etherman"
	"github.com/peerswap-io/relayer-go/state"
)

// ErrChainNotConfigured is returned when an event or record references a
// chain id no backend in the set serves.
var ErrChainNotConfigured = errors.New("chain not configured")

// Reconciler folds decoded chain events into the swap registry and emits
// the follow-up chain writes as actions. It is the only component that
// derives deployment flags from events; the tx manager carries out the
// actions.
type Reconciler struct {
	reg    *state.Registry
	chains etherman.Set
}

func New(reg *state.Registry, chains etherman.Set) *Reconciler {
	return &Reconciler{reg: reg, chains: chains}
}

// Reconcile applies one decoded event observed on chainKey. Replaying the
// same event is harmless: flag upserts are monotonic and the handoff action
// is only emitted on the flag transition that happens in this call.
func (r *Reconciler) Reconcile(ctx context.Context, chainKey string, ev escrow.Event) ([]Action, error) {
	switch e := ev.(type) {
	case *escrow.SrcEscrowCreatedEvent:
		return r.onSrcEscrowCreated(ctx, chainKey, e)
	case *escrow.DstEscrowCreatedEvent:
		return r.onDstEscrowCreated(ctx, chainKey, e)
	case *escrow.FulfillerSetEvent:
		r.onFulfillerSet(chainKey, e)
		return nil, nil
	case *escrow.DstSecretRevealedEvent:
		return r.onDstSecretRevealed(chainKey, e)
	default:
		return nil, fmt.Errorf("reconcile: unhandled event %q", ev.EventName())
	}
}

// onSrcEscrowCreated marks the source leg deployed, but only after the
// escrow bytecode is confirmed on the chain the execution data names as the
// source chain. The factory emitting the event is not necessarily on that
// chain.
func (r *Reconciler) onSrcEscrowCreated(ctx context.Context, chainKey string, ev *escrow.SrcEscrowCreatedEvent) ([]Action, error) {
	hashlock := ev.ExecutionData.HashlockHex()
	log := logger.WithFields(logger.Fields{
		"chain":    chainKey,
		"event":    ev.EventName(),
		"hashlock": common.Shorten(hashlock, 8),
	})

	rec, found, err := r.reg.GetByHashlock(hashlock)
	if err != nil {
		return nil, err
	}
	if !found {
		log.Warn("event for unknown swap, dropped")
		return nil, nil
	}

	srcChain, ok := r.chains.ByChainID(ev.ExecutionData.SrcChainId)
	if !ok {
		return nil, fmt.Errorf("%w: src chain id %s", ErrChainNotConfigured, ev.ExecutionData.SrcChainId)
	}

	srcEscrow := rec.SrcEscrow
	if srcEscrow == (ethcommon.Address{}) {
		srcEscrow, err = srcChain.AddressOfEscrowSrc(ctx, &ev.ExecutionData)
		if err != nil {
			return nil, err
		}
	}

	deployed, err := srcChain.HasCode(ctx, srcEscrow)
	if err != nil {
		// Inconclusive. The deploy checker upgrades the flag later.
		log.WithError(err).Warn("bytecode check failed, leaving flags unchanged")
		return nil, nil
	}
	if !deployed {
		log.WithField("escrow", srcEscrow.Hex()).Warn("no bytecode at source escrow yet")
		return nil, nil
	}

	update := rec.Clone()
	update.SrcEscrow = srcEscrow
	update.SrcDeployed = true

	merged, err := r.reg.Upsert(update)
	if err != nil {
		return nil, err
	}
	log.Info("source escrow confirmed deployed")

	return r.handoffIfJustFulfilled(rec, merged, srcChain)
}

// onDstEscrowCreated marks the destination leg deployed. The event's escrow
// address is authoritative and overwrites whatever was computed at
// registration time.
func (r *Reconciler) onDstEscrowCreated(ctx context.Context, chainKey string, ev *escrow.DstEscrowCreatedEvent) ([]Action, error) {
	hashlock := hexutil.Encode(ev.Hashlock[:])
	log := logger.WithFields(logger.Fields{
		"chain":    chainKey,
		"event":    ev.EventName(),
		"hashlock": common.Shorten(hashlock, 8),
	})

	rec, found, err := r.reg.GetByHashlock(hashlock)
	if err != nil {
		return nil, err
	}
	if !found {
		log.Warn("event for unknown swap, dropped")
		return nil, nil
	}

	update := rec.Clone()
	update.DstEscrow = ev.Escrow
	update.DstDeployed = true

	merged, err := r.reg.Upsert(update)
	if err != nil {
		return nil, err
	}
	log.WithField("escrow", ev.Escrow.Hex()).Info("destination escrow deployed")

	srcChain, ok := r.chains.ByChainID(merged.ExecutionData.SrcChainId)
	if !ok {
		return nil, fmt.Errorf("%w: src chain id %s", ErrChainNotConfigured, merged.ExecutionData.SrcChainId)
	}

	return r.handoffIfJustFulfilled(rec, merged, srcChain)
}

// handoffIfJustFulfilled emits the SetFulfiller handoff when, and only
// when, this reconcile call took the record from one leg deployed to both.
// Either event order triggers it exactly once.
func (r *Reconciler) handoffIfJustFulfilled(before, after *state.SwapRecord, srcChain etherman.Backend) ([]Action, error) {
	if !(after.SrcDeployed && after.DstDeployed) {
		return nil, nil
	}
	if before.SrcDeployed && before.DstDeployed {
		return nil, nil
	}
	if after.Status == state.StatusCompleted {
		return nil, nil
	}

	return []Action{&SetFulfillerAction{
		ChainKey:  srcChain.ChainKey(),
		SrcEscrow: after.SrcEscrow,
		Fulfiller: srcChain.Signer(),
		Hashlock:  after.ExecutionData.Hashlock,
	}}, nil
}

func (r *Reconciler) onFulfillerSet(chainKey string, ev *escrow.FulfillerSetEvent) {
	logger.WithFields(logger.Fields{
		"chain":     chainKey,
		"srcEscrow": ev.SrcEscrowAddress.Hex(),
		"fulfiller": ev.FulfillerAddress.Hex(),
	}).Info("fulfiller handoff confirmed on-chain")
}

// onDstSecretRevealed schedules the source-side withdrawal with the secret
// the asker published on the destination chain.
func (r *Reconciler) onDstSecretRevealed(chainKey string, ev *escrow.DstSecretRevealedEvent) ([]Action, error) {
	hashlock := hexutil.Encode(ev.Hashlock[:])
	log := logger.WithFields(logger.Fields{
		"chain":    chainKey,
		"event":    ev.EventName(),
		"hashlock": common.Shorten(hashlock, 8),
	})

	digest := crypto.Keccak256(ev.Secret[:])
	if !bytes.Equal(digest, ev.Hashlock[:]) {
		log.Warn("revealed secret does not hash to the hashlock, dropped")
		return nil, nil
	}

	rec, found, err := r.reg.GetByHashlock(hashlock)
	if err != nil {
		return nil, err
	}
	if !found {
		log.Warn("secret revealed for unknown swap, dropped")
		return nil, nil
	}
	if rec.Status == state.StatusCompleted {
		log.Debug("swap already completed, reveal ignored")
		return nil, nil
	}

	srcChain, ok := r.chains.ByChainID(rec.ExecutionData.SrcChainId)
	if !ok {
		return nil, fmt.Errorf("%w: src chain id %s", ErrChainNotConfigured, rec.ExecutionData.SrcChainId)
	}

	log.Info("secret revealed, scheduling source withdrawal")
	return []Action{&WithdrawSourceAction{
		ChainKey:  srcChain.ChainKey(),
		SrcEscrow: rec.SrcEscrow,
		Secret:    ev.Secret,
		Hashlock:  ev.Hashlock,
	}}, nil
}
