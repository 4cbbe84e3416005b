package chainsync

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	logger "github.com/sirupsen/logrus"

	"github.com/peerswap-io/relayer-go/common"
	"github.com/peerswap-io/relayer-go/contracts/escrow"
	"github.com/peerswap-io/relayer-go/etherman"
	"github.com/peerswap-io/relayer-go/reconciler"
	"github.com/peerswap-io/relayer-go/state"
)

// ActionExecutor runs the chain writes a reconcile pass schedules.
// *txmanager.TxManager implements it.
type ActionExecutor interface {
	Execute(ctx context.Context, action reconciler.Action) error
}

// Synchronizer polls one chain for escrow events and feeds them through
// the reconciler. One instance per configured chain; each keeps its own
// persisted block cursor and the two never coordinate.
type Synchronizer struct {
	chain  etherman.Backend
	reg    *state.Registry
	rc     *reconciler.Reconciler
	exec   ActionExecutor
	cfg    Config
	cursor *big.Int
}

func New(chain etherman.Backend, reg *state.Registry, rc *reconciler.Reconciler, exec ActionExecutor, cfg *Config) (*Synchronizer, error) {
	cursor, found, err := reg.GetChainCursor(chain.ChainKey())
	if err != nil {
		return nil, err
	}
	if !found {
		// First start on this chain: the first tick pins the cursor to the
		// current head, no historical backfill.
		cursor = nil
	}

	return &Synchronizer{
		chain:  chain,
		reg:    reg,
		rc:     rc,
		exec:   exec,
		cfg:    cfg.withDefaults(),
		cursor: cursor,
	}, nil
}

// Sync runs the poll loop until ctx is cancelled. A failed tick keeps the
// cursor where it was and retries the same range after RetryBackoff.
func (s *Synchronizer) Sync(ctx context.Context) error {
	log := logger.WithField("chain", s.chain.ChainKey())
	log.Info("starting chain synchronization")
	defer log.Info("stopping chain synchronization")

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.SyncOnce(ctx); err != nil {
				log.WithError(err).Warn("sync tick failed, backing off")
				ticker.Reset(s.cfg.RetryBackoff)
				continue
			}
			ticker.Reset(s.cfg.PollInterval)
		}
	}
}

// SyncOnce processes the block range between the cursor and the current
// head. The cursor moves, and is persisted, only after the whole range
// went through; a mid-range failure reprocesses the range next tick, which
// the reconciler tolerates.
func (s *Synchronizer) SyncOnce(ctx context.Context) error {
	head, err := s.chain.BlockNumber(ctx)
	if err != nil {
		return err
	}

	if s.cursor == nil {
		s.cursor = head
		return s.reg.SetChainCursor(s.chain.ChainKey(), head)
	}
	if head.Cmp(s.cursor) <= 0 {
		return nil
	}

	from := new(big.Int).Add(s.cursor, big.NewInt(1))
	if err := s.scanFactory(ctx, from, head); err != nil {
		return err
	}
	if err := s.scanDstEscrows(ctx, from, head); err != nil {
		return err
	}

	s.cursor = head
	return s.reg.SetChainCursor(s.chain.ChainKey(), head)
}

// scanFactory fetches and dispatches factory logs for the range.
func (s *Synchronizer) scanFactory(ctx context.Context, from, to *big.Int) error {
	logs, err := s.chain.FilterLogs(ctx, s.chain.FactoryAddress(), from, to)
	if err != nil {
		return err
	}
	if len(logs) > 0 {
		logger.WithFields(logger.Fields{
			"chain": s.chain.ChainKey(),
			"from":  from,
			"to":    to,
			"count": len(logs),
		}).Debug("factory logs fetched")
	}
	return s.dispatch(ctx, logs)
}

// scanDstEscrows fetches reveal logs from every known destination escrow
// on this chain. The secret reveal is emitted by the escrow itself, not
// the factory, so factory filtering alone would miss it.
func (s *Synchronizer) scanDstEscrows(ctx context.Context, from, to *big.Int) error {
	records, err := s.reg.List("")
	if err != nil {
		return err
	}

	for _, rec := range records {
		if !rec.DstDeployed || rec.Status == state.StatusCompleted {
			continue
		}
		if rec.ExecutionData.DstChainId == nil || rec.ExecutionData.DstChainId.Cmp(s.chain.ChainID()) != 0 {
			continue
		}

		logs, err := s.chain.FilterLogs(ctx, rec.DstEscrow, from, to)
		if err != nil {
			return err
		}
		if err := s.dispatch(ctx, logs); err != nil {
			return err
		}
	}
	return nil
}

// dispatch decodes each log and hands recognized events to the
// reconciler, then runs whatever actions come back. Undecodable or
// unknown logs are skipped; an action failure is logged but does not
// poison the cursor, recovery for lost writes goes through the
// deployment checker and the claim path.
func (s *Synchronizer) dispatch(ctx context.Context, logs []types.Log) error {
	for _, vlog := range logs {
		ev, err := escrow.DecodeLog(vlog)
		if err != nil {
			if !errors.Is(err, escrow.ErrUnknownEvent) {
				logger.WithError(err).WithFields(logger.Fields{
					"chain": s.chain.ChainKey(),
					"tx":    vlog.TxHash.Hex(),
				}).Warn("undecodable log skipped")
			}
			continue
		}

		actions, err := s.rc.Reconcile(ctx, s.chain.ChainKey(), ev)
		if err != nil {
			// An event naming an unconfigured chain will never reconcile,
			// retrying it would pin the cursor forever. Skip it; transient
			// failures still fail the tick and retry the range.
			if errors.Is(err, reconciler.ErrChainNotConfigured) {
				logger.WithError(err).WithFields(logger.Fields{
					"chain": s.chain.ChainKey(),
					"event": ev.EventName(),
					"tx":    vlog.TxHash.Hex(),
				}).Error("unreconcilable event skipped")
				continue
			}
			return err
		}

		for _, action := range actions {
			if err := s.exec.Execute(ctx, action); err != nil {
				logger.WithError(err).WithFields(logger.Fields{
					"chain":  s.chain.ChainKey(),
					"action": action.ActionName(),
				}).Error("scheduled action failed")
			}
		}
	}
	return nil
}

// Cursor returns the last fully processed block, nil before the first
// tick on a fresh chain.
func (s *Synchronizer) Cursor() *big.Int {
	return common.BigIntClone(s.cursor)
}
