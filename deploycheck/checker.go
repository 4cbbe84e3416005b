package deploycheck

import (
	"context"
	"fmt"

	ethcommon "github.com/ethereum/go-ethereum/common"
	logger "github.com/sirupsen/logrus"

	"github.com/peerswap-io/relayer-go/common"
	"github.com/peerswap-io/relayer-go/etherman"
	"github.com/peerswap-io/relayer-go/reconciler"
	"github.com/peerswap-io/relayer-go/state"
)

// Checker upgrades a swap's deployment flags by probing for escrow
// bytecode on both chains. It is the on-demand complement to the event
// path: the status endpoint and the bulk endpoint call it so a swap whose
// events were missed still converges.
type Checker struct {
	reg    *state.Registry
	chains etherman.Set
}

func New(reg *state.Registry, chains etherman.Set) *Checker {
	return &Checker{reg: reg, chains: chains}
}

// CheckSwap probes both escrows and returns the refreshed record. An RPC
// failure on one side falls back to the stored flag for that side; flags
// only ever go false to true.
func (c *Checker) CheckSwap(ctx context.Context, rec *state.SwapRecord) (*state.SwapRecord, error) {
	srcChain, ok := c.chains.ByChainID(rec.ExecutionData.SrcChainId)
	if !ok {
		return nil, fmt.Errorf("%w: src chain id %s", reconciler.ErrChainNotConfigured, rec.ExecutionData.SrcChainId)
	}
	dstChain, ok := c.chains.ByChainID(rec.ExecutionData.DstChainId)
	if !ok {
		return nil, fmt.Errorf("%w: dst chain id %s", reconciler.ErrChainNotConfigured, rec.ExecutionData.DstChainId)
	}

	srcDeployed := c.probe(ctx, srcChain, rec.SrcEscrow, rec.SrcDeployed, rec)
	dstDeployed := c.probe(ctx, dstChain, rec.DstEscrow, rec.DstDeployed, rec)

	if srcDeployed == rec.SrcDeployed && dstDeployed == rec.DstDeployed {
		return rec, nil
	}

	update := rec.Clone()
	update.SrcDeployed = srcDeployed
	update.DstDeployed = dstDeployed
	return c.reg.Upsert(update)
}

// probe returns the deployment verdict for one escrow, falling back to the
// stored flag when the chain cannot answer.
func (c *Checker) probe(ctx context.Context, chain etherman.Backend, escrowAddr ethcommon.Address, stored bool, rec *state.SwapRecord) bool {
	if stored {
		return true
	}
	if escrowAddr == (ethcommon.Address{}) {
		return false
	}

	deployed, err := chain.HasCode(ctx, escrowAddr)
	if err != nil {
		logger.WithError(err).WithFields(logger.Fields{
			"chain":    chain.ChainKey(),
			"escrow":   escrowAddr.Hex(),
			"hashlock": common.Shorten(rec.ExecutionData.HashlockHex(), 8),
		}).Warn("bytecode probe failed, keeping stored flag")
		return stored
	}
	return deployed
}

// CheckAll refreshes every non-completed swap. Per-swap failures are
// logged and skipped so one bad record does not stall the sweep.
func (c *Checker) CheckAll(ctx context.Context) ([]*state.SwapRecord, error) {
	records, err := c.reg.List("")
	if err != nil {
		return nil, err
	}

	out := make([]*state.SwapRecord, 0, len(records))
	for _, rec := range records {
		if rec.Status == state.StatusCompleted {
			out = append(out, rec)
			continue
		}
		refreshed, err := c.CheckSwap(ctx, rec)
		if err != nil {
			logger.WithError(err).
				WithField("hashlock", common.Shorten(rec.ExecutionData.HashlockHex(), 8)).
				Warn("deployment check failed for swap")
			out = append(out, rec)
			continue
		}
		out = append(out, refreshed)
	}
	return out, nil
}
