package chainsync

import (
	"context"
	"database/sql"
	"errors"
	"math/big"
	"sync"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerswap-io/relayer-go/common"
	"github.com/peerswap-io/relayer-go/contracts/escrow"
	"github.com/peerswap-io/relayer-go/etherman"
	"github.com/peerswap-io/relayer-go/reconciler"
	"github.com/peerswap-io/relayer-go/state"
)

const (
	srcChainKey = "sepolia"
	dstChainKey = "base-sepolia"
	srcChainId  = 11155111
	dstChainId  = 84532
)

type fakeExecutor struct {
	mu      sync.Mutex
	actions []reconciler.Action
}

func (f *fakeExecutor) Execute(ctx context.Context, action reconciler.Action) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
	return nil
}

func (f *fakeExecutor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.actions)
}

type testEnv struct {
	reg  *state.Registry
	src  *etherman.MockBackend
	dst  *etherman.MockBackend
	rc   *reconciler.Reconciler
	exec *fakeExecutor
}

func newTestEnv(t *testing.T) (*testEnv, func()) {
	sqlDB, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	statedb, err := state.NewStateDB(sqlDB)
	require.NoError(t, err)

	src := etherman.NewMockBackend(srcChainKey, srcChainId)
	src.MockFactoryAddress = common.RandEthAddress()
	src.MockSigner = common.RandEthAddress()
	dst := etherman.NewMockBackend(dstChainKey, dstChainId)
	dst.MockFactoryAddress = common.RandEthAddress()
	dst.MockSigner = src.MockSigner

	reg := state.NewRegistry(statedb)
	rc := reconciler.New(reg, etherman.Set{srcChainKey: src, dstChainKey: dst})

	return &testEnv{reg: reg, src: src, dst: dst, rc: rc, exec: &fakeExecutor{}}, func() {
		statedb.Close()
		sqlDB.Close()
	}
}

func (env *testEnv) newSync(t *testing.T, chain *etherman.MockBackend) *Synchronizer {
	s, err := New(chain, env.reg, env.rc, env.exec, &Config{})
	require.NoError(t, err)
	return s
}

func TestFirstTickPinsCursorToHead(t *testing.T) {
	env, close := newTestEnv(t)
	defer close()

	env.src.Height = big.NewInt(100)
	s := env.newSync(t, env.src)
	require.Nil(t, s.Cursor())

	require.NoError(t, s.SyncOnce(context.Background()))
	assert.Equal(t, big.NewInt(100), s.Cursor())

	stored, found, err := env.reg.GetChainCursor(srcChainKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, big.NewInt(100), stored)
}

func TestResumeFromPersistedCursor(t *testing.T) {
	env, close := newTestEnv(t)
	defer close()

	require.NoError(t, env.reg.SetChainCursor(srcChainKey, big.NewInt(50)))
	s := env.newSync(t, env.src)
	assert.Equal(t, big.NewInt(50), s.Cursor())
}

func TestSyncProcessesFactoryLogs(t *testing.T) {
	env, close := newTestEnv(t)
	defer close()

	rec, _ := state.RandSwapRecord(srcChainKey, srcChainId, dstChainId)
	_, err := env.reg.Upsert(rec)
	require.NoError(t, err)
	env.src.Code[rec.SrcEscrow] = true

	env.src.Height = big.NewInt(100)
	s := env.newSync(t, env.src)
	require.NoError(t, s.SyncOnce(context.Background()))

	vlog, err := escrow.NewSrcEscrowCreatedLog(env.src.MockFactoryAddress, 105, rec.ExecutionData)
	require.NoError(t, err)
	env.src.Logs[env.src.MockFactoryAddress] = []types.Log{vlog}
	env.src.Height = big.NewInt(110)

	require.NoError(t, s.SyncOnce(context.Background()))
	assert.Equal(t, big.NewInt(110), s.Cursor())

	got, _, err := env.reg.GetByHashlock(rec.HashlockKey())
	require.NoError(t, err)
	assert.True(t, got.SrcDeployed)
}

func TestCursorHeldOnRpcFailure(t *testing.T) {
	env, close := newTestEnv(t)
	defer close()

	env.src.Height = big.NewInt(100)
	s := env.newSync(t, env.src)
	require.NoError(t, s.SyncOnce(context.Background()))

	env.src.Height = big.NewInt(110)
	env.src.SetReadErr(errors.New("rpc down"))

	err := s.SyncOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, big.NewInt(100), s.Cursor())

	// Recovery reprocesses the same range.
	env.src.SetReadErr(nil)
	require.NoError(t, s.SyncOnce(context.Background()))
	assert.Equal(t, big.NewInt(110), s.Cursor())
}

func TestNoNewBlocksIsANoop(t *testing.T) {
	env, close := newTestEnv(t)
	defer close()

	env.src.Height = big.NewInt(100)
	s := env.newSync(t, env.src)
	require.NoError(t, s.SyncOnce(context.Background()))
	require.NoError(t, s.SyncOnce(context.Background()))
	assert.Equal(t, big.NewInt(100), s.Cursor())
}

func TestRevealScanOnDestinationChain(t *testing.T) {
	env, close := newTestEnv(t)
	defer close()

	rec, secret := state.RandSwapRecord(srcChainKey, srcChainId, dstChainId)
	rec.SrcDeployed = true
	rec.DstDeployed = true
	_, err := env.reg.Upsert(rec)
	require.NoError(t, err)

	env.dst.Height = big.NewInt(200)
	s := env.newSync(t, env.dst)
	require.NoError(t, s.SyncOnce(context.Background()))

	vlog, err := escrow.NewDstSecretRevealedLog(rec.DstEscrow, 205, secret, rec.ExecutionData.Hashlock)
	require.NoError(t, err)
	env.dst.Logs[rec.DstEscrow] = []types.Log{vlog}
	env.dst.Height = big.NewInt(210)

	require.NoError(t, s.SyncOnce(context.Background()))

	require.Equal(t, 1, env.exec.count())
	action, ok := env.exec.actions[0].(*reconciler.WithdrawSourceAction)
	require.True(t, ok)
	assert.Equal(t, srcChainKey, action.ChainKey)
	assert.Equal(t, secret, action.Secret)
}

func TestUnreconcilableEventDoesNotPinCursor(t *testing.T) {
	env, close := newTestEnv(t)
	defer close()

	// Registered record whose source chain id no backend serves. Its
	// events can never reconcile and must not block the range.
	rec, _ := state.RandSwapRecord(srcChainKey, 404404, dstChainId)
	_, err := env.reg.Upsert(rec)
	require.NoError(t, err)

	env.src.Height = big.NewInt(100)
	s := env.newSync(t, env.src)
	require.NoError(t, s.SyncOnce(context.Background()))

	vlog, err := escrow.NewSrcEscrowCreatedLog(env.src.MockFactoryAddress, 103, rec.ExecutionData)
	require.NoError(t, err)
	env.src.Logs[env.src.MockFactoryAddress] = []types.Log{vlog}
	env.src.Height = big.NewInt(110)

	require.NoError(t, s.SyncOnce(context.Background()))
	assert.Equal(t, big.NewInt(110), s.Cursor())
	assert.Equal(t, 0, env.exec.count())
}

func TestUnknownLogsAreSkipped(t *testing.T) {
	env, close := newTestEnv(t)
	defer close()

	env.src.Height = big.NewInt(100)
	s := env.newSync(t, env.src)
	require.NoError(t, s.SyncOnce(context.Background()))

	garbage := types.Log{
		Address:     env.src.MockFactoryAddress,
		Topics:      []ethcommon.Hash{common.RandEthHash()},
		BlockNumber: 101,
	}
	env.src.Logs[env.src.MockFactoryAddress] = []types.Log{garbage}
	env.src.Height = big.NewInt(105)

	require.NoError(t, s.SyncOnce(context.Background()))
	assert.Equal(t, big.NewInt(105), s.Cursor())
	assert.Equal(t, 0, env.exec.count())
}
