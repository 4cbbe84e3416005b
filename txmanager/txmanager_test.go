package txmanager

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerswap-io/relayer-go/common"
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

type testEnv struct {
	reg    *state.Registry
	src    *etherman.MockBackend
	dst    *etherman.MockBackend
	claims *ClaimStore
	txm    *TxManager
}

func newTestEnv(t *testing.T) (*testEnv, func()) {
	sqlDB, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	statedb, err := state.NewStateDB(sqlDB)
	require.NoError(t, err)

	signer := common.RandEthAddress()
	src := etherman.NewMockBackend(srcChainKey, srcChainId)
	src.MockSigner = signer
	src.RelayerAddr = signer
	dst := etherman.NewMockBackend(dstChainKey, dstChainId)
	dst.MockSigner = signer
	dst.RelayerAddr = signer

	reg := state.NewRegistry(statedb)
	claims := NewClaimStore()
	txm := New(reg, etherman.Set{srcChainKey: src, dstChainKey: dst}, claims, &Config{
		VerifyDelay:      time.Millisecond,
		SourceRetryDelay: 50 * time.Millisecond,
	})

	env := &testEnv{reg: reg, src: src, dst: dst, claims: claims, txm: txm}
	return env, func() {
		txm.Wait()
		statedb.Close()
		sqlDB.Close()
	}
}

// seedFulfilled registers a swap with both escrows live on their chains.
func (env *testEnv) seedFulfilled(t *testing.T) (*state.SwapRecord, [32]byte) {
	rec, secret := state.RandSwapRecord(srcChainKey, srcChainId, dstChainId)
	rec.SrcDeployed = true
	rec.DstDeployed = true
	merged, err := env.reg.Upsert(rec)
	require.NoError(t, err)

	env.src.Code[rec.SrcEscrow] = true
	env.src.Active[rec.SrcEscrow] = true
	env.src.Data[rec.SrcEscrow] = &rec.ExecutionData
	env.dst.Code[rec.DstEscrow] = true
	env.dst.Active[rec.DstEscrow] = true
	env.dst.Data[rec.DstEscrow] = &rec.ExecutionData

	return merged, secret
}

func TestValidateClaimSecretMismatch(t *testing.T) {
	env, close := newTestEnv(t)
	defer close()
	rec, _ := env.seedFulfilled(t)

	wrong := common.RandBytes32()
	_, err := env.txm.ValidateClaim(wrong, rec.ExecutionData.HashlockHex(), rec.ExecutionData.Asker)
	assert.ErrorIs(t, err, ErrSecretMismatch)
}

func TestValidateClaimUnknownSwap(t *testing.T) {
	env, close := newTestEnv(t)
	defer close()

	rec, secret := state.RandSwapRecord(srcChainKey, srcChainId, dstChainId)
	_, err := env.txm.ValidateClaim(secret, rec.ExecutionData.HashlockHex(), rec.ExecutionData.Asker)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestValidateClaimWrongCaller(t *testing.T) {
	env, close := newTestEnv(t)
	defer close()
	rec, secret := env.seedFulfilled(t)

	_, err := env.txm.ValidateClaim(secret, rec.ExecutionData.HashlockHex(), common.RandEthAddress())
	assert.ErrorIs(t, err, ErrNotAsker)
}

func TestSubmitClaimSettlesBothLegs(t *testing.T) {
	env, close := newTestEnv(t)
	defer close()
	rec, secret := env.seedFulfilled(t)

	err := env.txm.SubmitClaim(context.Background(), secret, rec.ExecutionData.HashlockHex(), rec.ExecutionData.Asker)
	require.NoError(t, err)
	env.txm.Wait()

	assert.Equal(t, 1, env.dst.WithdrawCount())
	assert.Equal(t, 1, env.src.WithdrawCount())
	assert.Equal(t, 0, env.claims.Len())

	got, _, err := env.reg.GetByHashlock(rec.HashlockKey())
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, got.Status)
	require.NotNil(t, got.CompletionTxHashes)
	assert.NotEmpty(t, got.CompletionTxHashes.SrcTxHash)
	assert.NotEmpty(t, got.CompletionTxHashes.DstTxHash)
}

func TestSubmitClaimRejectsDuplicate(t *testing.T) {
	env, close := newTestEnv(t)
	defer close()
	rec, secret := env.seedFulfilled(t)

	ok := env.claims.Put(&PendingClaim{Hashlock: rec.ExecutionData.Hashlock, Secret: secret})
	require.True(t, ok)

	err := env.txm.SubmitClaim(context.Background(), secret, rec.ExecutionData.HashlockHex(), rec.ExecutionData.Asker)
	assert.ErrorIs(t, err, ErrClaimPending)
}

func TestProcessClaimDstFailureIsTerminal(t *testing.T) {
	env, close := newTestEnv(t)
	defer close()
	rec, secret := env.seedFulfilled(t)

	env.dst.SetWriteErr(errors.New("execution reverted"))

	claim := &PendingClaim{Hashlock: rec.ExecutionData.Hashlock, Secret: secret, UserAddress: rec.ExecutionData.Asker}
	require.True(t, env.claims.Put(claim))

	err := env.txm.ProcessClaim(context.Background(), claim)
	require.Error(t, err)

	// Nothing paid out on the source side, claim cleared, status untouched.
	assert.Equal(t, 0, env.src.WithdrawCount())
	assert.Equal(t, 0, env.claims.Len())

	got, _, err := env.reg.GetByHashlock(rec.HashlockKey())
	require.NoError(t, err)
	assert.Equal(t, state.StatusFulfilled, got.Status)
}

func TestProcessClaimSrcFailureRetriesOnce(t *testing.T) {
	env, close := newTestEnv(t)
	defer close()
	rec, secret := env.seedFulfilled(t)

	env.src.SetWriteErr(errors.New("nonce too low"))

	claim := &PendingClaim{Hashlock: rec.ExecutionData.Hashlock, Secret: secret, UserAddress: rec.ExecutionData.Asker}
	require.True(t, env.claims.Put(claim))

	err := env.txm.ProcessClaim(context.Background(), claim)
	require.Error(t, err)
	assert.Equal(t, 1, env.dst.WithdrawCount())

	// Destination tx hash already recorded while the source leg is open.
	got, _, err := env.reg.GetByHashlock(rec.HashlockKey())
	require.NoError(t, err)
	assert.Equal(t, state.StatusFulfilled, got.Status)
	require.NotNil(t, got.CompletionTxHashes)
	assert.NotEmpty(t, got.CompletionTxHashes.DstTxHash)
	assert.Empty(t, got.CompletionTxHashes.SrcTxHash)

	// Let the delayed retry run against a recovered chain.
	env.src.SetWriteErr(nil)
	env.txm.Wait()

	assert.Equal(t, 1, env.src.WithdrawCount())
	assert.Equal(t, 0, env.claims.Len())

	got, _, err = env.reg.GetByHashlock(rec.HashlockKey())
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, got.Status)
	assert.NotEmpty(t, got.CompletionTxHashes.SrcTxHash)
	assert.NotEmpty(t, got.CompletionTxHashes.DstTxHash)
}

func TestExecuteSetFulfillerHappyPath(t *testing.T) {
	env, close := newTestEnv(t)
	defer close()
	rec, _ := env.seedFulfilled(t)

	err := env.txm.ExecuteSetFulfiller(context.Background(), &reconciler.SetFulfillerAction{
		ChainKey:  srcChainKey,
		SrcEscrow: rec.SrcEscrow,
		Fulfiller: env.src.MockSigner,
		Hashlock:  rec.ExecutionData.Hashlock,
	})
	require.NoError(t, err)
	env.txm.Wait()

	require.Equal(t, 1, env.src.SetFulfillerCount())
	assert.Equal(t, env.src.MockSigner, env.src.SetFulfillerCalls[0].Fulfiller)
	assert.Equal(t, rec.SrcEscrow, env.src.SetFulfillerCalls[0].Escrow)
}

func TestExecuteSetFulfillerAbortsOnRelayerMismatch(t *testing.T) {
	env, close := newTestEnv(t)
	defer close()
	rec, _ := env.seedFulfilled(t)

	env.src.RelayerAddr = common.RandEthAddress()

	err := env.txm.ExecuteSetFulfiller(context.Background(), &reconciler.SetFulfillerAction{
		ChainKey:  srcChainKey,
		SrcEscrow: rec.SrcEscrow,
		Fulfiller: env.src.MockSigner,
		Hashlock:  rec.ExecutionData.Hashlock,
	})
	assert.ErrorIs(t, err, ErrConfigMismatch)
	assert.Equal(t, 0, env.src.SetFulfillerCount())
}

func TestExecuteSetFulfillerSkipsInactiveEscrow(t *testing.T) {
	env, close := newTestEnv(t)
	defer close()
	rec, _ := env.seedFulfilled(t)

	env.src.Active[rec.SrcEscrow] = false

	err := env.txm.ExecuteSetFulfiller(context.Background(), &reconciler.SetFulfillerAction{
		ChainKey:  srcChainKey,
		SrcEscrow: rec.SrcEscrow,
		Fulfiller: env.src.MockSigner,
		Hashlock:  rec.ExecutionData.Hashlock,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, env.src.SetFulfillerCount())
}

func TestExecuteSetFulfillerNoopWhenAlreadySet(t *testing.T) {
	env, close := newTestEnv(t)
	defer close()
	rec, _ := env.seedFulfilled(t)

	data := rec.ExecutionData
	data.Fullfiller = env.src.MockSigner
	env.src.Data[rec.SrcEscrow] = &data

	err := env.txm.ExecuteSetFulfiller(context.Background(), &reconciler.SetFulfillerAction{
		ChainKey:  srcChainKey,
		SrcEscrow: rec.SrcEscrow,
		Fulfiller: env.src.MockSigner,
		Hashlock:  rec.ExecutionData.Hashlock,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, env.src.SetFulfillerCount())
}

func TestExecuteSetFulfillerRequiresBytecode(t *testing.T) {
	env, close := newTestEnv(t)
	defer close()
	rec, _ := env.seedFulfilled(t)

	env.src.Code[rec.SrcEscrow] = false

	err := env.txm.ExecuteSetFulfiller(context.Background(), &reconciler.SetFulfillerAction{
		ChainKey:  srcChainKey,
		SrcEscrow: rec.SrcEscrow,
		Fulfiller: env.src.MockSigner,
		Hashlock:  rec.ExecutionData.Hashlock,
	})
	assert.Error(t, err)
	assert.Equal(t, 0, env.src.SetFulfillerCount())
}

func TestExecuteWithdrawSourceSettles(t *testing.T) {
	env, close := newTestEnv(t)
	defer close()
	rec, secret := env.seedFulfilled(t)

	err := env.txm.ExecuteWithdrawSource(context.Background(), &reconciler.WithdrawSourceAction{
		ChainKey:  srcChainKey,
		SrcEscrow: rec.SrcEscrow,
		Secret:    secret,
		Hashlock:  rec.ExecutionData.Hashlock,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, env.src.WithdrawCount())

	got, _, err := env.reg.GetByHashlock(rec.HashlockKey())
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, got.Status)
	require.NotNil(t, got.CompletionTxHashes)
	assert.NotEmpty(t, got.CompletionTxHashes.SrcTxHash)
}

func TestExecuteWithdrawSourceSkipsCompletedSwap(t *testing.T) {
	env, close := newTestEnv(t)
	defer close()
	rec, secret := env.seedFulfilled(t)

	done := rec.Clone()
	done.Status = state.StatusCompleted
	_, err := env.reg.Upsert(done)
	require.NoError(t, err)

	err = env.txm.ExecuteWithdrawSource(context.Background(), &reconciler.WithdrawSourceAction{
		ChainKey:  srcChainKey,
		SrcEscrow: rec.SrcEscrow,
		Secret:    secret,
		Hashlock:  rec.ExecutionData.Hashlock,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, env.src.WithdrawCount())
}
