package reporter

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerswap-io/relayer-go/common"
	"github.com/peerswap-io/relayer-go/deploycheck"
	"github.com/peerswap-io/relayer-go/etherman"
	"github.com/peerswap-io/relayer-go/state"
	"github.com/peerswap-io/relayer-go/txmanager"
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
	txm    *txmanager.TxManager
	router *gin.Engine
}

func newTestEnv(t *testing.T) (*testEnv, func()) {
	gin.SetMode(gin.TestMode)

	sqlDB, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	statedb, err := state.NewStateDB(sqlDB)
	require.NoError(t, err)

	signer := common.RandEthAddress()
	src := etherman.NewMockBackend(srcChainKey, srcChainId)
	src.MockSigner = signer
	src.RelayerAddr = signer
	src.MockFactoryAddress = common.RandEthAddress()
	src.SrcAddr = common.RandEthAddress()
	dst := etherman.NewMockBackend(dstChainKey, dstChainId)
	dst.MockSigner = signer
	dst.RelayerAddr = signer
	dst.MockFactoryAddress = common.RandEthAddress()
	dst.DstAddr = common.RandEthAddress()

	reg := state.NewRegistry(statedb)
	chains := etherman.Set{srcChainKey: src, dstChainKey: dst}
	txm := txmanager.New(reg, chains, txmanager.NewClaimStore(), &txmanager.Config{
		VerifyDelay:      time.Millisecond,
		SourceRetryDelay: time.Millisecond,
	})
	checker := deploycheck.New(reg, chains)

	h := NewHttpReporter(context.Background(), "127.0.0.1", "0", reg, chains, txm, checker)

	env := &testEnv{reg: reg, src: src, dst: dst, txm: txm, router: h.SetupRouter()}
	return env, func() {
		txm.Wait()
		statedb.Close()
		sqlDB.Close()
	}
}

func (env *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

// seedFulfilled puts a claimable swap into the registry and both mocks.
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

func TestHealth(t *testing.T) {
	env, close := newTestEnv(t)
	defer close()

	w := env.do(t, http.MethodGet, ROUTE_HEALTH, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
	assert.Contains(t, w.Body.String(), srcChainKey)
}

func TestRegisterSwapStoresPendingRecord(t *testing.T) {
	env, close := newTestEnv(t)
	defer close()

	data, _ := state.RandExecutionData(srcChainId, dstChainId)
	w := env.do(t, http.MethodPost, ROUTE_SWAPS, registerSwapRequest{ExecutionData: *data})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	rec, found, err := env.reg.GetByHashlock(data.HashlockHex())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, state.StatusPending, rec.Status)
	assert.Equal(t, env.src.SrcAddr, rec.SrcEscrow)
	assert.Equal(t, env.dst.DstAddr, rec.DstEscrow)
	assert.Equal(t, env.src.MockFactoryAddress, rec.FactoryAddress)
}

func TestRegisterSwapValidatesChainKeyAndFactory(t *testing.T) {
	env, close := newTestEnv(t)
	defer close()

	data, _ := state.RandExecutionData(srcChainId, dstChainId)
	w := env.do(t, http.MethodPost, ROUTE_SWAPS, registerSwapRequest{
		ChainKey:      dstChainKey,
		ExecutionData: *data,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, ROUTE_SWAPS, registerSwapRequest{
		FactoryAddress: common.RandEthAddress().Hex(),
		ExecutionData:  *data,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, ROUTE_SWAPS, registerSwapRequest{
		ChainKey:       srcChainKey,
		FactoryAddress: env.src.MockFactoryAddress.Hex(),
		ExecutionData:  *data,
	})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestRegisterSwapRejectsUnknownChain(t *testing.T) {
	env, close := newTestEnv(t)
	defer close()

	data, _ := state.RandExecutionData(404404, dstChainId)
	w := env.do(t, http.MethodPost, ROUTE_SWAPS, registerSwapRequest{ExecutionData: *data})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterSwapRequiresHashlock(t *testing.T) {
	env, close := newTestEnv(t)
	defer close()

	data, _ := state.RandExecutionData(srcChainId, dstChainId)
	data.Hashlock = [32]byte{}
	w := env.do(t, http.MethodPost, ROUTE_SWAPS, registerSwapRequest{ExecutionData: *data})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListSwapsFiltersByStatus(t *testing.T) {
	env, close := newTestEnv(t)
	defer close()
	env.seedFulfilled(t)

	w := env.do(t, http.MethodGet, ROUTE_SWAPS+"?status=fulfilled", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"fulfilled"`)

	w = env.do(t, http.MethodGet, ROUTE_SWAPS+"?status=pending", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `"hashlock":"0x`)

	w = env.do(t, http.MethodGet, ROUTE_SWAPS+"?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClaimErrorTaxonomy(t *testing.T) {
	env, close := newTestEnv(t)
	defer close()
	rec, secret := env.seedFulfilled(t)

	// Secret that does not hash to the hashlock.
	wrong := common.RandBytes32()
	w := env.do(t, http.MethodPost, ROUTE_CLAIM, claimRequest{
		Hashlock:    rec.ExecutionData.HashlockHex(),
		Secret:      hexutil.Encode(wrong[:]),
		UserAddress: rec.ExecutionData.Asker.Hex(),
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown swap: valid secret/hashlock pair, never registered.
	otherData, otherSecret := state.RandExecutionData(srcChainId, dstChainId)
	w = env.do(t, http.MethodPost, ROUTE_CLAIM, claimRequest{
		Hashlock:    otherData.HashlockHex(),
		Secret:      hexutil.Encode(otherSecret[:]),
		UserAddress: rec.ExecutionData.Asker.Hex(),
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Right secret, wrong caller.
	w = env.do(t, http.MethodPost, ROUTE_CLAIM, claimRequest{
		Hashlock:    rec.ExecutionData.HashlockHex(),
		Secret:      hexutil.Encode(secret[:]),
		UserAddress: common.RandEthAddress().Hex(),
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestClaimAcceptedAndSettled(t *testing.T) {
	env, close := newTestEnv(t)
	defer close()
	rec, secret := env.seedFulfilled(t)

	w := env.do(t, http.MethodPost, ROUTE_CLAIM, claimRequest{
		Hashlock:    rec.ExecutionData.HashlockHex(),
		Secret:      hexutil.Encode(secret[:]),
		UserAddress: rec.ExecutionData.Asker.Hex(),
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	env.txm.Wait()

	got, _, err := env.reg.GetByHashlock(rec.HashlockKey())
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, got.Status)
	assert.Equal(t, 1, env.src.WithdrawCount())
	assert.Equal(t, 1, env.dst.WithdrawCount())
}

func TestSwapStatusEndpoint(t *testing.T) {
	env, close := newTestEnv(t)
	defer close()

	w := env.do(t, http.MethodGet, "/swap-status/0xdeadbeef", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	rec, _ := state.RandSwapRecord(srcChainKey, srcChainId, dstChainId)
	_, err := env.reg.Upsert(rec)
	require.NoError(t, err)
	env.src.Code[rec.SrcEscrow] = true
	env.dst.Code[rec.DstEscrow] = true

	w = env.do(t, http.MethodGet, "/swap-status/"+rec.ExecutionData.HashlockHex(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"bothDeployed":true`)
	assert.Contains(t, w.Body.String(), `"canClaim":true`)
}

func TestCheckDeploymentsSweep(t *testing.T) {
	env, close := newTestEnv(t)
	defer close()

	rec, _ := state.RandSwapRecord(srcChainKey, srcChainId, dstChainId)
	_, err := env.reg.Upsert(rec)
	require.NoError(t, err)
	env.src.Code[rec.SrcEscrow] = true

	w := env.do(t, http.MethodPost, ROUTE_CHECK_DEPLOYMENTS, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"srcDeployed":true`)
	assert.Contains(t, w.Body.String(), `"dstDeployed":false`)
}

func TestCheckRelayerReportsMismatch(t *testing.T) {
	env, close := newTestEnv(t)
	defer close()

	env.dst.RelayerAddr = common.RandEthAddress()

	w := env.do(t, http.MethodGet, ROUTE_CHECK_RELAYER, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Chains map[string]map[string]interface{} `json:"chains"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp.Chains[srcChainKey]["match"])
	assert.Equal(t, false, resp.Chains[dstChainKey]["match"])
}

func TestHttpReaderAgainstLiveServer(t *testing.T) {
	env, close := newTestEnv(t)
	defer close()

	server := httptest.NewServer(env.router)
	defer server.Close()

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	host, port, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)

	reader := NewHttpReader(host, port)
	body, err := reader.GetHealth()
	require.NoError(t, err)
	assert.Contains(t, body, `"status":"ok"`)
}
