// This is the http surface of the relayer.
// It exposes swap registration, status queries and the claim entrypoint
// over gin routes.

package reporter

import (
	"context"
	"errors"
	"net/http"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	logger "github.com/sirupsen/logrus"

	"github.com/peerswap-io/relayer-go/common"
	"github.com/peerswap-io/relayer-go/contracts/escrow"
	"github.com/peerswap-io/relayer-go/deploycheck"
	"github.com/peerswap-io/relayer-go/etherman"
	"github.com/peerswap-io/relayer-go/state"
	"github.com/peerswap-io/relayer-go/txmanager"
)

const (
	ROUTE_HEALTH            = "/health"
	ROUTE_SWAPS             = "/swaps"
	ROUTE_CLAIM             = "/claim"
	ROUTE_SWAP_STATUS       = "/swap-status/:hashlock"
	ROUTE_CHECK_DEPLOYMENTS = "/check-deployments"
	ROUTE_CHECK_RELAYER     = "/check-relayer"
)

type HttpReporter struct {
	serverIP   string // listen ip
	serverPort string // listen port

	// baseCtx outlives individual requests; async claim settlement runs on
	// it, not on the request context.
	baseCtx context.Context

	// upstream collaborators
	reg     *state.Registry
	chains  etherman.Set
	txm     *txmanager.TxManager
	checker *deploycheck.Checker
}

func NewHttpReporter(
	ctx context.Context,
	serverIP string,
	serverPort string,
	reg *state.Registry,
	chains etherman.Set,
	txm *txmanager.TxManager,
	checker *deploycheck.Checker,
) *HttpReporter {
	return &HttpReporter{
		serverIP:   serverIP,
		serverPort: serverPort,
		baseCtx:    ctx,
		reg:        reg,
		chains:     chains,
		txm:        txm,
		checker:    checker,
	}
}

// Hook up routes & handlers
func (h *HttpReporter) SetupRouter() *gin.Engine {
	router := gin.Default()

	router.GET(ROUTE_HEALTH, h.Health)
	router.POST(ROUTE_SWAPS, h.RegisterSwap)
	router.GET(ROUTE_SWAPS, h.ListSwaps)
	router.POST(ROUTE_CLAIM, h.Claim)
	router.GET(ROUTE_SWAP_STATUS, h.SwapStatus)
	router.POST(ROUTE_CHECK_DEPLOYMENTS, h.CheckDeployments)
	router.GET(ROUTE_CHECK_RELAYER, h.CheckRelayer)

	return router
}

// Hook up router & ip:port
func (h *HttpReporter) Run() {
	router := h.SetupRouter()
	address := h.serverIP + ":" + h.serverPort
	if err := router.Run(address); err != nil {
		panic(err)
	}
}

func (h *HttpReporter) Health(c *gin.Context) {
	keys := make([]string, 0, len(h.chains))
	for key := range h.chains {
		keys = append(keys, key)
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"chains": keys,
	})
}

type registerSwapRequest struct {
	ChainKey       string               `json:"chainKey"`
	FactoryAddress string               `json:"factoryAddress"`
	ExecutionData  escrow.ExecutionData `json:"executionData"`
}

// RegisterSwap stores a new pending swap. The escrow addresses are
// computed up front from the factory views so the record carries them
// before either escrow exists on-chain.
func (h *HttpReporter) RegisterSwap(c *gin.Context) {
	var req registerSwapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	data := req.ExecutionData
	if data.Hashlock == ([32]byte{}) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "hashlock is required"})
		return
	}

	srcChain, ok := h.chains.ByChainID(data.SrcChainId)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported srcChainId"})
		return
	}
	dstChain, ok := h.chains.ByChainID(data.DstChainId)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported dstChainId"})
		return
	}

	// chainKey and factoryAddress are optional but must match the chain
	// the execution data resolves to when given.
	if req.ChainKey != "" && req.ChainKey != srcChain.ChainKey() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chainKey does not match srcChainId"})
		return
	}
	if req.FactoryAddress != "" &&
		ethcommon.HexToAddress(req.FactoryAddress) != srcChain.FactoryAddress() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "factoryAddress does not match the configured factory"})
		return
	}

	srcEscrow, err := srcChain.AddressOfEscrowSrc(c.Request.Context(), &data)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	dstEscrow, err := dstChain.AddressOfEscrowDst(c.Request.Context(), &data)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	rec := &state.SwapRecord{
		ChainKey:       srcChain.ChainKey(),
		FactoryAddress: srcChain.FactoryAddress(),
		ExecutionData:  data,
		SrcEscrow:      srcEscrow,
		DstEscrow:      dstEscrow,
		Status:         state.StatusPending,
	}
	merged, err := h.reg.Upsert(rec)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	logger.WithFields(logger.Fields{
		"hashlock":  common.Shorten(data.HashlockHex(), 8),
		"srcEscrow": srcEscrow.Hex(),
		"dstEscrow": dstEscrow.Hex(),
	}).Info("swap registered")

	c.JSON(http.StatusCreated, gin.H{"swap": merged})
}

func (h *HttpReporter) ListSwaps(c *gin.Context) {
	status := state.SwapStatus(c.Query("status"))
	switch status {
	case "", state.StatusPending, state.StatusFulfilled, state.StatusCompleted:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status filter"})
		return
	}

	records, err := h.reg.List(status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"swaps": records})
}

type claimRequest struct {
	Hashlock    string `json:"hashlock"`
	Secret      string `json:"secret"`
	UserAddress string `json:"userAddress"`
}

// Claim validates synchronously and settles asynchronously. The response
// only acknowledges acceptance; settlement results show up in the swap
// record.
func (h *HttpReporter) Claim(c *gin.Context) {
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	secret := common.HexStrToBytes32(req.Secret)
	user := ethcommon.HexToAddress(req.UserAddress)

	err := h.txm.SubmitClaim(h.baseCtx, secret, req.Hashlock, user)
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"status": "claim accepted"})
	case errors.Is(err, txmanager.ErrSecretMismatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, txmanager.ErrNotAsker):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, txmanager.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, txmanager.ErrClaimPending):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// SwapStatus refreshes the deployment flags on demand and reports whether
// the swap is claimable. On RPC trouble the checker falls back to the
// stored flags.
func (h *HttpReporter) SwapStatus(c *gin.Context) {
	hashlock := c.Param("hashlock")

	rec, found, err := h.reg.GetByHashlock(hashlock)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "swap not found"})
		return
	}

	refreshed, err := h.checker.CheckSwap(c.Request.Context(), rec)
	if err != nil {
		// Chain misconfiguration, not a transient failure. Still answer
		// from the stored record.
		logger.WithError(err).Warn("deployment check failed, serving stored flags")
		refreshed = rec
	}

	both := refreshed.SrcDeployed && refreshed.DstDeployed
	c.JSON(http.StatusOK, gin.H{
		"hashlock":     refreshed.ExecutionData.HashlockHex(),
		"status":       refreshed.Status,
		"srcDeployed":  refreshed.SrcDeployed,
		"dstDeployed":  refreshed.DstDeployed,
		"bothDeployed": both,
		"canClaim":     both && refreshed.Status != state.StatusCompleted,
	})
}

// CheckDeployments sweeps every swap against both chains.
func (h *HttpReporter) CheckDeployments(c *gin.Context) {
	records, err := h.checker.CheckAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	results := make([]gin.H, 0, len(records))
	for _, rec := range records {
		results = append(results, gin.H{
			"hashlock":    rec.ExecutionData.HashlockHex(),
			"status":      rec.Status,
			"srcDeployed": rec.SrcDeployed,
			"dstDeployed": rec.DstDeployed,
		})
	}
	c.JSON(http.StatusOK, gin.H{"swaps": results})
}

// CheckRelayer reports, per chain, whether the factory's configured
// relayer matches this process's signing address. An operator smoke test.
func (h *HttpReporter) CheckRelayer(c *gin.Context) {
	results := make(map[string]gin.H, len(h.chains))
	for key, chain := range h.chains {
		factoryRelayer, err := chain.FactoryRelayer(c.Request.Context())
		if err != nil {
			results[key] = gin.H{"error": err.Error()}
			continue
		}
		results[key] = gin.H{
			"factoryRelayer": factoryRelayer.Hex(),
			"signer":         chain.Signer().Hex(),
			"match":          factoryRelayer == chain.Signer(),
		}
	}
	c.JSON(http.StatusOK, gin.H{"chains": results})
}
