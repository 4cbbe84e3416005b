// Server = two chain-side component stacks + db/state + http reporter.
// All components are configured via environment variables (strings!).

package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	_ "github.com/mattn/go-sqlite3"
	logger "github.com/sirupsen/logrus"

	"github.com/peerswap-io/relayer-go/chainsync"
	"github.com/peerswap-io/relayer-go/deploycheck"
	"github.com/peerswap-io/relayer-go/etherman"
	"github.com/peerswap-io/relayer-go/reconciler"
	"github.com/peerswap-io/relayer-go/reporter"
	"github.com/peerswap-io/relayer-go/state"
	"github.com/peerswap-io/relayer-go/txmanager"
)

// Default params for the server.
// More often we don't recommend users to tweak those.
// So we list them here.
const (
	// chain poller config
	pollInterval = 10 * time.Second
	retryBackoff = 10 * time.Second

	// write path config
	receiptTimeout   = 60 * time.Second
	verifyDelay      = 5 * time.Second
	sourceRetryDelay = 30 * time.Second
)

// Keep the configuration's fields as "text" as possible.
// Its easier to load it from env vars or a config file.
type RelayerServerConfig struct {
	// first chain
	ChainAKey         string // eg. "sepolia"
	ChainARpcUrl      string // json rpc url
	ChainAId          string // decimal chain id
	ChainAFactoryAddr string // escrow factory contract address

	// second chain
	ChainBKey         string
	ChainBRpcUrl      string
	ChainBId          string
	ChainBFactoryAddr string

	// relayer signing key, shared across both chains
	RelayerPrivKey string

	// state side
	DbFilePath string // db file path

	// Http side
	HttpIp   string // eg. 0.0.0.0
	HttpPort string // eg. 8080
}

// RelayerServer holds the objects that consist of the relayer.
type RelayerServer struct {
	MyChains   etherman.Set
	MyStateDb  *state.StateDB
	MyRegistry *state.Registry
	MyTxMgr    *txmanager.TxManager
	MyChecker  *deploycheck.Checker
	MySyncs    []*chainsync.Synchronizer
	MyReporter *reporter.HttpReporter
}

// NewRelayerServer creates a new relayer server.
// ctx is used for parental context to cancel the operation of the server.
// wg waits for the per-chain synchronizer goroutines to finish.
func NewRelayerServer(rsc *RelayerServerConfig, ctx context.Context, wg *sync.WaitGroup) (*RelayerServer, error) {
	privKey, err := etherman.StringToPrivateKey(rsc.RelayerPrivKey)
	if err != nil {
		logger.Fatalf("failed to parse relayer private key: %v", err)
		return nil, err
	}

	// 1) Connect one Etherman per chain. Same key, per-chain nonce state.
	chains := etherman.Set{}
	for _, cc := range []struct {
		key, url, id, factory string
	}{
		{rsc.ChainAKey, rsc.ChainARpcUrl, rsc.ChainAId, rsc.ChainAFactoryAddr},
		{rsc.ChainBKey, rsc.ChainBRpcUrl, rsc.ChainBId, rsc.ChainBFactoryAddr},
	} {
		chainID, ok := new(big.Int).SetString(cc.id, 10)
		if !ok {
			logger.Fatalf("invalid chain id %q for chain %q", cc.id, cc.key)
			return nil, fmt.Errorf("invalid chain id %q", cc.id)
		}

		backend, err := etherman.NewEtherman(&etherman.Config{
			ChainKey:       cc.key,
			URL:            cc.url,
			ChainID:        chainID,
			FactoryAddress: ethcommon.HexToAddress(cc.factory),
			ReceiptTimeout: receiptTimeout,
		}, privKey)
		if err != nil {
			logger.Fatalf("failed to create etherman for chain %q: %v", cc.key, err)
			return nil, err
		}
		chains[cc.key] = backend
	}

	// 2) Create sql db, state_db and the registry on top.
	sqldb, err := sql.Open("sqlite3", rsc.DbFilePath)
	if err != nil {
		logger.Fatalf("failed to open db file: %v", err)
		return nil, err
	}

	myStateDb, err := state.NewStateDB(sqldb)
	if err != nil {
		logger.Fatalf("failed to create state db: %v", err)
		return nil, err
	}
	myRegistry := state.NewRegistry(myStateDb)

	// 3) Settlement components.
	myReconciler := reconciler.New(myRegistry, chains)
	myTxMgr := txmanager.New(myRegistry, chains, txmanager.NewClaimStore(), &txmanager.Config{
		VerifyDelay:      verifyDelay,
		SourceRetryDelay: sourceRetryDelay,
	})
	myChecker := deploycheck.New(myRegistry, chains)

	// 4) One poller per chain. Important: turn them on!
	var syncs []*chainsync.Synchronizer
	for key, backend := range chains {
		chainSync, err := chainsync.New(backend, myRegistry, myReconciler, myTxMgr, &chainsync.Config{
			PollInterval: pollInterval,
			RetryBackoff: retryBackoff,
		})
		if err != nil {
			logger.Fatalf("failed to create synchronizer for chain %q: %v", key, err)
			return nil, err
		}
		syncs = append(syncs, chainSync)

		wg.Add(1)
		go func(s *chainsync.Synchronizer) {
			defer wg.Done()
			if err := s.Sync(ctx); err != nil && ctx.Err() == nil {
				logger.Fatalf("synchronizer stopped: %v", err)
			}
		}(chainSync)
	}
	// Don't forget to call wg.Wait() in the main routine.

	// *** Setup a http server to report status and accept claims ***
	httpServer := reporter.NewHttpReporter(
		ctx,
		rsc.HttpIp,
		rsc.HttpPort,
		myRegistry,
		chains,
		myTxMgr,
		myChecker,
	)
	// Turn on the http server
	go httpServer.Run()

	// Give it some time to start the http server
	time.Sleep(1 * time.Second)
	// *** End the setup of http server ***

	return &RelayerServer{
		MyChains:   chains,
		MyStateDb:  myStateDb,
		MyRegistry: myRegistry,
		MyTxMgr:    myTxMgr,
		MyChecker:  myChecker,
		MySyncs:    syncs,
		MyReporter: httpServer,
	}, nil
}

// Create, then start the relayer server and wait.
// Press Ctrl-C to kill the server.
func StartRelayerServerAndWait(rsc *RelayerServerConfig) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up a signal channel to listen for Ctrl-C (SIGINT) or SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	// Launch a new goroutine to handle the signal
	go func() {
		sig := <-sigCh
		fmt.Printf("Received signal: %v, cancelling context...\n", sig)
		cancel()
	}()

	var wg sync.WaitGroup

	server, err := NewRelayerServer(rsc, ctx, &wg)
	if err != nil {
		logger.Fatalf("failed to create relayer server: %v", err)
		return
	}

	// wait for all routines to finish (which is forever)
	wg.Wait()
	server.MyTxMgr.Wait()
}
