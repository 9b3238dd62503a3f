package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreraft/raft/raft"
	"github.com/coreraft/raft/internal/transport"
	"github.com/coreraft/raft/statemachine"
)

func main() {
	configPath := flag.String("config", "", "Path to the node's YAML config file")
	flag.Parse()

	if *configPath == "" {
		log.Fatal("config path must be provided with -config")
	}

	cfg, err := raft.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := os.MkdirAll(cfg.Node.DataDir, 0o755); err != nil {
		log.Fatalf("failed to create data directory: %v", err)
	}

	logger := log.New(os.Stderr, fmt.Sprintf("[node-%d] ", cfg.Node.ID), log.LstdFlags)

	store := raft.NewFileStore(cfg.Node.DataDir)
	applier := statemachine.NewKVStateMachine()
	tr := transport.NewHTTPTransport(cfg.Node.Address, cfg.GetPeerAddresses(), logger)

	storeId, err := resolveStoreId(cfg, store)
	if err != nil {
		log.Fatalf("failed to resolve store id: %v", err)
	}

	instance := raft.NewRaftInstance(
		raft.MemberId(cfg.Node.ID),
		cfg.GetVotingMembers(),
		storeId,
		store,
		tr,
		applier,
		cfg.Tunables,
		logger,
	)

	if err := instance.Restore(); err != nil {
		log.Fatalf("failed to restore persisted state: %v", err)
	}

	if err := tr.Start(); err != nil {
		log.Fatalf("failed to start transport: %v", err)
	}
	defer tr.Close()

	go instance.Run()
	defer instance.Stop()

	mux := http.NewServeMux()
	registerHTTPAPI(mux, instance, applier)

	adminAddr := adminAddress(cfg.Node.Address)
	adminServer := &http.Server{Addr: adminAddr, Handler: mux}
	go func() {
		logger.Printf("admin/health endpoint listening on %s", adminAddr)
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("admin server error: %v", err)
		}
	}()
	defer adminServer.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Println("shutting down...")
}

// resolveStoreId implements SPEC_FULL.md §10.1: a StoreId is read from
// config when the operator set cluster.store_id at cluster-creation time
// (so every node's config carries the same value with no coordination at
// boot), otherwise it is generated once and persisted so a restart of
// this same node reuses it rather than minting a fresh, mismatched one
// that would make every peer's handleVoteRequest deny it forever.
func resolveStoreId(cfg *raft.Config, store raft.Store) (raft.StoreId, error) {
	if cfg.Cluster.StoreID != 0 {
		return raft.StoreId{RandomId: cfg.Cluster.StoreID}, nil
	}

	if id, ok, err := store.LoadStoreId(); err != nil {
		return raft.StoreId{}, err
	} else if ok {
		return id, nil
	}

	id := raft.StoreId{CreationTime: time.Now().UnixNano(), RandomId: rand.Uint64()}
	if err := store.SaveStoreId(id); err != nil {
		return raft.StoreId{}, err
	}
	return id, nil
}

// adminAddress derives a health/introspection port one above the raft
// transport port, avoiding a second config field for a demo binary.
func adminAddress(raftAddr string) string {
	host, port := splitHostPort(raftAddr)
	n := 0
	fmt.Sscanf(port, "%d", &n)
	return fmt.Sprintf("%s:%d", host, n+1)
}

func splitHostPort(addr string) (string, string) {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i], addr[i+1:]
		}
	}
	return addr, "0"
}
