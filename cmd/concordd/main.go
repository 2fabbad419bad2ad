// Command concordd runs one Concord server process: it loads (or
// bootstraps) the process's own identity, opens its kvstore-backed data
// engine, and serves both the federation/client wire protocol and the
// operator-facing HTTP surface over one listener (spec.md §§4, 6).
package main

import (
	"context"
	"crypto/ed25519"
	"flag"
	"fmt"
	"log"
	"math/big"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/37miners/concord/internal/codec"
	"github.com/37miners/concord/internal/config"
	"github.com/37miners/concord/internal/connmanager"
	"github.com/37miners/concord/internal/constants"
	"github.com/37miners/concord/internal/conntable"
	"github.com/37miners/concord/internal/cryptoid"
	"github.com/37miners/concord/internal/dataengine"
	"github.com/37miners/concord/internal/fanout"
	"github.com/37miners/concord/internal/httpapi"
	"github.com/37miners/concord/internal/iconstore"
	"github.com/37miners/concord/internal/kvstore"
	"github.com/37miners/concord/internal/oniondialer"
)

// defaultSocksAddr is the standard local Tor SOCKS5 proxy address; unlike
// -tor-port (this process's own hidden-service virtual port) it names no
// process-specific resource, so it isn't a config.Config field.
const defaultSocksAddr = "127.0.0.1:9050"

func main() {
	// Check for CLI subcommands before parsing flags, the same order the
	// teacher's RunCLI dispatch runs in.
	if len(os.Args) > 1 {
		if RunCLI(os.Args[1:], "") {
			return
		}
	}

	configPath := flag.String("config", "", "path to concord.toml (default: <root-dir>/concord.toml)")
	torPort := flag.Int("tor-port", 0, "override the configured hidden-service port")
	port := flag.Int("port", 0, "override the configured local listen port")
	host := flag.String("host", "", "override the configured local listen host")
	rootDir := flag.String("root-dir", "", "override the configured root data directory")
	flag.Parse()

	cfg := loadConfig(*configPath, *rootDir)
	if *torPort != 0 {
		cfg.TorPort = *torPort
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *host != "" {
		cfg.Host = *host
	}
	if *rootDir != "" {
		cfg.RootDir = *rootDir
	}

	resolvedRoot, err := config.ExpandRootDir(cfg)
	if err != nil {
		log.Fatalf("[concordd] %v", err)
	}
	if err := os.MkdirAll(resolvedRoot, 0o700); err != nil {
		log.Fatalf("[concordd] create root dir: %v", err)
	}

	processPubkey, processSecret, err := loadOrGenerateIdentity(resolvedRoot)
	if err != nil {
		log.Fatalf("[concordd] identity: %v", err)
	}
	log.Printf("[concordd] process identity: %s", cryptoid.ToOnion(processPubkey))

	store, err := kvstore.Open(filepath.Join(resolvedRoot, "concord.db"))
	if err != nil {
		log.Fatalf("[concordd] open kvstore: %v", err)
	}
	defer store.Close()

	engine := dataengine.New(store)
	engine.SetIconStore(iconstore.New(resolvedRoot))
	startMs := uint64(time.Now().UnixMilli())
	if err := engine.BootstrapOwner(processPubkey, startMs); err != nil {
		log.Fatalf("[concordd] bootstrap owner: %v", err)
	}

	bootstrapToken, err := engine.MintBootstrapToken()
	if err != nil {
		log.Fatalf("[concordd] mint bootstrap token: %v", err)
	}
	log.Printf("[concordd] bootstrap this browser with: http://%s:%d/auth?token=%s",
		cfg.Host, cfg.Port, decimalID(bootstrapToken))

	var connMgr *connmanager.Manager
	foOwner := processPubkey
	fo := fanout.New(foOwner, func(interest fanout.Interest, torPort uint16) {
		if connMgr != nil {
			connMgr.OnForeignInterest(interest, torPort)
		}
	})
	dialer := oniondialer.New(defaultSocksAddr)
	connMgr = connmanager.New(dialer, processSecret, fo, uint16(cfg.TorPort))

	conns := conntable.New()
	server := httpapi.New(engine, fo, conns, connMgr, processPubkey, processSecret, uint16(cfg.TorPort))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Println("[concordd] shutting down...")
		cancel()
	}()

	go runTokenPurge(ctx, engine)
	go runListenerPurge(ctx, fo)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	log.Printf("[concordd] listening on %s", addr)
	if err := server.Run(ctx, addr); err != nil {
		log.Fatalf("[concordd] %v", err)
	}
}

func loadConfig(configPath, rootDirOverride string) config.Config {
	if configPath == "" {
		root := rootDirOverride
		if root == "" {
			root = config.Default().RootDir
		}
		expanded, err := config.ExpandRootDir(config.Config{RootDir: root})
		if err != nil {
			log.Fatalf("[concordd] %v", err)
		}
		configPath = filepath.Join(expanded, "concord.toml")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("[concordd] load config: %v", err)
	}
	return cfg
}

// identityFile holds the process's raw Ed25519 private key (64 bytes); the
// public half is derivable from it, so only the private key is persisted.
const identityFile = "identity.key"

func loadOrGenerateIdentity(rootDir string) (pub [32]byte, priv ed25519.PrivateKey, err error) {
	path := filepath.Join(rootDir, identityFile)
	raw, err := os.ReadFile(path)
	if err == nil {
		if len(raw) != ed25519.PrivateKeySize {
			return pub, nil, fmt.Errorf("identity file %s: expected %d bytes, got %d", path, ed25519.PrivateKeySize, len(raw))
		}
		priv = ed25519.PrivateKey(raw)
		copy(pub[:], priv.Public().(ed25519.PublicKey))
		return pub, priv, nil
	}
	if !os.IsNotExist(err) {
		return pub, nil, fmt.Errorf("read identity file: %w", err)
	}

	pub, priv, err = cryptoid.GenerateIdentity()
	if err != nil {
		return pub, nil, fmt.Errorf("generate identity: %w", err)
	}
	if err := os.WriteFile(path, priv, 0o600); err != nil {
		return pub, nil, fmt.Errorf("write identity file: %w", err)
	}
	return pub, priv, nil
}

func runTokenPurge(ctx context.Context, engine *dataengine.Engine) {
	ticker := time.NewTicker(constants.TokenPurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := engine.PurgeTokens(uint64(time.Now().UnixMilli())); err != nil {
				log.Printf("[concordd] purge tokens: %v", err)
			} else if n > 0 {
				log.Printf("[concordd] purged %d expired tokens", n)
			}
		}
	}
}

// runListenerPurge evicts listeners silent past PurgeTimeout and pings
// those merely idle past PingTimeout (spec.md §4.6) — the keepalive slot
// Purge hands back is fed a PingEvent the same way a deliverLoop feeds a
// MessagePushEvent.
func runListenerPurge(ctx context.Context, fo *fanout.FanOut) {
	ticker := time.NewTicker(constants.PurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UnixMilli()
			for _, ka := range fo.Purge(now) {
				ka.Slot <- pingEnvelope(uint64(now))
			}
		}
	}
}

func pingEnvelope(nowMs uint64) *codec.Envelope {
	return &codec.Envelope{Version: codec.Version, TimestampMs: nowMs, Event: &codec.PingEvent{TimestampMs: nowMs}}
}

// decimalID renders a 128-bit id in decimal, the convention spec.md uses
// for tokens exchanged over HTTP (mirrors authengine's connIDMessage).
func decimalID(id [16]byte) string {
	return new(big.Int).SetBytes(id[:]).String()
}
