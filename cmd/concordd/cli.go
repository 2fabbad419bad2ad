package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/37miners/concord/internal/config"
	"github.com/37miners/concord/internal/cryptoid"
	"github.com/37miners/concord/internal/dataengine"
	"github.com/37miners/concord/internal/kvstore"
)

func encodeB64(b []byte) string {
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(b)
}

// concordVersion identifies this build for the "version" subcommand and the
// status report.
const concordVersion = "0.1.0"

// RunCLI handles concordd's operator subcommands, run before flag parsing
// so they work without standing up the full server. Returns true if a
// subcommand was handled.
func RunCLI(args []string, rootDirOverride string) bool {
	if len(args) == 0 {
		return false
	}

	root, err := resolveCLIRoot(rootDirOverride)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error resolving root directory: %v\n", err)
		os.Exit(1)
	}

	switch args[0] {
	case "version":
		fmt.Printf("concordd %s\n", concordVersion)
		return true
	case "status":
		return cliStatus(root)
	case "servers":
		return cliServers(args[1:], root)
	case "settings":
		return cliSettings(args[1:], root)
	case "backup":
		return cliBackup(args[1:], root)
	default:
		return false
	}
}

func resolveCLIRoot(rootDirOverride string) (string, error) {
	cfg := config.Default()
	if rootDirOverride != "" {
		cfg.RootDir = rootDirOverride
	}
	return config.ExpandRootDir(cfg)
}

func openCLIEngine(root string) (*dataengine.Engine, *kvstore.Store, [32]byte, error) {
	var pub [32]byte
	store, err := kvstore.Open(filepath.Join(root, "concord.db"))
	if err != nil {
		return nil, nil, pub, fmt.Errorf("open kvstore: %w", err)
	}
	pub, _, err = loadOrGenerateIdentity(root)
	if err != nil {
		store.Close()
		return nil, nil, pub, fmt.Errorf("load identity: %w", err)
	}
	return dataengine.New(store), store, pub, nil
}

func cliStatus(root string) bool {
	engine, store, pub, err := openCLIEngine(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	servers, err := engine.GetServers(pub)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Identity: %s\n", cryptoid.ToOnion(pub))
	fmt.Printf("Root directory: %s\n", root)
	fmt.Printf("Servers hosted: %d\n", len(servers))
	fmt.Printf("Version: %s\n", concordVersion)
	return true
}

func cliServers(args []string, root string) bool {
	engine, store, pub, err := openCLIEngine(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if len(args) == 0 || args[0] == "list" {
		servers, err := engine.GetServers(pub)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		if len(servers) == 0 {
			fmt.Println("No servers found.")
			return true
		}
		for _, s := range servers {
			fmt.Printf("  [%s] %s\n", encodeB64(s.ServerID[:]), s.Name)
		}
		return true
	}

	fmt.Fprintln(os.Stderr, "Usage: concordd servers [list]")
	os.Exit(1)
	return true
}

func cliSettings(args []string, root string) bool {
	cfgPath := filepath.Join(root, "concord.toml")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if len(args) == 0 || args[0] == "list" {
		out, _ := json.MarshalIndent(cfg, "", "  ")
		fmt.Println(string(out))
		return true
	}

	if args[0] == "set" && len(args) > 2 {
		key, value := args[1], args[2]
		switch key {
		case "host":
			cfg.Host = value
		case "port":
			n, err := strconv.Atoi(value)
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: port must be an integer: %v\n", err)
				os.Exit(1)
			}
			cfg.Port = n
		case "tor_port":
			n, err := strconv.Atoi(value)
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: tor_port must be an integer: %v\n", err)
				os.Exit(1)
			}
			cfg.TorPort = n
		case "root_dir":
			cfg.RootDir = value
		default:
			fmt.Fprintf(os.Stderr, "unknown setting %q (want host, port, tor_port, root_dir)\n", key)
			os.Exit(1)
		}
		if err := config.Save(cfgPath, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Set %s = %s\n", key, value)
		return true
	}

	fmt.Fprintln(os.Stderr, "Usage: concordd settings [list|set <key> <value>]")
	os.Exit(1)
	return true
}

func cliBackup(args []string, root string) bool {
	store, err := kvstore.Open(filepath.Join(root, "concord.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	outPath := "concord-backup.db"
	if len(args) > 0 {
		outPath = args[0]
	}
	if err := store.Backup(outPath); err != nil {
		fmt.Fprintf(os.Stderr, "backup failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Database backed up to %s\n", outPath)
	return true
}
