package main

import (
	"path/filepath"
	"testing"

	"github.com/37miners/concord/internal/dataengine"
	"github.com/37miners/concord/internal/kvstore"
)

func cliRootSetup(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	pub, _, err := loadOrGenerateIdentity(root)
	if err != nil {
		t.Fatalf("loadOrGenerateIdentity: %v", err)
	}
	store, err := kvstore.Open(filepath.Join(root, "concord.db"))
	if err != nil {
		t.Fatalf("open kvstore: %v", err)
	}
	defer store.Close()
	engine := dataengine.New(store)
	if err := engine.BootstrapOwner(pub, 0); err != nil {
		t.Fatalf("bootstrap owner: %v", err)
	}
	return root
}

func TestRunCLIVersion(t *testing.T) {
	if !RunCLI([]string{"version"}, "") {
		t.Fatal("expected version subcommand to be handled")
	}
}

func TestRunCLIUnknownSubcommandFallsThrough(t *testing.T) {
	if RunCLI([]string{"not-a-real-subcommand"}, "") {
		t.Fatal("expected unknown subcommand to fall through to serve mode")
	}
}

func TestRunCLIStatus(t *testing.T) {
	root := cliRootSetup(t)
	if !RunCLI([]string{"status"}, root) {
		t.Fatal("expected status subcommand to be handled")
	}
}

func TestRunCLIServersListEmpty(t *testing.T) {
	root := cliRootSetup(t)
	if !RunCLI([]string{"servers", "list"}, root) {
		t.Fatal("expected servers list subcommand to be handled")
	}
}

func TestRunCLIServersListAfterAddServer(t *testing.T) {
	root := cliRootSetup(t)
	store, err := kvstore.Open(filepath.Join(root, "concord.db"))
	if err != nil {
		t.Fatalf("open kvstore: %v", err)
	}
	engine := dataengine.New(store)
	pub, _, err := loadOrGenerateIdentity(root)
	if err != nil {
		t.Fatalf("load identity: %v", err)
	}
	if _, err := engine.AddServer(pub, "test server", nil, nil, pub, false, 0); err != nil {
		t.Fatalf("add server: %v", err)
	}
	store.Close()

	if !RunCLI([]string{"servers"}, root) {
		t.Fatal("expected servers subcommand (defaulting to list) to be handled")
	}
}

func TestRunCLISettingsListAndSet(t *testing.T) {
	root := cliRootSetup(t)
	if !RunCLI([]string{"settings", "list"}, root) {
		t.Fatal("expected settings list to be handled")
	}
	if !RunCLI([]string{"settings", "set", "port", "7777"}, root) {
		t.Fatal("expected settings set to be handled")
	}
}

func TestRunCLIBackup(t *testing.T) {
	root := cliRootSetup(t)
	outPath := filepath.Join(t.TempDir(), "backup.db")
	if !RunCLI([]string{"backup", outPath}, root) {
		t.Fatal("expected backup subcommand to be handled")
	}
}
