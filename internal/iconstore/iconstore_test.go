package iconstore

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	s := New(t.TempDir())
	var serverID [8]byte
	var serverPubkey [32]byte
	serverID[0], serverPubkey[0] = 1, 2
	icon := []byte("not actually a png")

	if err := s.Write(serverID, serverPubkey, icon); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, found, err := s.Read(serverID, serverPubkey)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !found || !bytes.Equal(got, icon) {
		t.Fatalf("expected %q, got %q (found=%v)", icon, got, found)
	}
}

func TestReadMissingReturnsNotFound(t *testing.T) {
	s := New(t.TempDir())
	var serverID [8]byte
	var serverPubkey [32]byte
	_, found, err := s.Read(serverID, serverPubkey)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if found {
		t.Fatal("expected found=false for an icon never written")
	}
}

func TestWriteEmptyDeletesExisting(t *testing.T) {
	s := New(t.TempDir())
	var serverID [8]byte
	var serverPubkey [32]byte
	if err := s.Write(serverID, serverPubkey, []byte("icon")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Write(serverID, serverPubkey, nil); err != nil {
		t.Fatalf("write empty: %v", err)
	}
	_, found, err := s.Read(serverID, serverPubkey)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if found {
		t.Fatal("expected icon to be removed by an empty write")
	}
}

func TestPathUsesSpecifiedLayout(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	var serverID [8]byte
	var serverPubkey [32]byte
	serverID[7] = 9
	if err := s.Write(serverID, serverPubkey, []byte("icon")); err != nil {
		t.Fatalf("write: %v", err)
	}
	want := filepath.Join(root, "www", "images", "user_images")
	entries, err := os.ReadDir(want)
	if err != nil {
		t.Fatalf("expected icons under %s: %v", want, err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one icon file, got %d", len(entries))
	}
}
