package conntable

import "testing"

func TestInsertBindRemove(t *testing.T) {
	t.Parallel()
	tbl := New()
	id := [16]byte{1, 2, 3}
	tbl.Insert(id, func([]byte) error { return nil })

	if _, ok := tbl.BoundPubkey(id); ok {
		t.Fatal("expected no bound pubkey before Bind")
	}

	var pub [32]byte
	pub[0] = 7
	tbl.Bind(id, pub)

	got, ok := tbl.BoundPubkey(id)
	if !ok || got != pub {
		t.Fatalf("expected bound pubkey %v, got %v ok=%v", pub, got, ok)
	}

	tbl.Remove(id)
	if _, ok := tbl.Get(id); ok {
		t.Fatal("expected connection to be gone after Remove")
	}
}

func TestBoundPubkeyAbsentForUnknownConnection(t *testing.T) {
	t.Parallel()
	tbl := New()
	if _, ok := tbl.BoundPubkey([16]byte{9}); ok {
		t.Fatal("expected absent for unknown connection")
	}
}
