package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/chazu/vainilla/asm"
	"github.com/chazu/vainilla/image"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "images.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func buildImage(t *testing.T, name, source string) *image.Image {
	t.Helper()
	prog, err := asm.Assemble(source)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	img, err := image.New(name, source, prog)
	if err != nil {
		t.Fatalf("image.New failed: %v", err)
	}
	return img
}

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	img := buildImage(t, "hello", "LOAD_CONST 1\nPRINT\n")

	hash, err := s.Put(ctx, img)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if hash != img.Hash.String() {
		t.Errorf("Put hash = %s, want %s", hash, img.Hash)
	}

	got, err := s.Get(ctx, hash)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Hash != img.Hash || got.Name != "hello" || !reflect.DeepEqual(got.Code, img.Code) {
		t.Errorf("Get returned %+v", got)
	}

	byPrefix, err := s.Get(ctx, hash[:8])
	if err != nil || byPrefix.Hash != img.Hash {
		t.Errorf("Get by prefix = %v, %v", byPrefix, err)
	}
}

func TestPutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	img := buildImage(t, "a", "LOAD_CONST 1\n")

	for i := 0; i < 3; i++ {
		if _, err := s.Put(ctx, img); err != nil {
			t.Fatalf("Put #%d failed: %v", i, err)
		}
	}
	entries, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("List has %d entries, want 1", len(entries))
	}
}

func TestGetByNameAndList(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	first := buildImage(t, "prog", "LOAD_CONST 1\nPRINT\n")
	second := buildImage(t, "prog", "LOAD_CONST 2\nPRINT\n")
	other := buildImage(t, "other", "READ\nPRINT\n")
	for _, img := range []*image.Image{first, second, other} {
		if _, err := s.Put(ctx, img); err != nil {
			t.Fatal(err)
		}
	}

	latest, err := s.GetByName(ctx, "prog")
	if err != nil {
		t.Fatalf("GetByName failed: %v", err)
	}
	if latest.Hash != second.Hash {
		t.Errorf("GetByName returned %s, want newest %s", latest.Hash.Short(), second.Hash.Short())
	}

	entries, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("List has %d entries, want 3", len(entries))
	}
	if entries[0].Hash != other.Hash.String() || entries[0].Size != 2 {
		t.Errorf("newest entry = %+v", entries[0])
	}

	if _, err := s.GetByName(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByName(nope) error = %v, want ErrNotFound", err)
	}
}

func TestResolveErrors(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if _, err := s.Get(ctx, "abc"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get on empty store error = %v, want ErrNotFound", err)
	}
	if _, err := s.Get(ctx, "not-hex"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(not-hex) error = %v, want ErrNotFound", err)
	}

	// Seventeen images guarantee two share a first hex digit.
	for i := 0; i < 17; i++ {
		img := buildImage(t, "n", fmt.Sprintf("LOAD_VAR v%d\n", i))
		if _, err := s.Put(ctx, img); err != nil {
			t.Fatal(err)
		}
	}
	ambiguous := 0
	for _, d := range "0123456789abcdef" {
		if _, err := s.Resolve(ctx, string(d)); errors.Is(err, ErrAmbiguous) {
			ambiguous++
		}
	}
	if ambiguous == 0 {
		t.Error("no single-digit prefix was ambiguous among 17 images")
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	img := buildImage(t, "gone", "LOAD_CONST 1\n")

	hash, err := s.Put(ctx, img)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, hash[:10]); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, hash); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete error = %v, want ErrNotFound", err)
	}
}

func TestReopenKeepsImages(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "images.db")
	s, err := Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	img := buildImage(t, "kept", "LOAD_CONST 3\nPRINT\n")
	if _, err := s.Put(ctx, img); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, err := s.GetByName(ctx, "kept"); err != nil {
		t.Errorf("image lost after reopen: %v", err)
	}
}
