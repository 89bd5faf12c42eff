package replay

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/bancho-server/internal/domain"
)

func TestFSStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	data := []byte("osr replay bytes")
	hash := Hash(data)
	if err := s.Put(ctx, hash, data); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, hash, data); err != nil {
		t.Fatalf("second Put: %v", err)
	}

	rc, err := s.Open(ctx, hash)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, _ := io.ReadAll(rc)
	rc.Close()
	if string(got) != string(data) {
		t.Fatalf("read %q", got)
	}

	if err := s.Delete(ctx, hash); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Open(ctx, hash); !errors.Is(err, domain.ErrReplayNotFound) {
		t.Fatalf("Open after delete err = %v", err)
	}
	if err := s.Delete(ctx, hash); !errors.Is(err, domain.ErrReplayNotFound) {
		t.Fatalf("second Delete err = %v", err)
	}
}

func TestRejectsBadHash(t *testing.T) {
	s, _ := NewFSStore(t.TempDir())
	for _, h := range []string{"", "../etc/passwd", "zz"} {
		if err := s.Put(context.Background(), h, []byte("x")); !errors.Is(err, domain.ErrInvalidRequest) {
			t.Errorf("Put(%q) err = %v", h, err)
		}
	}
}

func TestHash(t *testing.T) {
	if Hash(nil) != "" {
		t.Fatal("empty data must have an empty hash")
	}
	if got := Hash([]byte("a")); got != "0cc175b9c0f1b6a831c399e269772661" {
		t.Fatalf("Hash(a) = %s", got)
	}
}
