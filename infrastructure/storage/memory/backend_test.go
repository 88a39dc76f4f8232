package memory

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/felixgeelhaar/narcache/domain/storage"
)

func TestBackend(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := New()

	if err := backend.WriteStaged(ctx, "x.nar.xz", strings.NewReader("contents")); err != nil {
		t.Fatalf("WriteStaged() error = %v", err)
	}

	if _, err := backend.ReadArtifact(ctx, "x.nar.xz"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("ReadArtifact() before promote error = %v, want ErrNotFound", err)
	}

	if err := backend.Promote(ctx, "x.nar.xz"); err != nil {
		t.Fatalf("Promote() error = %v", err)
	}

	rc, err := backend.ReadArtifact(ctx, "x.nar.xz")
	if err != nil {
		t.Fatalf("ReadArtifact() error = %v", err)
	}
	got, _ := io.ReadAll(rc)
	rc.Close()
	if string(got) != "contents" {
		t.Errorf("content = %q, want contents", got)
	}

	if backend.StagedCount() != 0 {
		t.Errorf("StagedCount() = %d, want 0", backend.StagedCount())
	}

	if err := backend.Promote(ctx, "x.nar.xz"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second Promote() error = %v, want ErrNotFound", err)
	}
}
