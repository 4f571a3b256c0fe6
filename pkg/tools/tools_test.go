package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestRegistry(root string) *Registry {
	r := NewRegistry()
	r.Register(&ListFilesTool{Root: root})
	r.Register(&ReadFileTool{Root: root})
	r.Register(&WriteFileTool{Root: root})
	return r
}

func TestSpecsFiltersUnsafe(t *testing.T) {
	r := newTestRegistry(t.TempDir())

	safe := r.Specs(nil, false)
	for _, spec := range safe {
		if spec.Unsafe {
			t.Errorf("unsafe tool %q exposed without opt-in", spec.Name)
		}
		if spec.Name == "write_file" {
			t.Error("write_file exposed without opt-in")
		}
	}

	all := r.Specs(nil, true)
	if len(all) != len(safe)+1 {
		t.Errorf("all specs = %d, want %d", len(all), len(safe)+1)
	}

	found := false
	for _, spec := range all {
		if spec.Name == "write_file" && spec.Unsafe {
			found = true
		}
	}
	if !found {
		t.Error("write_file missing from unsafe-allowed specs")
	}
}

func TestSpecsSelectsByID(t *testing.T) {
	r := newTestRegistry(t.TempDir())

	specs := r.Specs([]string{"ls", "no-such-tool"}, true)
	if len(specs) != 1 {
		t.Fatalf("spec count = %d, want 1 (unknown names skipped)", len(specs))
	}
	if specs[0].Name != "ls" {
		t.Errorf("spec name = %q, want ls", specs[0].Name)
	}
}

func TestSpecsSorted(t *testing.T) {
	r := newTestRegistry(t.TempDir())

	specs := r.Specs(nil, true)
	for i := 1; i < len(specs); i++ {
		if specs[i-1].Name > specs[i].Name {
			t.Fatalf("specs not sorted: %q before %q", specs[i-1].Name, specs[i].Name)
		}
	}
}

func TestInvokeUnknownTool(t *testing.T) {
	r := newTestRegistry(t.TempDir())
	if _, err := r.Invoke(context.Background(), "bogus", nil); err == nil {
		t.Fatal("expected error for unknown tool")
	}
}

func TestFileToolsRoundtrip(t *testing.T) {
	root := t.TempDir()
	r := newTestRegistry(root)
	ctx := context.Background()

	if _, err := r.Invoke(ctx, "write_file", map[string]any{
		"path":    "sub/note.txt",
		"content": "hello from the agent",
	}); err != nil {
		t.Fatalf("write_file failed: %v", err)
	}

	got, err := r.Invoke(ctx, "read_file", map[string]any{"path": "sub/note.txt"})
	if err != nil {
		t.Fatalf("read_file failed: %v", err)
	}
	if got != "hello from the agent" {
		t.Errorf("read content = %q, want %q", got, "hello from the agent")
	}

	listing, err := r.Invoke(ctx, "ls", map[string]any{"path": "sub"})
	if err != nil {
		t.Fatalf("ls failed: %v", err)
	}
	if !strings.Contains(listing, "note.txt") {
		t.Errorf("listing = %q, want note.txt", listing)
	}

	// The file landed inside the workspace root.
	if _, err := os.Stat(filepath.Join(root, "sub", "note.txt")); err != nil {
		t.Errorf("file not under root: %v", err)
	}
}

func TestFileToolsRejectEscape(t *testing.T) {
	r := newTestRegistry(t.TempDir())
	ctx := context.Background()

	if _, err := r.Invoke(ctx, "read_file", map[string]any{"path": "../outside.txt"}); err == nil {
		t.Error("read_file allowed path escape")
	}
	if _, err := r.Invoke(ctx, "write_file", map[string]any{
		"path": "../../etc/escape", "content": "x",
	}); err == nil {
		t.Error("write_file allowed path escape")
	}
}

func TestFileToolsRequireArguments(t *testing.T) {
	r := newTestRegistry(t.TempDir())
	ctx := context.Background()

	if _, err := r.Invoke(ctx, "read_file", map[string]any{}); err == nil {
		t.Error("read_file accepted missing path")
	}
	if _, err := r.Invoke(ctx, "write_file", map[string]any{"path": "a.txt"}); err == nil {
		t.Error("write_file accepted missing content")
	}
}
