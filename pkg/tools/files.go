package tools

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// resolve confines a tool-supplied path under root. An empty root means the
// current working directory.
func resolve(root, path string) (string, error) {
	if root == "" {
		root = "."
	}
	joined := filepath.Join(root, path)
	rel, err := filepath.Rel(root, joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace: %s", path)
	}
	return joined, nil
}

// --- List Files Tool ---

type ListFilesTool struct {
	Root string
}

func (t *ListFilesTool) Name() string { return "ls" }

func (t *ListFilesTool) Description() string {
	return "List files in a directory. Arguments: path (string)."
}

func (t *ListFilesTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": "The directory path to list."},
		},
		"required": []string{"path"},
	}
}

func (t *ListFilesTool) Unsafe() bool { return false }

func (t *ListFilesTool) Execute(ctx context.Context, input map[string]any) (string, error) {
	path, ok := input["path"].(string)
	if !ok {
		return "", fmt.Errorf("argument 'path' is required and must be a string")
	}
	resolved, err := resolve(t.Root, path)
	if err != nil {
		return "", err
	}

	slog.Info("Listing files", "path", resolved)
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return "", fmt.Errorf("failed to list directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		suffix := ""
		if e.IsDir() {
			suffix = "/"
		}
		names = append(names, e.Name()+suffix)
	}
	return strings.Join(names, "\n"), nil
}

// --- Read File Tool ---

type ReadFileTool struct {
	Root string
}

func (t *ReadFileTool) Name() string { return "read_file" }

func (t *ReadFileTool) Description() string {
	return "Read the contents of a file. Arguments: path (string)."
}

func (t *ReadFileTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": "The file path to read."},
		},
		"required": []string{"path"},
	}
}

func (t *ReadFileTool) Unsafe() bool { return false }

func (t *ReadFileTool) Execute(ctx context.Context, input map[string]any) (string, error) {
	path, ok := input["path"].(string)
	if !ok {
		return "", fmt.Errorf("argument 'path' is required and must be a string")
	}
	resolved, err := resolve(t.Root, path)
	if err != nil {
		return "", err
	}

	slog.Info("Reading file", "path", resolved)
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return string(data), nil
}

// --- Write File Tool ---

// WriteFileTool mutates the host filesystem and is on the unsafe denylist:
// conversations only see it when the caller opts in.
type WriteFileTool struct {
	Root string
}

func (t *WriteFileTool) Name() string { return "write_file" }

func (t *WriteFileTool) Description() string {
	return "Write content to a file. Arguments: path (string), content (string)."
}

func (t *WriteFileTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    map[string]any{"type": "string", "description": "The file path to write to."},
			"content": map[string]any{"type": "string", "description": "The content to write."},
		},
		"required": []string{"path", "content"},
	}
}

func (t *WriteFileTool) Unsafe() bool { return true }

func (t *WriteFileTool) Execute(ctx context.Context, input map[string]any) (string, error) {
	path, ok := input["path"].(string)
	if !ok {
		return "", fmt.Errorf("argument 'path' is required and must be a string")
	}
	content, ok := input["content"].(string)
	if !ok {
		return "", fmt.Errorf("argument 'content' is required and must be a string")
	}
	resolved, err := resolve(t.Root, path)
	if err != nil {
		return "", err
	}

	slog.Info("Writing file", "path", resolved, "size", len(content))

	if err := os.MkdirAll(filepath.Dir(resolved), 0755); err != nil {
		return "", fmt.Errorf("failed to create directories: %w", err)
	}

	if err := os.WriteFile(resolved, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return "success", nil
}
