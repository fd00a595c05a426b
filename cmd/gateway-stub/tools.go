package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	defaultCommandTimeout = 60 * time.Second
	maxCommandTimeout     = 10 * time.Minute
	maxOutputBytes        = 64 * 1024
)

// workspace is the directory the tools operate on. All paths are
// resolved through an os.Root, so tools cannot escape it.
type workspace struct {
	dir  string
	root *os.Root
}

func openWorkspace(dir string) (*workspace, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("opening workspace %s: %w", dir, err)
	}
	return &workspace{dir: dir, root: root}, nil
}

func (w *workspace) Close() error {
	return w.root.Close()
}

type listDirInput struct {
	Path string `json:"path,omitempty" jsonschema:"directory relative to the project root, default ."`
}

type readFileInput struct {
	Path string `json:"path" jsonschema:"file relative to the project root"`
}

type writeFileInput struct {
	Path    string `json:"path" jsonschema:"file relative to the project root"`
	Content string `json:"content" jsonschema:"full file content"`
}

type runCommandInput struct {
	Command        string `json:"command" jsonschema:"shell command run in the project root"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" jsonschema:"timeout in seconds, default 60"`
}

func (w *workspace) register(s *mcp.Server) {
	mcp.AddTool(s, &mcp.Tool{
		Name:        "list_dir",
		Description: "List the entries of a directory. Directories end with a slash.",
	}, w.listDir)
	mcp.AddTool(s, &mcp.Tool{
		Name:        "read_file",
		Description: "Read a text file.",
	}, w.readFile)
	mcp.AddTool(s, &mcp.Tool{
		Name:        "write_file",
		Description: "Create or overwrite a file, creating parent directories as needed.",
	}, w.writeFile)
	mcp.AddTool(s, &mcp.Tool{
		Name:        "run_command",
		Description: "Run a shell command in the project root and return its combined output.",
	}, w.runCommand)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

// clean turns a tool path into a path relative to the root.
func clean(p string) string {
	p = path.Clean("/" + strings.TrimSpace(p))
	if p == "/" {
		return "."
	}
	return strings.TrimPrefix(p, "/")
}

func (w *workspace) listDir(_ context.Context, _ *mcp.CallToolRequest, in listDirInput) (*mcp.CallToolResult, any, error) {
	entries, err := fs.ReadDir(w.root.FS(), clean(in.Path))
	if err != nil {
		return nil, nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return textResult(strings.Join(names, "\n")), nil, nil
}

func (w *workspace) readFile(_ context.Context, _ *mcp.CallToolRequest, in readFileInput) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(in.Path) == "" {
		return nil, nil, fmt.Errorf("path is required")
	}
	data, err := w.root.ReadFile(clean(in.Path))
	if err != nil {
		return nil, nil, err
	}
	return textResult(string(data)), nil, nil
}

func (w *workspace) writeFile(_ context.Context, _ *mcp.CallToolRequest, in writeFileInput) (*mcp.CallToolResult, any, error) {
	p := clean(in.Path)
	if p == "." {
		return nil, nil, fmt.Errorf("path is required")
	}
	if dir := path.Dir(p); dir != "." {
		if err := w.root.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, err
		}
	}
	if err := w.root.WriteFile(p, []byte(in.Content), 0o644); err != nil {
		return nil, nil, err
	}
	return textResult(fmt.Sprintf("wrote %d bytes to %s", len(in.Content), p)), nil, nil
}

func (w *workspace) runCommand(ctx context.Context, _ *mcp.CallToolRequest, in runCommandInput) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(in.Command) == "" {
		return nil, nil, fmt.Errorf("command is required")
	}
	timeout := defaultCommandTimeout
	if in.TimeoutSeconds > 0 {
		timeout = min(time.Duration(in.TimeoutSeconds)*time.Second, maxCommandTimeout)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", in.Command)
	cmd.Dir = w.dir
	out, err := cmd.CombinedOutput()
	if len(out) > maxOutputBytes {
		out = append(out[:maxOutputBytes], "\n[output truncated]"...)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, fmt.Errorf("command timed out after %s: %s", timeout, out)
		}
		return nil, nil, fmt.Errorf("%v: %s", err, out)
	}
	return textResult(string(out)), nil, nil
}
