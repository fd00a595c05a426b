// Command mock-model runs a deterministic Chat Completions server that
// plays a short scripted agent session: it lists the project directory,
// writes a Hello World page and then reports completion. Steps whose
// tool is not offered in the request are skipped.
//
// Configuration:
//
//	MOCK_PORT - Listen port (default: 9090)
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/rhuss/werkstatt/pkg/transport"
)

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}

	srv := &http.Server{Addr: ":" + port, Handler: newMux()}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock model starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mock model failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock model shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

func newMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", handleChatCompletions)
	mux.HandleFunc("GET /v1/models", handleModels)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	log := slog.Default()
	return transport.Chain(
		transport.Metrics("mock-model"),
		transport.RequestID(),
		transport.Logging(log),
		transport.Recovery(log),
	)(mux)
}

// --- Request types ---

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Tools    []chatTool    `json:"tools,omitempty"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role       string `json:"role"`
	Content    any    `json:"content"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

type chatTool struct {
	Function struct {
		Name string `json:"name"`
	} `json:"function"`
}

// --- Response types ---

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int     `json:"index"`
	Message      chatMsg `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type chatMsg struct {
	Role      string     `json:"role"`
	Content   *string    `json:"content"`
	ToolCalls []toolCall `json:"tool_calls,omitempty"`
}

type toolCall struct {
	Index    int      `json:"index"`
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Function funcCall `json:"function"`
}

type funcCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// --- Script ---

const helloPage = `export default function Home() {
  return (
    <main className="flex min-h-screen items-center justify-center">
      <h1 className="text-4xl font-bold text-blue-600">Hello, World!</h1>
    </main>
  );
}
`

type step struct {
	tool string
	args any
}

var script = []step{
	{tool: "list_dir", args: map[string]string{"path": "."}},
	{tool: "write_file", args: map[string]string{"path": "src/app/page.tsx", "content": helloPage}},
}

const finalText = "The homepage now shows \"Hello, World!\" styled with Tailwind CSS."

// nextStep picks the script step to play. It counts answered tool calls
// and skips steps whose tool is not offered.
func nextStep(req *chatRequest) (step, bool) {
	offered := make(map[string]bool, len(req.Tools))
	for _, t := range req.Tools {
		offered[t.Function.Name] = true
	}
	answered := 0
	for _, m := range req.Messages {
		if m.Role == "tool" {
			answered++
		}
	}

	var playable []step
	for _, s := range script {
		if offered[s.tool] {
			playable = append(playable, s)
		}
	}
	if answered >= len(playable) {
		return step{}, false
	}
	return playable[answered], true
}

// --- Handlers ---

func handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":{"message":"invalid request","type":"invalid_request_error"}}`, http.StatusBadRequest)
		return
	}
	model := req.Model
	if model == "" {
		model = "mock-model"
	}

	var call *toolCall
	if s, ok := nextStep(&req); ok {
		args, _ := json.Marshal(s.args)
		call = &toolCall{
			ID:       "call_" + uuid.NewString()[:8],
			Type:     "function",
			Function: funcCall{Name: s.tool, Arguments: string(args)},
		}
	}

	if req.Stream {
		handleStreaming(w, model, call)
		return
	}

	msg := chatMsg{Role: "assistant"}
	finish := "stop"
	if call != nil {
		msg.ToolCalls = []toolCall{*call}
		finish = "tool_calls"
	} else {
		text := finalText
		msg.Content = &text
	}
	resp := chatResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Model:   model,
		Choices: []chatChoice{{Message: msg, FinishReason: finish}},
		Usage:   chatUsage{PromptTokens: 20, CompletionTokens: 15, TotalTokens: 35},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func handleStreaming(w http.ResponseWriter, model string, call *toolCall) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	id := "chatcmpl-" + uuid.NewString()
	chunk := func(delta map[string]any, finish any) {
		data, _ := json.Marshal(map[string]any{
			"id":     id,
			"object": "chat.completion.chunk",
			"model":  model,
			"choices": []any{map[string]any{
				"index":         0,
				"delta":         delta,
				"finish_reason": finish,
			}},
		})
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	chunk(map[string]any{"role": "assistant"}, nil)
	finish := "stop"
	if call != nil {
		chunk(map[string]any{"tool_calls": []toolCall{*call}}, nil)
		finish = "tool_calls"
	} else {
		for _, word := range splitWords(finalText) {
			chunk(map[string]any{"content": word}, nil)
		}
	}
	chunk(map[string]any{}, finish)

	usage, _ := json.Marshal(map[string]any{
		"id":      id,
		"object":  "chat.completion.chunk",
		"model":   model,
		"choices": []any{},
		"usage":   chatUsage{PromptTokens: 20, CompletionTokens: 15, TotalTokens: 35},
	})
	fmt.Fprintf(w, "data: %s\n\n", usage)
	fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func handleModels(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data": []map[string]any{
			{"id": "mock-model", "object": "model", "owned_by": "werkstatt"},
		},
	})
}

// splitWords splits s after each space, keeping the spaces.
func splitWords(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' {
			out = append(out, s[start:i+1])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
