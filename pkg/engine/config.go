package engine

import (
	"log/slog"
	"text/template"

	"github.com/rhuss/werkstatt/pkg/sandbox"
)

// DefaultInstructions is the template of the first user turn.
const DefaultInstructions = `{{.Task}}

Work inside the project directory {{.ProjectDir}}. Use the available tools to inspect, create and modify files and to run commands. When the work is done, reply with a short summary and no further tool calls.`

// Config holds configuration for the engine.
type Config struct {
	Sandbox sandbox.Descriptor
	Preview sandbox.PreviewSpec

	// GatewayPath is the tool gateway path below the sandbox URL.
	GatewayPath  string
	GatewayToken string

	// Model is passed to the provider unchanged.
	Model     string
	MaxTokens int

	// MaxTurns bounds model submissions. Zero or negative means 50.
	MaxTurns int

	// MaxConsecutiveToolFailures ends the run after that many failed
	// tool results in a row. Zero or negative means 3.
	MaxConsecutiveToolFailures int

	// MaxParallelTools bounds concurrent tool calls within one turn.
	// Zero or negative means 4.
	MaxParallelTools int

	SystemPrompt string

	// Instructions is a text/template for the first user turn with the
	// fields Task and ProjectDir. Empty selects DefaultInstructions.
	Instructions string
	ProjectDir   string

	// Preflight runs before any network call. A non-nil error ends the
	// run with a config error.
	Preflight func() error

	Logger *slog.Logger
}

func (c Config) maxTurns() int {
	if c.MaxTurns <= 0 {
		return 50
	}
	return c.MaxTurns
}

func (c Config) maxFailures() int {
	if c.MaxConsecutiveToolFailures <= 0 {
		return 3
	}
	return c.MaxConsecutiveToolFailures
}

func (c Config) maxParallel() int {
	if c.MaxParallelTools <= 0 {
		return 4
	}
	return c.MaxParallelTools
}

func (c Config) gatewayPath() string {
	if c.GatewayPath == "" {
		return "/mcp"
	}
	return c.GatewayPath
}

// instructionData is the data of the instructions template.
type instructionData struct {
	Task       string
	ProjectDir string
}

func parseInstructions(text string) (*template.Template, error) {
	if text == "" {
		text = DefaultInstructions
	}
	return template.New("instructions").Option("missingkey=error").Parse(text)
}
