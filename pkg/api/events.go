package api

// EventType identifies the variant of an Event.
type EventType string

const (
	EventStatus            EventType = "status"
	EventTurnStarted       EventType = "turn_started"
	EventTextFragment      EventType = "text_fragment"
	EventToolCallRequested EventType = "tool_call_requested"
	EventToolResult        EventType = "tool_result"
	EventCompletion        EventType = "completion"
	EventFailure           EventType = "failure"
)

// Event is one observable step of a run. The set of implementations is
// closed; every run ends with exactly one Completion or Failure.
type Event interface {
	Type() EventType
	event()
}

// Status is a human-readable progress line, such as "Creating sandbox...".
type Status struct {
	Message string
}

// TurnStarted is emitted each time the conversation is submitted to the
// model. Turn counts from 1.
type TurnStarted struct {
	Turn int
}

// TextFragment is a piece of assistant text, delivered in the order the
// model backend produced it.
type TextFragment struct {
	Turn int
	Text string
}

// ToolCallRequested announces a tool call the model asked for. It is
// emitted before the call is dispatched.
type ToolCallRequested struct {
	Turn      int
	CallID    string
	Name      string
	Arguments string
}

// ToolResult is the outcome of one tool call. When IsError is set,
// ErrorKind says how the call failed.
type ToolResult struct {
	Turn      int
	CallID    string
	Name      string
	Output    string
	IsError   bool
	ErrorKind ToolErrorKind
}

// Completion is the terminal event of a successful run.
type Completion struct {
	RunID      string
	Turns      int
	Text       string
	PreviewURL string
}

// Failure is the terminal event of a failed run. Err is always an *Error.
type Failure struct {
	RunID string
	Turns int
	Err   error
}

func (Status) Type() EventType            { return EventStatus }
func (TurnStarted) Type() EventType       { return EventTurnStarted }
func (TextFragment) Type() EventType      { return EventTextFragment }
func (ToolCallRequested) Type() EventType { return EventToolCallRequested }
func (ToolResult) Type() EventType        { return EventToolResult }
func (Completion) Type() EventType        { return EventCompletion }
func (Failure) Type() EventType           { return EventFailure }

func (Status) event()            {}
func (TurnStarted) event()       {}
func (TextFragment) event()      {}
func (ToolCallRequested) event() {}
func (ToolResult) event()        {}
func (Completion) event()        {}
func (Failure) event()           {}

// IsTerminal reports whether ev ends a run.
func IsTerminal(ev Event) bool {
	switch ev.(type) {
	case Completion, Failure:
		return true
	}
	return false
}
