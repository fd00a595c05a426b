// Package engine implements the agent control loop. An Engine provisions
// the sandbox and its preview, opens a tool gateway session, and then
// alternates between model submissions and tool dispatch until the model
// stops requesting tools. Progress is delivered as a lazy api.Event
// sequence; the gateway session is closed exactly once whichever way the
// run ends.
package engine
