package browsy

import (
	"time"
)

// ServerStatus is the lifecycle state of the browsy server process
type ServerStatus string

const (
	StatusStopped  ServerStatus = "stopped"
	StatusStarting ServerStatus = "starting"
	StatusRunning  ServerStatus = "running"
	StatusError    ServerStatus = "error"
)

// ServerInfo is a point-in-time snapshot of the server manager
type ServerInfo struct {
	Status ServerStatus `json:"status"`
	Port   int          `json:"port"`
	PID    int          `json:"pid,omitempty"`
	Error  string       `json:"error,omitempty"`
	// Owned is false when the server was already running and has been adopted
	Owned bool `json:"owned"`
}

// Session maps an agent to the browsy session token issued for it
type Session struct {
	AgentID   string    `json:"agentId"`
	Token     string    `json:"token"` // empty until the server issues one
	CreatedAt time.Time `json:"createdAt"`
}

// Pending reports whether the server has not issued a token yet
func (s Session) Pending() bool {
	return s.Token == ""
}

// Response is the normalized result of one browsy REST call.
// Body is always the raw text; JSON is only set when Body parsed as JSON.
type Response struct {
	OK      bool   `json:"ok"`
	Status  int    `json:"status"`
	Session string `json:"session"`
	Body    string `json:"body"`
	JSON    any    `json:"json,omitempty"`
}

// ErrorText returns the "error" field of a JSON object body, if any
func (r *Response) ErrorText() (string, bool) {
	obj, ok := r.JSON.(map[string]any)
	if !ok {
		return "", false
	}
	msg, ok := obj["error"].(string)
	return msg, ok
}

// Text returns the caller-facing result: the body on success, otherwise the
// server's error message when it sent one.
func (r *Response) Text() string {
	if r.OK {
		return r.Body
	}
	if msg, ok := r.ErrorText(); ok {
		return msg
	}
	return r.Body
}
