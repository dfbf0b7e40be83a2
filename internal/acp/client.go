package acp

import (
	"context"
	"fmt"
)

// clientInfo identifies this application to agents.
var clientInfo = Implementation{
	Name:    "thoughttree",
	Version: "0.1.0",
	Title:   "ThoughtTree",
}

// DefaultCapabilities is what the bridge advertises: no client-side file
// access and no terminal, the agent does its own reading under the
// permission broker's supervision.
func DefaultCapabilities() ClientCapabilities {
	return ClientCapabilities{
		FS: FileSystemCapability{
			ReadTextFile:  false,
			WriteTextFile: false,
		},
		Terminal: false,
	}
}

// Initialize performs the mandatory first exchange on a fresh connection and
// validates the negotiated protocol version.
func (c *Connection) Initialize(ctx context.Context, caps ClientCapabilities) (*InitializeResult, error) {
	var result InitializeResult
	params := InitializeParams{
		ProtocolVersion:    ProtocolVersion,
		ClientCapabilities: caps,
		ClientInfo:         &clientInfo,
	}
	if err := c.Call(ctx, MethodInitialize, params, &result); err != nil {
		return nil, err
	}

	if result.ProtocolVersion != ProtocolVersion {
		err := &ProtocolError{
			Reason: fmt.Sprintf("agent speaks protocol %d, want %d", result.ProtocolVersion, ProtocolVersion),
			Err:    ErrUnsupportedVersion,
		}
		c.fail(err)
		return nil, err
	}
	return &result, nil
}

// NewSession creates an agent session rooted at the given working directory.
func (c *Connection) NewSession(ctx context.Context, cwd string) (string, error) {
	var result NewSessionResult
	params := NewSessionParams{Cwd: cwd, MCPServers: []any{}}
	if err := c.Call(ctx, MethodSessionNew, params, &result); err != nil {
		return "", err
	}
	if result.SessionID == "" {
		err := &ProtocolError{Reason: "agent returned empty session id", Err: ErrMalformedFrame}
		c.fail(err)
		return "", err
	}
	return result.SessionID, nil
}

// Prompt runs one turn. Chunks arrive through the session/update
// notification handler while this call is blocked; the returned stop reason
// is the turn's terminal classification.
func (c *Connection) Prompt(ctx context.Context, sessionID string, blocks []ContentBlock) (StopReason, error) {
	var result PromptResult
	params := PromptParams{SessionID: sessionID, Prompt: blocks}
	if err := c.Call(ctx, MethodSessionPrompt, params, &result); err != nil {
		return StopError, err
	}
	return ParseStopReason(result.StopReason), nil
}

// CancelSession tells the agent to abort the in-flight turn. Fire and
// forget: the caller does not wait for acknowledgement.
func (c *Connection) CancelSession(sessionID string) error {
	return c.Notify(MethodSessionCancel, CancelParams{SessionID: sessionID})
}
