// Package model defines the boundary between a space and the language model
// that drives its agents. A Renderer flattens derived state into a Request;
// the provider adapters under model/anthropic and model/openai turn that
// request into a single non-streaming completion.
package model

import (
	"context"
	"fmt"
	"sync"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of flattened conversation text. Tool results and world
// state arrive pre-rendered as text, so there is no separate tool role.
type Message struct {
	Role Role
	Text string
}

// ToolDefinition advertises a callable action to the model. Parameters is a
// JSON schema object describing the expected arguments.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request is a single completion request.
type Request struct {
	System      string
	Messages    []Message
	Tools       []ToolDefinition
	Temperature float64
	MaxTokens   int
}

// ToolCall is a tool invocation the model asked for.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Usage reports token accounting for a completion.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is the model's completion: assistant text, any requested tool
// calls, and why generation stopped.
type Response struct {
	Text         string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        *Usage
}

// Info describes a model implementation.
type Info struct {
	Provider string
	Name     string
}

// Model is a single-shot completion provider.
type Model interface {
	// Generate produces one completion for the request.
	Generate(ctx context.Context, req Request) (Response, error)

	// Info returns provider and model identifiers.
	Info() Info
}

// MockModel is a scripted Model for tests. Responses are returned in order;
// when the script runs out it fails with an error rather than looping.
type MockModel struct {
	mu        sync.Mutex
	responses []Response
	requests  []Request
	err       error
}

var _ Model = (*MockModel)(nil)

// NewMockModel constructs a mock that plays back the given responses.
func NewMockModel(responses ...Response) *MockModel {
	return &MockModel{responses: responses}
}

// FailWith makes every Generate call return err.
func (m *MockModel) FailWith(err error) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Generate pops the next scripted response.
func (m *MockModel) Generate(_ context.Context, req Request) (Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return Response{}, m.err
	}
	if len(m.responses) == 0 {
		return Response{}, fmt.Errorf("mock model: no response scripted for request %d", len(m.requests))
	}
	res := m.responses[0]
	m.responses = m.responses[1:]
	return res, nil
}

// Info implements Model.
func (m *MockModel) Info() Info { return Info{Provider: "mock", Name: "mock"} }

// Requests returns a copy of every request seen so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}
