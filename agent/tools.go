package agent

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// ToolName identifies a tool the orchestrator can run.
type ToolName string

const (
	// ToolCheckLeaveBalance reports a user's remaining leave.
	ToolCheckLeaveBalance ToolName = "checkLeaveBalance"
)

// DefaultUserID is used when a request carries no user ID.
const DefaultUserID = "default"

// ToolRequest names a tool and the arguments to run it with.
type ToolRequest struct {
	Name      ToolName
	Arguments map[string]any
}

// ToolHandler runs one tool. The result must be JSON-serializable.
type ToolHandler func(ctx context.Context, args map[string]any) (any, error)

// Classifier decides whether a question needs a tool.
// It must not perform I/O.
type Classifier func(question, userID string) (ToolRequest, bool)

var leaveBalancePattern = regexp.MustCompile(`(?i)balance|remaining|left|how many.*leave`)

// KeywordClassifier routes questions about remaining leave to
// ToolCheckLeaveBalance for the asking user.
func KeywordClassifier(question, userID string) (ToolRequest, bool) {
	if !leaveBalancePattern.MatchString(question) {
		return ToolRequest{}, false
	}
	if strings.TrimSpace(userID) == "" {
		userID = DefaultUserID
	}
	return ToolRequest{
		Name:      ToolCheckLeaveBalance,
		Arguments: map[string]any{"userId": userID},
	}, true
}

// Registry binds tool names to handlers.
type Registry struct {
	handlers map[ToolName]ToolHandler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[ToolName]ToolHandler)}
}

// DefaultRegistry returns a registry with every built-in tool bound to dir.
func DefaultRegistry(dir LeaveDirectory) *Registry {
	r := NewRegistry()
	_ = r.Register(ToolCheckLeaveBalance, LeaveBalanceTool(dir))
	return r
}

// Register binds handler to name, replacing any earlier binding.
func (r *Registry) Register(name ToolName, handler ToolHandler) error {
	if handler == nil {
		return errors.New("tool handler is nil")
	}
	r.handlers[name] = handler
	return nil
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []ToolName {
	names := make([]ToolName, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Execute runs the handler bound to req.Name.
func (r *Registry) Execute(ctx context.Context, req ToolRequest) (any, error) {
	handler, ok := r.handlers[req.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, req.Name)
	}
	result, err := handler(ctx, req.Arguments)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrToolExecution, req.Name, err)
	}
	return result, nil
}
