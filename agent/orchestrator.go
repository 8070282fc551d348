package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/opsmind/ai"
	"github.com/poiesic/opsmind/core"
)

const (
	// DefaultTopK is the number of chunks retrieved per question.
	DefaultTopK = 3

	// DefaultHistoryTurns is how many trailing history turns reach the prompt.
	DefaultHistoryTurns = 5
)

// Retriever supplies ranked context for a question.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]*core.SearchResult, error)
	EmbeddingModel() string
}

// Request is one question with its conversation.
type Request struct {
	Question string                  `json:"question"`
	History  []core.ConversationTurn `json:"history,omitempty"`
	UserID   string                  `json:"userId,omitempty"`
}

// Orchestrator answers questions from retrieved context and tool data.
type Orchestrator struct {
	retriever    Retriever
	generator    ai.Generator
	registry     *Registry
	classifier   Classifier
	topK         int
	historyTurns int
	now          func() time.Time
	logger       *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithRegistry sets the tools available to the orchestrator.
// Default is DefaultRegistry(DefaultLeaveDirectory()).
func WithRegistry(registry *Registry) Option {
	return func(o *Orchestrator) error {
		if registry == nil {
			return errors.New("registry is nil")
		}
		o.registry = registry
		return nil
	}
}

// WithClassifier sets the tool classifier. Default is KeywordClassifier.
func WithClassifier(classifier Classifier) Option {
	return func(o *Orchestrator) error {
		if classifier == nil {
			return errors.New("classifier is nil")
		}
		o.classifier = classifier
		return nil
	}
}

// WithTopK sets how many chunks are retrieved per question.
func WithTopK(k int) Option {
	return func(o *Orchestrator) error {
		if k < 1 {
			return fmt.Errorf("top k must be positive: %d", k)
		}
		o.topK = k
		return nil
	}
}

// WithHistoryTurns sets how many trailing history turns are included.
func WithHistoryTurns(n int) Option {
	return func(o *Orchestrator) error {
		if n < 0 {
			return fmt.Errorf("history turns must not be negative: %d", n)
		}
		o.historyTurns = n
		return nil
	}
}

// WithClock overrides the time source used for timestamps and timings.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) error {
		if now == nil {
			return errors.New("clock is nil")
		}
		o.now = now
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// NewOrchestrator creates an orchestrator over retriever and generator.
func NewOrchestrator(retriever Retriever, generator ai.Generator, opts ...Option) (*Orchestrator, error) {
	if retriever == nil {
		return nil, ErrRetrieverRequired
	}
	if generator == nil {
		return nil, ErrGeneratorRequired
	}

	o := &Orchestrator{
		retriever:    retriever,
		generator:    generator,
		registry:     DefaultRegistry(DefaultLeaveDirectory()),
		classifier:   KeywordClassifier,
		topK:         DefaultTopK,
		historyTurns: DefaultHistoryTurns,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	o.logger = o.logger.With("component", "orchestrator")
	return o, nil
}

// Answer produces an answer for req.
//
// Retrieval failures are returned as errors, as are rejected credentials and
// cancellation during generation. Any other generation failure yields a
// fallback answer built from the retrieved text.
func (o *Orchestrator) Answer(ctx context.Context, req Request) (*core.AgentAnswer, error) {
	start := o.now()
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	answer := &core.AgentAnswer{
		Sources:     []core.Source{},
		ToolsCalled: []core.ToolInvocation{},
		ConversationContext: core.ConversationContext{
			MessageCount: len(req.History),
			HasHistory:   len(req.History) > 0,
		},
		Metadata: core.AnswerMetadata{
			Model:          o.generator.Model(),
			EmbeddingModel: o.retriever.EmbeddingModel(),
		},
	}
	finish := func() *core.AgentAnswer {
		answer.Metadata.ProcessingTimeMs = o.now().Sub(start).Milliseconds()
		return answer
	}

	results, err := o.retriever.Retrieve(ctx, question, o.topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}
	if len(results) == 0 {
		o.logger.Debug("no context found", "question", question)
		answer.Answer = NoResultsAnswer
		return finish(), nil
	}
	for _, r := range results {
		answer.Sources = append(answer.Sources, core.Source{
			Content:    r.Chunk.Content,
			Score:      r.Score,
			SourceFile: r.Chunk.Metadata.SourceFile,
			PageNumber: r.Chunk.Metadata.PageNumber,
		})
	}

	if toolReq, ok := o.classifier(question, req.UserID); ok {
		if invocation, ok := o.runTool(ctx, toolReq); ok {
			answer.ToolsCalled = append(answer.ToolsCalled, invocation)
		}
	}

	docContext := buildContext(results)
	prompt := buildPrompt(question, docContext,
		renderHistory(req.History, o.historyTurns),
		renderTools(answer.ToolsCalled))

	resp, err := o.generator.Generate(ctx, ai.GenerateRequest{System: systemPrompt, Prompt: prompt})
	if err != nil {
		if errors.Is(err, ai.ErrUnauthorized) || ctx.Err() != nil {
			return nil, err
		}
		notice := outageNotice
		if _, ok := ai.IsQuota(err); ok {
			notice = quotaNotice
		}
		o.logger.Warn("generation failed, answering from retrieved context", "err", err)
		answer.Answer = fallbackAnswer(notice, docContext, answer.ToolsCalled)
		answer.Metadata.FallbackMode = true
		return finish(), nil
	}

	answer.Answer = resp.Text
	if resp.Model != "" {
		answer.Metadata.Model = resp.Model
	}
	return finish(), nil
}

func (o *Orchestrator) runTool(ctx context.Context, req ToolRequest) (core.ToolInvocation, bool) {
	result, err := o.registry.Execute(ctx, req)
	if err != nil {
		o.logger.Warn("skipping tool", "tool", req.Name, "err", err)
		return core.ToolInvocation{}, false
	}
	o.logger.Debug("tool executed", "tool", req.Name)
	return core.ToolInvocation{
		ToolName:  string(req.Name),
		Arguments: req.Arguments,
		Result:    result,
		Timestamp: o.now(),
	}, true
}
