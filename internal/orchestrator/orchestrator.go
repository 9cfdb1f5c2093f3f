// Package orchestrator runs one query through the assistant's tool-calling
// loop: the model first decides whether to call a tool, at most one tool
// call is executed, and the model then produces the final answer from the
// tool results. Conversation history and source citations are threaded
// through each query.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/studyhall-ai/studyhall-go/internal/budget"
	"github.com/studyhall-ai/studyhall-go/internal/logging"
	"github.com/studyhall-ai/studyhall-go/internal/session"
	"github.com/studyhall-ai/studyhall-go/internal/tools"
)

// systemPrompt establishes the assistant's persona and its strict one-search
// tool protocol. The model sees the tool schemas separately; this prompt
// governs when to use them and how to shape the answer.
const systemPrompt = `You are an AI assistant specialized in course materials and educational content, with tools for searching course content and retrieving course outlines.

Tool Usage:
- Use the search tool only for questions about specific course content or detailed educational materials
- Use the outline tool for questions about a course's structure or lesson list
- One tool call per query maximum
- Synthesize tool results into accurate, fact-based responses
- If a tool yields no results, state this clearly without offering alternatives

Response Protocol:
- General knowledge questions: answer using existing knowledge without tools
- Course-specific questions: use a tool first, then answer
- No meta-commentary: provide direct answers only, without reasoning process, tool explanations, or question-type analysis

All responses must be:
1. Brief, Concise and focused - get to the point quickly
2. Educational - maintain instructional value
3. Clear - use accessible language
4. Example-supported - include relevant examples when they aid understanding
Provide only the direct answer to what was asked.`

// skippedToolResult is fed back to the model for every tool call after the
// first, keeping the one-call protocol without failing the query.
const skippedToolResult = "Tool call skipped: only one tool call is executed per query."

// state enumerates the phases of one query's lifecycle.
type state int

const (
	// stateDecide asks the tool-bound model whether to call a tool.
	stateDecide state = iota
	// stateExecute runs the first requested tool call.
	stateExecute
	// stateFinalize asks the unbound model for the answer given the results.
	stateFinalize
	// stateDone terminates the loop.
	stateDone
)

// Config holds the dependencies required to construct an Orchestrator.
type Config struct {
	// ChatModel is the LLM backend constructed by the provider factory.
	ChatModel model.ToolCallingChatModel

	// Registry holds the tools bound to the deciding model call.
	Registry *tools.Registry

	// Sessions is the conversation store. May be nil for stateless queries.
	Sessions session.Store

	// MaxContextTokens is the estimated token budget for the full input
	// context. History is trimmed oldest-first to fit. Defaults to
	// budget.DefaultMaxContextTokens if zero.
	MaxContextTokens int
}

// Orchestrator answers user queries through the one-search tool loop.
type Orchestrator struct {
	chatModel        model.ToolCallingChatModel
	registry         *tools.Registry
	sessions         session.Store
	maxContextTokens int
}

// Result is the outcome of one query.
type Result struct {
	// Answer is the assistant's final text.
	Answer string

	// Sources are the citations recorded by the tools this query executed.
	// Empty when the model answered without tools.
	Sources []tools.Citation

	// SessionID identifies the conversation, newly minted if the caller
	// supplied none.
	SessionID string
}

// New constructs an Orchestrator from the provided Config.
func New(cfg *Config) (*Orchestrator, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("orchestrator: ChatModel must not be nil")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("orchestrator: Registry must not be nil")
	}
	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}
	return &Orchestrator{
		chatModel:        cfg.ChatModel,
		registry:         cfg.Registry,
		sessions:         cfg.Sessions,
		maxContextTokens: maxCtx,
	}, nil
}

// Answer runs one query to completion. A missing sessionID mints a new
// session. The completed exchange is persisted only on success, so a failed
// query never pollutes the history it would be answered against on retry.
func (o *Orchestrator) Answer(ctx context.Context, query, sessionID string) (*Result, error) {
	log := logging.FromContext(ctx)

	if sessionID == "" && o.sessions != nil {
		id, err := o.sessions.NewSession(ctx)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: create session: %w", err)
		}
		sessionID = id
	}

	messages, err := o.buildMessages(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}

	defs, err := o.registry.Definitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	bound, err := o.chatModel.WithTools(defs)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: bind tools: %w", err)
	}

	// Stale citations from a previous query on these tools must not leak
	// into this result.
	o.registry.ResetSources()

	var (
		st     = stateDecide
		reply  *schema.Message
		answer string
	)
	for st != stateDone {
		switch st {
		case stateDecide:
			reply, err = bound.Generate(ctx, messages)
			if err != nil {
				return nil, fmt.Errorf("orchestrator: decide: %w", err)
			}
			if len(reply.ToolCalls) == 0 {
				answer = reply.Content
				st = stateDone
				break
			}
			st = stateExecute

		case stateExecute:
			messages = append(messages, reply)
			messages = append(messages, o.executeToolCalls(ctx, reply.ToolCalls)...)
			st = stateFinalize

		case stateFinalize:
			// No tools bound here: the model must answer from the results
			// it already has instead of searching again.
			final, err := o.chatModel.Generate(ctx, messages)
			if err != nil {
				return nil, fmt.Errorf("orchestrator: finalize: %w", err)
			}
			answer = final.Content
			st = stateDone
		}
	}

	sources := o.registry.LastSources()
	o.registry.ResetSources()

	if o.sessions != nil {
		if err := o.sessions.AddExchange(ctx, sessionID, query, answer); err != nil {
			log.Warn("session: failed to persist exchange", slog.Any("error", err))
		}
	}

	return &Result{Answer: answer, Sources: sources, SessionID: sessionID}, nil
}

// executeToolCalls runs the first requested call and returns one tool
// message per request. Calls past the first receive skippedToolResult. An
// unknown tool name is reported to the model in-band; genuine tool failures
// surface as a tool message carrying the error so the model can explain it.
func (o *Orchestrator) executeToolCalls(ctx context.Context, calls []schema.ToolCall) []*schema.Message {
	log := logging.FromContext(ctx)

	results := make([]*schema.Message, 0, len(calls))
	for i, call := range calls {
		if i > 0 {
			log.Warn("tool call skipped: one call per query",
				slog.String("tool", call.Function.Name),
				slog.Int("position", i),
			)
			results = append(results, schema.ToolMessage(skippedToolResult, call.ID, schema.WithToolName(call.Function.Name)))
			continue
		}

		out, err := o.registry.Execute(ctx, call.Function.Name, call.Function.Arguments)
		if err != nil {
			if errors.Is(err, tools.ErrUnknownTool) {
				out = fmt.Sprintf("Tool '%s' not found", call.Function.Name)
			} else {
				log.Warn("tool execution failed",
					slog.String("tool", call.Function.Name),
					slog.Any("error", err),
				)
				out = fmt.Sprintf("Tool execution failed: %v", err)
			}
		}
		results = append(results, schema.ToolMessage(out, call.ID, schema.WithToolName(call.Function.Name)))
	}
	return results
}

// buildMessages assembles the system prompt (with the history transcript
// appended) and the current user message. History that does not fit the
// token budget is dropped oldest-first.
func (o *Orchestrator) buildMessages(ctx context.Context, query, sessionID string) ([]*schema.Message, error) {
	log := logging.FromContext(ctx)

	prompt := systemPrompt
	if o.sessions != nil && sessionID != "" {
		exchanges, err := o.sessions.Recent(ctx, sessionID)
		if err != nil {
			// History failure is non-fatal: answer statelessly.
			log.Warn("session: failed to load history", slog.Any("error", err))
			exchanges = nil
		}

		fixed := budget.EstimateMessages([]*schema.Message{
			schema.SystemMessage(systemPrompt),
			schema.UserMessage(query),
		})
		before := len(exchanges)
		exchanges = budget.TrimExchanges(fixed, exchanges, o.maxContextTokens)
		if dropped := before - len(exchanges); dropped > 0 {
			log.Warn("budget: dropped exchanges to fit context window",
				slog.Int("dropped", dropped),
				slog.Int("retained", len(exchanges)),
				slog.Int("max_tokens", o.maxContextTokens),
			)
		}

		if transcript := session.Transcript(exchanges); transcript != "" {
			prompt = systemPrompt + "\n\nPrevious conversation:\n" + transcript
		}
	}

	return []*schema.Message{
		schema.SystemMessage(prompt),
		schema.UserMessage(query),
	}, nil
}
