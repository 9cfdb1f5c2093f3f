package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/studyhall-ai/studyhall-go/internal/session"
	"github.com/studyhall-ai/studyhall-go/internal/tools"
)

// modelCall records one Generate invocation for assertions.
type modelCall struct {
	messages   []*schema.Message
	toolsBound bool
}

// fakeChatModel replays a scripted sequence of responses and records every
// Generate call along with whether tools were bound at the time.
type fakeChatModel struct {
	responses []*schema.Message
	errs      []error

	idx   *int
	calls *[]modelCall
	bound bool
}

func newFakeChatModel(responses []*schema.Message, errs []error) *fakeChatModel {
	idx := 0
	var calls []modelCall
	return &fakeChatModel{responses: responses, errs: errs, idx: &idx, calls: &calls}
}

func (m *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	*m.calls = append(*m.calls, modelCall{messages: input, toolsBound: m.bound})
	i := *m.idx
	*m.idx = i + 1
	if m.errs != nil && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	return m.responses[i], nil
}

func (m *fakeChatModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("fake: streaming not supported")
}

func (m *fakeChatModel) WithTools(_ []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	clone := *m
	clone.bound = true
	return &clone, nil
}

// fakeTool is a canned tool that records its arguments and, like the real
// tools, fills its citation buffer when it runs.
type fakeTool struct {
	name    string
	result  string
	err     error
	sources []tools.Citation

	gotArgs  string
	recorded []tools.Citation
}

func (f *fakeTool) Name() string { return f.name }

func (f *fakeTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: f.name,
		Desc: "test tool",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {Type: schema.String, Required: true},
		}),
	}, nil
}

func (f *fakeTool) InvokableRun(_ context.Context, args string, _ ...tool.Option) (string, error) {
	f.gotArgs = args
	f.recorded = f.sources
	return f.result, f.err
}

func (f *fakeTool) LastSources() []tools.Citation { return f.recorded }
func (f *fakeTool) ResetSources()                 { f.recorded = nil }

func toolCallReply(name, args string) *schema.Message {
	reply := schema.AssistantMessage("", []schema.ToolCall{
		{ID: "call_1", Function: schema.FunctionCall{Name: name, Arguments: args}},
	})
	return reply
}

func newOrchestrator(t *testing.T, m model.ToolCallingChatModel, ft *fakeTool, store session.Store) *Orchestrator {
	t.Helper()
	registry := tools.NewRegistry()
	if ft != nil {
		if err := registry.Register(ft); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	o, err := New(&Config{ChatModel: m, Registry: registry, Sessions: store})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func Test_Orchestrator_DirectAnswerWithoutTools(t *testing.T) {
	t.Parallel()

	m := newFakeChatModel([]*schema.Message{schema.AssistantMessage("Paris.", nil)}, nil)
	o := newOrchestrator(t, m, &fakeTool{name: "search_course_content"}, session.NewMemoryStore(2))

	res, err := o.Answer(context.Background(), "What is the capital of France?", "")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if res.Answer != "Paris." {
		t.Fatalf("answer = %q", res.Answer)
	}
	if len(res.Sources) != 0 {
		t.Fatalf("expected no sources, got %+v", res.Sources)
	}
	if res.SessionID == "" {
		t.Fatal("expected a minted session ID")
	}

	calls := *m.calls
	if len(calls) != 1 {
		t.Fatalf("got %d model calls, want 1", len(calls))
	}
	if !calls[0].toolsBound {
		t.Fatal("deciding call must have tools bound")
	}
}

func Test_Orchestrator_ToolCallThenFinalize(t *testing.T) {
	t.Parallel()

	ft := &fakeTool{
		name:    "search_course_content",
		result:  "[MCP Course - Lesson 2]\nServers expose tools.",
		sources: []tools.Citation{{Text: "MCP Course - Lesson 2", Link: "https://example.com/2"}},
	}
	m := newFakeChatModel([]*schema.Message{
		toolCallReply("search_course_content", `{"query":"servers"}`),
		schema.AssistantMessage("Servers expose tools to clients.", nil),
	}, nil)
	o := newOrchestrator(t, m, ft, session.NewMemoryStore(2))

	res, err := o.Answer(context.Background(), "What do MCP servers do?", "")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if res.Answer != "Servers expose tools to clients." {
		t.Fatalf("answer = %q", res.Answer)
	}
	if len(res.Sources) != 1 || res.Sources[0].Text != "MCP Course - Lesson 2" {
		t.Fatalf("sources = %+v", res.Sources)
	}
	if ft.gotArgs != `{"query":"servers"}` {
		t.Fatalf("tool got args %q", ft.gotArgs)
	}

	calls := *m.calls
	if len(calls) != 2 {
		t.Fatalf("got %d model calls, want 2", len(calls))
	}
	if calls[1].toolsBound {
		t.Fatal("finalizing call must not have tools bound")
	}

	// The finalize call sees the assistant's tool request and the result.
	final := calls[1].messages
	last := final[len(final)-1]
	if last.Role != schema.Tool || !strings.Contains(last.Content, "Servers expose tools.") {
		t.Fatalf("unexpected final tool message: %+v", last)
	}
}

func Test_Orchestrator_SourcesResetAfterQuery(t *testing.T) {
	t.Parallel()

	ft := &fakeTool{
		name:    "search_course_content",
		result:  "content",
		sources: []tools.Citation{{Text: "MCP Course - Lesson 1"}},
	}
	m := newFakeChatModel([]*schema.Message{
		toolCallReply("search_course_content", `{"query":"q"}`),
		schema.AssistantMessage("answer", nil),
	}, nil)
	o := newOrchestrator(t, m, ft, nil)

	res, err := o.Answer(context.Background(), "q", "")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if len(res.Sources) != 1 {
		t.Fatalf("sources = %+v", res.Sources)
	}
	if got := ft.LastSources(); len(got) != 0 {
		t.Fatalf("tool sources survived the query: %+v", got)
	}
}

func Test_Orchestrator_ExtraToolCallsAreSkipped(t *testing.T) {
	t.Parallel()

	ft := &fakeTool{name: "search_course_content", result: "content"}
	decide := schema.AssistantMessage("", []schema.ToolCall{
		{ID: "call_1", Function: schema.FunctionCall{Name: "search_course_content", Arguments: `{"query":"a"}`}},
		{ID: "call_2", Function: schema.FunctionCall{Name: "search_course_content", Arguments: `{"query":"b"}`}},
	})
	m := newFakeChatModel([]*schema.Message{decide, schema.AssistantMessage("answer", nil)}, nil)
	o := newOrchestrator(t, m, ft, nil)

	if _, err := o.Answer(context.Background(), "q", ""); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if ft.gotArgs != `{"query":"a"}` {
		t.Fatalf("executed wrong call: %q", ft.gotArgs)
	}

	final := (*m.calls)[1].messages
	skipped := final[len(final)-1]
	if skipped.ToolCallID != "call_2" || skipped.Content != skippedToolResult {
		t.Fatalf("second call not skipped: %+v", skipped)
	}
}

func Test_Orchestrator_UnknownToolReportedInBand(t *testing.T) {
	t.Parallel()

	m := newFakeChatModel([]*schema.Message{
		toolCallReply("does_not_exist", `{}`),
		schema.AssistantMessage("answer", nil),
	}, nil)
	o := newOrchestrator(t, m, &fakeTool{name: "search_course_content"}, nil)

	if _, err := o.Answer(context.Background(), "q", ""); err != nil {
		t.Fatalf("Answer: %v", err)
	}

	final := (*m.calls)[1].messages
	last := final[len(final)-1]
	if last.Content != "Tool 'does_not_exist' not found" {
		t.Fatalf("got %q", last.Content)
	}
}

func Test_Orchestrator_HistoryAppearsInSystemPrompt(t *testing.T) {
	t.Parallel()

	store := session.NewMemoryStore(2)
	id, _ := store.NewSession(context.Background())
	if err := store.AddExchange(context.Background(), id, "What is MCP?", "A protocol."); err != nil {
		t.Fatal(err)
	}

	m := newFakeChatModel([]*schema.Message{schema.AssistantMessage("More detail.", nil)}, nil)
	o := newOrchestrator(t, m, &fakeTool{name: "search_course_content"}, store)

	res, err := o.Answer(context.Background(), "Tell me more.", id)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if res.SessionID != id {
		t.Fatalf("session ID changed: %q", res.SessionID)
	}

	system := (*m.calls)[0].messages[0]
	if system.Role != schema.System {
		t.Fatalf("first message role = %v", system.Role)
	}
	for _, want := range []string{"Previous conversation:", "User: What is MCP?", "Assistant: A protocol."} {
		if !strings.Contains(system.Content, want) {
			t.Fatalf("system prompt missing %q", want)
		}
	}
}

func Test_Orchestrator_ExchangePersistedOnSuccess(t *testing.T) {
	t.Parallel()

	store := session.NewMemoryStore(2)
	m := newFakeChatModel([]*schema.Message{schema.AssistantMessage("Paris.", nil)}, nil)
	o := newOrchestrator(t, m, &fakeTool{name: "search_course_content"}, store)

	res, err := o.Answer(context.Background(), "Capital of France?", "")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}

	history, err := store.Recent(context.Background(), res.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].Question != "Capital of France?" || history[0].Answer != "Paris." {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func Test_Orchestrator_FailedQueryNotPersisted(t *testing.T) {
	t.Parallel()

	store := session.NewMemoryStore(2)
	id, _ := store.NewSession(context.Background())

	m := newFakeChatModel([]*schema.Message{nil}, []error{errors.New("backend down")})
	o := newOrchestrator(t, m, &fakeTool{name: "search_course_content"}, store)

	if _, err := o.Answer(context.Background(), "q", id); err == nil {
		t.Fatal("expected error from failing model")
	}

	history, err := store.Recent(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 0 {
		t.Fatalf("failed query polluted history: %+v", history)
	}
}

func Test_Orchestrator_FinalizeErrorPropagates(t *testing.T) {
	t.Parallel()

	ft := &fakeTool{name: "search_course_content", result: "content"}
	m := newFakeChatModel(
		[]*schema.Message{toolCallReply("search_course_content", `{"query":"q"}`), nil},
		[]error{nil, errors.New("backend down")},
	)
	o := newOrchestrator(t, m, ft, nil)

	if _, err := o.Answer(context.Background(), "q", ""); err == nil {
		t.Fatal("expected finalize error")
	}
}
