package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/studyhall-ai/studyhall-go/internal/chunker"
	"github.com/studyhall-ai/studyhall-go/internal/rag"
)

// fakeSearcher is a canned-response Searcher for tool tests.
type fakeSearcher struct {
	hits       []rag.Hit
	searchErr  error
	outline    *rag.CourseOutline
	outlineErr error

	lessonLinks map[int]string
	courseLink  string

	lastQuery  string
	lastCourse string
	lastLesson *int
}

func (f *fakeSearcher) Search(_ context.Context, query, courseName string, lessonNumber *int, _ int) ([]rag.Hit, error) {
	f.lastQuery = query
	f.lastCourse = courseName
	f.lastLesson = lessonNumber
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.hits, nil
}

func (f *fakeSearcher) Outline(_ context.Context, _ string) (*rag.CourseOutline, error) {
	if f.outlineErr != nil {
		return nil, f.outlineErr
	}
	return f.outline, nil
}

func (f *fakeSearcher) LessonLink(_ context.Context, _ string, lessonNumber int) (string, error) {
	return f.lessonLinks[lessonNumber], nil
}

func (f *fakeSearcher) CourseLink(_ context.Context, _ string) (string, error) {
	return f.courseLink, nil
}

func ptr(n int) *int { return &n }

func Test_SearchTool_FormatsResultsWithHeaders(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{
		hits: []rag.Hit{
			{Content: "MCP servers expose tools.", CourseTitle: "MCP Course", LessonNumber: ptr(2)},
			{Content: "Clients connect over stdio.", CourseTitle: "MCP Course", LessonNumber: ptr(3)},
		},
		lessonLinks: map[int]string{2: "https://example.com/mcp/2", 3: "https://example.com/mcp/3"},
	}
	st := NewSearchTool(searcher)

	out, err := st.InvokableRun(context.Background(), `{"query":"what are MCP servers"}`)
	if err != nil {
		t.Fatalf("InvokableRun: %v", err)
	}

	want := "[MCP Course - Lesson 2]\nMCP servers expose tools.\n\n[MCP Course - Lesson 3]\nClients connect over stdio."
	if out != want {
		t.Fatalf("output mismatch:\ngot:  %q\nwant: %q", out, want)
	}
	if searcher.lastQuery != "what are MCP servers" {
		t.Fatalf("query not forwarded, got %q", searcher.lastQuery)
	}
}

func Test_SearchTool_RecordsOneCitationPerHit(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{
		hits: []rag.Hit{
			{Content: "a", CourseTitle: "MCP Course", LessonNumber: ptr(1)},
			{Content: "b", CourseTitle: "MCP Course"},
		},
		lessonLinks: map[int]string{1: "https://example.com/mcp/1"},
		courseLink:  "https://example.com/mcp",
	}
	st := NewSearchTool(searcher)

	if _, err := st.InvokableRun(context.Background(), `{"query":"q"}`); err != nil {
		t.Fatalf("InvokableRun: %v", err)
	}

	sources := st.LastSources()
	if len(sources) != 2 {
		t.Fatalf("got %d sources, want 2", len(sources))
	}
	if sources[0].Text != "MCP Course - Lesson 1" || sources[0].Link != "https://example.com/mcp/1" {
		t.Fatalf("lesson citation mismatch: %+v", sources[0])
	}
	if sources[1].Text != "MCP Course" || sources[1].Link != "https://example.com/mcp" {
		t.Fatalf("course citation mismatch: %+v", sources[1])
	}
}

func Test_SearchTool_ReplacesSourcesOnEachCall(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{hits: []rag.Hit{{Content: "a", CourseTitle: "MCP Course", LessonNumber: ptr(1)}}}
	st := NewSearchTool(searcher)

	if _, err := st.InvokableRun(context.Background(), `{"query":"q"}`); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if len(st.LastSources()) != 1 {
		t.Fatalf("expected one source after first run")
	}

	searcher.hits = nil
	if _, err := st.InvokableRun(context.Background(), `{"query":"q"}`); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got := st.LastSources(); len(got) != 0 {
		t.Fatalf("stale sources survived an empty run: %+v", got)
	}
}

func Test_SearchTool_EmptyResultMessages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args string
		want string
	}{
		{"no filters", `{"query":"q"}`, "No relevant content found."},
		{"course filter", `{"query":"q","course_name":"MCP"}`, "No relevant content found in course 'MCP'."},
		{"lesson filter", `{"query":"q","lesson_number":3}`, "No relevant content found in lesson 3."},
		{"both filters", `{"query":"q","course_name":"MCP","lesson_number":3}`, "No relevant content found in course 'MCP' in lesson 3."},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			st := NewSearchTool(&fakeSearcher{})
			out, err := st.InvokableRun(context.Background(), tc.args)
			if err != nil {
				t.Fatalf("InvokableRun: %v", err)
			}
			if out != tc.want {
				t.Fatalf("got %q, want %q", out, tc.want)
			}
		})
	}
}

func Test_SearchTool_UnresolvableCourseIsInBandText(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{searchErr: &rag.CourseNotFoundError{Name: "Nonexistent"}}
	st := NewSearchTool(searcher)

	out, err := st.InvokableRun(context.Background(), `{"query":"q","course_name":"Nonexistent"}`)
	if err != nil {
		t.Fatalf("unresolvable course must not be an error, got %v", err)
	}
	if out != "No course found matching 'Nonexistent'" {
		t.Fatalf("got %q", out)
	}
	if len(st.LastSources()) != 0 {
		t.Fatalf("sources must be empty after a failed resolve")
	}
}

func Test_SearchTool_MissingQueryIsError(t *testing.T) {
	t.Parallel()

	st := NewSearchTool(&fakeSearcher{})
	if _, err := st.InvokableRun(context.Background(), `{}`); err == nil {
		t.Fatal("expected error for missing query")
	}
}

func Test_OutlineTool_RendersTitleLinkAndLessons(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{
		outline: &rag.CourseOutline{
			Title:      "MCP Course",
			Link:       "https://example.com/mcp",
			Instructor: "Ada",
			Lessons: []chunker.Lesson{
				{Number: 0, Title: "Introduction"},
				{Number: 1, Title: "Servers"},
			},
		},
	}
	ot := NewOutlineTool(searcher)

	out, err := ot.InvokableRun(context.Background(), `{"course_name":"mcp"}`)
	if err != nil {
		t.Fatalf("InvokableRun: %v", err)
	}

	for _, want := range []string{
		"Course: MCP Course",
		"Course Link: https://example.com/mcp",
		"Lessons (2):",
		"0. Introduction",
		"1. Servers",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}

	sources := ot.LastSources()
	if len(sources) != 1 || sources[0].Text != "MCP Course" || sources[0].Link != "https://example.com/mcp" {
		t.Fatalf("outline citation mismatch: %+v", sources)
	}
}

func Test_OutlineTool_UnresolvableCourseIsInBandText(t *testing.T) {
	t.Parallel()

	ot := NewOutlineTool(&fakeSearcher{outlineErr: &rag.CourseNotFoundError{Name: "Nope"}})
	out, err := ot.InvokableRun(context.Background(), `{"course_name":"Nope"}`)
	if err != nil {
		t.Fatalf("unresolvable course must not be an error, got %v", err)
	}
	if out != "No course found matching 'Nope'" {
		t.Fatalf("got %q", out)
	}
}

func Test_Registry_RejectsDuplicateNames(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if err := r.Register(NewSearchTool(&fakeSearcher{})); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(NewSearchTool(&fakeSearcher{})); err == nil {
		t.Fatal("expected duplicate-name error")
	}
}

func Test_Registry_DefinitionsPreserveOrder(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if err := r.Register(NewSearchTool(&fakeSearcher{})); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(NewOutlineTool(&fakeSearcher{})); err != nil {
		t.Fatal(err)
	}

	infos, err := r.Definitions(context.Background())
	if err != nil {
		t.Fatalf("Definitions: %v", err)
	}
	if len(infos) != 2 || infos[0].Name != SearchToolName || infos[1].Name != OutlineToolName {
		t.Fatalf("unexpected definitions: %+v", infos)
	}
}

func Test_Registry_ExecuteUnknownToolFails(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	_, err := r.Execute(context.Background(), "does_not_exist", `{}`)
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("got %v, want ErrUnknownTool", err)
	}
}

func Test_Registry_AggregatesAndResetsSources(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{hits: []rag.Hit{{Content: "a", CourseTitle: "MCP Course", LessonNumber: ptr(1)}}}
	st := NewSearchTool(searcher)
	r := NewRegistry()
	if err := r.Register(st); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Execute(context.Background(), SearchToolName, `{"query":"q"}`); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := r.LastSources(); len(got) != 1 {
		t.Fatalf("got %d aggregated sources, want 1", len(got))
	}

	r.ResetSources()
	if got := r.LastSources(); len(got) != 0 {
		t.Fatalf("sources survived reset: %+v", got)
	}
}
