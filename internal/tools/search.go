package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/studyhall-ai/studyhall-go/internal/rag"
)

// SearchToolName is the tool name the language model uses to request a
// course content search.
const SearchToolName = "search_course_content"

// SearchTool searches course materials with fuzzy course-name matching and
// optional lesson filtering. Each execution records one citation per result,
// replacing the previous buffer contents.
type SearchTool struct {
	// searcher is the retrieval backend.
	searcher Searcher

	// mu guards lastSources.
	mu sync.Mutex

	// lastSources holds the citations from the most recent execution only.
	lastSources []Citation
}

// searchInput is the JSON-serialisable input schema for SearchTool.
type searchInput struct {
	// Query is what to search for in the course content.
	Query string `json:"query"`

	// CourseName optionally narrows the search to one course; partial and
	// misspelled titles are resolved against the catalog.
	CourseName string `json:"course_name,omitempty"`

	// LessonNumber optionally narrows the search to one lesson.
	LessonNumber *int `json:"lesson_number,omitempty"`
}

// NewSearchTool constructs a SearchTool over the given searcher.
func NewSearchTool(searcher Searcher) *SearchTool {
	return &SearchTool{searcher: searcher}
}

// Name returns the tool name registered with the model.
func (t *SearchTool) Name() string { return SearchToolName }

// Info returns the tool schema sent to the language model. The description
// is the only contract the model sees, so it spells out when to search and
// what the filters mean.
func (t *SearchTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return toolInfo(
		t.Name(),
		"Search course materials with smart course name matching and lesson filtering. "+
			"Use this for questions about specific course content or lesson details.",
		map[string]*schema.ParameterInfo{
			"query": {
				Type:     schema.String,
				Desc:     "What to search for in the course content.",
				Required: true,
			},
			"course_name": {
				Type: schema.String,
				Desc: "Course title to search within (partial matches work, e.g. 'MCP', 'Introduction').",
			},
			"lesson_number": {
				Type: schema.Integer,
				Desc: "Specific lesson number to search within (e.g. 1, 2, 3).",
			},
		},
	), nil
}

// InvokableRun executes one filtered search and renders the results as text.
// An unresolvable course filter and an empty result set both come back as
// explanatory text, not errors, so the model receives unambiguous negative
// information and the query still completes.
func (t *SearchTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var input searchInput
	if err := json.Unmarshal([]byte(argumentsInJSON), &input); err != nil {
		return "", fmt.Errorf("%s: invalid input: %w", t.Name(), err)
	}
	if input.Query == "" {
		return "", fmt.Errorf("%s: query is required", t.Name())
	}

	hits, err := t.searcher.Search(ctx, input.Query, input.CourseName, input.LessonNumber, 0)
	if err != nil {
		var notFound *rag.CourseNotFoundError
		if errors.As(err, &notFound) {
			t.setSources(nil)
			return fmt.Sprintf("No course found matching '%s'", input.CourseName), nil
		}
		return "", fmt.Errorf("%s: %w", t.Name(), err)
	}

	if len(hits) == 0 {
		t.setSources(nil)
		return noResultsMessage(input), nil
	}

	blocks := make([]string, 0, len(hits))
	sources := make([]Citation, 0, len(hits))
	for _, hit := range hits {
		header := hit.CourseTitle
		citation := Citation{Text: hit.CourseTitle}
		if hit.LessonNumber != nil {
			header = fmt.Sprintf("%s - Lesson %d", hit.CourseTitle, *hit.LessonNumber)
			citation.Text = header
			if link, linkErr := t.searcher.LessonLink(ctx, hit.CourseTitle, *hit.LessonNumber); linkErr == nil {
				citation.Link = link
			}
		} else if link, linkErr := t.searcher.CourseLink(ctx, hit.CourseTitle); linkErr == nil {
			citation.Link = link
		}

		blocks = append(blocks, fmt.Sprintf("[%s]\n%s", header, hit.Content))
		sources = append(sources, citation)
	}
	t.setSources(sources)

	return strings.Join(blocks, "\n\n"), nil
}

// noResultsMessage builds the explicit negative response for an empty result
// set, naming the filters that were applied.
func noResultsMessage(input searchInput) string {
	var filter strings.Builder
	if input.CourseName != "" {
		fmt.Fprintf(&filter, " in course '%s'", input.CourseName)
	}
	if input.LessonNumber != nil {
		fmt.Fprintf(&filter, " in lesson %d", *input.LessonNumber)
	}
	return fmt.Sprintf("No relevant content found%s.", filter.String())
}

// setSources replaces the citation buffer with the given set.
func (t *SearchTool) setSources(sources []Citation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSources = sources
}

// LastSources returns the citations recorded by the most recent execution.
func (t *SearchTool) LastSources() []Citation {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastSources
}

// ResetSources clears the citation buffer.
func (t *SearchTool) ResetSources() {
	t.setSources(nil)
}
