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

// OutlineToolName is the tool name the language model uses to request a
// course outline.
const OutlineToolName = "get_course_outline"

// OutlineTool returns the title, link, and full lesson list of one course,
// resolved from a fuzzy course name. It records a single citation for the
// course it rendered.
type OutlineTool struct {
	searcher Searcher

	mu          sync.Mutex
	lastSources []Citation
}

// outlineInput is the JSON-serialisable input schema for OutlineTool.
type outlineInput struct {
	// CourseName is the course title to look up; partial matches work.
	CourseName string `json:"course_name"`
}

// NewOutlineTool constructs an OutlineTool over the given searcher.
func NewOutlineTool(searcher Searcher) *OutlineTool {
	return &OutlineTool{searcher: searcher}
}

// Name returns the tool name registered with the model.
func (t *OutlineTool) Name() string { return OutlineToolName }

// Info returns the tool schema sent to the language model.
func (t *OutlineTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return toolInfo(
		t.Name(),
		"Get the outline of a course: its title, link, and the complete numbered lesson list. "+
			"Use this for questions about a course's structure or what lessons it contains.",
		map[string]*schema.ParameterInfo{
			"course_name": {
				Type:     schema.String,
				Desc:     "Course title to look up (partial matches work, e.g. 'MCP', 'Introduction').",
				Required: true,
			},
		},
	), nil
}

// InvokableRun resolves the course and renders its outline. An unresolvable
// course name comes back as explanatory text for the model, not an error.
func (t *OutlineTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var input outlineInput
	if err := json.Unmarshal([]byte(argumentsInJSON), &input); err != nil {
		return "", fmt.Errorf("%s: invalid input: %w", t.Name(), err)
	}
	if input.CourseName == "" {
		return "", fmt.Errorf("%s: course_name is required", t.Name())
	}

	outline, err := t.searcher.Outline(ctx, input.CourseName)
	if err != nil {
		var notFound *rag.CourseNotFoundError
		if errors.As(err, &notFound) {
			t.setSources(nil)
			return fmt.Sprintf("No course found matching '%s'", input.CourseName), nil
		}
		return "", fmt.Errorf("%s: %w", t.Name(), err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Course: %s\n", outline.Title)
	if outline.Link != "" {
		fmt.Fprintf(&b, "Course Link: %s\n", outline.Link)
	}
	if outline.Instructor != "" {
		fmt.Fprintf(&b, "Instructor: %s\n", outline.Instructor)
	}
	fmt.Fprintf(&b, "Lessons (%d):\n", len(outline.Lessons))
	for _, lesson := range outline.Lessons {
		fmt.Fprintf(&b, "%d. %s\n", lesson.Number, lesson.Title)
	}

	t.setSources([]Citation{{Text: outline.Title, Link: outline.Link}})
	return strings.TrimRight(b.String(), "\n"), nil
}

func (t *OutlineTool) setSources(sources []Citation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSources = sources
}

// LastSources returns the citations recorded by the most recent call.
func (t *OutlineTool) LastSources() []Citation {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastSources
}

// ResetSources clears the citation buffer.
func (t *OutlineTool) ResetSources() {
	t.setSources(nil)
}
