// Package tools defines the capabilities the assistant's language model can
// invoke during a query, and the registry that holds their schemas, routes
// invocations by name, and buffers the source citations produced by the most
// recent invocation set.
package tools

import (
	"context"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/studyhall-ai/studyhall-go/internal/rag"
)

// Tool is the contract every registered capability satisfies. It extends
// Eino's invokable tool interface with a Name accessor so the registry can
// route calls without fetching the schema.
type Tool interface {
	tool.InvokableTool

	// Name returns the unique tool name exposed to the language model.
	Name() string
}

// SourceTracker is implemented by tools that record citations for the chunks
// or courses backing their last result. The buffer holds only the most
// recent invocation's sources; it is replaced on each call and cleared by
// the orchestrator after the response is assembled.
type SourceTracker interface {
	// LastSources returns the citations recorded by the most recent call.
	LastSources() []Citation

	// ResetSources clears the citation buffer.
	ResetSources()
}

// Citation is a human-readable provenance reference attached to retrieved
// content, shown to the user alongside the answer.
type Citation struct {
	// Text identifies the source, e.g. "MCP Course - Lesson 2".
	Text string `json:"text"`

	// Link is the optional URL of the cited lesson or course.
	Link string `json:"link,omitempty"`
}

// Searcher is the retrieval surface the tools depend on.
// *rag.VectorIndex satisfies it; tests inject fakes.
type Searcher interface {
	// Search retrieves relevant chunks, optionally filtered by a fuzzy
	// course name and a lesson number.
	Search(ctx context.Context, query, courseName string, lessonNumber *int, limit int) ([]rag.Hit, error)

	// Outline resolves a fuzzy course name to its catalog entry.
	Outline(ctx context.Context, courseName string) (*rag.CourseOutline, error)

	// LessonLink returns the stored link for a course lesson, or "".
	LessonLink(ctx context.Context, courseTitle string, lessonNumber int) (string, error)

	// CourseLink returns the stored link for a course, or "".
	CourseLink(ctx context.Context, courseTitle string) (string, error)
}

// compile-time checks that the concrete tools satisfy the interfaces.
var (
	_ Tool          = (*SearchTool)(nil)
	_ SourceTracker = (*SearchTool)(nil)
	_ Tool          = (*OutlineTool)(nil)
	_ SourceTracker = (*OutlineTool)(nil)
)

// toolInfo is a small helper shared by the tool implementations.
func toolInfo(name, desc string, params map[string]*schema.ParameterInfo) *schema.ToolInfo {
	return &schema.ToolInfo{
		Name:        name,
		Desc:        desc,
		ParamsOneOf: schema.NewParamsOneOfByParams(params),
	}
}
