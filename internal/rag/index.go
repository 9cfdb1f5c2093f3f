package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/studyhall-ai/studyhall-go/internal/chunker"
)

// Collection names for the two logical collections sharing one embedding
// space: the course catalog (fuzzy course-name resolution) and the content
// chunks (passage retrieval).
const (
	CatalogCollection = "course_catalog"
	ContentCollection = "course_content"
)

// Payload field names stored alongside content chunks and catalog entries.
const (
	fieldCourseTitle  = "course_title"
	fieldLessonNumber = "lesson_number"
	fieldChunkIndex   = "chunk_index"
	fieldCourseLink   = "course_link"
	fieldInstructor   = "instructor"
	fieldLessons      = "lessons_json"
)

// DefaultMaxResults is the default number of chunks returned per search.
const DefaultMaxResults = 5

// CourseNotFoundError reports that a fuzzy course name matched nothing in the
// catalog. Search treats it as an empty result with an explanation, not a
// fatal failure.
type CourseNotFoundError struct {
	// Name is the course name the caller asked for.
	Name string
}

func (e *CourseNotFoundError) Error() string {
	return fmt.Sprintf("no course found matching %q", e.Name)
}

// Hit is one retrieved chunk with its provenance and distance.
type Hit struct {
	// Content is the chunk text.
	Content string

	// CourseTitle is the canonical title of the owning course.
	CourseTitle string

	// LessonNumber is the owning lesson number, or nil for chunks from an
	// unlabeled document body.
	LessonNumber *int

	// Distance is the semantic distance from the query (ascending order).
	Distance float32
}

// catalogLesson is the JSON shape of one lesson in a catalog entry's sidecar.
type catalogLesson struct {
	Number int    `json:"lesson_number"`
	Title  string `json:"lesson_title"`
	Link   string `json:"lesson_link,omitempty"`
}

// VectorIndex exposes course-aware retrieval over a Store's two collections.
// All methods are safe for concurrent use provided the underlying Store is.
type VectorIndex struct {
	// store is the similarity-search backend.
	store Store

	// maxResults is the result limit used when a caller passes 0.
	maxResults int
}

// NewVectorIndex constructs a VectorIndex over the given store.
// maxResults defaults to DefaultMaxResults when non-positive.
func NewVectorIndex(store Store, maxResults int) (*VectorIndex, error) {
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &VectorIndex{store: store, maxResults: maxResults}, nil
}

// AddCourse inserts a course's catalog entry, embedding the title so fuzzy
// course-name resolution works from partial or misspelled input. Inserting a
// title that already exists is a no-op; the return value reports whether the
// course was actually added so ingestion can skip duplicates without error.
func (x *VectorIndex) AddCourse(ctx context.Context, course *chunker.Course) (bool, error) {
	existing, err := x.store.Get(ctx, CatalogCollection, course.Title)
	if err != nil {
		return false, fmt.Errorf("rag: catalog lookup failed: %w", err)
	}
	if existing != nil {
		return false, nil
	}

	lessons := make([]catalogLesson, 0, len(course.Lessons))
	for _, l := range course.Lessons {
		lessons = append(lessons, catalogLesson{Number: l.Number, Title: l.Title, Link: l.Link})
	}
	lessonsJSON, err := json.Marshal(lessons)
	if err != nil {
		return false, fmt.Errorf("rag: marshal lessons: %w", err)
	}

	point := Point{
		ID:   course.Title,
		Text: course.Title,
		Payload: map[string]any{
			fieldCourseTitle: course.Title,
			fieldCourseLink:  course.Link,
			fieldInstructor:  course.Instructor,
			fieldLessons:     string(lessonsJSON),
		},
	}
	if err := x.store.Upsert(ctx, CatalogCollection, []Point{point}); err != nil {
		return false, fmt.Errorf("rag: catalog upsert failed: %w", err)
	}
	return true, nil
}

// AddChunks bulk-inserts content chunks with their filterable sidecar fields.
func (x *VectorIndex) AddChunks(ctx context.Context, chunks []chunker.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	points := make([]Point, 0, len(chunks))
	for _, c := range chunks {
		payload := map[string]any{
			fieldCourseTitle: c.CourseTitle,
			fieldChunkIndex:  c.Index,
		}
		if c.LessonNumber != nil {
			payload[fieldLessonNumber] = *c.LessonNumber
		}
		points = append(points, Point{
			ID:      c.CourseTitle + "#" + strconv.Itoa(c.Index),
			Text:    c.Content,
			Payload: payload,
		})
	}

	if err := x.store.Upsert(ctx, ContentCollection, points); err != nil {
		return fmt.Errorf("rag: content upsert failed: %w", err)
	}
	return nil
}

// ResolveCourseName resolves a fuzzy (partial, misspelled) course name to the
// canonical catalog title via semantic nearest-neighbor lookup. The single
// best match wins; there is no similarity threshold. Returns
// *CourseNotFoundError when the catalog has no entries.
func (x *VectorIndex) ResolveCourseName(ctx context.Context, name string) (string, error) {
	matches, err := x.store.Query(ctx, CatalogCollection, name, nil, 1)
	if err != nil {
		return "", fmt.Errorf("rag: course resolution failed: %w", err)
	}
	if len(matches) == 0 {
		return "", &CourseNotFoundError{Name: name}
	}
	return matches[0].ID, nil
}

// Search retrieves the chunks most relevant to query, optionally filtered to
// one course (resolved fuzzily first) and one lesson number. limit 0 uses
// the configured default. An unresolvable course name returns
// *CourseNotFoundError so callers can report it without failing the query.
func (x *VectorIndex) Search(ctx context.Context, query, courseName string, lessonNumber *int, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = x.maxResults
	}

	filter := Filter{}
	if courseName != "" {
		title, err := x.ResolveCourseName(ctx, courseName)
		if err != nil {
			return nil, err
		}
		filter[fieldCourseTitle] = title
	}
	if lessonNumber != nil {
		filter[fieldLessonNumber] = *lessonNumber
	}

	matches, err := x.store.Query(ctx, ContentCollection, query, filter, limit)
	if err != nil {
		return nil, fmt.Errorf("rag: content search failed: %w", err)
	}

	hits := make([]Hit, 0, len(matches))
	for _, m := range matches {
		hit := Hit{
			Content:     m.Text,
			CourseTitle: payloadString(m.Payload, fieldCourseTitle),
			Distance:    m.Distance,
		}
		if n, ok := payloadInt(m.Payload, fieldLessonNumber); ok {
			hit.LessonNumber = &n
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// CourseOutline is the catalog view of one course: canonical title, link,
// and the ordered lesson list.
type CourseOutline struct {
	// Title is the canonical course title.
	Title string

	// Link is the course URL, if any.
	Link string

	// Instructor is the instructor name, if any.
	Instructor string

	// Lessons is the ordered lesson metadata stored at ingestion time.
	Lessons []chunker.Lesson
}

// Outline resolves a fuzzy course name and returns that course's catalog
// entry. Returns *CourseNotFoundError when nothing matches.
func (x *VectorIndex) Outline(ctx context.Context, courseName string) (*CourseOutline, error) {
	title, err := x.ResolveCourseName(ctx, courseName)
	if err != nil {
		return nil, err
	}

	entry, err := x.store.Get(ctx, CatalogCollection, title)
	if err != nil {
		return nil, fmt.Errorf("rag: catalog fetch failed: %w", err)
	}
	if entry == nil {
		return nil, &CourseNotFoundError{Name: courseName}
	}

	outline := &CourseOutline{
		Title:      title,
		Link:       payloadString(entry.Payload, fieldCourseLink),
		Instructor: payloadString(entry.Payload, fieldInstructor),
	}
	var lessons []catalogLesson
	if raw := payloadString(entry.Payload, fieldLessons); raw != "" {
		if err := json.Unmarshal([]byte(raw), &lessons); err != nil {
			return nil, fmt.Errorf("rag: decode lessons for %q: %w", title, err)
		}
	}
	for _, l := range lessons {
		outline.Lessons = append(outline.Lessons, chunker.Lesson{Number: l.Number, Title: l.Title, Link: l.Link})
	}
	return outline, nil
}

// LessonLink returns the stored link for a lesson of the given course, or ""
// when the course or lesson has none.
func (x *VectorIndex) LessonLink(ctx context.Context, courseTitle string, lessonNumber int) (string, error) {
	entry, err := x.store.Get(ctx, CatalogCollection, courseTitle)
	if err != nil {
		return "", fmt.Errorf("rag: catalog fetch failed: %w", err)
	}
	if entry == nil {
		return "", nil
	}
	var lessons []catalogLesson
	if raw := payloadString(entry.Payload, fieldLessons); raw != "" {
		if err := json.Unmarshal([]byte(raw), &lessons); err != nil {
			return "", fmt.Errorf("rag: decode lessons for %q: %w", courseTitle, err)
		}
	}
	for _, l := range lessons {
		if l.Number == lessonNumber {
			return l.Link, nil
		}
	}
	return "", nil
}

// CourseLink returns the stored link for the given course, or "" if absent.
func (x *VectorIndex) CourseLink(ctx context.Context, courseTitle string) (string, error) {
	entry, err := x.store.Get(ctx, CatalogCollection, courseTitle)
	if err != nil {
		return "", fmt.Errorf("rag: catalog fetch failed: %w", err)
	}
	if entry == nil {
		return "", nil
	}
	return payloadString(entry.Payload, fieldCourseLink), nil
}

// CourseTitles lists the canonical titles of every ingested course.
func (x *VectorIndex) CourseTitles(ctx context.Context) ([]string, error) {
	ids, err := x.store.IDs(ctx, CatalogCollection)
	if err != nil {
		return nil, fmt.Errorf("rag: catalog listing failed: %w", err)
	}
	return ids, nil
}

// CourseCount returns the number of ingested courses.
func (x *VectorIndex) CourseCount(ctx context.Context) (int, error) {
	titles, err := x.CourseTitles(ctx)
	if err != nil {
		return 0, err
	}
	return len(titles), nil
}

// payloadString reads a string payload field, tolerating absence.
func payloadString(payload map[string]any, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

// payloadInt reads an integer payload field in any of the numeric shapes a
// backend may round-trip it as.
func payloadInt(payload map[string]any, key string) (int, bool) {
	switch v := payload[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
