// Package chunker parses structured course transcripts into course records,
// lesson records, and overlapping sentence-aware text chunks. Chunks are the
// atomic unit stored in and retrieved from the vector index.
package chunker

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Default chunking parameters. 800/100 keeps chunks small enough for embedding
// models while the overlap preserves local context across chunk boundaries.
const (
	// DefaultChunkSize is the maximum number of characters per chunk.
	DefaultChunkSize = 800

	// DefaultChunkOverlap is the number of trailing characters from a closed
	// chunk that are re-included at the start of the next chunk.
	DefaultChunkOverlap = 100
)

// Course is the parsed identity and metadata of one ingested document.
// The title is the unique, case-sensitive key for the course; a course is
// created once at ingestion time and never partially updated.
type Course struct {
	// Title is the unique course title (e.g. "MCP: Build Rich-Context AI Apps").
	Title string

	// Link is the optional course URL.
	Link string

	// Instructor is the optional instructor name.
	Instructor string

	// Lessons is the ordered list of lessons found in the document.
	Lessons []Lesson
}

// Lesson is one numbered lesson within a course.
type Lesson struct {
	// Number is the lesson number, unique within its course.
	Number int

	// Title is the lesson title from the marker line.
	Title string

	// Link is the optional lesson URL.
	Link string
}

// Chunk is a bounded span of course text with its provenance.
type Chunk struct {
	// Content is the chunk text, possibly carrying a "Lesson N content:"
	// prefix on the first chunk of each lesson.
	Content string

	// CourseTitle is the owning course's title (back-reference, not ownership).
	CourseTitle string

	// LessonNumber is the owning lesson's number, or nil for chunks from a
	// document body without lesson markers.
	LessonNumber *int

	// Index is the zero-based position of this chunk within its course.
	// Index values are assigned in document order and never reused.
	Index int
}

// Processor parses course documents and splits them into chunks.
// A single Processor is safe for concurrent use; it holds no mutable state.
type Processor struct {
	// chunkSize is the maximum number of characters per chunk.
	chunkSize int

	// chunkOverlap is the target number of overlap characters between
	// consecutive chunks.
	chunkOverlap int
}

// NewProcessor constructs a Processor with the given chunk size and overlap.
// Non-positive values fall back to the package defaults; an overlap that is
// not smaller than the size is clamped to size/10 so assembly always advances.
func NewProcessor(chunkSize, chunkOverlap int) *Processor {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 10
	}
	return &Processor{chunkSize: chunkSize, chunkOverlap: chunkOverlap}
}

// metadataLineCount is how many leading lines are scanned for the
// Course Title / Course Link / Course Instructor header block.
const metadataLineCount = 4

// lessonMarkerRe matches lesson marker lines like "Lesson 3: Advanced Topics".
var lessonMarkerRe = regexp.MustCompile(`^Lesson\s+(\d+):\s*(.*)$`)

// Parse parses a raw course document into its Course record and ordered
// chunks. The first few lines must contain a "Course Title:" header; a
// missing title is a parse error and the document is rejected. "Course Link:"
// and "Course Instructor:" headers are optional and may appear in any order.
func (p *Processor) Parse(raw string) (*Course, []Chunk, error) {
	lines := strings.Split(raw, "\n")

	course := &Course{}
	bodyStart := 0
	for i := 0; i < len(lines) && i < metadataLineCount; i++ {
		line := strings.TrimSpace(lines[i])
		switch {
		case strings.HasPrefix(line, "Course Title:"):
			course.Title = strings.TrimSpace(strings.TrimPrefix(line, "Course Title:"))
			bodyStart = i + 1
		case strings.HasPrefix(line, "Course Link:"):
			course.Link = strings.TrimSpace(strings.TrimPrefix(line, "Course Link:"))
			bodyStart = i + 1
		case strings.HasPrefix(line, "Course Instructor:"):
			course.Instructor = strings.TrimSpace(strings.TrimPrefix(line, "Course Instructor:"))
			bodyStart = i + 1
		}
	}
	if course.Title == "" {
		return nil, nil, fmt.Errorf("chunker: document has no \"Course Title:\" header")
	}

	segments := splitLessons(lines[bodyStart:])

	var chunks []Chunk
	index := 0
	for _, seg := range segments {
		if seg.lesson != nil {
			course.Lessons = append(course.Lessons, *seg.lesson)
		}

		text := normalizeWhitespace(strings.Join(seg.lines, "\n"))
		if text == "" {
			continue
		}

		pieces := p.chunkText(text)
		for i, piece := range pieces {
			c := Chunk{
				Content:     piece,
				CourseTitle: course.Title,
				Index:       index,
			}
			if seg.lesson != nil {
				n := seg.lesson.Number
				c.LessonNumber = &n
				// The first chunk of each lesson carries a provenance marker
				// so a chunk shown in isolation still identifies its lesson.
				if i == 0 {
					c.Content = "Lesson " + strconv.Itoa(n) + " content: " + piece
				}
			}
			chunks = append(chunks, c)
			index++
		}
	}

	return course, chunks, nil
}

// segment is a run of document lines belonging to one lesson, or to the
// unlabeled document body when no lesson markers exist.
type segment struct {
	// lesson is the lesson this segment belongs to, or nil for the
	// unlabeled body.
	lesson *Lesson

	// lines is the raw text of the segment.
	lines []string
}

// splitLessons scans the document body for "Lesson N: title" markers and
// groups the text between markers under the preceding lesson. An optional
// "Lesson Link:" line immediately after a marker attaches to that lesson.
// When no markers exist the entire body forms a single unlabeled segment.
func splitLessons(body []string) []segment {
	var segments []segment
	current := segment{}

	flush := func() {
		if current.lesson != nil || len(current.lines) > 0 {
			segments = append(segments, current)
		}
	}

	for i := 0; i < len(body); i++ {
		line := body[i]
		m := lessonMarkerRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			current.lines = append(current.lines, line)
			continue
		}

		flush()

		num, err := strconv.Atoi(m[1])
		if err != nil {
			// Unparseable lesson number; treat the line as plain text.
			current = segment{lines: []string{line}}
			continue
		}
		lesson := &Lesson{Number: num, Title: strings.TrimSpace(m[2])}

		// An optional "Lesson Link:" line directly after the marker belongs
		// to the marker, not to the lesson text.
		if i+1 < len(body) {
			next := strings.TrimSpace(body[i+1])
			if strings.HasPrefix(next, "Lesson Link:") {
				lesson.Link = strings.TrimSpace(strings.TrimPrefix(next, "Lesson Link:"))
				i++
			}
		}

		current = segment{lesson: lesson}
	}
	flush()

	// Drop a body-only segment that contains no text at all.
	out := segments[:0]
	for _, s := range segments {
		if s.lesson == nil && strings.TrimSpace(strings.Join(s.lines, "")) == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

// whitespaceRe collapses any run of whitespace, including newlines.
var whitespaceRe = regexp.MustCompile(`\s+`)

// normalizeWhitespace collapses whitespace runs to single spaces so document
// layout (hard wraps, indentation) does not fragment sentences.
func normalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// chunkText splits normalized text into chunks of at most p.chunkSize
// characters on sentence boundaries. Each new chunk re-includes enough
// trailing sentences from the previous chunk to cover p.chunkOverlap
// characters. A single sentence longer than the chunk size becomes its own
// chunk verbatim rather than being truncated.
func (p *Processor) chunkText(text string) []string {
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	var current []string
	currentLen := 0
	// fresh counts sentences in current that were not carried over from the
	// previous chunk; a trailing chunk of pure overlap is never emitted.
	fresh := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, strings.Join(current, " "))

		// Seed the next chunk with trailing sentences covering the overlap.
		var carry []string
		carryLen := 0
		for i := len(current) - 1; i >= 0; i-- {
			sl := len(current[i])
			if carryLen > 0 {
				sl++ // joining space
			}
			if carryLen+sl > p.chunkOverlap {
				break
			}
			carry = append([]string{current[i]}, carry...)
			carryLen += sl
		}
		current = carry
		currentLen = carryLen
		fresh = 0
	}

	for _, sentence := range sentences {
		// An oversized sentence is emitted on its own, never truncated.
		if len(sentence) > p.chunkSize {
			if fresh > 0 {
				flush()
			}
			current = nil
			currentLen = 0
			fresh = 0
			chunks = append(chunks, sentence)
			continue
		}

		addLen := len(sentence)
		if currentLen > 0 {
			addLen++ // joining space
		}

		if currentLen+addLen > p.chunkSize {
			if fresh > 0 {
				flush()
			} else {
				// Only carried overlap so far; drop it rather than flushing
				// a chunk made purely of repeated text.
				current = nil
				currentLen = 0
			}
			addLen = len(sentence)
			if currentLen > 0 {
				addLen++
			}
			// If the carry alone leaves no room, start clean.
			if currentLen+addLen > p.chunkSize {
				current = nil
				currentLen = 0
				addLen = len(sentence)
			}
		}

		current = append(current, sentence)
		currentLen += addLen
		fresh++
	}
	if fresh > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}

	return chunks
}
