package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/studyhall-ai/studyhall-go/internal/chunker"
)

// fakeIndexer records added courses and chunks in memory.
type fakeIndexer struct {
	courses   map[string]bool
	chunks    []chunker.Chunk
	courseErr error
	chunkErr  error
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{courses: make(map[string]bool)}
}

func (f *fakeIndexer) AddCourse(_ context.Context, course *chunker.Course) (bool, error) {
	if f.courseErr != nil {
		return false, f.courseErr
	}
	if f.courses[course.Title] {
		return false, nil
	}
	f.courses[course.Title] = true
	return true, nil
}

func (f *fakeIndexer) AddChunks(_ context.Context, chunks []chunker.Chunk) error {
	if f.chunkErr != nil {
		return f.chunkErr
	}
	f.chunks = append(f.chunks, chunks...)
	return nil
}

const sampleDoc = `Course Title: Python Basics
Course Link: https://example.com/python
Course Instructor: Ada

Lesson 0: Introduction
Welcome to the course. This lesson covers the very basics of Python.

Lesson 1: Variables
Variables hold values. Assignment uses the equals sign.
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func Test_Ingestion_FolderAddsCourses(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "python.txt", sampleDoc)
	writeFile(t, dir, "notes.json", `{"ignored": true}`)

	idx := newFakeIndexer()
	p, err := NewPipeline(idx, chunker.NewProcessor(800, 100))
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	stats, err := p.IngestFolder(context.Background(), dir)
	if err != nil {
		t.Fatalf("IngestFolder: %v", err)
	}
	if stats.CoursesAdded != 1 {
		t.Fatalf("CoursesAdded = %d, want 1", stats.CoursesAdded)
	}
	if stats.ChunksAdded == 0 || stats.ChunksAdded != len(idx.chunks) {
		t.Fatalf("ChunksAdded = %d, stored %d", stats.ChunksAdded, len(idx.chunks))
	}
	if !idx.courses["Python Basics"] {
		t.Fatal("course not added to catalog")
	}
}

func Test_Ingestion_DuplicateCourseSkipped(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "python.txt", sampleDoc)

	idx := newFakeIndexer()
	p, _ := NewPipeline(idx, nil)

	if _, err := p.IngestFolder(context.Background(), dir); err != nil {
		t.Fatal(err)
	}
	firstChunks := len(idx.chunks)

	stats, err := p.IngestFolder(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if stats.CoursesSkipped != 1 || stats.CoursesAdded != 0 {
		t.Fatalf("second run stats: %+v", stats)
	}
	if len(idx.chunks) != firstChunks {
		t.Fatalf("duplicate run added chunks: %d -> %d", firstChunks, len(idx.chunks))
	}
}

func Test_Ingestion_BadFileDoesNotAbortRun(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a_broken.txt", "no metadata header here at all")
	writeFile(t, dir, "b_good.txt", sampleDoc)

	idx := newFakeIndexer()
	p, _ := NewPipeline(idx, nil)

	stats, err := p.IngestFolder(context.Background(), dir)
	if err != nil {
		t.Fatalf("IngestFolder: %v", err)
	}
	if stats.FilesFailed != 1 {
		t.Fatalf("FilesFailed = %d, want 1", stats.FilesFailed)
	}
	if stats.CoursesAdded != 1 {
		t.Fatalf("CoursesAdded = %d, want 1", stats.CoursesAdded)
	}
}

func Test_Ingestion_InvalidUTF8IsDropped(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	content := "Course Title: Mixed Encoding\n\nLesson 0: Intro\nSome text with a stray \xff byte inside."
	writeFile(t, dir, "mixed.txt", content)

	idx := newFakeIndexer()
	p, _ := NewPipeline(idx, nil)

	added, chunks, err := p.IngestFile(context.Background(), filepath.Join(dir, "mixed.txt"))
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if !added || chunks == 0 {
		t.Fatalf("added=%v chunks=%d", added, chunks)
	}
	for _, c := range idx.chunks {
		if strings.ContainsRune(c.Content, '�') || strings.Contains(c.Content, "\xff") {
			t.Fatalf("invalid bytes survived: %q", c.Content)
		}
	}
}

func Test_Ingestion_IndexErrorPropagates(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "python.txt", sampleDoc)

	idx := newFakeIndexer()
	idx.courseErr = errors.New("store down")
	p, _ := NewPipeline(idx, nil)

	if _, _, err := p.IngestFile(context.Background(), path); err == nil {
		t.Fatal("expected error from failing index")
	}
}

func Test_Ingestion_MissingFolderFails(t *testing.T) {
	t.Parallel()

	idx := newFakeIndexer()
	p, _ := NewPipeline(idx, nil)
	if _, err := p.IngestFolder(context.Background(), "/does/not/exist"); err == nil {
		t.Fatal("expected error for missing folder")
	}
}
