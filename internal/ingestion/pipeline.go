// Package ingestion implements the course document ingestion pipeline.
// It reads course transcript files from a folder, parses metadata and lesson
// structure, chunks the content, and adds both the catalog entry and the
// content chunks to the vector index. The pipeline is invoked by the
// `studyhall ingest` CLI command and on server startup.
package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/studyhall-ai/studyhall-go/internal/chunker"
	"github.com/studyhall-ai/studyhall-go/internal/logging"
)

// transcriptExtensions lists the file extensions treated as course
// transcripts. Other files in the folder are ignored.
var transcriptExtensions = map[string]bool{
	".txt": true,
	".md":  true,
}

// Stats summarises one ingestion run.
type Stats struct {
	// CoursesAdded counts courses newly added to the catalog.
	CoursesAdded int
	// CoursesSkipped counts courses already present and left untouched.
	CoursesSkipped int
	// ChunksAdded counts content chunks written to the vector store.
	ChunksAdded int
	// FilesFailed counts files that could not be parsed or stored.
	FilesFailed int
}

// Indexer is the vector index surface the pipeline writes to.
// *rag.VectorIndex satisfies it; tests inject fakes.
type Indexer interface {
	AddCourse(ctx context.Context, course *chunker.Course) (bool, error)
	AddChunks(ctx context.Context, chunks []chunker.Chunk) error
}

// Pipeline orchestrates the read → parse → chunk → index flow for a folder
// of course documents.
type Pipeline struct {
	index     Indexer
	processor *chunker.Processor
}

// NewPipeline constructs a Pipeline from the provided dependencies.
func NewPipeline(index Indexer, processor *chunker.Processor) (*Pipeline, error) {
	if index == nil {
		return nil, fmt.Errorf("ingestion: index must not be nil")
	}
	if processor == nil {
		processor = chunker.NewProcessor(0, 0)
	}
	return &Pipeline{index: index, processor: processor}, nil
}

// IngestFolder processes every transcript file in dir, in lexical order so
// repeat runs are deterministic. One bad file does not abort the run: the
// failure is logged and counted, and the remaining files are processed.
// Courses already in the catalog are skipped without re-adding their chunks.
func (p *Pipeline) IngestFolder(ctx context.Context, dir string) (*Stats, error) {
	log := logging.FromContext(ctx)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("ingestion: read folder %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !transcriptExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)

	stats := &Stats{}
	for _, path := range files {
		added, chunks, err := p.IngestFile(ctx, path)
		if err != nil {
			log.Warn("ingestion: file failed",
				slog.String("path", path),
				slog.Any("error", err),
			)
			stats.FilesFailed++
			continue
		}
		if !added {
			stats.CoursesSkipped++
			log.Debug("ingestion: course already indexed, skipping", slog.String("path", path))
			continue
		}
		stats.CoursesAdded++
		stats.ChunksAdded += chunks
		log.Info("ingestion: course indexed",
			slog.String("path", path),
			slog.Int("chunks", chunks),
		)
	}
	return stats, nil
}

// IngestFile parses and indexes one course document. Returns whether the
// course was newly added and, if so, how many chunks were written. A course
// already in the catalog is left untouched and reported as added=false.
func (p *Pipeline) IngestFile(ctx context.Context, path string) (added bool, chunks int, err error) {
	raw, err := readText(path)
	if err != nil {
		return false, 0, err
	}

	course, courseChunks, err := p.processor.Parse(raw)
	if err != nil {
		return false, 0, fmt.Errorf("ingestion: parse %s: %w", path, err)
	}

	added, err = p.index.AddCourse(ctx, course)
	if err != nil {
		return false, 0, fmt.Errorf("ingestion: add course %q: %w", course.Title, err)
	}
	if !added {
		return false, 0, nil
	}

	if err := p.index.AddChunks(ctx, courseChunks); err != nil {
		return true, 0, fmt.Errorf("ingestion: add chunks for %q: %w", course.Title, err)
	}
	return true, len(courseChunks), nil
}

// readText reads a transcript file, dropping any byte sequences that are not
// valid UTF-8. Course transcripts occasionally carry stray encoding artifacts
// and a single bad byte must not sink the whole document.
func readText(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("ingestion: read %s: %w", path, err)
	}
	return strings.ToValidUTF8(string(raw), ""), nil
}
