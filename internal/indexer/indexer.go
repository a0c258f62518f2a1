package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"pdf-rag/internal/models"
	"pdf-rag/internal/parser"
	"pdf-rag/internal/search"
	"pdf-rag/internal/summarizer"
)

const DefaultBatchSize = 1000

var ErrDuplicate = errors.New("file already indexed")

// Summarizer produces the summary stored next to each chunk.
type Summarizer interface {
	Summarize(ctx context.Context, content string) summarizer.Summary
}

// UploadReport describes what happened to one file's documents.
type UploadReport struct {
	FileName string
	Total    int
	Batches  int
	// SummaryFailures lists documents stored with a failure text as summary.
	SummaryFailures []string
	Failed          []search.UploadStatus
}

func (r UploadReport) Succeeded() int {
	return r.Total - len(r.Failed)
}

type Indexer struct {
	index          search.Index
	summarizer     Summarizer
	extractor      parser.Extractor
	indexName      string
	batchSize      int
	skipDuplicates bool
}

type Option func(*Indexer)

func WithBatchSize(n int) Option {
	return func(ix *Indexer) {
		if n > 0 && n <= DefaultBatchSize {
			ix.batchSize = n
		}
	}
}

// WithDuplicateCheck toggles the duplicate guard in Process.
func WithDuplicateCheck(enabled bool) Option {
	return func(ix *Indexer) { ix.skipDuplicates = enabled }
}

func New(index search.Index, s Summarizer, extractor parser.Extractor, indexName string, opts ...Option) *Indexer {
	ix := &Indexer{
		index:          index,
		summarizer:     s,
		extractor:      extractor,
		indexName:      indexName,
		batchSize:      DefaultBatchSize,
		skipDuplicates: true,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// SanitizeFileName keeps ASCII letters, digits, '_', '-' and '='; anything
// else becomes '_'.
func SanitizeFileName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '=':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// DocumentID is sanitized(fileName)_page_seq.
func DocumentID(fileName string, pageNum, seq int) string {
	return fmt.Sprintf("%s_%d_%d", SanitizeFileName(fileName), pageNum, seq)
}

func (ix *Indexer) EnsureIndex(ctx context.Context) error {
	created, err := ix.index.EnsureIndex(ctx, search.DocumentSchema(ix.indexName))
	if err != nil {
		return fmt.Errorf("failed to ensure index %s: %w", ix.indexName, err)
	}
	if created {
		log.Info().Str("index", ix.indexName).Msg("Created index")
	} else {
		log.Info().Str("index", ix.indexName).Msg("Index already exists")
	}
	return nil
}

// BuildDocuments summarizes every chunk and turns it into its indexed form.
func (ix *Indexer) BuildDocuments(ctx context.Context, chunks []models.Chunk, fileName string) ([]models.Document, []string, error) {
	docs := make([]models.Document, 0, len(chunks))
	var summaryFailures []string
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		content, err := json.Marshal(chunk)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode chunk %d: %w", i, err)
		}

		id := DocumentID(fileName, chunk.PageNum, i)
		summary := ix.summarizer.Summarize(ctx, string(content))
		if summary.Err != nil {
			log.Warn().Err(summary.Err).Str("doc_id", id).Msg("Storing document without summary")
			summaryFailures = append(summaryFailures, id)
		}

		docs = append(docs, models.Document{
			ID:             id,
			FileName:       fileName,
			Content:        string(content),
			ContentSummary: summary.Value(),
			Type:           chunk.Type,
			PageNum:        chunk.PageNum,
		})
		log.Debug().Str("doc_id", id).Str("type", string(chunk.Type)).Int("page", chunk.PageNum).Msg("Formatted document")
	}
	return docs, summaryFailures, nil
}

// Upload summarizes and pushes the chunks of one file. Documents the service
// rejects are logged and reported, not retried. A batch that fails as a
// whole stops the upload.
func (ix *Indexer) Upload(ctx context.Context, chunks []models.Chunk, fileName string) (UploadReport, error) {
	report := UploadReport{FileName: fileName, Total: len(chunks)}

	docs, summaryFailures, err := ix.BuildDocuments(ctx, chunks, fileName)
	if err != nil {
		return report, err
	}
	report.SummaryFailures = summaryFailures

	for start := 0; start < len(docs); start += ix.batchSize {
		end := min(start+ix.batchSize, len(docs))
		statuses, err := ix.index.Upload(ctx, docs[start:end])
		if err != nil {
			return report, fmt.Errorf("failed to upload batch %d: %w", report.Batches+1, err)
		}
		report.Batches++

		failed := search.Failed(statuses)
		for _, f := range failed {
			log.Error().Str("doc_id", f.ID).Str("error", f.Error).Msg("Document was not indexed")
		}
		report.Failed = append(report.Failed, failed...)
		log.Info().Int("batch", report.Batches).Int("documents", end-start).Int("failed", len(failed)).Msg("Uploaded batch")
	}
	return report, nil
}

// IsDuplicate reports whether any document with exactly this file name is
// already indexed. A missing index means nothing is indexed yet.
func (ix *Indexer) IsDuplicate(ctx context.Context, fileName string) (bool, error) {
	results, err := ix.index.Search(ctx, search.Query{
		Text:     fileName,
		FileName: fileName,
		Top:      1,
		Select:   []string{search.FieldID, search.FieldFileName},
	})
	if errors.Is(err, search.ErrIndexNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check for duplicate %s: %w", fileName, err)
	}
	for _, r := range results {
		if r.FileName == fileName {
			return true, nil
		}
	}
	return false, nil
}

// Process runs the full ingestion of one PDF: duplicate guard, index
// creation, extraction and upload. A duplicate yields ErrDuplicate.
func (ix *Indexer) Process(ctx context.Context, path string) (UploadReport, error) {
	fileName := filepath.Base(path)
	report := UploadReport{FileName: fileName}

	if ix.skipDuplicates {
		dup, err := ix.IsDuplicate(ctx, fileName)
		if err != nil {
			return report, err
		}
		if dup {
			log.Info().Str("file", fileName).Msg("File already exists in the index, skipping upload")
			return report, fmt.Errorf("%w: %s", ErrDuplicate, fileName)
		}
	}

	if err := ix.EnsureIndex(ctx); err != nil {
		return report, err
	}

	chunks, err := ix.extractor.ExtractPDFContent(ctx, path)
	if err != nil {
		return report, fmt.Errorf("failed to extract %s: %w", fileName, err)
	}
	log.Info().Str("file", fileName).Int("chunks", len(chunks)).Msg("Extracted content")

	report, err = ix.Upload(ctx, chunks, fileName)
	if err != nil {
		return report, err
	}
	log.Info().Str("file", fileName).Int("indexed", report.Succeeded()).Int("failed", len(report.Failed)).Msg("Uploaded content")
	return report, nil
}
