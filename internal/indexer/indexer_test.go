package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-rag/internal/models"
	"pdf-rag/internal/parser"
	"pdf-rag/internal/search"
	"pdf-rag/internal/summarizer"
)

type stubIndex struct {
	exists    bool
	ensureErr error
	ensured   int
	searchErr error
	results   []models.SearchResult
	queries   []search.Query
	batches   [][]models.Document
	rejectIDs map[string]string
	uploadErr error
}

func (s *stubIndex) EnsureIndex(_ context.Context, schema search.Schema) (bool, error) {
	s.ensured++
	if s.ensureErr != nil {
		return false, s.ensureErr
	}
	created := !s.exists
	s.exists = true
	return created, nil
}

func (s *stubIndex) Search(_ context.Context, q search.Query) ([]models.SearchResult, error) {
	s.queries = append(s.queries, q)
	return s.results, s.searchErr
}

func (s *stubIndex) Upload(_ context.Context, docs []models.Document) ([]search.UploadStatus, error) {
	if s.uploadErr != nil {
		return nil, s.uploadErr
	}
	s.batches = append(s.batches, docs)
	statuses := make([]search.UploadStatus, len(docs))
	for i, d := range docs {
		statuses[i] = search.UploadStatus{ID: d.ID, Succeeded: true}
		if msg, ok := s.rejectIDs[d.ID]; ok {
			statuses[i] = search.UploadStatus{ID: d.ID, Error: msg}
		}
	}
	return statuses, nil
}

var _ search.Index = (*stubIndex)(nil)

type stubSummarizer struct {
	failOn string
	seen   []string
}

func (s *stubSummarizer) Summarize(_ context.Context, content string) summarizer.Summary {
	s.seen = append(s.seen, content)
	if s.failOn != "" && strings.Contains(content, s.failOn) {
		return summarizer.Summary{Err: summarizer.ErrRetriesExhausted}
	}
	return summarizer.Summary{Text: "summary of " + content}
}

type stubExtractor struct {
	chunks []models.Chunk
	err    error
	calls  int
}

func (s *stubExtractor) ExtractPDFContent(_ context.Context, _ string) ([]models.Chunk, error) {
	s.calls++
	return s.chunks, s.err
}

var _ parser.Extractor = (*stubExtractor)(nil)

func sampleChunks() []models.Chunk {
	return []models.Chunk{
		models.NewTextChunk("Annual report", 0),
		models.NewTableChunk([][]string{{"Holder", "Percent"}, {"Alice", "60"}}, 0, 1),
		models.NewTextChunk("Profit doubled", 1),
	}
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"report.pdf", "report_pdf"},
		{"Q3 results (final).pdf", "Q3_results__final__pdf"},
		{"a-b_c=d.pdf", "a-b_c=d_pdf"},
		{"résumé.pdf", "r_sum__pdf"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFileName(tt.in))
		})
	}
}

func TestUploadBuildsDocuments(t *testing.T) {
	idx := &stubIndex{}
	sum := &stubSummarizer{}
	ix := New(idx, sum, &stubExtractor{}, "pdf-content")

	report, err := ix.Upload(context.Background(), sampleChunks(), "annual report.pdf")

	require.NoError(t, err)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 3, report.Succeeded())
	assert.Equal(t, 1, report.Batches)
	require.Len(t, idx.batches, 1)

	docs := idx.batches[0]
	assert.Equal(t, "annual_report_pdf_0_0", docs[0].ID)
	assert.Equal(t, "annual_report_pdf_0_1", docs[1].ID)
	assert.Equal(t, "annual_report_pdf_1_2", docs[2].ID)
	assert.Equal(t, "annual report.pdf", docs[0].FileName)
	assert.Equal(t, `{"type":"text","data":"Annual report","page_num":0}`, docs[0].Content)
	assert.Equal(t, `{"type":"table","data":[["Holder","Percent"],["Alice","60"]],"page_num":0,"table_num":1}`, docs[1].Content)
	assert.Equal(t, models.ChunkTypeTable, docs[1].Type)
	assert.Equal(t, 1, docs[2].PageNum)
	assert.Equal(t, "summary of "+docs[2].Content, docs[2].ContentSummary)
	assert.Equal(t, []string{docs[0].Content, docs[1].Content, docs[2].Content}, sum.seen)
}

func TestUploadKeepsFailedSummaries(t *testing.T) {
	idx := &stubIndex{}
	ix := New(idx, &stubSummarizer{failOn: "Profit"}, &stubExtractor{}, "pdf-content")

	report, err := ix.Upload(context.Background(), sampleChunks(), "a.pdf")

	require.NoError(t, err)
	assert.Equal(t, []string{"a_pdf_1_2"}, report.SummaryFailures)
	assert.Equal(t, models.SummaryRetriesExhaustedText, idx.batches[0][2].ContentSummary)
}

func TestUploadBatchesAndReportsRejectedDocuments(t *testing.T) {
	var chunks []models.Chunk
	for i := 0; i < 5; i++ {
		chunks = append(chunks, models.NewTextChunk(fmt.Sprintf("line %d", i), i))
	}
	idx := &stubIndex{rejectIDs: map[string]string{"a_pdf_3_3": "too large"}}
	ix := New(idx, &stubSummarizer{}, &stubExtractor{}, "pdf-content", WithBatchSize(2))

	report, err := ix.Upload(context.Background(), chunks, "a.pdf")

	require.NoError(t, err)
	assert.Equal(t, 3, report.Batches)
	require.Len(t, idx.batches, 3)
	assert.Len(t, idx.batches[0], 2)
	assert.Len(t, idx.batches[2], 1)
	assert.Equal(t, []search.UploadStatus{{ID: "a_pdf_3_3", Error: "too large"}}, report.Failed)
	assert.Equal(t, 4, report.Succeeded())
}

func TestUploadBatchFailureStops(t *testing.T) {
	idx := &stubIndex{uploadErr: errors.New("service unavailable")}
	ix := New(idx, &stubSummarizer{}, &stubExtractor{}, "pdf-content")

	_, err := ix.Upload(context.Background(), sampleChunks(), "a.pdf")
	assert.ErrorContains(t, err, "service unavailable")
}

func TestUploadNoChunks(t *testing.T) {
	idx := &stubIndex{}
	ix := New(idx, &stubSummarizer{}, &stubExtractor{}, "pdf-content")

	report, err := ix.Upload(context.Background(), nil, "empty.pdf")
	require.NoError(t, err)
	assert.Zero(t, report.Batches)
	assert.Empty(t, idx.batches)
}

func TestWithBatchSizeBounds(t *testing.T) {
	assert.Equal(t, DefaultBatchSize, New(nil, nil, nil, "x", WithBatchSize(5000)).batchSize)
	assert.Equal(t, DefaultBatchSize, New(nil, nil, nil, "x", WithBatchSize(0)).batchSize)
	assert.Equal(t, 10, New(nil, nil, nil, "x", WithBatchSize(10)).batchSize)
}

func TestIsDuplicate(t *testing.T) {
	tests := []struct {
		name    string
		results []models.SearchResult
		err     error
		want    bool
		wantErr bool
	}{
		{name: "exact match", results: []models.SearchResult{{Document: models.Document{FileName: "a.pdf"}}}, want: true},
		{name: "no results", want: false},
		{name: "different name only", results: []models.SearchResult{{Document: models.Document{FileName: "A.pdf"}}}, want: false},
		{name: "index missing", err: fmt.Errorf("%w: pdf-content", search.ErrIndexNotFound), want: false},
		{name: "service error", err: errors.New("boom"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := &stubIndex{results: tt.results, searchErr: tt.err}
			ix := New(idx, &stubSummarizer{}, &stubExtractor{}, "pdf-content")

			got, err := ix.IsDuplicate(context.Background(), "a.pdf")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			require.Len(t, idx.queries, 1)
			assert.Equal(t, "a.pdf", idx.queries[0].FileName)
			assert.False(t, idx.queries[0].Semantic)
		})
	}
}

func TestEnsureIndexIsIdempotent(t *testing.T) {
	idx := &stubIndex{}
	ix := New(idx, &stubSummarizer{}, &stubExtractor{}, "pdf-content")

	require.NoError(t, ix.EnsureIndex(context.Background()))
	require.NoError(t, ix.EnsureIndex(context.Background()))
	assert.Equal(t, 2, idx.ensured)

	idx.ensureErr = errors.New("forbidden")
	assert.ErrorContains(t, ix.EnsureIndex(context.Background()), "forbidden")
}

func TestProcess(t *testing.T) {
	idx := &stubIndex{}
	ext := &stubExtractor{chunks: sampleChunks()}
	ix := New(idx, &stubSummarizer{}, ext, "pdf-content")

	report, err := ix.Process(context.Background(), "/tmp/uploads/report.pdf")

	require.NoError(t, err)
	assert.Equal(t, "report.pdf", report.FileName)
	assert.Equal(t, 3, report.Succeeded())
	assert.Equal(t, 1, idx.ensured)
	assert.Equal(t, 1, ext.calls)
	assert.Equal(t, "report_pdf_0_0", idx.batches[0][0].ID)
}

func TestProcessSkipsDuplicates(t *testing.T) {
	idx := &stubIndex{results: []models.SearchResult{{Document: models.Document{FileName: "report.pdf"}}}}
	ext := &stubExtractor{chunks: sampleChunks()}
	ix := New(idx, &stubSummarizer{}, ext, "pdf-content")

	_, err := ix.Process(context.Background(), "uploads/report.pdf")

	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Zero(t, ext.calls)
	assert.Zero(t, idx.ensured)
}

func TestProcessWithoutDuplicateCheck(t *testing.T) {
	idx := &stubIndex{results: []models.SearchResult{{Document: models.Document{FileName: "report.pdf"}}}}
	ext := &stubExtractor{chunks: sampleChunks()}
	ix := New(idx, &stubSummarizer{}, ext, "pdf-content", WithDuplicateCheck(false))

	_, err := ix.Process(context.Background(), "uploads/report.pdf")

	require.NoError(t, err)
	assert.Empty(t, idx.queries)
	assert.Equal(t, 1, ext.calls)
}

func TestProcessExtractionFailure(t *testing.T) {
	idx := &stubIndex{}
	ext := &stubExtractor{err: fmt.Errorf("%w: xref missing", parser.ErrInvalidPDF)}
	ix := New(idx, &stubSummarizer{}, ext, "pdf-content")

	_, err := ix.Process(context.Background(), "broken.pdf")

	assert.ErrorIs(t, err, parser.ErrInvalidPDF)
	assert.Empty(t, idx.batches)
}
