package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-rag/internal/config"
	"pdf-rag/internal/history"
	"pdf-rag/internal/indexer"
	"pdf-rag/internal/models"
	"pdf-rag/internal/parser"
	"pdf-rag/internal/search"
)

type stubProcessor struct {
	paths  []string
	report indexer.UploadReport
	err    error
}

func (p *stubProcessor) Process(_ context.Context, path string) (indexer.UploadReport, error) {
	p.paths = append(p.paths, path)
	report := p.report
	report.FileName = filepath.Base(path)
	return report, p.err
}

type stubAnswerer struct {
	queries []string
}

func (a *stubAnswerer) Query(_ context.Context, query string) models.Answer {
	a.queries = append(a.queries, query)
	return models.Answer{
		Query:   query,
		Content: "**Alice** owns " + query,
		Sources: []models.SourceRef{{ID: "r_0_0", PageNum: 0}},
	}
}

var (
	_ Processor = (*stubProcessor)(nil)
	_ Answerer  = (*stubAnswerer)(nil)
)

func newTestServer(t *testing.T, p *stubProcessor) (*Server, *httptest.Server, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "uploads")
	s := New(p, &stubAnswerer{}, dir, config.ServerConfig{MaxUploadSize: 1 << 20})
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return s, ts, dir
}

// client keeps cookies and does not follow redirects.
func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func uploadBody(t *testing.T, name, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func statusFrom(t *testing.T, resp *http.Response) string {
	t.Helper()
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	return loc.Query().Get("status")
}

func TestUploadSavesAndProcesses(t *testing.T) {
	p := &stubProcessor{report: indexer.UploadReport{Total: 2}}
	_, ts, dir := newTestServer(t, p)

	body, contentType := uploadBody(t, "report.pdf", "%PDF-1.4 test")
	resp, err := newClient(t).Post(ts.URL+"/upload", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "Ready for user query || Please ask question.", statusFrom(t, resp))
	require.Len(t, p.paths, 1)
	assert.Equal(t, filepath.Join(dir, "report.pdf"), p.paths[0])

	data, err := os.ReadFile(p.paths[0])
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 test", string(data))
}

func TestUploadReportsOutcome(t *testing.T) {
	tests := []struct {
		name   string
		report indexer.UploadReport
		err    error
		want   string
	}{
		{name: "duplicate", err: fmt.Errorf("%w: report.pdf", indexer.ErrDuplicate), want: "File report.pdf already exists in the index. Skipping upload."},
		{name: "invalid pdf", err: fmt.Errorf("extract: %w", parser.ErrInvalidPDF), want: "Could not read report.pdf: the file is not a valid PDF."},
		{name: "partial", report: indexer.UploadReport{Total: 3, Failed: []search.UploadStatus{{ID: "x"}}}, want: "Indexed 2 of 3 parts of report.pdf. Ready for user query."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ts, _ := newTestServer(t, &stubProcessor{report: tt.report, err: tt.err})

			body, contentType := uploadBody(t, "report.pdf", "%PDF")
			resp, err := newClient(t).Post(ts.URL+"/upload", contentType, body)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.want, statusFrom(t, resp))
		})
	}
}

func TestUploadRejectsNonPDF(t *testing.T) {
	p := &stubProcessor{}
	_, ts, _ := newTestServer(t, p)

	body, contentType := uploadBody(t, "notes.txt", "hello")
	resp, err := newClient(t).Post(ts.URL+"/upload", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, p.paths)
}

func TestAskRecordsHistoryPerSession(t *testing.T) {
	s, ts, _ := newTestServer(t, &stubProcessor{})
	alice := newClient(t)

	for _, q := range []string{"first?", "second?"} {
		resp, err := alice.PostForm(ts.URL+"/ask", url.Values{"query": {q}})
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	}

	resp, err := alice.Get(ts.URL + "/api/history")
	require.NoError(t, err)
	defer resp.Body.Close()
	var entries []history.Entry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "second?", entries[0].Question)
	assert.Equal(t, "Document ID: r_0_0, Page Number: 0", entries[0].Source)

	bob := newClient(t)
	resp, err = bob.Get(ts.URL + "/api/history")
	require.NoError(t, err)
	defer resp.Body.Close()
	var none []history.Entry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&none))
	assert.Empty(t, none)
	assert.Equal(t, 2, s.sessions.Len())
}

func TestIndexRendersHistoryLatestFirst(t *testing.T) {
	_, ts, _ := newTestServer(t, &stubProcessor{})
	c := newClient(t)

	for _, q := range []string{"older", "newer"} {
		resp, err := c.PostForm(ts.URL+"/ask", url.Values{"query": {q}})
		require.NoError(t, err)
		resp.Body.Close()
	}

	resp, err := c.Get(ts.URL + "/?status=" + url.QueryEscape("Ready <now>"))
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	page := buf.String()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, page, "Ready &lt;now&gt;")
	assert.Contains(t, page, "<strong>Alice</strong> owns newer")
	assert.Less(t, strings.Index(page, "owns newer"), strings.Index(page, "owns older"))
}

func TestAskRequiresQuery(t *testing.T) {
	_, ts, _ := newTestServer(t, &stubProcessor{})

	resp, err := newClient(t).PostForm(ts.URL+"/ask", url.Values{"query": {"  "}})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "Please enter a question.", statusFrom(t, resp))
}

func TestAPIAsk(t *testing.T) {
	_, ts, _ := newTestServer(t, &stubProcessor{})

	resp, err := newClient(t).Post(ts.URL+"/api/ask", "application/json", strings.NewReader(`{"query":"who?"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got askResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "**Alice** owns who?", got.Answer)
	assert.Equal(t, "Document ID: r_0_0, Page Number: 0", got.Source)
	assert.False(t, got.Failed)

	resp2, err := newClient(t).Post(ts.URL+"/api/ask", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}
