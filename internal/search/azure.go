package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pdf-rag/internal/config"
	"pdf-rag/internal/models"
)

// AzureClient talks to the Azure AI Search REST API for a single index.
type AzureClient struct {
	endpoint   string
	indexName  string
	apiKey     string
	apiVersion string
	client     *http.Client
}

func NewAzureClient(cfg *config.SearchConfig) *AzureClient {
	return &AzureClient{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		indexName:  cfg.IndexName,
		apiKey:     cfg.APIKey,
		apiVersion: cfg.APIVersion,
		client:     &http.Client{Timeout: 60 * time.Second},
	}
}

type azureField struct {
	Name        string    `json:"name"`
	Type        DataType  `json:"type"`
	Key         bool      `json:"key"`
	Searchable  bool      `json:"searchable"`
	Filterable  bool      `json:"filterable"`
	Retrievable bool      `json:"retrievable"`
}

type azureFieldRef struct {
	FieldName string `json:"fieldName"`
}

type azureSemanticConfig struct {
	Name              string `json:"name"`
	PrioritizedFields struct {
		ContentFields []azureFieldRef `json:"prioritizedContentFields"`
	} `json:"prioritizedFields"`
}

type azureIndex struct {
	Name     string       `json:"name"`
	Fields   []azureField `json:"fields"`
	Semantic *struct {
		Configurations []azureSemanticConfig `json:"configurations"`
	} `json:"semantic,omitempty"`
}

type azureSearchRequest struct {
	Search                string `json:"search"`
	QueryType             string `json:"queryType,omitempty"`
	SemanticConfiguration string `json:"semanticConfiguration,omitempty"`
	Top                   int    `json:"top,omitempty"`
	Select                string `json:"select,omitempty"`
	Filter                string `json:"filter,omitempty"`
}

type azureSearchResponse struct {
	Value []struct {
		Score float64 `json:"@search.score"`
		models.Document
	} `json:"value"`
}

type azureIndexAction struct {
	Action string `json:"@search.action"`
	models.Document
}

type azureIndexResponse struct {
	Value []struct {
		Key          string  `json:"key"`
		Status       bool    `json:"status"`
		ErrorMessage *string `json:"errorMessage"`
		StatusCode   int     `json:"statusCode"`
	} `json:"value"`
}

func toAzureIndex(schema Schema) azureIndex {
	idx := azureIndex{Name: schema.Name}
	for _, f := range schema.Fields {
		idx.Fields = append(idx.Fields, azureField{
			Name:        f.Name,
			Type:        f.Type,
			Key:         f.Key,
			Searchable:  f.Searchable,
			Filterable:  f.Filterable,
			Retrievable: true,
		})
	}
	if schema.Semantic != nil {
		sc := azureSemanticConfig{Name: schema.Semantic.Name}
		for _, name := range schema.Semantic.ContentFields {
			sc.PrioritizedFields.ContentFields = append(sc.PrioritizedFields.ContentFields, azureFieldRef{FieldName: name})
		}
		idx.Semantic = &struct {
			Configurations []azureSemanticConfig `json:"configurations"`
		}{Configurations: []azureSemanticConfig{sc}}
	}
	return idx
}

func (c *AzureClient) EnsureIndex(ctx context.Context, schema Schema) (bool, error) {
	if schema.Name == "" {
		schema.Name = c.indexName
	}

	_, err := c.do(ctx, http.MethodGet, "/indexes/"+url.PathEscape(schema.Name), nil)
	if err == nil {
		return false, nil
	}
	if !isStatus(err, http.StatusNotFound) {
		return false, fmt.Errorf("failed to look up index %s: %w", schema.Name, err)
	}

	_, err = c.do(ctx, http.MethodPost, "/indexes", toAzureIndex(schema))
	if isStatus(err, http.StatusConflict) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create index %s: %w", schema.Name, err)
	}
	return true, nil
}

func (c *AzureClient) Search(ctx context.Context, q Query) ([]models.SearchResult, error) {
	req := azureSearchRequest{
		Search: q.Text,
		Top:    q.Top,
		Select: strings.Join(q.Select, ","),
	}
	// the file_name filter does the matching; a raw name is not valid Lucene
	if req.Search == "" || q.FileName != "" {
		req.Search = "*"
	}
	if q.Semantic {
		req.QueryType = "semantic"
		req.SemanticConfiguration = models.SemanticConfigName
	} else {
		req.QueryType = "full"
	}
	if q.FileName != "" {
		req.Filter = FieldFileName + " eq " + ODataString(q.FileName)
	}

	body, err := c.do(ctx, http.MethodPost, "/indexes/"+url.PathEscape(c.indexName)+"/docs/search", req)
	if isStatus(err, http.StatusNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, c.indexName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to search index %s: %w", c.indexName, err)
	}

	var resp azureSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	results := make([]models.SearchResult, 0, len(resp.Value))
	for _, v := range resp.Value {
		results = append(results, models.SearchResult{Document: v.Document, Score: v.Score})
	}
	return results, nil
}

func (c *AzureClient) Upload(ctx context.Context, docs []models.Document) ([]UploadStatus, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	payload := struct {
		Value []azureIndexAction `json:"value"`
	}{Value: make([]azureIndexAction, len(docs))}
	for i, d := range docs {
		payload.Value[i] = azureIndexAction{Action: "upload", Document: d}
	}

	// 207 carries per-document failures in the body
	body, err := c.do(ctx, http.MethodPost, "/indexes/"+url.PathEscape(c.indexName)+"/docs/index", payload)
	var se *StatusError
	switch {
	case err == nil:
	case errors.As(err, &se) && se.Code == http.StatusMultiStatus:
		body = se.Body
	default:
		return nil, fmt.Errorf("failed to upload documents: %w", err)
	}

	var resp azureIndexResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode upload response: %w", err)
	}
	statuses := make([]UploadStatus, 0, len(resp.Value))
	for _, v := range resp.Value {
		s := UploadStatus{ID: v.Key, Succeeded: v.Status}
		if v.ErrorMessage != nil {
			s.Error = *v.ErrorMessage
		}
		statuses = append(statuses, s)
	}
	return statuses, nil
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   []byte
}

func (e *StatusError) Error() string {
	msg := string(e.Body)
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.Code, msg)
}

func isStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// do sends payload as JSON and returns the response body. 207 is reported as
// a StatusError so callers can opt in to partial success.
func (c *AzureClient) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	u := c.endpoint + path + "?api-version=" + url.QueryEscape(c.apiVersion)
	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("api-key", c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || resp.StatusCode == http.StatusMultiStatus {
		return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: body}
	}
	return body, nil
}

var _ Index = (*AzureClient)(nil)
