package search

import (
	"context"
	"errors"
	"strings"

	"pdf-rag/internal/models"
)

var ErrIndexNotFound = errors.New("index not found")

// Index is the external search service the indexer writes to and the
// answer assembler reads from.
type Index interface {
	// EnsureIndex creates the index when it does not exist yet. created is
	// false when the index was already there.
	EnsureIndex(ctx context.Context, schema Schema) (created bool, err error)
	Search(ctx context.Context, q Query) ([]models.SearchResult, error)
	Upload(ctx context.Context, docs []models.Document) ([]UploadStatus, error)
}

const (
	FieldID             = "id"
	FieldFileName       = "file_name"
	FieldContent        = "content"
	FieldContentSummary = "content_summary"
	FieldType           = "type"
	FieldPageNum        = "page_num"
)

// DefaultSelect is the projection used when answering questions.
var DefaultSelect = []string{FieldID, FieldFileName, FieldContent, FieldContentSummary, FieldType, FieldPageNum}

type DataType string

const (
	TypeString DataType = "Edm.String"
	TypeInt32  DataType = "Edm.Int32"
)

type Field struct {
	Name       string
	Type       DataType
	Key        bool
	Searchable bool
	Filterable bool
}

type SemanticConfig struct {
	Name          string
	ContentFields []string
}

type Schema struct {
	Name     string
	Fields   []Field
	Semantic *SemanticConfig
}

// DocumentSchema is the layout every backend stores models.Document in.
func DocumentSchema(name string) Schema {
	return Schema{
		Name: name,
		Fields: []Field{
			{Name: FieldID, Type: TypeString, Key: true},
			{Name: FieldFileName, Type: TypeString, Searchable: true, Filterable: true},
			{Name: FieldContent, Type: TypeString, Searchable: true},
			{Name: FieldContentSummary, Type: TypeString, Searchable: true},
			{Name: FieldType, Type: TypeString, Filterable: true},
			{Name: FieldPageNum, Type: TypeInt32, Filterable: true},
		},
		Semantic: &SemanticConfig{
			Name:          models.SemanticConfigName,
			ContentFields: []string{FieldContentSummary},
		},
	}
}

type Query struct {
	Text     string
	Semantic bool
	Top      int
	Select   []string
	// FileName restricts results to documents whose file_name equals it exactly.
	FileName string
}

// UploadStatus is the per-document outcome of an Upload call.
type UploadStatus struct {
	ID        string
	Succeeded bool
	Error     string
}

// Failed returns the statuses that did not succeed.
func Failed(statuses []UploadStatus) []UploadStatus {
	var out []UploadStatus
	for _, s := range statuses {
		if !s.Succeeded {
			out = append(out, s)
		}
	}
	return out
}

// ODataString quotes s as an OData string literal.
func ODataString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
