package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"pdf-rag/internal/config"
	"pdf-rag/internal/models"
	"pdf-rag/internal/search"
)

const compress = false

// VectorDBManager keeps the search index in an embedded chromem-go database,
// one collection per index. The summary is the embedded content; every other
// document field lives in the metadata.
type VectorDBManager struct {
	db            *chromem.DB
	collection    *chromem.Collection
	embed         chromem.EmbeddingFunc
	indexName     string
	dbPath        string
	encryptionKey string
	filePath      string
}

// NewVectorDBManager opens a persistent database under cfg.DBPath, or an
// in-memory one that is only saved through Export.
func NewVectorDBManager(cfg *config.SearchConfig, embed chromem.EmbeddingFunc) (*VectorDBManager, error) {
	var db *chromem.DB
	if cfg.InMemory {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(cfg.DBPath, compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	return &VectorDBManager{
		db:            db,
		embed:         embed,
		indexName:     cfg.IndexName,
		dbPath:        cfg.DBPath,
		encryptionKey: cfg.EncryptionKey,
		filePath:      filepath.Join(cfg.DBPath, cfg.IndexName+".chromem"),
	}, nil
}

func (m *VectorDBManager) EnsureIndex(_ context.Context, schema search.Schema) (bool, error) {
	name := schema.Name
	if name == "" {
		name = m.indexName
	}
	if c := m.db.GetCollection(name, m.embed); c != nil {
		m.collection = c
		return false, nil
	}

	c, err := m.db.GetOrCreateCollection(name, nil, m.embed)
	if err != nil {
		return false, fmt.Errorf("failed to create collection: %w", err)
	}
	m.collection = c
	log.Debug().Str("collection", name).Msg("Created collection")
	return true, nil
}

// Upload adds documents one at a time so each gets its own status.
func (m *VectorDBManager) Upload(ctx context.Context, docs []models.Document) ([]search.UploadStatus, error) {
	c, err := m.currentCollection()
	if err != nil {
		return nil, err
	}

	statuses := make([]search.UploadStatus, 0, len(docs))
	for _, d := range docs {
		status := search.UploadStatus{ID: d.ID, Succeeded: true}
		if err := c.AddDocument(ctx, toChromem(d)); err != nil {
			status.Succeeded = false
			status.Error = err.Error()
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// Search runs a similarity query. Every query is embedding based, so the
// semantic flag makes no difference and the projection is not applied.
func (m *VectorDBManager) Search(ctx context.Context, q search.Query) ([]models.SearchResult, error) {
	c, err := m.currentCollection()
	if err != nil {
		return nil, err
	}
	if q.Text == "" {
		return nil, errors.New("query text must be provided")
	}

	top := q.Top
	if top <= 0 || top > c.Count() {
		top = c.Count()
	}
	if top == 0 {
		return nil, nil
	}

	opts := chromem.QueryOptions{QueryText: q.Text, NResults: top}
	if q.FileName != "" {
		opts.Where = map[string]string{search.FieldFileName: q.FileName}
	}
	results, err := c.QueryWithOptions(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	out := make([]models.SearchResult, 0, len(results))
	for _, r := range results {
		out = append(out, fromChromem(r))
	}
	return out, nil
}

func (m *VectorDBManager) currentCollection() (*chromem.Collection, error) {
	if m.collection != nil {
		return m.collection, nil
	}
	c := m.db.GetCollection(m.indexName, m.embed)
	if c == nil {
		return nil, fmt.Errorf("%w: %s", search.ErrIndexNotFound, m.indexName)
	}
	m.collection = c
	return c, nil
}

func (m *VectorDBManager) DeleteCollection() error {
	if err := m.db.DeleteCollection(m.indexName); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	m.collection = nil
	return nil
}

// Export writes the collection to an encrypted file under the db path.
func (m *VectorDBManager) Export() error {
	if m.encryptionKey == "" {
		return errors.New("encryption key is required")
	}
	if m.dbPath == "" {
		return errors.New("db path is required")
	}
	if _, err := m.currentCollection(); err != nil {
		return err
	}

	log.Debug().Str("file", m.filePath).Str("collection", m.indexName).Bool("compress", compress).Msg("Exporting collection")
	if err := m.db.ExportToFile(m.filePath, compress, m.encryptionKey, m.indexName); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// Import loads a previous Export. A missing file is not an error.
func (m *VectorDBManager) Import() error {
	if _, err := os.Stat(m.filePath); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := m.db.ImportFromFile(m.filePath, m.encryptionKey, m.indexName); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	m.collection = m.db.GetCollection(m.indexName, m.embed)
	return nil
}

func toChromem(d models.Document) chromem.Document {
	return chromem.Document{
		ID:      d.ID,
		Content: d.ContentSummary,
		Metadata: map[string]string{
			search.FieldFileName: d.FileName,
			search.FieldContent:  d.Content,
			search.FieldType:     string(d.Type),
			search.FieldPageNum:  strconv.Itoa(d.PageNum),
		},
	}
}

func fromChromem(r chromem.Result) models.SearchResult {
	pageNum, err := strconv.Atoi(r.Metadata[search.FieldPageNum])
	if err != nil {
		log.Warn().Str("doc_id", r.ID).Msg("Document has no valid page number")
	}
	return models.SearchResult{
		Document: models.Document{
			ID:             r.ID,
			FileName:       r.Metadata[search.FieldFileName],
			Content:        r.Metadata[search.FieldContent],
			ContentSummary: r.Content,
			Type:           models.ChunkType(r.Metadata[search.FieldType]),
			PageNum:        pageNum,
		},
		Score: float64(r.Similarity),
	}
}

var _ search.Index = (*VectorDBManager)(nil)
