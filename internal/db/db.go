package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"pdf-rag/internal/config"
	"pdf-rag/internal/models"
	"pdf-rag/internal/search"
)

const (
	DriverPgdriver = "pgdriver"
	DriverPQ       = "postgres"

	summaryTSVector = "to_tsvector('english', sd.content_summary)"

	codeUndefinedTable = "42P01"
)

// SearchDocument is the row form of models.Document.
type SearchDocument struct {
	bun.BaseModel  `bun:"table:search_documents,alias:sd"`
	ID             string  `bun:"id,pk"`
	FileName       string  `bun:"file_name,notnull"`
	Content        string  `bun:"content,notnull"`
	ContentSummary string  `bun:"content_summary,notnull"`
	Type           string  `bun:"type,notnull"`
	PageNum        int     `bun:"page_num,notnull"`
	Rank           float64 `bun:"rank,scanonly"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the database with the configured driver. Neither driver
// dials until the first query.
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	dsn := cfg.URL
	if !strings.Contains(dsn, "sslmode=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "sslmode=disable"
	}

	switch cfg.Driver {
	case DriverPQ:
		return sql.Open("postgres", dsn)
	case DriverPgdriver, "":
		opts := []pgdriver.Option{pgdriver.WithDSN(dsn)}
		if cfg.Password != "" {
			opts = append(opts, pgdriver.WithPassword(cfg.Password))
		}
		return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
	default:
		return nil, fmt.Errorf("unknown database driver: %s", cfg.Driver)
	}
}

// Store is a Postgres full-text backend for the search index. Ranking is
// keyword based (ts_rank over the summary) whether or not a semantic query
// is requested.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) EnsureIndex(ctx context.Context, _ search.Schema) (bool, error) {
	var exists bool
	err := s.db.NewRaw("SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = ?)", "search_documents").
		Scan(ctx, &exists)
	if err != nil {
		return false, fmt.Errorf("failed to check for search table: %w", err)
	}
	if exists {
		return false, nil
	}

	if _, err := s.createTableQuery().Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to create search table: %w", err)
	}
	if _, err := s.createSummaryIndexQuery().Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to create full-text index: %w", err)
	}
	if _, err := s.createFileNameIndexQuery().Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to create file name index: %w", err)
	}
	log.Debug().Msg("Created search_documents table")
	return true, nil
}

func (s *Store) Search(ctx context.Context, q search.Query) ([]models.SearchResult, error) {
	var rows []SearchDocument
	if err := s.searchQuery(&rows, q).Scan(ctx); err != nil {
		if isUndefinedTable(err) {
			return nil, fmt.Errorf("%w: search_documents", search.ErrIndexNotFound)
		}
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}

	results := make([]models.SearchResult, 0, len(rows))
	for _, r := range rows {
		results = append(results, models.SearchResult{
			Document: models.Document{
				ID:             r.ID,
				FileName:       r.FileName,
				Content:        r.Content,
				ContentSummary: r.ContentSummary,
				Type:           models.ChunkType(r.Type),
				PageNum:        r.PageNum,
			},
			Score: r.Rank,
		})
	}
	return results, nil
}

// Upload upserts documents one by one so a bad row does not sink the batch.
func (s *Store) Upload(ctx context.Context, docs []models.Document) ([]search.UploadStatus, error) {
	statuses := make([]search.UploadStatus, 0, len(docs))
	for _, d := range docs {
		status := search.UploadStatus{ID: d.ID, Succeeded: true}
		row := toRow(d)
		if _, err := s.upsertQuery(&row).Exec(ctx); err != nil {
			status.Succeeded = false
			status.Error = err.Error()
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func (s *Store) DropDocuments(ctx context.Context) error {
	_, err := s.db.NewDropTable().Model((*SearchDocument)(nil)).IfExists().Exec(ctx)
	return err
}

func (s *Store) createTableQuery() *bun.CreateTableQuery {
	return s.db.NewCreateTable().Model((*SearchDocument)(nil)).IfNotExists()
}

func (s *Store) createSummaryIndexQuery() *bun.CreateIndexQuery {
	return s.db.NewCreateIndex().
		Model((*SearchDocument)(nil)).
		Index("search_documents_summary_fts").
		IfNotExists().
		Using("GIN").
		ColumnExpr("to_tsvector('english', content_summary)")
}

func (s *Store) createFileNameIndexQuery() *bun.CreateIndexQuery {
	return s.db.NewCreateIndex().
		Model((*SearchDocument)(nil)).
		Index("search_documents_file_name").
		IfNotExists().
		Column("file_name")
}

// searchQuery ranks by the query text. With a file name filter the text only
// orders the rows and does not need to match.
func (s *Store) searchQuery(rows *[]SearchDocument, q search.Query) *bun.SelectQuery {
	columns := q.Select
	if len(columns) == 0 {
		columns = search.DefaultSelect
	}

	sq := s.db.NewSelect().
		Model(rows).
		Column(columns...).
		ColumnExpr("ts_rank("+summaryTSVector+", plainto_tsquery('english', ?)) AS rank", q.Text)

	if q.FileName != "" {
		sq = sq.Where("sd.file_name = ?", q.FileName)
	} else {
		sq = sq.Where(summaryTSVector+" @@ plainto_tsquery('english', ?)", q.Text)
	}
	sq = sq.OrderExpr("rank DESC").OrderExpr("sd.id ASC")
	if q.Top > 0 {
		sq = sq.Limit(q.Top)
	}
	return sq
}

func (s *Store) upsertQuery(row *SearchDocument) *bun.InsertQuery {
	return s.db.NewInsert().
		Model(row).
		On("CONFLICT (id) DO UPDATE").
		Set("file_name = EXCLUDED.file_name").
		Set("content = EXCLUDED.content").
		Set("content_summary = EXCLUDED.content_summary").
		Set("type = EXCLUDED.type").
		Set("page_num = EXCLUDED.page_num")
}

// isUndefinedTable matches the missing-relation error of either driver.
func isUndefinedTable(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == codeUndefinedTable
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == codeUndefinedTable
	}
	return false
}

func toRow(d models.Document) SearchDocument {
	return SearchDocument{
		ID:             d.ID,
		FileName:       d.FileName,
		Content:        d.Content,
		ContentSummary: d.ContentSummary,
		Type:           string(d.Type),
		PageNum:        d.PageNum,
	}
}

var _ search.Index = (*Store)(nil)
