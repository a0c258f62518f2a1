package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"pdf-rag/internal/config"
	"pdf-rag/internal/llmservice"
	"pdf-rag/internal/models"
	"pdf-rag/internal/search"
)

const charsPerToken = 4

// Searcher is the read side of the search index.
type Searcher interface {
	Search(ctx context.Context, q search.Query) ([]models.SearchResult, error)
}

type RAG struct {
	index     Searcher
	client    llmservice.Client
	topK      int
	maxTokens int
}

func NewRAG(index Searcher, client llmservice.Client, cfg config.RAGConfig) *RAG {
	r := &RAG{index: index, client: client, topK: cfg.TopK, maxTokens: cfg.MaxTokens}
	if r.topK <= 0 {
		r.topK = 5
	}
	if r.maxTokens <= 0 {
		r.maxTokens = 64000
	}
	return r
}

// Query answers a question from the indexed documents. Failures are reported
// through Answer.Err with a display text in Answer.Content.
func (r *RAG) Query(ctx context.Context, query string) models.Answer {
	answer := models.Answer{Query: query}

	results, err := r.index.Search(ctx, search.Query{
		Text:     query,
		Semantic: true,
		Top:      r.topK,
		Select:   search.DefaultSelect,
	})
	if err != nil {
		log.Error().Err(err).Msg("Error searching index")
		answer.Content, answer.Err = models.SearchErrorText, err
		return answer
	}

	prompt := BuildPrompt(query, results)
	answer.Sources = Sources(results)
	answer.Contributors = Contributors(results)

	prompt = Truncate(prompt, r.maxTokens)
	content, err := r.client.Generate(ctx, []llmservice.Message{
		{Role: llmservice.RoleSystem, Content: models.AnswerSystemPrompt},
		{Role: llmservice.RoleUser, Content: prompt},
	})
	if err != nil {
		log.Error().Err(err).Msg("Error generating answer")
		answer.Content, answer.Err = models.AnswerErrorText, err
		return answer
	}
	answer.Content = content
	return answer
}

// BuildPrompt joins the text summaries and the table data of the results,
// in ranking order, into the answer prompt.
func BuildPrompt(query string, results []models.SearchResult) string {
	var summaries []string
	tables := [][][]string{}
	for _, res := range results {
		switch res.Type {
		case models.ChunkTypeText:
			summaries = append(summaries, res.ContentSummary)
		case models.ChunkTypeTable:
			var chunk models.Chunk
			if err := json.Unmarshal([]byte(res.Content), &chunk); err != nil {
				log.Warn().Err(err).Str("doc_id", res.ID).Msg("Skipping table with unreadable content")
				continue
			}
			tables = append(tables, chunk.Table)
		}
	}

	tablesJSON, err := json.Marshal(tables)
	if err != nil {
		tablesJSON = []byte("[]")
	}
	return fmt.Sprintf(models.AnswerPromptTemplate, strings.Join(summaries, "\n\n"), tablesJSON, query)
}

// Truncate cuts prompt to maxTokens*4 characters plus a marker when longer.
func Truncate(prompt string, maxTokens int) string {
	limit := max(maxTokens*charsPerToken, 0)
	n := utf8.RuneCountInString(prompt)
	if n <= limit {
		return prompt
	}
	log.Warn().Int("from", n).Int("to", limit).Msg("Truncating prompt")
	return string([]rune(prompt)[:limit]) + models.TruncationMarker
}

// Sources picks the first text and the first table result.
func Sources(results []models.SearchResult) []models.SourceRef {
	var text, table *models.SourceRef
	for _, res := range results {
		ref := models.SourceRef{ID: res.ID, PageNum: res.PageNum}
		switch {
		case res.Type == models.ChunkTypeText && text == nil:
			text = &ref
		case res.Type == models.ChunkTypeTable && table == nil:
			table = &ref
		}
	}

	var out []models.SourceRef
	if text != nil {
		out = append(out, *text)
	}
	if table != nil {
		out = append(out, *table)
	}
	return out
}

// Contributors lists every text and table result retrieved for the question.
func Contributors(results []models.SearchResult) []models.SourceRef {
	out := make([]models.SourceRef, 0, len(results))
	for _, res := range results {
		if res.Type != models.ChunkTypeText && res.Type != models.ChunkTypeTable {
			continue
		}
		out = append(out, models.SourceRef{ID: res.ID, PageNum: res.PageNum})
	}
	return out
}
