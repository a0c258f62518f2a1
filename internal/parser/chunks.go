package parser

import (
	"strings"

	"pdf-rag/internal/models"
)

// Page is the raw extraction result of a single PDF page.
type Page struct {
	Text   string
	Tables [][][]string
}

// BuildChunks turns fully extracted pages into chunks. Page 0 keeps its text
// verbatim; every later page keeps only the lines that do not appear on the
// page before it. Tables smaller than 2x2 are dropped.
func BuildChunks(pages []Page) []models.Chunk {
	var chunks []models.Chunk
	for pageNum := range pages {
		unique := pages[pageNum].Text
		if pageNum > 0 {
			unique = uniqueLines(pages[pageNum-1].Text, unique)
		}
		if strings.TrimSpace(unique) != "" {
			chunks = append(chunks, models.NewTextChunk(unique, pageNum))
		}

		for tableNum, table := range pages[pageNum].Tables {
			if keepTable(table) {
				chunks = append(chunks, models.NewTableChunk(table, pageNum, tableNum))
			}
		}
	}
	return chunks
}

// uniqueLines returns the lines of current that are not present in prev, in
// their original order. Matching is exact.
func uniqueLines(prev, current string) string {
	seen := make(map[string]struct{})
	for _, l := range strings.Split(prev, "\n") {
		seen[l] = struct{}{}
	}

	var kept []string
	for _, l := range strings.Split(current, "\n") {
		if _, ok := seen[l]; !ok {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n")
}

func keepTable(table [][]string) bool {
	return len(table) > 1 && len(table[0]) > 1
}
