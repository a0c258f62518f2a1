package models

import (
	"fmt"
	"strings"
)

// Document is the indexed form of a Chunk as stored by the search service.
type Document struct {
	ID             string    `json:"id"`
	FileName       string    `json:"file_name"`
	Content        string    `json:"content"`
	ContentSummary string    `json:"content_summary"`
	Type           ChunkType `json:"type"`
	PageNum        int       `json:"page_num"`
}

// SearchResult is a ranked document returned by a search backend.
type SearchResult struct {
	Document
	Score float64 `json:"score"`
}

type SourceRef struct {
	ID      string `json:"id"`
	PageNum int    `json:"page_num"`
}

func (s SourceRef) String() string {
	return fmt.Sprintf("Document ID: %s, Page Number: %d", s.ID, s.PageNum)
}

// Answer is the outcome of a question. Err is set when the completion failed;
// Content then holds the display text for the failure.
type Answer struct {
	Query        string
	Content      string
	Sources      []SourceRef
	Contributors []SourceRef
	Err          error
}

func (a Answer) Failed() bool {
	return a.Err != nil
}

// SourceInfo joins the primary sources for display.
func (a Answer) SourceInfo() string {
	parts := make([]string, 0, len(a.Sources))
	for _, s := range a.Sources {
		parts = append(parts, s.String())
	}
	return strings.Join(parts, SourceSeparator)
}
