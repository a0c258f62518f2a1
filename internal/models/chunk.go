package models

import (
	"encoding/json"
	"fmt"
)

type ChunkType string

const (
	ChunkTypeText  ChunkType = "text"
	ChunkTypeTable ChunkType = "table"
)

// Chunk is one unit of extracted PDF content: the unique text of a page or a
// single table. Text is set for text chunks, Table for table chunks.
type Chunk struct {
	Type     ChunkType
	Text     string
	Table    [][]string
	PageNum  int
	TableNum *int
}

func NewTextChunk(text string, pageNum int) Chunk {
	return Chunk{Type: ChunkTypeText, Text: text, PageNum: pageNum}
}

func NewTableChunk(table [][]string, pageNum, tableNum int) Chunk {
	n := tableNum
	return Chunk{Type: ChunkTypeTable, Table: table, PageNum: pageNum, TableNum: &n}
}

// chunkJSON is the serialized form stored in Document.Content.
type chunkJSON struct {
	Type     ChunkType       `json:"type"`
	Data     json.RawMessage `json:"data"`
	PageNum  int             `json:"page_num"`
	TableNum *int            `json:"table_num,omitempty"`
}

func (c Chunk) MarshalJSON() ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch c.Type {
	case ChunkTypeTable:
		data, err = json.Marshal(c.Table)
	default:
		data, err = json.Marshal(c.Text)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(chunkJSON{Type: c.Type, Data: data, PageNum: c.PageNum, TableNum: c.TableNum})
}

func (c *Chunk) UnmarshalJSON(b []byte) error {
	var raw chunkJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*c = Chunk{Type: raw.Type, PageNum: raw.PageNum, TableNum: raw.TableNum}
	if len(raw.Data) == 0 {
		return nil
	}
	switch raw.Type {
	case ChunkTypeTable:
		return json.Unmarshal(raw.Data, &c.Table)
	case ChunkTypeText:
		return json.Unmarshal(raw.Data, &c.Text)
	default:
		return fmt.Errorf("unknown chunk type %q", raw.Type)
	}
}
