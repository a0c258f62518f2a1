package parser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pdf-rag/internal/models"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"
)

var ErrInvalidPDF = errors.New("invalid pdf")

// Extractor turns a document on disk into ordered chunks.
type Extractor interface {
	ExtractPDFContent(ctx context.Context, filePath string) ([]models.Chunk, error)
}

type PDFExtractor struct {
	Layout LayoutOptions
}

func NewPDFExtractor(layout LayoutOptions) *PDFExtractor {
	return &PDFExtractor{Layout: layout}
}

// ExtractPDFContent reads every page of the PDF before emitting anything, then
// diffs consecutive pages and collects the tables. A malformed PDF fails the
// whole extraction.
func (p *PDFExtractor) ExtractPDFContent(ctx context.Context, filePath string) ([]models.Chunk, error) {
	if ext := strings.ToLower(filepath.Ext(filePath)); ext != ".pdf" {
		return nil, fmt.Errorf("unsupported file format: %s", ext)
	}

	pages, err := p.readPages(ctx, filePath)
	if err != nil {
		return nil, err
	}

	chunks := BuildChunks(pages)
	log.Debug().Str("file", filePath).Int("pages", len(pages)).Int("chunks", len(chunks)).Msg("Extracted PDF content")
	return chunks, nil
}

func (p *PDFExtractor) readPages(ctx context.Context, filePath string) ([]Page, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	reader, err := openReader(f, stat.Size())
	if err != nil {
		return nil, err
	}

	numPages := reader.NumPage()
	pages := make([]Page, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		glyphs, err := pageGlyphs(reader, i)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", ErrInvalidPDF, i, err)
		}
		pages = append(pages, pageFromLines(layoutLines(glyphs, p.Layout)))
	}
	return pages, nil
}

// the pdf package reports malformed input by panicking
func openReader(f *os.File, size int64) (reader *pdf.Reader, err error) {
	defer func() {
		if r := recover(); r != nil {
			reader, err = nil, fmt.Errorf("%w: %v", ErrInvalidPDF, r)
		}
	}()
	reader, err = pdf.NewReader(f, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	return reader, nil
}

func pageGlyphs(reader *pdf.Reader, num int) (glyphs []pdf.Text, err error) {
	defer func() {
		if r := recover(); r != nil {
			glyphs, err = nil, fmt.Errorf("%v", r)
		}
	}()
	return pageText(reader.Page(num))
}

func pageText(page pdf.Page) ([]pdf.Text, error) {
	if page.V.IsNull() {
		return nil, errors.New("missing page object")
	}
	return page.Content().Text, nil
}
