package export

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"pdf-rag/internal/models"
)

const defaultSheet = "Sheet1"

// SheetName names a table's sheet after its page and table number.
func SheetName(c models.Chunk) string {
	tableNum := 0
	if c.TableNum != nil {
		tableNum = *c.TableNum
	}
	return fmt.Sprintf("p%d_t%d", c.PageNum, tableNum)
}

// TablesToXLSX writes every table chunk to its own sheet of a new workbook
// at path and returns the number of sheets written. Nothing is written when
// there are no tables.
func TablesToXLSX(chunks []models.Chunk, path string) (int, error) {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing workbook")
		}
	}()

	written := 0
	for _, c := range chunks {
		if c.Type != models.ChunkTypeTable {
			continue
		}

		sheet := SheetName(c)
		if written == 0 {
			if err := f.SetSheetName(defaultSheet, sheet); err != nil {
				return 0, fmt.Errorf("failed to name sheet %s: %w", sheet, err)
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return 0, fmt.Errorf("failed to add sheet %s: %w", sheet, err)
		}

		for i, row := range c.Table {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			if err != nil {
				return 0, err
			}
			values := make([]any, len(row))
			for j, v := range row {
				values[j] = v
			}
			if err := f.SetSheetRow(sheet, cell, &values); err != nil {
				return 0, fmt.Errorf("failed to write row %d of %s: %w", i+1, sheet, err)
			}
		}
		written++
	}

	if written == 0 {
		log.Info().Msg("No tables to export")
		return 0, nil
	}
	if err := f.SaveAs(path); err != nil {
		return 0, fmt.Errorf("failed to save %s: %w", path, err)
	}
	log.Info().Str("file", path).Int("tables", written).Msg("Exported tables")
	return written, nil
}
