package checkpoint

import (
	"context"
	"fmt"

	"github.com/erp/agreementclone/internal/domain/agreement"
	"github.com/erp/agreementclone/internal/domain/pipeline"
	"github.com/xuri/excelize/v2"
)

// WriteWorksheet writes subscriptions.xlsx: the fixed header followed by
// rows, with columns sized to their content.
func (s *Store) WriteWorksheet(ctx context.Context, rows [][]any) error {
	data, err := buildWorksheet(rows)
	if err != nil {
		return fmt.Errorf("building worksheet: %w", err)
	}
	return s.write(ctx, pipeline.ArtifactWorksheet, data, contentTypeXLSX)
}

// ReadWorksheet returns the rows of the active sheet as text, header first.
func (s *Store) ReadWorksheet() ([][]string, error) {
	path := s.Path(pipeline.ArtifactWorksheet)
	if !s.Has(pipeline.ArtifactWorksheet) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q of %s: %w", sheet, path, err)
	}
	return rows, nil
}

func buildWorksheet(rows [][]any) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := agreement.WorksheetSheet
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, err
	}

	all := append([][]any{agreement.HeaderRow()}, rows...)
	for i, row := range all {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		values := row
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, err
		}
	}

	for i, width := range agreement.ColumnWidths(all) {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(sheet, col, col, width); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
