package pipeline

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"procura/internal"
)

// ExportComparisonToXLSX writes the AI comparison matrix to a spreadsheet,
// recommendation and summary below it.
func ExportComparisonToXLSX(result internal.ComparisonResult, outputPath string) error {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	headers := []string{"vendor", "total_cost", "delivery", "warranty", "score", "pros", "cons"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, entry := range result.Matrix {
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, value)
		}
		set(1, entry.Vendor)
		set(2, derefFloat(entry.TotalCost))
		set(3, entry.Delivery)
		set(4, entry.Warranty)
		set(5, derefFloat(entry.Score))
		set(6, strings.Join(entry.Pros, "; "))
		set(7, strings.Join(entry.Cons, "; "))
		row++
	}

	row++
	writeLabeled := func(label, value string) {
		labelCell, _ := excelize.CoordinatesToCellName(1, row)
		valueCell, _ := excelize.CoordinatesToCellName(2, row)
		_ = f.SetCellValue(sheet, labelCell, label)
		_ = f.SetCellValue(sheet, valueCell, value)
		row++
	}
	writeLabeled("recommendation", result.Recommendation)
	writeLabeled("summary", result.Summary)

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func derefFloat(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}
