package workflow

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// ExportVarianceXLSX writes a variance report workbook to w.
func ExportVarianceXLSX(rows []VarianceRow, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Variance"
	idx, err := f.NewSheet(sheet)
	if err != nil {
		return err
	}
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	headers := []string{"Category", "Item", "UOM", "Theoretical", "Actual", "Variance", "Variance %", "Unit Cost", "Value Impact"}
	for i, h := range headers {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetCellValue(sheet, col+"1", h)
	}

	for i, row := range rows {
		rowNo := fmt.Sprint(i + 2)
		f.SetCellValue(sheet, "A"+rowNo, row.CategoryName)
		f.SetCellValue(sheet, "B"+rowNo, row.ItemName)
		f.SetCellValue(sheet, "C"+rowNo, string(row.UOM))
		f.SetCellValue(sheet, "D"+rowNo, row.Theoretical.InexactFloat64())
		f.SetCellValue(sheet, "E"+rowNo, row.Actual.InexactFloat64())
		f.SetCellValue(sheet, "F"+rowNo, row.Variance.InexactFloat64())
		setOptionalCell(f, sheet, "G"+rowNo, row.VariancePct)
		setOptionalCell(f, sheet, "H"+rowNo, row.UnitCost)
		setOptionalCell(f, sheet, "I"+rowNo, row.ValueImpact)
	}

	return f.Write(w)
}

func setOptionalCell(f *excelize.File, sheet, cell string, d *decimal.Decimal) {
	if d == nil {
		return
	}
	f.SetCellValue(sheet, cell, d.InexactFloat64())
}
