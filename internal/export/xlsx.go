package export

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

const maxSheetName = 31

var sheetNameReplacer = strings.NewReplacer(
	":", " ", "\\", " ", "/", "-", "?", " ", "*", " ", "[", "(", "]", ")",
)

// sheetName makes a title safe for use as a worksheet name and unique
// within the workbook.
func sheetName(title string, used map[string]bool) string {
	name := strings.TrimSpace(sheetNameReplacer.Replace(title))
	if name == "" {
		name = "Sheet"
	}
	name = truncateRunes(name, maxSheetName)
	base := name
	for i := 2; used[strings.ToLower(name)]; i++ {
		suffix := fmt.Sprintf(" (%d)", i)
		name = truncateRunes(base, maxSheetName-len(suffix)) + suffix
	}
	used[strings.ToLower(name)] = true
	return name
}

// truncateRunes cuts s to at most n characters, never inside one.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// WriteXLSX encodes tables as a workbook, one worksheet per table, and
// writes it to w. Numbers are written as numeric cells formatted with two
// decimals.
func WriteXLSX(w io.Writer, tables ...Table) error {
	if len(tables) == 0 {
		return fmt.Errorf("no tables to export")
	}

	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return fmt.Errorf("create number style: %w", err)
	}

	used := make(map[string]bool)
	for i, t := range tables {
		name := sheetName(t.Title, used)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %q: %w", name, err)
		}
		if err := writeSheet(f, name, t, header, money); err != nil {
			return fmt.Errorf("write sheet %q: %w", name, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, t Table, headerStyle, moneyStyle int) error {
	for c, col := range t.Columns {
		cell, err := excelize.CoordinatesToCellName(c+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellStr(sheet, cell, col); err != nil {
			return err
		}
	}
	if len(t.Columns) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(t.Columns), 1)
		if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
			return err
		}
	}

	for r, row := range t.Rows {
		for c, value := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if !value.IsNumber {
				if err := f.SetCellStr(sheet, cell, value.Text); err != nil {
					return err
				}
				continue
			}
			if err := f.SetCellFloat(sheet, cell, value.Number.InexactFloat64(), -1, 64); err != nil {
				return err
			}
			if err := f.SetCellStyle(sheet, cell, cell, moneyStyle); err != nil {
				return err
			}
		}
	}

	if len(t.Columns) > 0 {
		lastCol, _ := excelize.ColumnNumberToName(len(t.Columns))
		if err := f.SetColWidth(sheet, "A", lastCol, 16); err != nil {
			return err
		}
	}
	return nil
}
