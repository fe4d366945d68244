package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Fixed leading and middle columns of the import spreadsheet.
const (
	ColCategory               = "Category"
	ColCategoryDescription    = "Category Description"
	ColSubCategory            = "Sub-Category"
	ColSubCategoryDescription = "Sub-Category Description"
	ColItemName               = "Item Name"
	ColItemDescription        = "Item Description"
	ColItemPrice              = "Item Price"
	ColItemStatus             = "Item Status"
	ColItemOrderLimit         = "Item Order Limit"
)

var leadingColumns = []string{
	ColCategory, ColCategoryDescription, ColSubCategory, ColSubCategoryDescription,
	ColItemName, ColItemDescription, ColItemPrice, ColItemStatus,
}

// MaxHeaderSearchRows bounds how far down the file the header row may be.
const MaxHeaderSearchRows = 20

// RawRow is one data row of an upload, split into cells.
type RawRow struct {
	Line  int
	Cells []string
}

// ExpectedHeader returns the column sequence for rc: the fixed columns, one
// column per order channel, the order limit, then one column per item
// option.
func ExpectedHeader(rc RestaurantContext) []string {
	header := make([]string, 0, len(leadingColumns)+len(rc.OrderChannels)+1+len(rc.ItemOptions))
	header = append(header, leadingColumns...)
	for _, ch := range rc.OrderChannels {
		header = append(header, string(ch))
	}
	header = append(header, ColItemOrderLimit)
	header = append(header, rc.ItemOptions...)
	return header
}

// WriteTemplate writes an empty spreadsheet holding only the header row.
func WriteTemplate(w io.Writer, rc RestaurantContext) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExpectedHeader(rc)); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// ParseSpreadsheet reads a CSV upload. Rows above the header (titles,
// notes) are skipped, as are blank rows. A file whose header does not match
// ExpectedHeader is rejected before any row is looked at.
func ParseSpreadsheet(r io.Reader, rc RestaurantContext) ([]RawRow, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xEF\xBB\xBF"))
	data = bytes.ToValidUTF8(data, []byte("\uFFFD"))

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	// csv skips blank lines, so each record's file line comes from FieldPos.
	var (
		records [][]string
		lines   []int
	)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, batchError("file is not valid CSV: %v", err)
		}
		line, _ := cr.FieldPos(0)
		records = append(records, rec)
		lines = append(lines, line)
	}
	if len(records) == 0 {
		return nil, batchError("file is empty")
	}

	expected := ExpectedHeader(rc)
	headerIdx := findHeader(records, expected)
	if headerIdx < 0 {
		return nil, &ValidationError{
			Field:   "header",
			Value:   strings.Join(records[0], ","),
			Message: fmt.Sprintf("header mismatch, expected: %s", strings.Join(expected, ", ")),
		}
	}

	var rows []RawRow
	for i := headerIdx + 1; i < len(records); i++ {
		rec := records[i]
		if isEmptyRow(rec) {
			continue
		}
		cells := make([]string, len(expected))
		for j := range cells {
			if j < len(rec) {
				cells[j] = CleanCell(rec[j])
			}
		}
		rows = append(rows, RawRow{Line: lines[i], Cells: cells})
	}
	if len(rows) == 0 {
		return nil, batchError("no data rows after header")
	}
	return rows, nil
}

func findHeader(records [][]string, expected []string) int {
	limit := min(len(records), MaxHeaderSearchRows)
	for i := 0; i < limit; i++ {
		if headerMatches(records[i], expected) {
			return i
		}
	}
	return -1
}

// headerMatches compares case-insensitively. Trailing empty cells, which
// spreadsheet exports often add, are ignored.
func headerMatches(row, expected []string) bool {
	for len(row) > len(expected) && strings.TrimSpace(row[len(row)-1]) == "" {
		row = row[:len(row)-1]
	}
	if len(row) != len(expected) {
		return false
	}
	for i := range expected {
		if !strings.EqualFold(CleanCell(row[i]), expected[i]) {
			return false
		}
	}
	return true
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// CleanCell trims whitespace and strips the ="..." wrapper spreadsheet
// programs use to keep values from being reformatted.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) && len(s) >= 3 {
		s = s[2 : len(s)-1]
	}
	return strings.TrimSpace(s)
}
