package ingest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ParseCSV converts raw export text into canonical sale lines. Malformed
// rows produce a row-scoped error and are excluded; a row is never partially
// emitted. Skip-when-empty rows (subtotals, category headers) are dropped
// without an error.
func ParseCSV(raw []byte, tmpl Template, opts ParseOptions) ParseResult {
	result := ParseResult{Rows: []CanonicalSaleLine{}, Errors: []RowError{}}

	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		result.Errors = append(result.Errors, RowError{Row: 1, Message: "empty or unreadable csv: " + err.Error()})
		return result
	}

	columns := resolveColumns(header, tmpl)
	for _, field := range requiredFields {
		if _, ok := columns[field]; ok {
			continue
		}
		if tmpl.autoGenerates(field) {
			continue
		}
		if field == FieldBusinessDate && opts.BusinessDate != nil {
			continue
		}
		result.Errors = append(result.Errors, RowError{
			Row:     1,
			Field:   field,
			Message: "no column maps to required field",
		})
	}
	if len(result.Errors) > 0 {
		return result
	}

	rowNum := 1
	ordinal := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		if err != nil {
			result.Errors = append(result.Errors, RowError{Row: rowNum, Message: err.Error()})
			continue
		}

		if tmpl.SkipWhenEmpty != "" {
			if idx, ok := columns[tmpl.SkipWhenEmpty]; ok && strings.TrimSpace(cell(record, idx)) == "" {
				continue
			}
		}

		line, rowErrs := parseRow(record, columns, tmpl, opts, rowNum, ordinal, header)
		if len(rowErrs) > 0 {
			result.Errors = append(result.Errors, rowErrs...)
			continue
		}
		ordinal++
		result.Rows = append(result.Rows, line)
	}
	return result
}

func parseRow(record []string, columns map[string]int, tmpl Template, opts ParseOptions, rowNum, ordinal int, header []string) (CanonicalSaleLine, []RowError) {
	var errs []RowError
	get := func(field string) string {
		idx, ok := columns[field]
		if !ok {
			return ""
		}
		return strings.TrimSpace(cell(record, idx))
	}

	line := CanonicalSaleLine{
		SourceSystem:     tmpl.SourceSystem,
		SourceLocationId: opts.SourceLocationId,
	}

	businessDate, bdErr := resolveBusinessDate(get(FieldBusinessDate), tmpl, opts)
	if bdErr != "" {
		errs = append(errs, RowError{Row: rowNum, Field: FieldBusinessDate, Message: bdErr})
	}
	line.BusinessDate = businessDate

	if raw := get(FieldSoldAt); raw != "" {
		if t, ok := parseDate(raw, tmpl.DateLayouts); ok {
			line.SoldAt = t
		} else {
			errs = append(errs, RowError{Row: rowNum, Field: FieldSoldAt, Message: "unparseable timestamp: " + raw})
		}
	} else {
		// Summary reports carry no per-line timestamp; anchor to the
		// business date.
		line.SoldAt = businessDate
	}

	line.PosItemName = get(FieldPosItemName)
	if line.PosItemName == "" {
		errs = append(errs, RowError{Row: rowNum, Field: FieldPosItemName, Message: "item name missing"})
	}

	if raw := get(FieldQuantity); raw == "" {
		errs = append(errs, RowError{Row: rowNum, Field: FieldQuantity, Message: "quantity missing"})
	} else if qty, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", "")); err != nil {
		errs = append(errs, RowError{Row: rowNum, Field: FieldQuantity, Message: "unparseable quantity: " + raw})
	} else if qty.IsNegative() {
		// Most exports encode refund lines as negative quantities.
		line.Quantity = qty.Abs()
		line.IsRefunded = true
	} else {
		line.Quantity = qty
	}

	line.ReceiptId = get(FieldReceiptId)
	line.LineId = get(FieldLineId)
	line.PosItemId = get(FieldPosItemId)

	if tmpl.IsSummary {
		synthesizeIdentifiers(&line, tmpl, ordinal)
	}
	if line.ReceiptId == "" {
		errs = append(errs, RowError{Row: rowNum, Field: FieldReceiptId, Message: "receipt id missing"})
	}
	if line.LineId == "" {
		errs = append(errs, RowError{Row: rowNum, Field: FieldLineId, Message: "line id missing"})
	}
	if line.PosItemId == "" {
		errs = append(errs, RowError{Row: rowNum, Field: FieldPosItemId, Message: "pos item id missing"})
	}

	if parseBoolLoose(get(FieldIsVoided)) {
		line.IsVoided = true
	}
	if parseBoolLoose(get(FieldIsRefunded)) {
		line.IsRefunded = true
	}

	line.SizeModifierId = get(FieldSizeModifierId)
	line.SizeModifierName = get(FieldSizeModifierName)
	if line.SizeModifierId == "" && line.SizeModifierName != "" {
		line.SizeModifierId = slug(line.SizeModifierName)
	}

	if raw := get(FieldUnitSalePrice); raw != "" {
		cleaned := strings.TrimLeft(strings.ReplaceAll(raw, ",", ""), "$")
		if price, err := decimal.NewFromString(cleaned); err == nil {
			line.UnitSalePrice = &price
		}
	}

	if len(errs) > 0 {
		return CanonicalSaleLine{}, errs
	}

	payload := map[string]string{}
	for i, h := range header {
		payload[strings.TrimSpace(h)] = cell(record, i)
	}
	line.RawPayloadJSON, _ = json.Marshal(payload)
	return line, nil
}

// synthesizeIdentifiers fills receipt/line/item ids for pre-aggregated
// reports. Derivation uses only (business date, item name, row ordinal) so a
// re-import of the same report yields the same natural keys and dedups to
// zero inserts.
func synthesizeIdentifiers(line *CanonicalSaleLine, tmpl Template, ordinal int) {
	date := line.BusinessDate.Format("2006-01-02")
	if line.ReceiptId == "" && tmpl.autoGenerates(FieldReceiptId) {
		line.ReceiptId = "summary-" + date
	}
	if line.LineId == "" && tmpl.autoGenerates(FieldLineId) {
		line.LineId = fmt.Sprintf("%04d-%s", ordinal, slug(line.PosItemName))
	}
	if line.PosItemId == "" && tmpl.autoGenerates(FieldPosItemId) {
		line.PosItemId = "summary-" + slug(line.PosItemName)
	}
}

func resolveBusinessDate(raw string, tmpl Template, opts ParseOptions) (time.Time, string) {
	if raw != "" {
		if t, ok := parseDate(raw, tmpl.DateLayouts); ok {
			return t.Truncate(24 * time.Hour), ""
		}
		return time.Time{}, "unparseable date: " + raw
	}
	if opts.BusinessDate != nil {
		return opts.BusinessDate.Truncate(24 * time.Hour), ""
	}
	return time.Time{}, "business date missing and none supplied"
}

func resolveColumns(header []string, tmpl Template) map[string]int {
	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = strings.ToLower(strings.TrimSpace(h))
	}
	columns := map[string]int{}
	for field, synonyms := range tmpl.Synonyms {
		for _, syn := range synonyms {
			syn = strings.ToLower(strings.TrimSpace(syn))
			for i, h := range normalized {
				if h == syn {
					columns[field] = i
					break
				}
			}
			if _, ok := columns[field]; ok {
				break
			}
		}
	}
	return columns
}

func parseDate(raw string, layouts []string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseBoolLoose(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "yes", "y", "t", "1", "x", "void", "voided", "refund", "refunded":
		return true
	default:
		return false
	}
}

func slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_', r == '/':
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

func cell(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return record[idx]
}
