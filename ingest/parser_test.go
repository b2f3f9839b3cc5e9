package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func mustTemplate(t *testing.T, name string) Template {
	t.Helper()
	tmpl, ok := LookupTemplate(name)
	if !ok {
		t.Fatalf("template %q not found", name)
	}
	return tmpl
}

func TestParseCSV_ToastExport(t *testing.T) {
	csv := strings.Join([]string{
		"Order Id,Item Selection Id,Menu Item Id,Menu Item,Qty,Business Date,Order Date,Price,Void?",
		"1001,sel-1,m-55,House IPA,2,2026-03-14,2026-03-14 20:31:00,7.50,",
		"1001,sel-2,m-60,Well Gin & Tonic,1,2026-03-14,2026-03-14 20:32:00,9.00,true",
	}, "\n")

	result := ParseCSV([]byte(csv), mustTemplate(t, "toast"), ParseOptions{SourceLocationId: "loc-ext-1"})
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %+v", result.Errors)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result.Rows))
	}

	first := result.Rows[0]
	if first.ReceiptId != "1001" || first.LineId != "sel-1" || first.PosItemId != "m-55" {
		t.Fatalf("identifier mapping: %+v", first)
	}
	if first.PosItemName != "House IPA" {
		t.Fatalf("item name: %q", first.PosItemName)
	}
	if !first.Quantity.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("quantity: %s", first.Quantity)
	}
	if first.BusinessDate.Format("2006-01-02") != "2026-03-14" {
		t.Fatalf("business date: %s", first.BusinessDate)
	}
	if first.SoldAt.Hour() != 20 || first.SoldAt.Minute() != 31 {
		t.Fatalf("sold at: %s", first.SoldAt)
	}
	if first.UnitSalePrice == nil || !first.UnitSalePrice.Equal(decimal.RequireFromString("7.50")) {
		t.Fatalf("price: %v", first.UnitSalePrice)
	}
	if first.SourceLocationId != "loc-ext-1" {
		t.Fatalf("source location: %q", first.SourceLocationId)
	}
	if first.IsVoided {
		t.Fatalf("first row is not voided")
	}
	if !result.Rows[1].IsVoided {
		t.Fatalf("second row is voided")
	}
}

func TestParseCSV_MissingRequiredColumn(t *testing.T) {
	csv := "Order Id,Menu Item,Qty\n1001,House IPA,2\n"
	result := ParseCSV([]byte(csv), mustTemplate(t, "toast"), ParseOptions{})
	if len(result.Rows) != 0 {
		t.Fatalf("header failure must yield no rows")
	}
	if len(result.Errors) == 0 {
		t.Fatalf("expected header errors")
	}
	for _, e := range result.Errors {
		if e.Row != 1 {
			t.Fatalf("header errors are row 1, got %d", e.Row)
		}
	}
}

func TestParseCSV_MalformedRowIsExcludedBatchContinues(t *testing.T) {
	csv := strings.Join([]string{
		"Order Id,Item Selection Id,Menu Item Id,Menu Item,Qty,Business Date",
		"1001,sel-1,m-55,House IPA,two,2026-03-14",
		"1001,sel-2,m-60,Lager,3,2026-03-14",
	}, "\n")

	result := ParseCSV([]byte(csv), mustTemplate(t, "toast"), ParseOptions{})
	if len(result.Rows) != 1 {
		t.Fatalf("expected 1 usable row, got %d", len(result.Rows))
	}
	if result.Rows[0].PosItemName != "Lager" {
		t.Fatalf("wrong surviving row: %+v", result.Rows[0])
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 row error, got %+v", result.Errors)
	}
	if result.Errors[0].Row != 2 || result.Errors[0].Field != FieldQuantity {
		t.Fatalf("error should pinpoint row 2 quantity, got %+v", result.Errors[0])
	}
}

func TestParseCSV_NegativeQuantityMeansRefund(t *testing.T) {
	csv := strings.Join([]string{
		"Order Id,Item Selection Id,Menu Item Id,Menu Item,Qty,Business Date",
		"1001,sel-1,m-55,House IPA,-2,2026-03-14",
	}, "\n")

	result := ParseCSV([]byte(csv), mustTemplate(t, "toast"), ParseOptions{})
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %+v", result.Errors)
	}
	row := result.Rows[0]
	if !row.IsRefunded {
		t.Fatalf("negative quantity must mark the row refunded")
	}
	if !row.Quantity.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("quantity must be stored positive, got %s", row.Quantity)
	}
}

func TestParseCSV_SkipWhenEmptyDropsSubtotalRows(t *testing.T) {
	csv := strings.Join([]string{
		"Order Id,Item Selection Id,Menu Item Id,Menu Item,Qty,Business Date",
		"1001,sel-1,m-55,House IPA,2,2026-03-14",
		"subtotal,,,,,",
		"1002,sel-2,m-60,Lager,1,2026-03-14",
	}, "\n")

	result := ParseCSV([]byte(csv), mustTemplate(t, "toast"), ParseOptions{})
	if len(result.Errors) != 0 {
		t.Fatalf("subtotal rows are dropped silently, got %+v", result.Errors)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result.Rows))
	}
}

func TestParseCSV_SummarySynthesizesDeterministicIdentifiers(t *testing.T) {
	csv := strings.Join([]string{
		"Item,Qty Sold",
		"House IPA,14",
		"Well Gin & Tonic,6",
	}, "\n")
	businessDate := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	opts := ParseOptions{BusinessDate: &businessDate}

	first := ParseCSV([]byte(csv), mustTemplate(t, "summary"), opts)
	if len(first.Errors) != 0 {
		t.Fatalf("unexpected errors: %+v", first.Errors)
	}
	if len(first.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(first.Rows))
	}

	row := first.Rows[0]
	if row.ReceiptId != "summary-2026-03-14" {
		t.Fatalf("receipt id: %q", row.ReceiptId)
	}
	if row.LineId != "0000-house-ipa" {
		t.Fatalf("line id: %q", row.LineId)
	}
	if row.PosItemId != "summary-house-ipa" {
		t.Fatalf("pos item id: %q", row.PosItemId)
	}
	if !row.SoldAt.Equal(row.BusinessDate) {
		t.Fatalf("summary rows anchor soldAt to the business date")
	}

	// Re-parsing the same report yields byte-identical natural keys, so a
	// re-import dedups to zero inserts.
	second := ParseCSV([]byte(csv), mustTemplate(t, "summary"), opts)
	for i := range first.Rows {
		a, b := first.Rows[i], second.Rows[i]
		if a.ReceiptId != b.ReceiptId || a.LineId != b.LineId || a.PosItemId != b.PosItemId {
			t.Fatalf("row %d identifiers not deterministic: %+v vs %+v", i, a, b)
		}
	}
}

func TestParseCSV_SummaryWithoutSuppliedDateFails(t *testing.T) {
	csv := "Item,Qty Sold\nHouse IPA,14\n"
	result := ParseCSV([]byte(csv), mustTemplate(t, "summary"), ParseOptions{})
	if len(result.Rows) != 0 {
		t.Fatalf("summary without a business date must not produce rows")
	}
	if len(result.Errors) == 0 {
		t.Fatalf("expected a business date error")
	}
}

func TestParseCSV_BOMAndCRLFTolerated(t *testing.T) {
	csv := "\xef\xbb\xbfOrder Id,Item Selection Id,Menu Item Id,Menu Item,Qty,Business Date\r\n1001,sel-1,m-55,House IPA,2,2026-03-14\r\n"
	result := ParseCSV([]byte(csv), mustTemplate(t, "toast"), ParseOptions{})
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %+v", result.Errors)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(result.Rows))
	}
	if result.Rows[0].ReceiptId != "1001" {
		t.Fatalf("BOM must not corrupt the first header: %+v", result.Rows[0])
	}
}

func TestTemplateFromCustomMap(t *testing.T) {
	custom := CustomColumnMap{
		Columns: map[string]string{
			"Datum":   FieldBusinessDate,
			"Beleg":   FieldReceiptId,
			"Zeile":   FieldLineId,
			"Artikel": FieldPosItemId,
			"Name":    FieldPosItemName,
			"Menge":   FieldQuantity,
		},
		DateLayout: "02.01.2006",
	}
	tmpl := TemplateFromCustomMap("other", custom)

	csv := "Datum,Beleg,Zeile,Artikel,Name,Menge\n14.03.2026,r-1,l-1,a-9,Pils,3\n"
	result := ParseCSV([]byte(csv), tmpl, ParseOptions{})
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %+v", result.Errors)
	}
	row := result.Rows[0]
	if row.BusinessDate.Format("2006-01-02") != "2026-03-14" {
		t.Fatalf("custom date layout not honored: %s", row.BusinessDate)
	}
	if row.ReceiptId != "r-1" || row.PosItemName != "Pils" {
		t.Fatalf("custom mapping: %+v", row)
	}
}

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"House IPA":        "house-ipa",
		"Well Gin & Tonic": "well-gin--tonic",
		"  Lager  ":        "lager",
		"N/A":              "n-a",
	}
	for in, want := range cases {
		if got := slug(in); got != want {
			t.Fatalf("slug(%q) = %q, want %q", in, got, want)
		}
	}
}
