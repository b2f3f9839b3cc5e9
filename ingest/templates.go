package ingest

import (
	"strings"

	"github.com/mmdatafocus/barledger_backend/models"
)

// Canonical field names a template column can map to.
const (
	FieldBusinessDate     = "businessDate"
	FieldSoldAt           = "soldAt"
	FieldReceiptId        = "receiptId"
	FieldLineId           = "lineId"
	FieldPosItemId        = "posItemId"
	FieldPosItemName      = "posItemName"
	FieldQuantity         = "quantity"
	FieldIsVoided         = "isVoided"
	FieldIsRefunded       = "isRefunded"
	FieldSizeModifierId   = "sizeModifierId"
	FieldSizeModifierName = "sizeModifierName"
	FieldUnitSalePrice    = "unitSalePrice"
)

var requiredFields = []string{
	FieldBusinessDate, FieldReceiptId, FieldLineId,
	FieldPosItemId, FieldPosItemName, FieldQuantity,
}

// Template describes one vendor export format: which header spellings feed
// which canonical field, whether the export is a pre-aggregated summary,
// which column blanks out on subtotal rows, and which fields must be
// synthesized because the export simply does not carry them.
type Template struct {
	Name         string
	SourceSystem models.SourceSystem
	// Synonyms maps canonical field -> accepted header spellings
	// (case-insensitive, trimmed).
	Synonyms map[string][]string
	// IsSummary marks pre-aggregated reports lacking per-transaction
	// identifiers.
	IsSummary bool
	// SkipWhenEmpty names the canonical field whose blank value marks a
	// subtotal or category-header row to drop silently.
	SkipWhenEmpty string
	// AutoGenerate lists fields synthesized deterministically for summary
	// exports.
	AutoGenerate []string
	// DateLayouts tried in order when parsing date fields.
	DateLayouts []string
}

var commonDateLayouts = []string{
	"2006-01-02",
	"1/2/2006",
	"01/02/2006",
	"2006-01-02 15:04:05",
	"1/2/2006 3:04 PM",
	"2006-01-02T15:04:05Z07:00",
}

var builtinTemplates = map[string]Template{
	"toast": {
		Name:         "toast",
		SourceSystem: models.SourceSystemToast,
		Synonyms: map[string][]string{
			FieldBusinessDate:     {"business date", "date", "opened date"},
			FieldSoldAt:           {"order date", "sent date", "opened"},
			FieldReceiptId:        {"order id", "order #", "check id", "check #"},
			FieldLineId:           {"item selection id", "selection id", "line id"},
			FieldPosItemId:        {"menu item id", "item id", "plu"},
			FieldPosItemName:      {"menu item", "item", "item name"},
			FieldQuantity:         {"qty", "quantity"},
			FieldIsVoided:         {"void?", "voided", "is void"},
			FieldIsRefunded:       {"refunded", "is refund"},
			FieldSizeModifierId:   {"modifier id", "size modifier id"},
			FieldSizeModifierName: {"modifier", "size", "size modifier"},
			FieldUnitSalePrice:    {"price", "unit price", "gross price"},
		},
		SkipWhenEmpty: FieldPosItemName,
		DateLayouts:   commonDateLayouts,
	},
	"square": {
		Name:         "square",
		SourceSystem: models.SourceSystemSquare,
		Synonyms: map[string][]string{
			FieldBusinessDate:     {"date"},
			FieldSoldAt:           {"time", "datetime"},
			FieldReceiptId:        {"transaction id", "payment id", "receipt number"},
			FieldLineId:           {"line item id", "item detail id"},
			FieldPosItemId:        {"sku", "token", "item id"},
			FieldPosItemName:      {"item", "item name", "description"},
			FieldQuantity:         {"qty", "quantity", "count"},
			FieldIsVoided:         {"event type"},
			FieldIsRefunded:       {"refunded"},
			FieldSizeModifierName: {"price point name", "variation"},
			FieldUnitSalePrice:    {"gross sales", "unit price"},
		},
		SkipWhenEmpty: FieldPosItemName,
		DateLayouts:   commonDateLayouts,
	},
	"lightspeed": {
		Name:         "lightspeed",
		SourceSystem: models.SourceSystemLightspeed,
		Synonyms: map[string][]string{
			FieldBusinessDate:     {"sale date", "date", "completed date"},
			FieldSoldAt:           {"sale time", "time completed"},
			FieldReceiptId:        {"sale id", "receipt id", "invoice id"},
			FieldLineId:           {"sale line id", "line id", "line"},
			FieldPosItemId:        {"item id", "product id", "system id"},
			FieldPosItemName:      {"item", "product", "description"},
			FieldQuantity:         {"qty", "quantity", "qty sold"},
			FieldIsVoided:         {"voided", "status"},
			FieldIsRefunded:       {"is return", "refund"},
			FieldSizeModifierName: {"matrix attribute", "size"},
			FieldUnitSalePrice:    {"unit price", "price"},
		},
		SkipWhenEmpty: FieldPosItemName,
		DateLayouts:   commonDateLayouts,
	},
	"clover": {
		Name:         "clover",
		SourceSystem: models.SourceSystemClover,
		Synonyms: map[string][]string{
			FieldBusinessDate:     {"order date", "date"},
			FieldSoldAt:           {"order time", "payment time"},
			FieldReceiptId:        {"order id", "order number"},
			FieldLineId:           {"line item id", "item line id"},
			FieldPosItemId:        {"item id", "sku"},
			FieldPosItemName:      {"item name", "name"},
			FieldQuantity:         {"quantity", "qty"},
			FieldIsVoided:         {"voided", "deleted"},
			FieldIsRefunded:       {"refunded"},
			FieldSizeModifierName: {"modifiers", "variant"},
			FieldUnitSalePrice:    {"price", "item price"},
		},
		SkipWhenEmpty: FieldPosItemName,
		DateLayouts:   commonDateLayouts,
	},
	// summary handles pre-aggregated product-mix reports: no receipt, line or
	// item ids, usually no date column either. Identifiers are synthesized
	// deterministically so re-importing the same report is a no-op.
	"summary": {
		Name:         "summary",
		SourceSystem: models.SourceSystemOther,
		Synonyms: map[string][]string{
			FieldBusinessDate: {"business date", "date"},
			FieldPosItemName:  {"item", "item name", "product", "menu item", "description"},
			FieldQuantity:     {"qty", "quantity", "qty sold", "sold", "count"},
			FieldUnitSalePrice: {
				"avg price", "unit price", "price",
			},
		},
		IsSummary:     true,
		SkipWhenEmpty: FieldPosItemName,
		AutoGenerate:  []string{FieldReceiptId, FieldLineId, FieldPosItemId},
		DateLayouts:   commonDateLayouts,
	},
}

// LookupTemplate finds a built-in template by name, case-insensitive.
func LookupTemplate(name string) (Template, bool) {
	tmpl, ok := builtinTemplates[strings.ToLower(strings.TrimSpace(name))]
	return tmpl, ok
}

// TemplateFromCustomMap builds a one-off template from a user-supplied
// header-to-field dictionary.
func TemplateFromCustomMap(sourceSystem models.SourceSystem, custom CustomColumnMap) Template {
	synonyms := map[string][]string{}
	for header, field := range custom.Columns {
		field = strings.TrimSpace(field)
		synonyms[field] = append(synonyms[field], strings.TrimSpace(header))
	}
	layouts := commonDateLayouts
	if strings.TrimSpace(custom.DateLayout) != "" {
		layouts = append([]string{custom.DateLayout}, commonDateLayouts...)
	}
	tmpl := Template{
		Name:          "custom",
		SourceSystem:  sourceSystem,
		Synonyms:      synonyms,
		IsSummary:     custom.IsSummary,
		SkipWhenEmpty: strings.TrimSpace(custom.SkipWhenEmpty),
		DateLayouts:   layouts,
	}
	if tmpl.IsSummary {
		tmpl.AutoGenerate = []string{FieldReceiptId, FieldLineId, FieldPosItemId}
	}
	return tmpl
}

func (t Template) autoGenerates(field string) bool {
	for _, f := range t.AutoGenerate {
		if f == field {
			return true
		}
	}
	return false
}
