package ingest

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmdatafocus/barledger_backend/models"
)

// CanonicalSaleLine is the parse output shape, one per usable export row.
// It is storage-agnostic; the importer turns it into a models.SalesLine.
type CanonicalSaleLine struct {
	SourceSystem     models.SourceSystem `json:"sourceSystem"`
	SourceLocationId string              `json:"sourceLocationId"`
	BusinessDate     time.Time           `json:"businessDate"`
	SoldAt           time.Time           `json:"soldAt"`
	ReceiptId        string              `json:"receiptId"`
	LineId           string              `json:"lineId"`
	PosItemId        string              `json:"posItemId"`
	PosItemName      string              `json:"posItemName"`
	Quantity         decimal.Decimal     `json:"quantity"`
	IsVoided         bool                `json:"isVoided"`
	IsRefunded       bool                `json:"isRefunded"`
	SizeModifierId   string              `json:"sizeModifierId,omitempty"`
	SizeModifierName string              `json:"sizeModifierName,omitempty"`
	UnitSalePrice    *decimal.Decimal    `json:"unitSalePrice,omitempty"`
	RawPayloadJSON   json.RawMessage     `json:"rawPayloadJson,omitempty"`
}

// RowError is a row-scoped parse failure. The row is excluded from the
// result set; the batch continues.
type RowError struct {
	Row     int    `json:"row"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ParseResult bundles usable rows with row-scoped errors.
type ParseResult struct {
	Rows   []CanonicalSaleLine `json:"rows"`
	Errors []RowError          `json:"errors"`
}

// ParseOptions carries import-level context the file itself may omit.
// Summary exports in particular have no business date column, so the caller
// must supply one.
type ParseOptions struct {
	BusinessDate     *time.Time
	SourceLocationId string
}

// CustomColumnMap is a user-supplied header-to-field dictionary used in
// place of a named template.
type CustomColumnMap struct {
	Columns       map[string]string `json:"columns" validate:"required,min=1"`
	IsSummary     bool              `json:"isSummary"`
	SkipWhenEmpty string            `json:"skipWhenEmpty"`
	DateLayout    string            `json:"dateLayout"`
}

// ImportStats is the importer's user-visible summary.
type ImportStats struct {
	RowsParsed    int `json:"rowsParsed"`
	RowsInserted  int `json:"rowsInserted"`
	RowsDuplicate int `json:"rowsDuplicate"`
	RowErrors     int `json:"rowErrors"`
}

type ImportPubSubPayload struct {
	RunId      uint   `json:"runId"`
	BusinessId string `json:"businessId"`
	LocationId string `json:"locationId"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data        []byte `json:"data"`
		MessageId   string `json:"messageId"`
		PublishTime string `json:"publishTime"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type UploadImportRequest struct {
	SourceSystem string           `json:"sourceSystem" validate:"required"`
	Template     string           `json:"template"`
	CustomMap    *CustomColumnMap `json:"customMap"`
	BusinessDate string           `json:"businessDate"`
	CSV          string           `json:"csv" validate:"required"`
}

type ImportRunResponse struct {
	ID            uint    `json:"id"`
	Status        string  `json:"status"`
	SourceSystem  string  `json:"sourceSystem"`
	TemplateName  string  `json:"templateName"`
	StartedAt     *string `json:"startedAt"`
	FinishedAt    *string `json:"finishedAt"`
	DurationMs    int64   `json:"durationMs"`
	RowsParsed    int     `json:"rowsParsed"`
	RowsInserted  int     `json:"rowsInserted"`
	RowsDuplicate int     `json:"rowsDuplicate"`
	RowErrorCount int     `json:"rowErrorCount"`
	TriggeredBy   string  `json:"triggeredBy"`
}

type ImportErrorResponse struct {
	ID      uint   `json:"id"`
	Row     int    `json:"row"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

type ImportRunDetailResponse struct {
	ImportRunResponse
	Errors []ImportErrorResponse `json:"errors"`
}

type ImportHistoryResponse struct {
	Items []ImportRunResponse `json:"items"`
}
