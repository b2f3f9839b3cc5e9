package models

import (
	"time"

	"gorm.io/gorm"
)

// POSConnection stores how exports arrive for a location (API pull, SFTP
// drop, webhook, manual upload) and the health of the last import.
type POSConnection struct {
	ID            uint             `gorm:"primary_key" json:"id"`
	BusinessId    string           `gorm:"type:char(36);index;not null" json:"business_id"`
	LocationId    string           `gorm:"type:char(36);index;not null" json:"location_id"`
	SourceSystem  SourceSystem     `gorm:"type:enum('toast','square','lightspeed','clover','other','manual');not null" json:"source_system"`
	Method        ConnectionMethod `gorm:"type:enum('api','sftp_export','webhook','manual_upload');not null" json:"method"`
	Status        string           `gorm:"size:20;not null;default:active" json:"status"`
	TemplateName  string           `gorm:"size:100" json:"template_name"`
	// SourceLocationRef is the POS side's own location identifier, carried
	// into each sales line's natural key.
	SourceLocationRef string     `gorm:"size:100" json:"source_location_ref"`
	ExportURL         string     `gorm:"size:500" json:"export_url"`
	AuthSecretRef     string     `gorm:"size:255" json:"-"`
	LastSuccessTs     *time.Time `json:"last_success_ts"`
	LastError         *string    `gorm:"type:text" json:"last_error"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// ImportRun is one ingestion execution: parse counts, insert counts and
// outcome. Runs are append-only job records, not locks; idempotency lives in
// the sales line natural key.
type ImportRun struct {
	ID             uint            `gorm:"primary_key" json:"id"`
	BusinessId     string          `gorm:"type:char(36);index;not null" json:"business_id"`
	LocationId     string          `gorm:"type:char(36);index;not null" json:"location_id"`
	ConnectionId   *uint           `gorm:"index" json:"connection_id"`
	SourceSystem   SourceSystem    `gorm:"type:enum('toast','square','lightspeed','clover','other','manual');not null" json:"source_system"`
	TemplateName   string          `gorm:"size:100" json:"template_name"`
	BusinessDate   *time.Time      `gorm:"type:date" json:"business_date"`
	Status         ImportRunStatus `gorm:"type:enum('QUEUED','RUNNING','SUCCESS','PARTIAL','FAILED');not null;default:QUEUED" json:"status"`
	TriggeredBy    string          `gorm:"size:50" json:"triggered_by"`
	StartedAt      *time.Time      `json:"started_at"`
	FinishedAt     *time.Time      `json:"finished_at"`
	DurationMs     int64           `json:"duration_ms"`
	RowsParsed     int             `json:"rows_parsed"`
	RowsInserted   int             `json:"rows_inserted"`
	RowsDuplicate  int             `json:"rows_duplicate"`
	RowErrorCount  int             `json:"row_error_count"`
	CorrelationId  string          `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// ImportError is a row-scoped parse or insert failure. The batch continues;
// the row is excluded from the result set.
type ImportError struct {
	ID          uint      `gorm:"primary_key" json:"id"`
	ImportRunId uint      `gorm:"index;not null" json:"import_run_id"`
	BusinessId  string    `gorm:"type:char(36);index;not null" json:"business_id"`
	RowNumber   int       `json:"row_number"`
	Field       string    `gorm:"size:100" json:"field"`
	Message     string    `gorm:"type:text;not null" json:"message"`
	PayloadJSON []byte    `gorm:"type:json" json:"payload_json"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func CreateImportError(tx *gorm.DB, runId uint, businessId string, rowNumber int, field, message string, payload []byte) error {
	rec := ImportError{
		ImportRunId: runId,
		BusinessId:  businessId,
		RowNumber:   rowNumber,
		Field:       field,
		Message:     message,
		PayloadJSON: payload,
	}
	return tx.Create(&rec).Error
}
