package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/mmdatafocus/barledger_backend/config"
	"github.com/mmdatafocus/barledger_backend/models"
	"github.com/mmdatafocus/barledger_backend/utils"
)

// ImportSalesLines persists canonical rows with insert-or-ignore semantics:
// re-importing the same export absorbs duplicates silently via the sales line
// natural key.
func ImportSalesLines(ctx context.Context, db *gorm.DB, businessId, locationId string, rows []CanonicalSaleLine) (models.InsertSalesLineStats, error) {
	lines := make([]*models.SalesLine, 0, len(rows))
	for _, row := range rows {
		sourceLocationId := row.SourceLocationId
		if sourceLocationId == "" {
			sourceLocationId = locationId
		}
		line := &models.SalesLine{
			BusinessId:       businessId,
			LocationId:       locationId,
			SourceSystem:     row.SourceSystem,
			SourceLocationId: sourceLocationId,
			BusinessDate:     row.BusinessDate,
			ReceiptId:        row.ReceiptId,
			LineId:           row.LineId,
			SizeModifierId:   row.SizeModifierId,
			SoldAt:           row.SoldAt,
			PosItemId:        row.PosItemId,
			PosItemName:      row.PosItemName,
			Quantity:         row.Quantity,
			UnitSalePrice:    row.UnitSalePrice,
			IsVoided:         utils.NewFalse(),
			IsRefunded:       utils.NewFalse(),
			RawPayloadJSON:   row.RawPayloadJSON,
		}
		if row.IsVoided {
			line.IsVoided = utils.NewTrue()
		}
		if row.IsRefunded {
			line.IsRefunded = utils.NewTrue()
		}
		if row.SizeModifierName != "" {
			line.SizeModifierName = utils.NewString(row.SizeModifierName)
		}
		lines = append(lines, line)
	}
	return models.InsertSalesLines(ctx, db, lines)
}

// RunImport executes one queued import run end to end: download (when the
// connection pulls from an export endpoint), parse, insert, record row
// errors, finalize the run and connection health. Safe to call twice for the
// same run: a terminal run short-circuits, and re-inserted rows dedup.
func RunImport(ctx context.Context, payload ImportPubSubPayload) error {
	if payload.RunId == 0 || payload.BusinessId == "" {
		return errors.New("invalid payload")
	}

	ctx = utils.SetBusinessIdInContext(ctx, payload.BusinessId)
	if payload.LocationId != "" {
		ctx = utils.SetLocationIdInContext(ctx, payload.LocationId)
	}
	db := config.GetDB().WithContext(ctx)
	logger := config.GetLogger()

	var run models.ImportRun
	if err := db.Where("id = ? AND business_id = ?", payload.RunId, payload.BusinessId).Take(&run).Error; err != nil {
		return err
	}
	if run.Status == models.ImportRunStatusSuccess ||
		run.Status == models.ImportRunStatusPartial ||
		run.Status == models.ImportRunStatusFailed {
		return nil
	}

	var conn models.POSConnection
	if run.ConnectionId == nil {
		return failRun(db, &run, errors.New("run has no connection; uploads import inline"))
	}
	if err := db.Where("id = ? AND business_id = ?", *run.ConnectionId, payload.BusinessId).Take(&conn).Error; err != nil {
		return failRun(db, &run, err)
	}

	now := time.Now()
	if err := db.Model(&run).Updates(map[string]interface{}{
		"status":     models.ImportRunStatusRunning,
		"started_at": now,
	}).Error; err != nil {
		return err
	}
	run.StartedAt = &now

	client, err := newExportClient(&conn)
	if err != nil {
		return finalizeRunError(db, &run, &conn, err)
	}
	raw, err := client.FetchExport(ctx)
	if err != nil {
		return finalizeRunError(db, &run, &conn, err)
	}

	tmpl, ok := LookupTemplate(run.TemplateName)
	if !ok {
		return finalizeRunError(db, &run, &conn, fmt.Errorf("unknown template %q", run.TemplateName))
	}
	tmpl.SourceSystem = run.SourceSystem

	opts := ParseOptions{BusinessDate: run.BusinessDate, SourceLocationId: conn.SourceLocationRef}
	parsed := ParseCSV(raw, tmpl, opts)
	for _, rowErr := range parsed.Errors {
		payloadJSON, _ := json.Marshal(rowErr)
		_ = models.CreateImportError(db, run.ID, payload.BusinessId, rowErr.Row, rowErr.Field, rowErr.Message, payloadJSON)
	}

	stats, err := ImportSalesLines(ctx, db, payload.BusinessId, run.LocationId, parsed.Rows)
	if err != nil {
		config.LogError(logger, "ingest", "RunImport", "insert sales lines", map[string]interface{}{"runId": run.ID}, err)
		return finalizeRunError(db, &run, &conn, err)
	}

	return finalizeRun(db, &run, &conn, ImportStats{
		RowsParsed:    len(parsed.Rows),
		RowsInserted:  stats.Inserted,
		RowsDuplicate: stats.Duplicates,
		RowErrors:     len(parsed.Errors),
	})
}

func finalizeRun(db *gorm.DB, run *models.ImportRun, conn *models.POSConnection, stats ImportStats) error {
	finishedAt := time.Now()
	var durationMs int64
	if run.StartedAt != nil {
		durationMs = finishedAt.Sub(*run.StartedAt).Milliseconds()
	}

	status := models.ImportRunStatusSuccess
	if stats.RowErrors > 0 && stats.RowsInserted == 0 && stats.RowsDuplicate == 0 {
		status = models.ImportRunStatusFailed
	} else if stats.RowErrors > 0 {
		status = models.ImportRunStatusPartial
	}

	if err := db.Model(run).Updates(map[string]interface{}{
		"status":          status,
		"finished_at":     finishedAt,
		"duration_ms":     durationMs,
		"rows_parsed":     stats.RowsParsed,
		"rows_inserted":   stats.RowsInserted,
		"rows_duplicate":  stats.RowsDuplicate,
		"row_error_count": stats.RowErrors,
	}).Error; err != nil {
		return err
	}

	if conn != nil {
		connUpdates := map[string]interface{}{"last_error": nil}
		if status != models.ImportRunStatusFailed {
			connUpdates["last_success_ts"] = finishedAt
		}
		if err := db.Model(conn).Updates(connUpdates).Error; err != nil {
			return err
		}
	}
	return nil
}

func finalizeRunError(db *gorm.DB, run *models.ImportRun, conn *models.POSConnection, cause error) error {
	finishedAt := time.Now()
	var durationMs int64
	if run.StartedAt != nil {
		durationMs = finishedAt.Sub(*run.StartedAt).Milliseconds()
	}
	_ = db.Model(run).Updates(map[string]interface{}{
		"status":      models.ImportRunStatusFailed,
		"finished_at": finishedAt,
		"duration_ms": durationMs,
	}).Error
	if conn != nil {
		msg := cause.Error()
		_ = db.Model(conn).Updates(map[string]interface{}{"last_error": msg}).Error
	}
	return cause
}

func failRun(db *gorm.DB, run *models.ImportRun, cause error) error {
	_ = db.Model(run).Updates(map[string]interface{}{
		"status":      models.ImportRunStatusFailed,
		"finished_at": time.Now(),
	}).Error
	return cause
}
