package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/mmdatafocus/barledger_backend/config"
	"github.com/mmdatafocus/barledger_backend/models"
	"github.com/mmdatafocus/barledger_backend/utils"
	"github.com/mmdatafocus/barledger_backend/workflow"
)

func main() {
	businessID := flag.String("business-id", "", "Required: business id (uuid)")
	eventID := flag.String("event-id", "", "Required: consumption event id (uuid)")
	delta := flag.String("delta", "", "Required: corrected quantity delta (signed decimal)")
	uom := flag.String("uom", "", "Required: corrected unit of measure (units|oz|ml|grams)")
	reason := flag.String("reason", "Manual ledger correction", "Correction reason recorded on both new rows")
	dryRun := flag.Bool("dry-run", true, "Show the original event only (no writes)")
	confirm := flag.String("confirm", "", "Type CORRECT to proceed when dry-run=false")
	flag.Parse()

	if strings.TrimSpace(*businessID) == "" || strings.TrimSpace(*eventID) == "" {
		fmt.Fprintln(os.Stderr, "--business-id and --event-id are required")
		os.Exit(1)
	}
	parsedEventID, err := uuid.Parse(strings.TrimSpace(*eventID))
	if err != nil {
		fmt.Fprintf(os.Stderr, "--event-id must be a uuid: %v\n", err)
		os.Exit(1)
	}
	if !*dryRun {
		if strings.TrimSpace(*confirm) != "CORRECT" {
			fmt.Fprintln(os.Stderr, "set --confirm=CORRECT to proceed")
			os.Exit(1)
		}
		if strings.TrimSpace(*delta) == "" || strings.TrimSpace(*uom) == "" {
			fmt.Fprintln(os.Stderr, "--delta and --uom are required")
			os.Exit(1)
		}
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx := utils.SetBusinessIdInContext(context.Background(), *businessID)

	original, err := models.GetConsumptionEventById(ctx, db, parsedEventID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "not found: %v\n", err)
		os.Exit(1)
	}
	printEvent(original)

	if *dryRun {
		return
	}

	newDelta, err := decimal.NewFromString(strings.TrimSpace(*delta))
	if err != nil {
		fmt.Fprintf(os.Stderr, "--delta must be a decimal: %v\n", err)
		os.Exit(1)
	}

	logger := logrus.New()
	reversalId, replacementId, err := workflow.CorrectEvent(ctx, db, logger, parsedEventID, newDelta, models.UOM(strings.TrimSpace(*uom)), *reason)
	if err != nil {
		fmt.Fprintf(os.Stderr, "correction failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("corrected: reversal=%s replacement=%s\n", reversalId, replacementId)
}

func printEvent(e *models.ConsumptionEvent) {
	salesLine := "-"
	if e.SalesLineId != nil {
		salesLine = e.SalesLineId.String()
	}
	fmt.Printf("id=%s location_id=%s item_id=%s event_type=%s source=%s delta=%s uom=%s confidence=%s sales_line=%s event_ts=%s is_reversal=%v\n",
		e.ID, e.LocationId, e.InventoryItemId, e.EventType, e.SourceSystem,
		e.QuantityDelta.String(), e.UOM, e.ConfidenceLevel, salesLine,
		e.EventTs.Format("2006-01-02 15:04:05"), e.IsReversal())
}
