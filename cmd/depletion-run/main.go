package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mmdatafocus/barledger_backend/config"
	"github.com/mmdatafocus/barledger_backend/utils"
	"github.com/mmdatafocus/barledger_backend/workflow"
)

func main() {
	businessID := flag.String("business-id", "", "Required: business id (uuid)")
	locationID := flag.String("location-id", "", "Required: location id (uuid)")
	from := flag.String("from", "", "Required: window start (RFC3339)")
	to := flag.String("to", "", "Required: window end (RFC3339)")
	flag.Parse()

	if strings.TrimSpace(*businessID) == "" || strings.TrimSpace(*locationID) == "" {
		fmt.Fprintln(os.Stderr, "--business-id and --location-id are required")
		os.Exit(1)
	}
	fromTs, err := time.Parse(time.RFC3339, strings.TrimSpace(*from))
	if err != nil {
		fmt.Fprintf(os.Stderr, "--from must be RFC3339: %v\n", err)
		os.Exit(1)
	}
	toTs, err := time.Parse(time.RFC3339, strings.TrimSpace(*to))
	if err != nil {
		fmt.Fprintf(os.Stderr, "--to must be RFC3339: %v\n", err)
		os.Exit(1)
	}
	if !toTs.After(fromTs) {
		fmt.Fprintln(os.Stderr, "--to must be after --from")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx := context.Background()
	ctx = utils.SetBusinessIdInContext(ctx, *businessID)
	ctx = utils.SetLocationIdInContext(ctx, *locationID)

	logger := logrus.New()
	stats, err := workflow.ProcessWindow(ctx, db.WithContext(ctx), logger, *locationID, fromTs, toTs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "depletion run failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("processed=%d created=%d unmapped=%d skipped=%d\n",
		stats.Processed, stats.Created, stats.Unmapped, stats.Skipped)
}
