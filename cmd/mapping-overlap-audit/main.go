package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/barledger_backend/config"
	"github.com/mmdatafocus/barledger_backend/models"
	"github.com/mmdatafocus/barledger_backend/utils"
)

func main() {
	businessID := flag.String("business-id", "", "Required: business id (uuid)")
	locationID := flag.String("location-id", "", "Required: location id (uuid)")
	flag.Parse()

	if strings.TrimSpace(*businessID) == "" || strings.TrimSpace(*locationID) == "" {
		fmt.Fprintln(os.Stderr, "--business-id and --location-id are required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx := utils.SetBusinessIdInContext(context.Background(), *businessID)

	overlaps, err := models.FindOverlappingMappings(ctx, db, *locationID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit failed: %v\n", err)
		os.Exit(1)
	}
	if len(overlaps) == 0 {
		fmt.Println("no overlapping mapping windows")
		return
	}

	for _, pair := range overlaps {
		a, b := pair[0], pair[1]
		fmt.Printf("OVERLAP source_system=%s pos_item_id=%s\n", a.SourceSystem, a.PosItemId)
		printMapping("  a", a)
		printMapping("  b", b)
	}
	fmt.Printf("%d overlapping pair(s); deactivate or re-window the losers\n", len(overlaps))
	os.Exit(2)
}

func printMapping(label string, m *models.POSItemMapping) {
	end := "open"
	if m.EffectiveToTs != nil {
		end = m.EffectiveToTs.Format("2006-01-02 15:04:05")
	}
	fmt.Printf("%s: id=%s mode=%s effective=[%s .. %s) created=%s\n",
		label, m.ID, m.Mode,
		m.EffectiveFromTs.Format("2006-01-02 15:04:05"), end,
		m.CreatedAt.Format("2006-01-02 15:04:05"))
}
