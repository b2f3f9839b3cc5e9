package models

import (
	"log"

	"github.com/mmdatafocus/barledger_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Business{}, &Location{},
		&InventoryItem{}, &PriceHistory{},
		&SalesLine{},
		&ConsumptionEvent{},
		&POSItemMapping{},
		&Recipe{}, &RecipeIngredient{},
		&KegSize{}, &KegInstance{}, &TapLine{}, &TapAssignment{}, &PourProfile{},
		&InventorySession{}, &InventorySessionLine{},
		&POSConnection{}, &ImportRun{}, &ImportError{},
		&LocationAlertConfig{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
