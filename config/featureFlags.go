package config

import (
	"os"
	"strings"
)

// StrictLedgerImmutability blocks all UPDATE/DELETE statements against the
// consumption_events table at the GORM hook level. Corrections must go through
// the reversal + replacement workflow.
//
// Set via env:
// - STRICT_LEDGER_IMMUTABLE=false to disable (enabled by default)
func StrictLedgerImmutability() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("STRICT_LEDGER_IMMUTABLE")))
	return v != "0" && v != "false" && v != "no" && v != "n"
}

// DepletionEnabledFor gates scheduled depletion runs per source system during
// incremental POS rollouts.
//
// Set via env:
// - DEPLETION_SOURCE_SYSTEMS="toast,square,lightspeed,clover,manual"
//
// Empty means all source systems are enabled.
func DepletionEnabledFor(sourceSystem string) bool {
	sourceSystem = strings.ToLower(strings.TrimSpace(sourceSystem))
	raw := strings.TrimSpace(os.Getenv("DEPLETION_SOURCE_SYSTEMS"))
	if raw == "" {
		return true
	}
	for _, part := range strings.Split(raw, ",") {
		if strings.ToLower(strings.TrimSpace(part)) == sourceSystem {
			return true
		}
	}
	return false
}
