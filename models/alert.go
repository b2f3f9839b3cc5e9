package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// AlertRuleSetting is the per-rule block of a location's alert config.
// Threshold meaning is rule specific: percent for variance_percent, absolute
// level for low_stock, days for stale_count, percent remaining for
// keg_near_empty, consecutive periods for shrinkage_pattern. par_level_reorder takes its
// threshold from the item's par level, so Threshold is ignored there.
type AlertRuleSetting struct {
	Enabled   bool             `json:"enabled"`
	Threshold *decimal.Decimal `json:"threshold"`
}

// AlertRuleConfig maps rule name to its setting. Decoding is lenient:
// unknown rule keys are kept but never evaluated, malformed blocks decode as
// disabled, and an absent rule is disabled.
type AlertRuleConfig map[string]AlertRuleSetting

// ParseAlertRuleConfig never fails hard: a nil or unparseable payload yields
// an empty (all-disabled) config.
func ParseAlertRuleConfig(raw []byte) AlertRuleConfig {
	cfg := AlertRuleConfig{}
	if len(raw) == 0 {
		return cfg
	}
	var loose map[string]json.RawMessage
	if err := json.Unmarshal(raw, &loose); err != nil {
		return cfg
	}
	for name, block := range loose {
		var setting AlertRuleSetting
		if err := json.Unmarshal(block, &setting); err != nil {
			cfg[name] = AlertRuleSetting{Enabled: false}
			continue
		}
		cfg[name] = setting
	}
	return cfg
}

// IsEnabled reports whether a rule should be evaluated for this config.
func (c AlertRuleConfig) IsEnabled(rule string) bool {
	setting, ok := c[rule]
	return ok && setting.Enabled
}

// ThresholdOr returns the configured threshold or the given default when the
// rule is absent or carries no threshold.
func (c AlertRuleConfig) ThresholdOr(rule string, def decimal.Decimal) decimal.Decimal {
	if setting, ok := c[rule]; ok && setting.Threshold != nil {
		return *setting.Threshold
	}
	return def
}

// LocationAlertConfig persists the rule config per location as a json column.
type LocationAlertConfig struct {
	ID         uint      `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"type:char(36);index;not null" json:"business_id"`
	LocationId string    `gorm:"type:char(36);uniqueIndex;not null" json:"location_id"`
	RulesJSON  []byte    `gorm:"type:json" json:"rules_json"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c *LocationAlertConfig) Rules() AlertRuleConfig {
	return ParseAlertRuleConfig(c.RulesJSON)
}

// AlertResult is one fired alert in an evaluation pass. Evaluation is a pure
// read; results are dispatched separately with dedup.
type AlertResult struct {
	Rule            string           `json:"rule"`
	LocationId      string           `json:"location_id"`
	InventoryItemId *string          `json:"inventory_item_id,omitempty"`
	KegInstanceId   *string          `json:"keg_instance_id,omitempty"`
	Value           *decimal.Decimal `json:"value,omitempty"`
	Threshold       *decimal.Decimal `json:"threshold,omitempty"`
	Message         string           `json:"message"`
	EvaluatedAt     time.Time        `json:"evaluated_at"`
}

// DedupKey identifies an alert for suppression purposes: same rule on the
// same subject within the dedup window fires once.
func (a *AlertResult) DedupKey() string {
	key := "alert:" + a.Rule + ":" + a.LocationId
	if a.InventoryItemId != nil {
		key += ":" + *a.InventoryItemId
	}
	if a.KegInstanceId != nil {
		key += ":" + *a.KegInstanceId
	}
	return key
}
