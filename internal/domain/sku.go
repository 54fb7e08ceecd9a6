package domain

import (
	"strings"
	"time"
)

// DemandVariability is the demand-behaviour label attached to a SKU.
type DemandVariability string

const (
	VariabilityStable     DemandVariability = "STABLE"
	VariabilityLow        DemandVariability = "LOW"
	VariabilityHigh       DemandVariability = "HIGH"
	VariabilitySeasonal   DemandVariability = "SEASONAL"
	VariabilityPerishable DemandVariability = "PERISHABLE"
)

// PerishableShelfLifeDays is the shelf-life cutoff (inclusive) for perishable SKUs.
const PerishableShelfLifeDays = 7

// AllVariabilities lists every label in display order.
var AllVariabilities = []DemandVariability{
	VariabilityStable,
	VariabilityLow,
	VariabilityHigh,
	VariabilitySeasonal,
	VariabilityPerishable,
}

// ParseDemandVariability normalizes a stored label. Unknown values return false.
func ParseDemandVariability(s string) (DemandVariability, bool) {
	v := DemandVariability(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range AllVariabilities {
		if v == known {
			return v, true
		}
	}
	return "", false
}

// SKU is a snapshot of the store's SKU record. The core never owns it.
type SKU struct {
	SKU               string            `json:"sku" db:"sku" yaml:"sku"`
	Description       string            `json:"description,omitempty" db:"description" yaml:"description"`
	ShelfLifeDays     int               `json:"shelf_life_days" db:"shelf_life_days" yaml:"shelf_life_days"`
	DemandVariability DemandVariability `json:"demand_variability" db:"demand_variability" yaml:"demand_variability"`
	// TargetCSL of 0 means no per-SKU override.
	TargetCSL float64 `json:"target_csl" db:"target_csl" yaml:"target_csl"`
}

// HasShelfLifePerishability reports whether the shelf life alone marks the SKU perishable.
func (s SKU) HasShelfLifePerishability() bool {
	return s.ShelfLifeDays > 0 && s.ShelfLifeDays <= PerishableShelfLifeDays
}

// SKUUpdate carries the fields the core may change on a SKU. Nil fields are left untouched.
type SKUUpdate struct {
	TargetCSL         *float64
	DemandVariability *DemandVariability
}

// SalesRecord is one day of sales for a SKU.
type SalesRecord struct {
	Date      time.Time `json:"date" db:"date" yaml:"date"`
	SKU       string    `json:"sku" db:"sku" yaml:"sku"`
	QtySold   float64   `json:"qty_sold" db:"qty_sold" yaml:"qty_sold"`
	PromoFlag bool      `json:"promo_flag" db:"promo_flag" yaml:"promo_flag"`
}

// EventKind classifies ledger events.
type EventKind string

const (
	EventSnapshot EventKind = "SNAPSHOT"
	EventSale     EventKind = "SALE"
	EventOrder    EventKind = "ORDER"
	EventReceipt  EventKind = "RECEIPT"
	EventAdjust   EventKind = "ADJUST"
	EventWaste    EventKind = "WASTE"
)

// LedgerEvent is an append-only stock transaction.
type LedgerEvent struct {
	Date  time.Time `json:"date" db:"date" yaml:"date"`
	SKU   string    `json:"sku" db:"sku" yaml:"sku"`
	Event EventKind `json:"event" db:"event" yaml:"event"`
	Qty   float64   `json:"qty" db:"qty" yaml:"qty"`
	Note  string    `json:"note,omitempty" db:"note" yaml:"note"`
}

// KPIDaily is one persisted KPI row. Nil pointers mean the KPI was not computable that day.
type KPIDaily struct {
	SKU       string    `json:"sku" db:"sku" yaml:"sku"`
	Date      time.Time `json:"date" db:"date" yaml:"date"`
	OOSRate   *float64  `json:"oos_rate" db:"oos_rate" yaml:"oos_rate"`
	WMAPE     *float64  `json:"wmape" db:"wmape" yaml:"wmape"`
	Bias      *float64  `json:"bias,omitempty" db:"bias" yaml:"bias"`
	FillRate  *float64  `json:"fill_rate,omitempty" db:"fill_rate" yaml:"fill_rate"`
	WasteRate *float64  `json:"waste_rate,omitempty" db:"waste_rate" yaml:"waste_rate"`
}

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 {
	return &v
}
