package model

import "time"

// KPIReport holds funnel metrics for one owner and date range.
type KPIReport struct {
	LeadsContactados int     `json:"leadsContactados"`
	LeadsCalificados int     `json:"leadsCalificados"`
	LeadsConvertidos int     `json:"leadsConvertidos"`
	TasaConversion   float64 `json:"tasaConversion"`
	Revenue          float64 `json:"revenue"`
	Recipients       int     `json:"recipients"`
	RPR              float64 `json:"rpr"`
}

type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type KPIResult struct {
	KPIs      KPIReport `json:"kpis"`
	DateRange DateRange `json:"dateRange"`
}

// KPIEventRow is the projection of a lead event the aggregator needs.
type KPIEventRow struct {
	LeadID  string        `gorm:"column:lead_id"`
	Type    LeadEventType `gorm:"column:type"`
	Revenue *float64      `gorm:"column:revenue"`
}

// DefaultKPIWindow is used when the caller omits the range start.
const DefaultKPIWindow = 30 * 24 * time.Hour
