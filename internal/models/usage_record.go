package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// UsageRecord is one ingested meter reading with its cost. The engine only
// reads these rows.
type UsageRecord struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	MeterID    uint            `gorm:"not null;index:idx_usage_meter_time" json:"meterId"`
	RecordedAt time.Time       `gorm:"not null;index:idx_usage_meter_time" json:"recordedAt"`
	Usage      decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"usage"`
	Cost       decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"cost"`
}
