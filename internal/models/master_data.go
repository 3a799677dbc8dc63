package models

// EnergyType is a reference entity owned by the master-data catalog, e.g.
// Electricity measured in kWh.
type EnergyType struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"not null;uniqueIndex" json:"name"`
	Unit string `gorm:"not null" json:"unit"`
}

// MeterStatus represents the operational state of a meter
type MeterStatus string

const (
	MeterStatusActive           MeterStatus = "active"
	MeterStatusUnderMaintenance MeterStatus = "under_maintenance"
	MeterStatusInactive         MeterStatus = "inactive"
	MeterStatusDeleted          MeterStatus = "deleted"
)

// Allocatable reports whether new budget allocations may reference a meter
// in this state.
func (s MeterStatus) Allocatable() bool {
	return s != MeterStatusDeleted
}

// Meter is a physical metering point belonging to exactly one energy type.
type Meter struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	Code         string      `gorm:"not null;uniqueIndex" json:"code"`
	Name         string      `gorm:"not null" json:"name"`
	EnergyTypeID uint        `gorm:"not null;index" json:"energyTypeId"`
	Status       MeterStatus `gorm:"not null;default:'active'" json:"status"`

	EnergyType *EnergyType `gorm:"foreignKey:EnergyTypeID" json:"energyType,omitempty"`
}
