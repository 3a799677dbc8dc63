package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"energybudget/internal/allocation"
	apperrors "energybudget/internal/errors"
	"energybudget/internal/models"
)

// usageLedger holds realized cost per meter per calendar month.
type usageLedger map[uint]map[time.Time]decimal.Decimal

// loadUsage reads the cost recorded against meterIDs inside period's window
// and buckets it by meter and month. Rows are streamed so a wide period can
// be abandoned as soon as ctx is done.
func loadUsage(ctx context.Context, db *gorm.DB, meterIDs []uint, period allocation.Period) (usageLedger, error) {
	ledger := usageLedger{}
	if len(meterIDs) == 0 {
		return ledger, nil
	}
	from, to := period.Window()

	rows, err := db.WithContext(ctx).Model(&models.UsageRecord{}).
		Select("meter_id, recorded_at, cost").
		Where("meter_id IN ? AND recorded_at >= ? AND recorded_at < ?", meterIDs, from, to).
		Rows()
	if err != nil {
		return nil, apperrors.Store(err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.Store(err)
		}
		var rec models.UsageRecord
		if err := db.ScanRows(rows, &rec); err != nil {
			return nil, apperrors.Store(err)
		}
		ledger.add(rec.MeterID, allocation.MonthStart(rec.RecordedAt), rec.Cost)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Store(err)
	}
	return ledger, nil
}

func (l usageLedger) add(meterID uint, month time.Time, cost decimal.Decimal) {
	months, ok := l[meterID]
	if !ok {
		months = map[time.Time]decimal.Decimal{}
		l[meterID] = months
	}
	months[month] = months[month].Add(cost)
}

// meterTotal is everything meterID spent in the loaded window.
func (l usageLedger) meterTotal(meterID uint) decimal.Decimal {
	total := decimal.Zero
	for _, cost := range l[meterID] {
		total = total.Add(cost)
	}
	return total
}

// monthTotal is what the given meters spent in month combined.
func (l usageLedger) monthTotal(meterIDs []uint, month time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, id := range meterIDs {
		total = total.Add(l[id][month])
	}
	return total
}

// total is everything the given meters spent in the loaded window.
func (l usageLedger) total(meterIDs []uint) decimal.Decimal {
	total := decimal.Zero
	for _, id := range meterIDs {
		total = total.Add(l.meterTotal(id))
	}
	return total
}
