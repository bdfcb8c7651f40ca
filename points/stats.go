/*
stats.go - Activity summaries for admin reporting

PURPOSE:
  Computes per-user aggregates over the ledger for admin dashboards:
  counts per action, earn/spend totals, and exact averages. Averages use
  decimal arithmetic so reporting never accumulates float error; the
  ledger amounts themselves stay integers.
*/
package points

import (
	"github.com/shopspring/decimal"

	"github.com/civicbeacon/points-engine/ledger"
)

// =============================================================================
// ACTIVITY SUMMARY
// =============================================================================

// ActivitySummary aggregates one user's ledger.
type ActivitySummary struct {
	UserID       ledger.UserID
	Transactions int
	TotalEarned  int
	TotalSpent   int
	NetPoints    int

	// Count of transactions per action tag.
	ByAction map[ledger.Action]int

	// Exact means over earning/spending transactions. Zero when there
	// are no transactions in that direction.
	AverageEarned decimal.Decimal
	AverageSpent  decimal.Decimal

	// RedemptionRate is spent/earned. Zero when nothing was earned.
	RedemptionRate decimal.Decimal
}

// Summarize computes the activity summary from a transaction list.
// Pure function; order of txs does not matter.
func Summarize(userID ledger.UserID, txs []ledger.PointTransaction) ActivitySummary {
	s := ActivitySummary{
		UserID:   userID,
		ByAction: make(map[ledger.Action]int),
	}

	var earnCount, spendCount int
	for _, tx := range txs {
		s.Transactions++
		s.ByAction[tx.Action]++
		switch tx.Direction {
		case ledger.DirectionEarned:
			s.TotalEarned += tx.Amount
			earnCount++
		case ledger.DirectionSpent:
			s.TotalSpent += tx.Amount
			spendCount++
		}
	}
	s.NetPoints = s.TotalEarned - s.TotalSpent

	if earnCount > 0 {
		s.AverageEarned = decimal.NewFromInt(int64(s.TotalEarned)).
			DivRound(decimal.NewFromInt(int64(earnCount)), 2)
	}
	if spendCount > 0 {
		s.AverageSpent = decimal.NewFromInt(int64(s.TotalSpent)).
			DivRound(decimal.NewFromInt(int64(spendCount)), 2)
	}
	if s.TotalEarned > 0 {
		s.RedemptionRate = decimal.NewFromInt(int64(s.TotalSpent)).
			DivRound(decimal.NewFromInt(int64(s.TotalEarned)), 4)
	}

	return s
}
