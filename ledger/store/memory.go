// Package store provides Storage implementations.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/civicbeacon/points-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	transactions map[ledger.UserID][]ledger.PointTransaction // append order
	balances     map[ledger.UserID]ledger.UserBalance
	shares       map[shareKey]bool
}

type shareKey struct {
	UserID   ledger.UserID
	ReportID string
	Platform string
}

func NewMemory() *Memory {
	return &Memory{
		transactions: make(map[ledger.UserID][]ledger.PointTransaction),
		balances:     make(map[ledger.UserID]ledger.UserBalance),
		shares:       make(map[shareKey]bool),
	}
}

// Append adds a single transaction. Append-only.
func (m *Memory) Append(_ context.Context, tx ledger.PointTransaction) (ledger.PointTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(tx)
}

func (m *Memory) appendLocked(tx ledger.PointTransaction) (ledger.PointTransaction, error) {
	if tx.Amount < 0 {
		return ledger.PointTransaction{}, ledger.ErrInvalidAmount
	}
	m.transactions[tx.UserID] = append(m.transactions[tx.UserID], tx)
	return tx, nil
}

func (m *Memory) SumFor(_ context.Context, userID ledger.UserID, direction ledger.Direction) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sumLocked(userID, direction), nil
}

func (m *Memory) sumLocked(userID ledger.UserID, direction ledger.Direction) int {
	sum := 0
	for _, tx := range m.transactions[userID] {
		if tx.Direction == direction {
			sum += tx.Amount
		}
	}
	return sum
}

func (m *Memory) ListFor(_ context.Context, userID ledger.UserID, limit int) ([]ledger.PointTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(userID, limit), nil
}

func (m *Memory) listLocked(userID ledger.UserID, limit int) []ledger.PointTransaction {
	txs := m.transactions[userID]
	// Newest first: stored in append order, walk backwards.
	result := make([]ledger.PointTransaction, 0, len(txs))
	for i := len(txs) - 1; i >= 0; i-- {
		result = append(result, txs[i])
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result
}

// =============================================================================
// BALANCE STORE
// =============================================================================

func (m *Memory) GetBalance(_ context.Context, userID ledger.UserID) (ledger.UserBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getBalanceLocked(userID), nil
}

func (m *Memory) getBalanceLocked(userID ledger.UserID) ledger.UserBalance {
	if bal, ok := m.balances[userID]; ok {
		return bal
	}
	bal := ledger.UserBalance{UserID: userID, UpdatedAt: time.Now().UTC()}
	m.balances[userID] = bal
	return bal
}

func (m *Memory) ApplyDelta(_ context.Context, userID ledger.UserID, direction ledger.Direction, amount int) (ledger.UserBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyDeltaLocked(userID, direction, amount)
}

func (m *Memory) applyDeltaLocked(userID ledger.UserID, direction ledger.Direction, amount int) (ledger.UserBalance, error) {
	if amount < 0 {
		return ledger.UserBalance{}, ledger.ErrInvalidAmount
	}
	bal := m.getBalanceLocked(userID)
	switch direction {
	case ledger.DirectionEarned:
		bal.TotalEarned += amount
		bal.CurrentPoints += amount
	case ledger.DirectionSpent:
		bal.TotalSpent += amount
		bal.CurrentPoints -= amount
	default:
		return ledger.UserBalance{}, ledger.ErrInvalidDirection
	}
	bal.UpdatedAt = time.Now().UTC()
	m.balances[userID] = bal
	return bal, nil
}

func (m *Memory) RebuildBalance(_ context.Context, userID ledger.UserID, earned, spent int) (ledger.UserBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rebuildLocked(userID, earned, spent), nil
}

func (m *Memory) rebuildLocked(userID ledger.UserID, earned, spent int) ledger.UserBalance {
	bal := ledger.UserBalance{
		UserID:        userID,
		CurrentPoints: earned - spent,
		TotalEarned:   earned,
		TotalSpent:    spent,
		UpdatedAt:     time.Now().UTC(),
	}
	m.balances[userID] = bal
	return bal
}

// =============================================================================
// SHARE STORE
// =============================================================================

func (m *Memory) ShareExists(_ context.Context, userID ledger.UserID, reportID, platform string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.shares[shareKey{userID, reportID, platform}], nil
}

func (m *Memory) RecordShare(_ context.Context, rec ledger.SocialShareRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recordShareLocked(rec)
}

func (m *Memory) recordShareLocked(rec ledger.SocialShareRecord) error {
	k := shareKey{rec.UserID, rec.ReportID, rec.Platform}
	if m.shares[k] {
		return ledger.ErrDuplicateSocialShare
	}
	m.shares[k] = true
	return nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For the memory store this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(ledger.Storage) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	view := &txMemoryView{parent: tm}

	if err := fn(view); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

func (tm *TxMemory) snapshot() memorySnapshot {
	txsCopy := make(map[ledger.UserID][]ledger.PointTransaction)
	for k, v := range tm.transactions {
		txsCopy[k] = append([]ledger.PointTransaction{}, v...)
	}
	balCopy := make(map[ledger.UserID]ledger.UserBalance)
	for k, v := range tm.balances {
		balCopy[k] = v
	}
	shareCopy := make(map[shareKey]bool)
	for k, v := range tm.shares {
		shareCopy[k] = v
	}
	return memorySnapshot{transactions: txsCopy, balances: balCopy, shares: shareCopy}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.transactions = s.transactions
	tm.balances = s.balances
	tm.shares = s.shares
}

type memorySnapshot struct {
	transactions map[ledger.UserID][]ledger.PointTransaction
	balances     map[ledger.UserID]ledger.UserBalance
	shares       map[shareKey]bool
}

// txMemoryView operates directly on the parent under the lock WithTx holds.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) Append(_ context.Context, tx ledger.PointTransaction) (ledger.PointTransaction, error) {
	return tv.parent.appendLocked(tx)
}

func (tv *txMemoryView) SumFor(_ context.Context, userID ledger.UserID, direction ledger.Direction) (int, error) {
	return tv.parent.sumLocked(userID, direction), nil
}

func (tv *txMemoryView) ListFor(_ context.Context, userID ledger.UserID, limit int) ([]ledger.PointTransaction, error) {
	return tv.parent.listLocked(userID, limit), nil
}

func (tv *txMemoryView) GetBalance(_ context.Context, userID ledger.UserID) (ledger.UserBalance, error) {
	return tv.parent.getBalanceLocked(userID), nil
}

func (tv *txMemoryView) ApplyDelta(_ context.Context, userID ledger.UserID, direction ledger.Direction, amount int) (ledger.UserBalance, error) {
	return tv.parent.applyDeltaLocked(userID, direction, amount)
}

func (tv *txMemoryView) RebuildBalance(_ context.Context, userID ledger.UserID, earned, spent int) (ledger.UserBalance, error) {
	return tv.parent.rebuildLocked(userID, earned, spent), nil
}

func (tv *txMemoryView) ShareExists(_ context.Context, userID ledger.UserID, reportID, platform string) (bool, error) {
	return tv.parent.shares[shareKey{userID, reportID, platform}], nil
}

func (tv *txMemoryView) RecordShare(_ context.Context, rec ledger.SocialShareRecord) error {
	return tv.parent.recordShareLocked(rec)
}
