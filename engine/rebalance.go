package engine

import (
	"slices"
	"sync"
	"time"

	"github.com/dnldd/trends/shared"
)

// RebalanceStatus represents the rebalance status of a month.
type RebalanceStatus int

const (
	NotYetRebalanced RebalanceStatus = iota
	Rebalanced
)

// String stringifies the provided rebalance status.
func (s RebalanceStatus) String() string {
	switch s {
	case NotYetRebalanced:
		return "not yet rebalanced"
	case Rebalanced:
		return "rebalanced"
	default:
		return "unknown"
	}
}

// RebalanceState tracks the months a rebalance has been carried out in. Entries are only
// ever added, a month never reverts to not yet rebalanced.
type RebalanceState struct {
	months    map[shared.MonthKey]time.Time
	monthsMtx sync.RWMutex
}

// NewRebalanceState initializes a new rebalance state.
func NewRebalanceState() *RebalanceState {
	return &RebalanceState{
		months: make(map[shared.MonthKey]time.Time),
	}
}

// Status returns the rebalance status of the provided month.
func (s *RebalanceState) Status(month shared.MonthKey) RebalanceStatus {
	s.monthsMtx.RLock()
	defer s.monthsMtx.RUnlock()

	_, ok := s.months[month]
	if !ok {
		return NotYetRebalanced
	}

	return Rebalanced
}

// RebalancedAt returns the time the provided month was rebalanced, if it was.
func (s *RebalanceState) RebalancedAt(month shared.MonthKey) (time.Time, bool) {
	s.monthsMtx.RLock()
	defer s.monthsMtx.RUnlock()

	at, ok := s.months[month]
	return at, ok
}

// markRebalanced records the provided month as rebalanced. It returns false if the month
// was already rebalanced, leaving the original record untouched.
func (s *RebalanceState) markRebalanced(month shared.MonthKey, at time.Time) bool {
	s.monthsMtx.Lock()
	defer s.monthsMtx.Unlock()

	if _, ok := s.months[month]; ok {
		return false
	}

	s.months[month] = at
	return true
}

// Months returns the rebalanced months in chronological order.
func (s *RebalanceState) Months() []shared.MonthKey {
	s.monthsMtx.RLock()
	months := make([]shared.MonthKey, 0, len(s.months))
	for k := range s.months {
		months = append(months, k)
	}
	s.monthsMtx.RUnlock()

	slices.Sort(months)
	return months
}

// Len returns the number of rebalanced months.
func (s *RebalanceState) Len() int {
	s.monthsMtx.RLock()
	defer s.monthsMtx.RUnlock()

	return len(s.months)
}
