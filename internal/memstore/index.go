package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/bancho-server/internal/domain"
)

// Index is an in-memory PP ordering per mode
type Index struct {
	mu    sync.RWMutex
	modes [domain.ModeCount]map[int64]float64
}

// NewIndex creates an empty index
func NewIndex() *Index {
	idx := &Index{}
	for i := range idx.modes {
		idx.modes[i] = make(map[int64]float64)
	}
	return idx
}

// SetPerformancePoints stores a user's PP in mode
func (x *Index) SetPerformancePoints(_ context.Context, mode domain.PlayMode, userID int64, pp float64) error {
	if !mode.Valid() {
		return domain.ErrInvalidMode
	}
	x.mu.Lock()
	x.modes[mode][userID] = pp
	x.mu.Unlock()
	return nil
}

// CountAhead counts users in mode with strictly more PP
func (x *Index) CountAhead(_ context.Context, mode domain.PlayMode, pp float64) (int64, error) {
	if !mode.Valid() {
		return 0, domain.ErrInvalidMode
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	var n int64
	for _, v := range x.modes[mode] {
		if v > pp {
			n++
		}
	}
	return n, nil
}

// Top returns the n best users of mode with one-based ranks
func (x *Index) Top(_ context.Context, mode domain.PlayMode, n int) ([]domain.RankedPosition, error) {
	if !mode.Valid() {
		return nil, domain.ErrInvalidMode
	}
	x.mu.RLock()
	out := make([]domain.RankedPosition, 0, len(x.modes[mode]))
	for id, pp := range x.modes[mode] {
		out = append(out, domain.RankedPosition{UserID: id, Mode: mode.String(), PerformancePoints: pp})
	}
	x.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].PerformancePoints != out[j].PerformancePoints {
			return out[i].PerformancePoints > out[j].PerformancePoints
		}
		return out[i].UserID < out[j].UserID
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	for i := range out {
		out[i].Rank = int64(i + 1)
	}
	return out, nil
}

// Count returns the number of users indexed in mode
func (x *Index) Count(_ context.Context, mode domain.PlayMode) (int64, error) {
	if !mode.Valid() {
		return 0, domain.ErrInvalidMode
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	return int64(len(x.modes[mode])), nil
}

// Replace swaps the whole ordering of a mode
func (x *Index) Replace(_ context.Context, mode domain.PlayMode, pps map[int64]float64) error {
	if !mode.Valid() {
		return domain.ErrInvalidMode
	}
	m := make(map[int64]float64, len(pps))
	for id, pp := range pps {
		m[id] = pp
	}
	x.mu.Lock()
	x.modes[mode] = m
	x.mu.Unlock()
	return nil
}
