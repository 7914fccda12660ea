package cartstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps lines in process memory. It backs local
// development and tests.
type MemoryRepository struct {
	mu    sync.RWMutex
	lines map[string]LineRecord
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{lines: make(map[string]LineRecord)}
}

func (r *MemoryRepository) ListLines(_ context.Context, memberID string) ([]LineRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []LineRecord{}
	for _, l := range r.lines {
		if l.MemberID == memberID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryRepository) GetLine(_ context.Context, id string) (LineRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.lines[id]
	if !ok {
		return LineRecord{}, ErrLineNotFound
	}
	return l, nil
}

func (r *MemoryRepository) AddOrMerge(_ context.Context, memberID, productID string, qty int) (LineRecord, error) {
	if qty <= 0 {
		return LineRecord{}, ErrInvalidQty
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	for id, l := range r.lines {
		if l.MemberID == memberID && l.ProductID == productID {
			l.Qty += qty
			l.UpdatedAt = now
			r.lines[id] = l
			return l, nil
		}
	}
	l := LineRecord{
		ID:        uuid.NewString(),
		MemberID:  memberID,
		ProductID: productID,
		Qty:       qty,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.lines[l.ID] = l
	return l, nil
}

func (r *MemoryRepository) UpdateQty(_ context.Context, id string, qty int) error {
	if qty <= 0 {
		return ErrInvalidQty
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.lines[id]
	if !ok {
		return ErrLineNotFound
	}
	l.Qty = qty
	l.UpdatedAt = time.Now().UTC()
	r.lines[id] = l
	return nil
}

func (r *MemoryRepository) DeleteLine(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.lines[id]; !ok {
		return ErrLineNotFound
	}
	delete(r.lines, id)
	return nil
}

func (r *MemoryRepository) DeleteMember(_ context.Context, memberID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, l := range r.lines {
		if l.MemberID == memberID {
			delete(r.lines, id)
			n++
		}
	}
	return n, nil
}
