package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mide-ajayi/transflow/internal/domain"
)

// MemoryTransferStore implements the same contract as TransferRepository
// against a map, including the optimistic version check. Used by unit tests
// and local experiments that don't want a database.
type MemoryTransferStore struct {
	mu        sync.Mutex
	transfers map[uuid.UUID]*domain.Transfer
}

func NewMemoryTransferStore() *MemoryTransferStore {
	return &MemoryTransferStore{transfers: make(map[uuid.UUID]*domain.Transfer)}
}

func (s *MemoryTransferStore) Create(ctx context.Context, t *domain.Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.transfers[t.Reference]; ok {
		return fmt.Errorf("Create: %w", domain.ErrDuplicateTransfer)
	}
	cp := *t
	s.transfers[t.Reference] = &cp
	return nil
}

func (s *MemoryTransferStore) Update(ctx context.Context, t *domain.Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.transfers[t.Reference]
	if !ok {
		return fmt.Errorf("Update: %w", domain.ErrNotFound)
	}
	if stored.Version != t.Version {
		return fmt.Errorf("Update: version %d != %d: %w", stored.Version, t.Version, domain.ErrVersionConflict)
	}

	t.Version++
	cp := *t
	s.transfers[t.Reference] = &cp
	return nil
}

func (s *MemoryTransferStore) GetByReference(ctx context.Context, reference uuid.UUID) (*domain.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.transfers[reference]
	if !ok {
		return nil, fmt.Errorf("GetByReference: %w", domain.ErrNotFound)
	}
	cp := *stored
	return &cp, nil
}

func (s *MemoryTransferStore) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, stored := range s.transfers {
		if stored.IdempotencyKey != nil && *stored.IdempotencyKey == key {
			cp := *stored
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("GetByIdempotencyKey: %w", domain.ErrNotFound)
}

func (s *MemoryTransferStore) ListUnfinished(ctx context.Context, limit int) ([]*domain.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Transfer
	for _, stored := range s.transfers {
		if stored.Status.IsTerminal() {
			continue
		}
		cp := *stored
		out = append(out, &cp)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type memoryClaim struct {
	reference uuid.UUID
	expiresAt time.Time
}

// MemoryIdempotencyStore mirrors IdempotencyRepository.Accept semantics:
// at most one winner per live key, expired keys reclaimable.
type MemoryIdempotencyStore struct {
	mu     sync.Mutex
	claims map[string]memoryClaim
	ttl    time.Duration
}

func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{claims: make(map[string]memoryClaim), ttl: ttl}
}

func (s *MemoryIdempotencyStore) Accept(ctx context.Context, key string, newReference uuid.UUID) (uuid.UUID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if claim, ok := s.claims[key]; ok && claim.expiresAt.After(now) {
		return claim.reference, false, nil
	}

	s.claims[key] = memoryClaim{reference: newReference, expiresAt: now.Add(s.ttl)}
	return newReference, true, nil
}
