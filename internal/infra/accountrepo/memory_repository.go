package accountrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/yanqian/shim-server/internal/domain/shim"
)

// MemoryRepository keeps access parameters in process memory for tests/dev.
type MemoryRepository struct {
	mu       sync.RWMutex
	accounts map[string]shim.AccessParameters
	now      func() time.Time
}

// NewMemoryRepository constructs an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		accounts: make(map[string]shim.AccessParameters),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRepository) Get(_ context.Context, shimKey, username string) (shim.AccessParameters, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	params, ok := r.accounts[accountKey(shimKey, username)]
	if !ok {
		return shim.AccessParameters{}, false, nil
	}
	return clone(params), true, nil
}

// Save inserts or replaces the account, keeping the original creation time.
func (r *MemoryRepository) Save(_ context.Context, params shim.AccessParameters) (shim.AccessParameters, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := accountKey(params.ShimKey, params.Username)
	now := r.now()
	params = clone(params)
	params.CreatedAt = now
	if existing, ok := r.accounts[key]; ok {
		params.CreatedAt = existing.CreatedAt
	}
	params.UpdatedAt = now
	r.accounts[key] = params
	return clone(params), nil
}

func (r *MemoryRepository) Delete(_ context.Context, shimKey, username string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := accountKey(shimKey, username)
	if _, ok := r.accounts[key]; !ok {
		return false, nil
	}
	delete(r.accounts, key)
	return true, nil
}

// List returns accounts ordered by shim then username.
func (r *MemoryRepository) List(_ context.Context) ([]shim.AccessParameters, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]shim.AccessParameters, 0, len(r.accounts))
	for _, params := range r.accounts {
		out = append(out, clone(params))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ShimKey == out[j].ShimKey {
			return out[i].Username < out[j].Username
		}
		return out[i].ShimKey < out[j].ShimKey
	})
	return out, nil
}

func accountKey(shimKey, username string) string {
	return shimKey + "\x00" + username
}

func clone(params shim.AccessParameters) shim.AccessParameters {
	if params.AdditionalParameters != nil {
		copied := make(map[string]string, len(params.AdditionalParameters))
		for k, v := range params.AdditionalParameters {
			copied[k] = v
		}
		params.AdditionalParameters = copied
	}
	if params.ExpiresAt != nil {
		expires := *params.ExpiresAt
		params.ExpiresAt = &expires
	}
	return params
}

var _ shim.Repository = (*MemoryRepository)(nil)
