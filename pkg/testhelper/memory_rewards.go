package testhelper

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ozanardine/phanteon-rewards/internal/domain/reward"
)

// ErrInvalidText mirrors Postgres refusing invalid UTF-8 or NUL bytes in TEXT columns.
var ErrInvalidText = errors.New("invalid byte sequence for encoding UTF8")

// RewardStore is an in-memory reward.Repository. Stored values are copied on the way in and out.
type RewardStore struct {
	mu      sync.Mutex
	rewards map[int64]*reward.PendingReward
	claims  []*reward.ClaimRecord

	listCalls int

	Now func() time.Time

	// Failure injection.
	CreateErr error
	FindErr   error
	UpdateErr error
	ListErr   error
	CountErr  error
}

func NewRewardStore(now func() time.Time) *RewardStore {
	if now == nil {
		now = time.Now
	}
	return &RewardStore{
		rewards: make(map[int64]*reward.PendingReward),
		Now:     now,
	}
}

// Put seeds a reward as-is, including its timestamps.
func (s *RewardStore) Put(r *reward.PendingReward) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.rewards[r.ID] = &cp
}

// Get returns a copy of the stored reward or nil.
func (s *RewardStore) Get(id int64) *reward.PendingReward {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rewards[id]
	if !ok {
		return nil
	}
	cp := *r
	return &cp
}

func (s *RewardStore) Claims() []*reward.ClaimRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*reward.ClaimRecord, 0, len(s.claims))
	for _, c := range s.claims {
		cp := *c
		out = append(out, &cp)
	}
	return out
}

func (s *RewardStore) CreateClaim(ctx context.Context, r *reward.PendingReward, claim *reward.ClaimRecord) error {
	if s.CreateErr != nil {
		return s.CreateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.rewards[r.ID] = &cp
	cc := *claim
	s.claims = append(s.claims, &cc)
	return nil
}

func (s *RewardStore) FindByID(ctx context.Context, id int64) (*reward.PendingReward, error) {
	if s.FindErr != nil {
		return nil, s.FindErr
	}
	return s.Get(id), nil
}

func (s *RewardStore) UpdateStatus(ctx context.Context, id int64, allowed []reward.Status, next reward.Status, lastError string) (bool, error) {
	if s.UpdateErr != nil {
		return false, s.UpdateErr
	}
	if !utf8.ValidString(lastError) || strings.ContainsRune(lastError, 0) {
		return false, ErrInvalidText
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rewards[id]
	if !ok || !statusIn(r.Status, allowed) {
		return false, nil
	}
	r.Status = next
	r.LastError = lastError
	r.UpdatedAt = s.Now().UTC()
	return true, nil
}

func (s *RewardStore) MarkProcessed(ctx context.Context, id int64, processedAt time.Time) (bool, error) {
	if s.UpdateErr != nil {
		return false, s.UpdateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rewards[id]
	if !ok || r.Status != reward.StatusProcessing {
		return false, nil
	}
	at := processedAt.UTC()
	r.Status = reward.StatusProcessed
	r.ProcessedAt = &at
	r.LastError = ""
	r.UpdatedAt = s.Now().UTC()
	return true, nil
}

func (s *RewardStore) ReleaseStale(ctx context.Context, id int64, staleBefore time.Time) (bool, error) {
	if s.UpdateErr != nil {
		return false, s.UpdateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rewards[id]
	if !ok || r.Status != reward.StatusProcessing || !r.UpdatedAt.Before(staleBefore) {
		return false, nil
	}
	r.Status = reward.StatusPending
	r.UpdatedAt = s.Now().UTC()
	return true, nil
}

func (s *RewardStore) ListStale(ctx context.Context, statuses []reward.Status, updatedBefore time.Time, afterID int64, limit int) ([]*reward.PendingReward, error) {
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	var out []*reward.PendingReward
	for _, r := range s.rewards {
		if r.ID > afterID && statusIn(r.Status, statuses) && r.UpdatedAt.Before(updatedBefore) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListStaleCalls reports how many times ListStale ran.
func (s *RewardStore) ListStaleCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

func (s *RewardStore) CountRecent(ctx context.Context, statuses []reward.Status, since time.Time, limit int) (int64, error) {
	if s.CountErr != nil {
		return 0, s.CountErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, r := range s.rewards {
		if statusIn(r.Status, statuses) && r.UpdatedAt.After(since) {
			n++
		}
	}
	if limit > 0 && n > int64(limit) {
		n = int64(limit)
	}
	return n, nil
}

func (s *RewardStore) ListPendingBySteamID(ctx context.Context, steamID string) ([]*reward.PendingReward, error) {
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*reward.PendingReward
	for _, r := range s.rewards {
		if r.SteamID == steamID && r.Status == reward.StatusPending {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.After(out[j].RequestedAt) })
	return out, nil
}

func (s *RewardStore) LatestClaim(ctx context.Context, userID int64) (*reward.ClaimRecord, error) {
	claims, err := s.ListClaims(ctx, userID, 1)
	if err != nil || len(claims) == 0 {
		return nil, err
	}
	return claims[0], nil
}

func (s *RewardStore) ListClaims(ctx context.Context, userID int64, limit int) ([]*reward.ClaimRecord, error) {
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*reward.ClaimRecord
	for _, c := range s.claims {
		if c.UserID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClaimedAt.After(out[j].ClaimedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func statusIn(s reward.Status, set []reward.Status) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}
