package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"omnibridge/pkg/storage"
	"omnibridge/pkg/types"
)

const (
	// DefaultMaxRecords caps the retained transfer history per address.
	DefaultMaxRecords = 100
	// maxFeeSamples caps the retained fee-trend samples per route+token.
	maxFeeSamples = 50
)

// Filter narrows a history listing. Zero values match everything.
type Filter struct {
	Network string
	Status  types.Status
	From    time.Time
	To      time.Time
}

// Store is the durable, deduplicated ledger of transfer attempts for one
// sender address. Records are kept most-recent-first and bounded; the oldest
// entry is evicted when the cap is exceeded. All writes are serialized.
type Store struct {
	mu      sync.Mutex
	kv      storage.Store
	address string
	cap     int
	records []types.TransferRecord
}

// NewStore loads the ledger for address from the KV collaborator.
func NewStore(ctx context.Context, kv storage.Store, address string, maxRecords int) (*Store, error) {
	if maxRecords <= 0 {
		maxRecords = DefaultMaxRecords
	}
	s := &Store{
		kv:      kv,
		address: strings.ToLower(address),
		cap:     maxRecords,
	}

	raw, err := kv.Get(ctx, s.historyKey())
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("failed to load history: %w", err)
		}
		return s, nil
	}
	if err := json.Unmarshal(raw, &s.records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history: %w", err)
	}
	return s, nil
}

func (s *Store) historyKey() string {
	return "history:" + s.address
}

func feeTrendKey(source, destination, token string) string {
	return strings.ToLower(fmt.Sprintf("feetrends:%s:%s:%s", source, destination, token))
}

// Add upserts a record by hash (case-insensitive). An existing record is
// updated in place; a new one is prepended and the oldest evicted past the
// cap.
func (s *Store) Add(ctx context.Context, record types.TransferRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if strings.EqualFold(s.records[i].TxHash, record.TxHash) {
			s.records[i] = record
			return s.persist(ctx)
		}
	}

	s.records = append([]types.TransferRecord{record}, s.records...)
	if len(s.records) > s.cap {
		s.records = s.records[:s.cap]
	}
	return s.persist(ctx)
}

// UpdateStatus mutates the status of the record with txHash. Terminal success
// stamps the completion time. Unknown hashes are ignored so a late monitor
// echo cannot resurrect an evicted record.
func (s *Store) UpdateStatus(ctx context.Context, txHash string, status types.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if strings.EqualFold(s.records[i].TxHash, txHash) {
			s.records[i].Status = status
			if status == types.StatusCompleted && s.records[i].CompletedAt == nil {
				now := time.Now().UTC()
				s.records[i].CompletedAt = &now
			}
			return s.persist(ctx)
		}
	}
	return nil
}

// Get returns a copy of the record with txHash.
func (s *Store) Get(txHash string) (types.TransferRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if strings.EqualFold(s.records[i].TxHash, txHash) {
			return s.records[i], true
		}
	}
	return types.TransferRecord{}, false
}

// List returns records matching the filter, most recent first.
func (s *Store) List(filter Filter) []types.TransferRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.TransferRecord, 0, len(s.records))
	for _, r := range s.records {
		if filter.Network != "" &&
			!strings.EqualFold(r.SourceNetwork, filter.Network) &&
			!strings.EqualFold(r.DestinationNetwork, filter.Network) {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if !filter.From.IsZero() && r.Timestamp.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && r.Timestamp.After(filter.To) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Len returns the current record count.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// persist must be called with the lock held.
func (s *Store) persist(ctx context.Context) error {
	raw, err := json.Marshal(s.records)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	return s.kv.Put(ctx, s.historyKey(), raw)
}

// AddFeeSample appends one fee observation for a route+token, bounded to the
// most recent samples.
func (s *Store) AddFeeSample(ctx context.Context, sample types.FeeSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := feeTrendKey(sample.SourceNetwork, sample.DestinationNetwork, sample.Token)

	var samples []types.FeeSample
	raw, err := s.kv.Get(ctx, key)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to load fee samples: %w", err)
	}
	if raw != nil {
		if err := json.Unmarshal(raw, &samples); err != nil {
			return fmt.Errorf("failed to unmarshal fee samples: %w", err)
		}
	}

	samples = append(samples, sample)
	if len(samples) > maxFeeSamples {
		samples = samples[len(samples)-maxFeeSamples:]
	}

	raw, err = json.Marshal(samples)
	if err != nil {
		return fmt.Errorf("failed to marshal fee samples: %w", err)
	}
	return s.kv.Put(ctx, key, raw)
}

// FeeSamples returns the stored samples for a route+token, oldest first.
func (s *Store) FeeSamples(ctx context.Context, source, destination, token string) ([]types.FeeSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.kv.Get(ctx, feeTrendKey(source, destination, token))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var samples []types.FeeSample
	if err := json.Unmarshal(raw, &samples); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fee samples: %w", err)
	}
	return samples, nil
}
