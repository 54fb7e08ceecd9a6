// Package memory provides an in-process implementation of repository.Store.
// It backs the CLI when run against YAML fixtures and is the test double for
// the engine, service and API packages.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/andresuchdata/autopo-servicelevel/internal/domain"
	"github.com/andresuchdata/autopo-servicelevel/internal/repository"
)

// Store keeps every table in memory. The zero value is not usable; call New.
type Store struct {
	mu           sync.RWMutex
	skus         []domain.SKU
	index        map[string]int
	sales        []domain.SalesRecord
	transactions []domain.LedgerEvent
	kpis         []domain.KPIDaily
	settings     domain.RawSettings
	audit        []domain.AuditEntry
	auditIDs     map[string]struct{}
	writes       int

	locksMu  sync.Mutex
	skuLocks map[string]*sync.Mutex

	// UpdateErr and AuditErr, when set, are returned by the matching write.
	UpdateErr error
	AuditErr  error
}

// New builds a store from the given data. Slices are copied.
func New(data Data) *Store {
	s := &Store{
		index:        make(map[string]int),
		sales:        append([]domain.SalesRecord(nil), data.Sales...),
		transactions: append([]domain.LedgerEvent(nil), data.Transactions...),
		kpis:         append([]domain.KPIDaily(nil), data.KPIDaily...),
		settings:     cloneSettings(data.Settings),
		auditIDs:     make(map[string]struct{}),
		skuLocks:     make(map[string]*sync.Mutex),
	}
	for _, sku := range data.SKUs {
		s.index[sku.SKU] = len(s.skus)
		s.skus = append(s.skus, sku)
	}
	return s
}

// Data is the initial content of a Store.
type Data = repository.Dataset

func (s *Store) ReadSKUs(ctx context.Context) ([]domain.SKU, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.SKU(nil), s.skus...), nil
}

func (s *Store) ReadSales(ctx context.Context) ([]domain.SalesRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.SalesRecord(nil), s.sales...), nil
}

func (s *Store) ReadTransactions(ctx context.Context) ([]domain.LedgerEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.LedgerEvent(nil), s.transactions...), nil
}

func (s *Store) ReadKPIDaily(ctx context.Context) ([]domain.KPIDaily, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.KPIDaily(nil), s.kpis...), nil
}

func (s *Store) ReadSettings(ctx context.Context) (domain.RawSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSettings(s.settings), nil
}

// SetSetting replaces one settings value.
func (s *Store) SetSetting(section, key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings == nil {
		s.settings = domain.RawSettings{}
	}
	s.settings.Set(section, key, value)
}

func (s *Store) UpdateSKU(ctx context.Context, skuID string, update domain.SKUUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyUpdate(skuID, update)
}

func (s *Store) LogAudit(ctx context.Context, entry domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendAudit(entry)
}

// WithSKU serializes fn against other WithSKU calls for the same SKU and
// commits its buffered writes only when fn succeeds.
func (s *Store) WithSKU(ctx context.Context, skuID string, fn func(tx repository.SKUTx) error) error {
	lock := s.skuLock(skuID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	i, ok := s.index[skuID]
	var snapshot domain.SKU
	if ok {
		snapshot = s.skus[i]
	}
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", repository.ErrSKUNotFound, skuID)
	}

	tx := &skuTx{sku: snapshot}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpdateErr != nil && len(tx.updates) > 0 {
		return s.UpdateErr
	}
	if s.AuditErr != nil && len(tx.entries) > 0 {
		return s.AuditErr
	}
	for _, u := range tx.updates {
		if err := s.applyUpdate(skuID, u); err != nil {
			return err
		}
	}
	for _, e := range tx.entries {
		if err := s.appendAudit(e); err != nil {
			return err
		}
	}
	return nil
}

// SKU returns the current record for skuID.
func (s *Store) SKU(skuID string) (domain.SKU, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[skuID]
	if !ok {
		return domain.SKU{}, false
	}
	return s.skus[i], true
}

// AuditLog returns a copy of every audit entry in append order.
func (s *Store) AuditLog() []domain.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.AuditEntry(nil), s.audit...)
}

// Writes counts committed SKU updates and audit appends.
func (s *Store) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

func (s *Store) applyUpdate(skuID string, update domain.SKUUpdate) error {
	if s.UpdateErr != nil {
		return s.UpdateErr
	}
	i, ok := s.index[skuID]
	if !ok {
		return fmt.Errorf("%w: %s", repository.ErrSKUNotFound, skuID)
	}
	if update.TargetCSL != nil {
		s.skus[i].TargetCSL = *update.TargetCSL
	}
	if update.DemandVariability != nil {
		s.skus[i].DemandVariability = *update.DemandVariability
	}
	s.writes++
	return nil
}

// appendAudit drops entries whose ID was already logged.
func (s *Store) appendAudit(entry domain.AuditEntry) error {
	if s.AuditErr != nil {
		return s.AuditErr
	}
	if entry.ID != "" {
		if _, dup := s.auditIDs[entry.ID]; dup {
			return nil
		}
		s.auditIDs[entry.ID] = struct{}{}
	}
	s.audit = append(s.audit, entry)
	s.writes++
	return nil
}

func (s *Store) skuLock(skuID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.skuLocks[skuID]
	if !ok {
		l = &sync.Mutex{}
		s.skuLocks[skuID] = l
	}
	return l
}

type skuTx struct {
	sku     domain.SKU
	updates []domain.SKUUpdate
	entries []domain.AuditEntry
}

func (t *skuTx) SKU() domain.SKU { return t.sku }

func (t *skuTx) UpdateSKU(ctx context.Context, skuID string, update domain.SKUUpdate) error {
	if skuID != t.sku.SKU {
		return fmt.Errorf("sku %s is not held by this transaction", skuID)
	}
	t.updates = append(t.updates, update)
	return nil
}

func (t *skuTx) LogAudit(ctx context.Context, entry domain.AuditEntry) error {
	t.entries = append(t.entries, entry)
	return nil
}

func cloneSettings(in domain.RawSettings) domain.RawSettings {
	if in == nil {
		return nil
	}
	out := make(domain.RawSettings, len(in))
	for section, entries := range in {
		copied := make(map[string]domain.SettingValue, len(entries))
		for k, v := range entries {
			copied[k] = v
		}
		out[section] = copied
	}
	return out
}

var _ repository.Store = (*Store)(nil)
