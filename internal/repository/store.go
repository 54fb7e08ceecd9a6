package repository

import (
	"context"
	"errors"

	"github.com/andresuchdata/autopo-servicelevel/internal/domain"
)

// ErrSKUNotFound is returned when an update or lock targets an unknown SKU.
var ErrSKUNotFound = errors.New("sku not found")

// Reader is the read-only data access the core needs.
type Reader interface {
	ReadSKUs(ctx context.Context) ([]domain.SKU, error)
	ReadSales(ctx context.Context) ([]domain.SalesRecord, error)
	ReadTransactions(ctx context.Context) ([]domain.LedgerEvent, error)
	ReadKPIDaily(ctx context.Context) ([]domain.KPIDaily, error)
	ReadSettings(ctx context.Context) (domain.RawSettings, error)
}

// Writer persists SKU changes and appends audit records.
type Writer interface {
	UpdateSKU(ctx context.Context, skuID string, update domain.SKUUpdate) error
	LogAudit(ctx context.Context, entry domain.AuditEntry) error
}

// SKUTx is a write scope holding exclusive access to one SKU record.
// Writes made through it are committed together or not at all.
type SKUTx interface {
	Writer
	// SKU returns the record as read under the lock.
	SKU() domain.SKU
}

// Store is the full contract implemented by the postgres and in-memory stores.
type Store interface {
	Reader
	Writer
	// WithSKU runs fn while no other writer can change skuID.
	WithSKU(ctx context.Context, skuID string, fn func(tx SKUTx) error) error
}

// Dataset is a full copy of the tables the core reads. Fixtures decode into
// it and postgres.Seed loads it.
type Dataset struct {
	SKUs         []domain.SKU         `yaml:"skus"`
	Sales        []domain.SalesRecord `yaml:"sales"`
	Transactions []domain.LedgerEvent `yaml:"transactions"`
	KPIDaily     []domain.KPIDaily    `yaml:"kpi_daily"`
	Settings     domain.RawSettings   `yaml:"settings"`
}
