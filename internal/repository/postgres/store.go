package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/andresuchdata/autopo-servicelevel/internal/domain"
	"github.com/andresuchdata/autopo-servicelevel/internal/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

//go:embed schema.sql
var schemaSQL string

const skuColumns = `
	sku,
	COALESCE(description, '') AS description,
	COALESCE(shelf_life_days, 0) AS shelf_life_days,
	COALESCE(demand_variability, '') AS demand_variability,
	COALESCE(target_csl, 0) AS target_csl
`

type store struct {
	db *DB
}

// NewStore returns a repository.Store backed by Postgres.
func NewStore(db *DB) repository.Store {
	return &store{db: db}
}

// Migrate creates the tables the store reads and writes, if missing.
func Migrate(ctx context.Context, db *DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("error applying schema: %w", err)
	}
	return nil
}

func (s *store) ReadSKUs(ctx context.Context) ([]domain.SKU, error) {
	query := `SELECT ` + skuColumns + ` FROM skus ORDER BY sku`

	var skus []domain.SKU
	if err := s.db.SelectContext(ctx, &skus, query); err != nil {
		return nil, fmt.Errorf("error getting skus: %w", err)
	}
	return skus, nil
}

func (s *store) ReadSales(ctx context.Context) ([]domain.SalesRecord, error) {
	query := `
		SELECT date, sku, qty_sold, promo_flag
		FROM sales
		ORDER BY date, sku
	`

	var sales []domain.SalesRecord
	if err := s.db.SelectContext(ctx, &sales, query); err != nil {
		return nil, fmt.Errorf("error getting sales: %w", err)
	}
	return sales, nil
}

func (s *store) ReadTransactions(ctx context.Context) ([]domain.LedgerEvent, error) {
	query := `
		SELECT date, sku, event, qty, COALESCE(note, '') AS note
		FROM transactions
		ORDER BY date, id
	`

	var events []domain.LedgerEvent
	if err := s.db.SelectContext(ctx, &events, query); err != nil {
		return nil, fmt.Errorf("error getting transactions: %w", err)
	}
	return events, nil
}

func (s *store) ReadKPIDaily(ctx context.Context) ([]domain.KPIDaily, error) {
	query := `
		SELECT sku, date, oos_rate, wmape, bias, fill_rate, waste_rate
		FROM kpi_daily
		ORDER BY sku, date
	`

	var rows []domain.KPIDaily
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("error getting kpi daily: %w", err)
	}
	return rows, nil
}

type settingRow struct {
	Section string `db:"section"`
	Key     string `db:"key"`
	Value   []byte `db:"value"`
}

// ReadSettings decodes each row's JSON descriptor. Rows that are not valid
// JSON are skipped so a single bad value cannot hide the others.
func (s *store) ReadSettings(ctx context.Context) (domain.RawSettings, error) {
	query := `SELECT section, key, value FROM settings`

	var rows []settingRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("error getting settings: %w", err)
	}

	settings := domain.RawSettings{}
	for _, row := range rows {
		var entry domain.SettingValue
		if err := json.Unmarshal(row.Value, &entry); err != nil {
			continue
		}
		if _, ok := settings[row.Section]; !ok {
			settings[row.Section] = make(map[string]domain.SettingValue)
		}
		settings[row.Section][row.Key] = entry
	}
	return settings, nil
}

func (s *store) UpdateSKU(ctx context.Context, skuID string, update domain.SKUUpdate) error {
	return updateSKU(ctx, s.db, skuID, update)
}

func (s *store) LogAudit(ctx context.Context, entry domain.AuditEntry) error {
	return logAudit(ctx, s.db, entry)
}

// WithSKU locks the SKU row with SELECT ... FOR UPDATE for the duration of fn.
func (s *store) WithSKU(ctx context.Context, skuID string, fn func(tx repository.SKUTx) error) error {
	return s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `SELECT ` + skuColumns + ` FROM skus WHERE sku = $1 FOR UPDATE`

		var sku domain.SKU
		err := tx.GetContext(ctx, &sku, query, skuID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", repository.ErrSKUNotFound, skuID)
		}
		if err != nil {
			return fmt.Errorf("error locking sku %s: %w", skuID, err)
		}

		return fn(&skuTx{tx: tx, sku: sku})
	})
}

type skuTx struct {
	tx  *sqlx.Tx
	sku domain.SKU
}

func (t *skuTx) SKU() domain.SKU { return t.sku }

func (t *skuTx) UpdateSKU(ctx context.Context, skuID string, update domain.SKUUpdate) error {
	return updateSKU(ctx, t.tx, skuID, update)
}

func (t *skuTx) LogAudit(ctx context.Context, entry domain.AuditEntry) error {
	return logAudit(ctx, t.tx, entry)
}

func updateSKU(ctx context.Context, db sqlx.ExecerContext, skuID string, update domain.SKUUpdate) error {
	var (
		sets []string
		args []interface{}
	)
	argCounter := 1

	if update.TargetCSL != nil {
		sets = append(sets, fmt.Sprintf("target_csl = $%d", argCounter))
		args = append(args, *update.TargetCSL)
		argCounter++
	}
	if update.DemandVariability != nil {
		sets = append(sets, fmt.Sprintf("demand_variability = $%d", argCounter))
		args = append(args, string(*update.DemandVariability))
		argCounter++
	}
	if len(sets) == 0 {
		return nil
	}

	query := fmt.Sprintf("UPDATE skus SET %s, updated_at = NOW() WHERE sku = $%d", strings.Join(sets, ", "), argCounter)
	args = append(args, skuID)

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("error updating sku %s: %w", skuID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error updating sku %s: %w", skuID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", repository.ErrSKUNotFound, skuID)
	}
	return nil
}

// logAudit ignores entries whose id already exists, which keeps repeated reviews idempotent.
func logAudit(ctx context.Context, db sqlx.ExecerContext, entry domain.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	query := `
		INSERT INTO audit_log (id, timestamp, operation, details, sku, username)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := db.ExecContext(ctx, query,
		entry.ID, entry.Timestamp, entry.Operation, entry.Details, nullIfEmpty(entry.SKU), entry.User,
	)
	if err != nil {
		return fmt.Errorf("error writing audit log: %w", err)
	}
	return nil
}

// nullIfEmpty returns NULL if the string is empty, otherwise returns the string
func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
