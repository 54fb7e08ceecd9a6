package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/andresuchdata/autopo-servicelevel/internal/repository"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// Seed loads a dataset in one transaction. SKUs, KPI rows and settings are
// upserted; sales and transactions of the seeded SKUs are replaced.
func Seed(ctx context.Context, db *DB, data repository.Dataset) error {
	return db.WithTx(ctx, func(tx *sqlx.Tx) error {
		skuIDs := make([]string, 0, len(data.SKUs))
		for _, sku := range data.SKUs {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO skus (sku, description, shelf_life_days, demand_variability, target_csl, updated_at)
				VALUES ($1, $2, $3, $4, $5, NOW())
				ON CONFLICT (sku) DO UPDATE
				SET description = EXCLUDED.description,
					shelf_life_days = EXCLUDED.shelf_life_days,
					demand_variability = EXCLUDED.demand_variability,
					target_csl = EXCLUDED.target_csl,
					updated_at = NOW()
			`, sku.SKU, nullIfEmpty(sku.Description), sku.ShelfLifeDays, nullIfEmpty(string(sku.DemandVariability)), sku.TargetCSL)
			if err != nil {
				return fmt.Errorf("failed to seed sku %s: %w", sku.SKU, err)
			}
			skuIDs = append(skuIDs, sku.SKU)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM sales WHERE sku = ANY($1)`, pq.Array(skuIDs)); err != nil {
			return fmt.Errorf("failed to clear sales: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE sku = ANY($1)`, pq.Array(skuIDs)); err != nil {
			return fmt.Errorf("failed to clear transactions: %w", err)
		}

		for _, s := range data.Sales {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO sales (date, sku, qty_sold, promo_flag) VALUES ($1, $2, $3, $4)`,
				s.Date, s.SKU, s.QtySold, s.PromoFlag)
			if err != nil {
				return fmt.Errorf("failed to seed sales for %s: %w", s.SKU, err)
			}
		}

		for _, e := range data.Transactions {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO transactions (date, sku, event, qty, note) VALUES ($1, $2, $3, $4, $5)`,
				e.Date, e.SKU, string(e.Event), e.Qty, nullIfEmpty(e.Note))
			if err != nil {
				return fmt.Errorf("failed to seed transaction for %s: %w", e.SKU, err)
			}
		}

		for _, k := range data.KPIDaily {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO kpi_daily (sku, date, oos_rate, wmape, bias, fill_rate, waste_rate)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (sku, date) DO UPDATE
				SET oos_rate = EXCLUDED.oos_rate,
					wmape = EXCLUDED.wmape,
					bias = EXCLUDED.bias,
					fill_rate = EXCLUDED.fill_rate,
					waste_rate = EXCLUDED.waste_rate
			`, k.SKU, k.Date, k.OOSRate, k.WMAPE, k.Bias, k.FillRate, k.WasteRate)
			if err != nil {
				return fmt.Errorf("failed to seed kpi for %s: %w", k.SKU, err)
			}
		}

		settings := 0
		for section, entries := range data.Settings {
			for key, value := range entries {
				payload, err := json.Marshal(value)
				if err != nil {
					return fmt.Errorf("failed to encode setting %s.%s: %w", section, key, err)
				}
				_, err = tx.ExecContext(ctx, `
					INSERT INTO settings (section, key, value) VALUES ($1, $2, $3)
					ON CONFLICT (section, key) DO UPDATE SET value = EXCLUDED.value
				`, section, key, string(payload))
				if err != nil {
					return fmt.Errorf("failed to seed setting %s.%s: %w", section, key, err)
				}
				settings++
			}
		}

		log.Info().
			Int("skus", len(data.SKUs)).
			Int("sales", len(data.Sales)).
			Int("transactions", len(data.Transactions)).
			Int("kpi_daily", len(data.KPIDaily)).
			Int("settings", settings).
			Msg("seed: dataset loaded")
		return nil
	})
}
