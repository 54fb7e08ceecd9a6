package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/andresuchdata/autopo-servicelevel/internal/domain"
	"github.com/andresuchdata/autopo-servicelevel/internal/metrics"
	"github.com/andresuchdata/autopo-servicelevel/internal/repository"
	"github.com/andresuchdata/autopo-servicelevel/internal/variability"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// VariabilityChange is one demand_variability label written back to a SKU.
type VariabilityChange struct {
	SKU    string                   `json:"sku"`
	Before domain.DemandVariability `json:"before"`
	After  domain.DemandVariability `json:"after"`
}

// ClassificationResult is a classification run plus what was written back.
type ClassificationResult struct {
	variability.Result
	Applied bool                `json:"applied"`
	Changes []VariabilityChange `json:"changes"`
}

type classifyDetails struct {
	Before     domain.DemandVariability `json:"before"`
	After      domain.DemandVariability `json:"after"`
	CV         float64                  `json:"cv"`
	Autocorr   *float64                 `json:"autocorr_lag7"`
	Thresholds variability.Thresholds   `json:"thresholds"`
}

// Classify labels every SKU with sales history. With apply set, changed labels
// are written to SKUs known to the store. PERISHABLE labels are never replaced.
func (s *ServiceLevelService) Classify(ctx context.Context, apply bool) (*ClassificationResult, error) {
	sales, err := s.store.ReadSales(ctx)
	if err != nil {
		return nil, fmt.Errorf("read sales: %w", err)
	}

	result := &ClassificationResult{
		Result:  variability.Classify(sales, s.params),
		Applied: apply,
		Changes: []VariabilityChange{},
	}

	summary := make(map[string]int, len(result.Summary))
	for category, n := range result.Summary {
		summary[string(category)] = n
	}
	metrics.ObserveClassification(summary)

	if !apply {
		return result, nil
	}

	skus, err := s.store.ReadSKUs(ctx)
	if err != nil {
		return nil, fmt.Errorf("read skus: %w", err)
	}
	for _, sku := range skus {
		category, ok := result.Categories[sku.SKU]
		if !ok {
			continue
		}
		change, changed, err := s.applyCategory(ctx, sku.SKU, category, result)
		if err != nil {
			return nil, err
		}
		if changed {
			result.Changes = append(result.Changes, change)
		}
	}

	// Cached closed-loop reports resolved CSLs from the old labels.
	if len(result.Changes) > 0 {
		if err := s.cache.InvalidateAll(ctx); err != nil {
			log.Warn().Err(err).Msg("variability: cache invalidation failed")
		}
	}

	log.Info().
		Int("classified", len(result.Categories)).
		Int("changed", len(result.Changes)).
		Bool("adaptive", result.Thresholds.Adaptive).
		Msg("variability: classification applied")
	return result, nil
}

func (s *ServiceLevelService) applyCategory(ctx context.Context, skuID string, category domain.DemandVariability, result *ClassificationResult) (VariabilityChange, bool, error) {
	var (
		change  VariabilityChange
		changed bool
	)
	err := s.store.WithSKU(ctx, skuID, func(tx repository.SKUTx) error {
		current := tx.SKU().DemandVariability
		if current == domain.VariabilityPerishable || current == category {
			return nil
		}

		m := result.Metrics[skuID]
		details, err := json.Marshal(classifyDetails{
			Before:     current,
			After:      category,
			CV:         m.CV,
			Autocorr:   m.Autocorr,
			Thresholds: result.Thresholds,
		})
		if err != nil {
			return fmt.Errorf("encode audit details: %w", err)
		}

		if err := tx.UpdateSKU(ctx, skuID, domain.SKUUpdate{DemandVariability: &category}); err != nil {
			return fmt.Errorf("update demand variability: %w", err)
		}
		if err := tx.LogAudit(ctx, domain.AuditEntry{
			ID:        uuid.NewString(),
			Timestamp: s.now(),
			Operation: domain.AuditVariabilityClassify,
			Details:   string(details),
			SKU:       skuID,
			User:      s.auditUser,
		}); err != nil {
			return fmt.Errorf("log audit: %w", err)
		}

		change = VariabilityChange{SKU: skuID, Before: current, After: category}
		changed = true
		return nil
	})
	if errors.Is(err, repository.ErrSKUNotFound) {
		return change, false, nil
	}
	if err != nil {
		return change, false, fmt.Errorf("classify sku %s: %w", skuID, err)
	}
	return change, changed, nil
}
