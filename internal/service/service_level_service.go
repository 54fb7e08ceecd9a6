package service

import (
	"context"
	"fmt"
	"time"

	"github.com/andresuchdata/autopo-servicelevel/internal/cache"
	"github.com/andresuchdata/autopo-servicelevel/internal/closedloop"
	"github.com/andresuchdata/autopo-servicelevel/internal/config"
	"github.com/andresuchdata/autopo-servicelevel/internal/domain"
	"github.com/andresuchdata/autopo-servicelevel/internal/repository"
	"github.com/andresuchdata/autopo-servicelevel/internal/servicelevel"
	"github.com/andresuchdata/autopo-servicelevel/internal/storage"
	"github.com/andresuchdata/autopo-servicelevel/internal/variability"
)

// Options wires the optional collaborators of ServiceLevelService.
type Options struct {
	Cache         cache.ReportCache
	Archive       storage.ObjectStorage
	ArchivePrefix string
	Classifier    variability.Params
	Concurrency   int
	AuditUser     string
	Clock         func() time.Time
}

// ClassifierParams maps tuner config onto classifier parameters. An unknown
// fallback label leaves the classifier default in place.
func ClassifierParams(cfg config.TunerConfig) variability.Params {
	seasonal := cfg.SeasonalThreshold
	params := variability.Params{
		MinObservations:   cfg.MinObservations,
		LowPercentile:     cfg.LowPercentile,
		HighPercentile:    cfg.HighPercentile,
		SeasonalThreshold: &seasonal,
		SeasonalLag:       cfg.SeasonalLag,
	}
	if fallback, ok := domain.ParseDemandVariability(cfg.Fallback); ok {
		params.Fallback = fallback
	}
	return params
}

type ServiceLevelService struct {
	store         repository.Store
	cache         cache.ReportCache
	archive       storage.ObjectStorage
	archivePrefix string
	params        variability.Params
	concurrency   int
	auditUser     string
	now           func() time.Time
}

func NewServiceLevelService(store repository.Store, opts Options) *ServiceLevelService {
	if opts.Cache == nil {
		opts.Cache = cache.NewNoopReportCache()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.AuditUser == "" {
		opts.AuditUser = closedloop.DefaultAuditUser
	}
	return &ServiceLevelService{
		store:         store,
		cache:         opts.Cache,
		archive:       opts.Archive,
		archivePrefix: opts.ArchivePrefix,
		params:        opts.Classifier,
		concurrency:   opts.Concurrency,
		auditUser:     opts.AuditUser,
		now:           opts.Clock,
	}
}

// Settings reads and normalizes the service level section.
func (s *ServiceLevelService) Settings(ctx context.Context) (servicelevel.NormalizedSettings, error) {
	raw, err := s.store.ReadSettings(ctx)
	if err != nil {
		return servicelevel.NormalizedSettings{}, fmt.Errorf("read settings: %w", err)
	}
	return servicelevel.NormalizeSettings(raw), nil
}

// ResolveTarget explains the effective target CSL of one SKU.
func (s *ServiceLevelService) ResolveTarget(ctx context.Context, skuID string) (servicelevel.Resolution, error) {
	raw, err := s.store.ReadSettings(ctx)
	if err != nil {
		return servicelevel.Resolution{}, fmt.Errorf("read settings: %w", err)
	}
	skus, err := s.store.ReadSKUs(ctx)
	if err != nil {
		return servicelevel.Resolution{}, fmt.Errorf("read skus: %w", err)
	}

	resolver := servicelevel.NewResolver(raw)
	for i := range skus {
		if skus[i].SKU == skuID {
			return resolver.Resolve(&skus[i]), nil
		}
	}
	return servicelevel.Resolution{}, fmt.Errorf("%w: %s", repository.ErrSKUNotFound, skuID)
}
