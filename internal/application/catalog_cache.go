package application

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/fashion-supplychain/progress-service/internal/domain"
	"github.com/fashion-supplychain/progress-service/pkg/logging"
	"github.com/fashion-supplychain/progress-service/pkg/metrics"
	"github.com/fashion-supplychain/progress-service/pkg/resilience"
)

// Catalog cache defaults
const (
	DefaultCatalogCacheSize = 512
	DefaultCatalogCacheTTL  = 5 * time.Minute
)

// CatalogSeeder supplies stage definitions for a style that has none stored
type CatalogSeeder func(styleNo string) ([]domain.StageDefinition, error)

// CatalogProvider loads stage catalogs through a TTL-bounded LRU cache.
// Only found catalogs are cached.
type CatalogProvider struct {
	repo    domain.StageCatalogRepository
	cache   *expirable.LRU[string, *domain.StageCatalog]
	breaker *resilience.CircuitBreaker
	seeder  CatalogSeeder
	metrics *metrics.Metrics
	logger  *logging.Logger
}

// NewCatalogProvider creates a provider. A nil seeder disables seeding.
func NewCatalogProvider(
	repo domain.StageCatalogRepository,
	breaker *resilience.CircuitBreaker,
	size int,
	ttl time.Duration,
	seeder CatalogSeeder,
	m *metrics.Metrics,
	logger *logging.Logger,
) *CatalogProvider {
	if size <= 0 {
		size = DefaultCatalogCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCatalogCacheTTL
	}
	return &CatalogProvider{
		repo:    repo,
		cache:   expirable.NewLRU[string, *domain.StageCatalog](size, nil, ttl),
		breaker: breaker,
		seeder:  seeder,
		metrics: m,
		logger:  logger.WithComponent("catalog-provider"),
	}
}

// Get returns the catalog of styleNo or domain.ErrMissingCatalog
func (p *CatalogProvider) Get(ctx context.Context, styleNo string) (*domain.StageCatalog, error) {
	if styleNo == "" {
		return nil, domain.ErrMissingCatalog
	}
	if catalog, ok := p.cache.Get(styleNo); ok {
		p.metrics.RecordCatalogCache(true)
		return catalog, nil
	}
	p.metrics.RecordCatalogCache(false)

	defs, err := resilience.Call(ctx, p.breaker, func(ctx context.Context) ([]domain.StageDefinition, error) {
		return p.repo.FindByStyle(ctx, styleNo)
	})
	if err != nil {
		return nil, asFetchError(err)
	}
	if len(defs) == 0 {
		defs, err = p.seed(ctx, styleNo)
		if err != nil {
			return nil, err
		}
	}

	catalog, err := domain.NewStageCatalog(styleNo, defs)
	if err != nil {
		return nil, err
	}
	p.cache.Add(styleNo, catalog)
	return catalog, nil
}

func (p *CatalogProvider) seed(ctx context.Context, styleNo string) ([]domain.StageDefinition, error) {
	if p.seeder == nil {
		return nil, domain.ErrMissingCatalog
	}
	defs, err := p.seeder(styleNo)
	if err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		return nil, domain.ErrMissingCatalog
	}
	if err := p.repo.Save(ctx, styleNo, defs); err != nil {
		p.logger.WithError(err).Warn("Failed to persist seeded catalog", "styleNo", styleNo)
	} else {
		p.logger.Info("Seeded default catalog", "styleNo", styleNo, "stages", len(defs))
	}
	return defs, nil
}

// Invalidate drops a cached catalog
func (p *CatalogProvider) Invalidate(styleNo string) {
	p.cache.Remove(styleNo)
}

// Optional returns the catalog or nil when the style has none. Other errors are returned.
func (p *CatalogProvider) Optional(ctx context.Context, styleNo string) (*domain.StageCatalog, error) {
	catalog, err := p.Get(ctx, styleNo)
	if errors.Is(err, domain.ErrMissingCatalog) {
		return nil, nil
	}
	return catalog, err
}
