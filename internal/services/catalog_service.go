package services

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"

	"bigscreen/internal/models"
)

// CatalogBackend lists what the analysis backend can analyse.
type CatalogBackend interface {
	DataSources(ctx context.Context) ([]models.DataSource, error)
	SourceCategoryMapping(ctx context.Context) (map[string][]string, error)
}

// Catalog is the set of sources and the categories each one maps to.
type Catalog struct {
	Sources []models.DataSource `json:"sources"`
	Mapping map[string][]string `json:"mapping"`
}

const (
	cacheKeySources = "sources"
	cacheKeyMapping = "mapping"
)

// CatalogService caches the backend's source catalog, which changes rarely
// but is read on every run request.
type CatalogService struct {
	backend CatalogBackend
	cache   *cache.Cache
}

func NewCatalogService(backend CatalogBackend, ttl time.Duration) *CatalogService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CatalogService{
		backend: backend,
		cache:   cache.New(ttl, 2*ttl),
	}
}

func (s *CatalogService) Sources(ctx context.Context) ([]models.DataSource, error) {
	if v, found := s.cache.Get(cacheKeySources); found {
		return v.([]models.DataSource), nil
	}
	sources, err := s.backend.DataSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch data sources: %w", err)
	}
	s.cache.Set(cacheKeySources, sources, cache.DefaultExpiration)
	return sources, nil
}

func (s *CatalogService) CategoryMapping(ctx context.Context) (map[string][]string, error) {
	if v, found := s.cache.Get(cacheKeyMapping); found {
		return v.(map[string][]string), nil
	}
	mapping, err := s.backend.SourceCategoryMapping(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source category mapping: %w", err)
	}
	s.cache.Set(cacheKeyMapping, mapping, cache.DefaultExpiration)
	return mapping, nil
}

func (s *CatalogService) Catalog(ctx context.Context) (*Catalog, error) {
	sources, err := s.Sources(ctx)
	if err != nil {
		return nil, err
	}
	mapping, err := s.CategoryMapping(ctx)
	if err != nil {
		return nil, err
	}
	return &Catalog{Sources: sources, Mapping: mapping}, nil
}

// ValidateSource checks source against the backend catalog. When the
// catalog cannot be fetched it falls back to the built-in source types.
func (s *CatalogService) ValidateSource(ctx context.Context, source string) error {
	if source == "" {
		return fmt.Errorf("%w: source is required", models.ErrValidation)
	}

	known := models.KnownSources
	if sources, err := s.Sources(ctx); err != nil {
		log.Warnf("catalog unavailable, validating %q against built-in sources: %v", source, err)
	} else {
		known = make([]string, 0, len(sources))
		for _, ds := range sources {
			known = append(known, ds.Type)
		}
	}

	for _, k := range known {
		if k == source {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", models.ErrUnknownSource, source)
}

// Invalidate drops the cached catalog.
func (s *CatalogService) Invalidate() {
	s.cache.Flush()
}
