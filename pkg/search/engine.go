// Package search implements the combined local + neighbor profile search:
// wildcard/regex predicates with bounded matching time, a great-circle
// location filter, result caps, and continuation tokens for paged retrieval.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iop-labs/profiled/internal/logger"
	"github.com/iop-labs/profiled/internal/protocol/iop"
	"github.com/iop-labs/profiled/pkg/imagestore"
	"github.com/iop-labs/profiled/pkg/profile"
	"github.com/iop-labs/profiled/pkg/store"
)

// Result and page caps of the search surface.
const (
	// MaxTotalRecords caps the whole result set of one search.
	MaxTotalRecords = 1000

	// MaxResponseRecords caps the records inlined in one response; the
	// rest is fetched through the continuation token.
	MaxResponseRecords = 100

	// DefaultMatchTimeout bounds a single regex match.
	DefaultMatchTimeout = 100 * time.Millisecond

	// DefaultRequestBudget bounds the aggregate matching time of one
	// request.
	DefaultRequestBudget = time.Second

	// DefaultCacheTTL is how long a continuation token stays valid.
	DefaultCacheTTL = 5 * time.Minute
)

// ErrTokenNotFound is returned for an unknown or expired continuation token.
var ErrTokenNotFound = errors.New("continuation token not found")

// Config holds the search engine knobs.
type Config struct {
	MatchTimeout  time.Duration
	RequestBudget time.Duration
	CacheTTL      time.Duration
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.MatchTimeout <= 0 {
		c.MatchTimeout = DefaultMatchTimeout
	}
	if c.RequestBudget <= 0 {
		c.RequestBudget = DefaultRequestBudget
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
}

// Engine serves profile searches over the hosted identities and the
// neighbor-profile mirror.
type Engine struct {
	store  *store.Store
	images imagestore.Store
	config Config
	cache  *resultCache
}

// NewEngine creates the search engine.
func NewEngine(st *store.Store, images imagestore.Store, config Config) *Engine {
	config.ApplyDefaults()
	return &Engine{
		store:  st,
		images: images,
		config: config,
		cache:  newResultCache(config.CacheTTL),
	}
}

// Search runs one profile search and returns its first page. When the match
// set exceeds the response cap, the remaining records are cached under the
// returned continuation token for ProfileSearchPart follow-ups.
func (e *Engine) Search(ctx context.Context, req *iop.ProfileSearchRequest) (*iop.ProfileSearchResponse, error) {
	maxTotal := int(req.MaxTotalRecordCount)
	if maxTotal <= 0 || maxTotal > MaxTotalRecords {
		maxTotal = MaxTotalRecords
	}
	maxResponse := int(req.MaxResponseRecordCount)
	if maxResponse <= 0 || maxResponse > MaxResponseRecords {
		maxResponse = MaxResponseRecords
	}
	if maxResponse > maxTotal {
		maxResponse = maxTotal
	}

	f, err := compileFilters(req.Type, req.Name, req.ExtraData,
		e.config.MatchTimeout, e.config.RequestBudget)
	if err != nil {
		return nil, err
	}
	if req.Radius > 0 {
		loc := profile.Location{Latitude: req.Latitude, Longitude: req.Longitude}
		if !loc.Valid() {
			return nil, &ValidationError{Field: "location"}
		}
		f.location = loc
		f.radius = float64(req.Radius)
	}

	results, err := e.collect(ctx, req, f, maxTotal)
	if err != nil {
		return nil, err
	}
	if f.timedOut {
		logger.Warn("Search matching budget exhausted, returning partial result",
			"results", len(results))
	}

	resp := &iop.ProfileSearchResponse{
		TotalRecordCount:       uint32(len(results)),
		MaxResponseRecordCount: uint32(maxResponse),
	}
	if len(results) <= maxResponse {
		resp.Results = results
		return resp, nil
	}

	resp.Results = results[:maxResponse]
	resp.ContinuationToken = e.cache.put(results)
	return resp, nil
}

// Part returns one slice of a previously cached result set.
func (e *Engine) Part(_ context.Context, req *iop.ProfileSearchPartRequest) (*iop.ProfileSearchPartResponse, error) {
	results, ok := e.cache.get(req.ContinuationToken)
	if !ok {
		return nil, ErrTokenNotFound
	}

	index := int(req.RecordIndex)
	count := int(req.RecordCount)
	if count <= 0 || count > MaxResponseRecords {
		count = MaxResponseRecords
	}
	if index < 0 || index >= len(results) {
		return nil, &ValidationError{Field: "recordIndex"}
	}
	if index+count > len(results) {
		count = len(results) - index
	}

	return &iop.ProfileSearchPartResponse{
		RecordIndex: req.RecordIndex,
		Results:     results[index : index+count],
	}, nil
}

// collect walks the candidate set in stable order: hosted identities first,
// then the initialized-neighbor mirror, truncated at maxTotal.
func (e *Engine) collect(ctx context.Context, req *iop.ProfileSearchRequest, f *filters, maxTotal int) ([]*iop.SearchResult, error) {
	var results []*iop.SearchResult

	hosted, err := e.store.ListInitializedHosted(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list hosted identities: %w", err)
	}
	for _, row := range hosted {
		if len(results) >= maxTotal {
			return results, nil
		}
		info := row.Profile()
		if !f.withinRadius(info.Location) || !f.match(info) {
			continue
		}
		result := &iop.SearchResult{
			IsHosted: true,
			Profile:  info.ToWire(row.Signature),
		}
		if req.IncludeThumbnailImages && len(row.ThumbnailImageHash) > 0 {
			if result.ThumbnailImage, err = e.images.Get(ctx, row.ThumbnailImageHash); err != nil {
				logger.Warn("Failed to load thumbnail for search result",
					"identity_id", fmt.Sprintf("%x", row.IdentityID), "error", err)
				result.ThumbnailImage = nil
			}
		}
		results = append(results, result)
	}

	if req.IncludeHostedOnly {
		return results, nil
	}

	neighborIDs, err := e.store.ListInitializedNeighborIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list neighbors: %w", err)
	}
	initialized := make(map[string]bool, len(neighborIDs))
	for _, id := range neighborIDs {
		initialized[string(id)] = true
	}

	mirror, err := e.store.ListNeighborIdentities(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list neighbor identities: %w", err)
	}
	for _, row := range mirror {
		if len(results) >= maxTotal {
			return results, nil
		}
		if !initialized[string(row.HostingServerID)] {
			continue
		}
		info := row.Profile()
		if !f.withinRadius(info.Location) || !f.match(info) {
			continue
		}
		results = append(results, &iop.SearchResult{
			IsHosted:               false,
			HostingServerNetworkID: row.HostingServerID,
			Profile:                info.ToWire(row.Signature),
		})
	}
	return results, nil
}
