package position

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/harborleaf/storelocator/internal/domain/entities"
	"github.com/harborleaf/storelocator/internal/domain/providers"
)

const (
	defaultIPLookupURL  = "http://ip-api.com/json"
	defaultIPCacheTTL   = 60 * 60
	defaultHTTPTimeout  = 8 * time.Second
	ipLookupAccuracyM   = 5000
	ipLookupCachePrefix = "geo:ip:"
)

// IPProvider approximates the visitor's position from their IP address
// using an ip-api.com compatible JSON endpoint.
type IPProvider struct {
	baseURL    string
	httpClient *http.Client
	cache      providers.CacheProvider
	group      singleflight.Group
}

// NewIPProvider creates an IP lookup provider. cache may be nil.
func NewIPProvider(baseURL string, cache providers.CacheProvider) *IPProvider {
	return NewIPProviderWithClient(baseURL, cache, nil)
}

// NewIPProviderWithClient allows overriding the HTTP client (used for tests)
func NewIPProviderWithClient(baseURL string, cache providers.CacheProvider, httpClient *http.Client) *IPProvider {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultIPLookupURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &IPProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		cache:      cache,
	}
}

var _ providers.PositionProvider = (*IPProvider)(nil)

type ipAPIResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	City    string  `json:"city"`
	Query   string  `json:"query"`
}

// CurrentPosition looks up the address stored in ctx, or the caller's own
// public address when none is stored.
func (p *IPProvider) CurrentPosition(ctx context.Context, opts providers.PositionOptions) (*entities.Position, error) {
	ip := providers.ClientIPFromContext(ctx)
	cacheKey := ipLookupCachePrefix + hashKey(ip)

	if p.cache != nil {
		if cached, err := p.cache.Get(ctx, cacheKey); err == nil && len(cached) > 0 {
			var coord entities.Coordinate
			if err := json.Unmarshal(cached, &coord); err == nil && coord.Valid() {
				return &entities.Position{Coordinate: coord, AccuracyMeters: ipLookupAccuracyM, Timestamp: time.Now()}, nil
			}
		}
	}

	result := p.group.DoChan(cacheKey, func() (interface{}, error) {
		lookupCtx := context.WithoutCancel(ctx)
		if opts.Timeout > 0 {
			var cancel context.CancelFunc
			lookupCtx, cancel = context.WithTimeout(lookupCtx, opts.Timeout)
			defer cancel()
		}
		return p.lookup(lookupCtx, ip)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-result:
		if r.Err != nil {
			return nil, r.Err
		}
		coord := r.Val.(entities.Coordinate)
		if p.cache != nil {
			if payload, err := json.Marshal(coord); err == nil {
				_ = p.cache.Set(ctx, cacheKey, payload, defaultIPCacheTTL)
			}
		}
		return &entities.Position{Coordinate: coord, AccuracyMeters: ipLookupAccuracyM, Timestamp: time.Now()}, nil
	}
}

func (p *IPProvider) lookup(ctx context.Context, ip string) (entities.Coordinate, error) {
	reqURL := p.baseURL
	if ip != "" {
		reqURL += "/" + url.PathEscape(ip)
	}
	reqURL += "?fields=status,message,lat,lon,city,query"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return entities.Coordinate{}, fmt.Errorf("failed to build ip lookup request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return entities.Coordinate{}, ctx.Err()
		}
		return entities.Coordinate{}, &providers.PositionError{
			Code:    providers.PositionErrorPositionUnavailable,
			Message: fmt.Sprintf("ip lookup request failed: %v", err),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return entities.Coordinate{}, &providers.PositionError{
			Code:    providers.PositionErrorPositionUnavailable,
			Message: fmt.Sprintf("ip lookup returned status %d", resp.StatusCode),
		}
	}

	var body ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return entities.Coordinate{}, fmt.Errorf("failed to decode ip lookup response: %w", err)
	}
	if body.Status != "success" {
		return entities.Coordinate{}, &providers.PositionError{
			Code:    providers.PositionErrorPositionUnavailable,
			Message: fmt.Sprintf("ip lookup failed: %s", body.Message),
		}
	}

	coord := entities.Coordinate{Lat: body.Lat, Lng: body.Lon}
	if !coord.Valid() {
		return entities.Coordinate{}, &providers.PositionError{
			Code:    providers.PositionErrorPositionUnavailable,
			Message: "ip lookup returned an invalid coordinate",
		}
	}

	log.Debug().Str("query", body.Query).Str("city", body.City).Msg("resolved position from ip")
	return coord, nil
}

func hashKey(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
