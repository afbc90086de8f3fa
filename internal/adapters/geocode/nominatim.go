// Package geocode resolves search queries against a Nominatim compatible API.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/lcalzada-xor/geoview/internal/core/domain"
	"github.com/lcalzada-xor/geoview/internal/geo"
)

// nominatimPlace is one element of a /search?format=jsonv2 response.
type nominatimPlace struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
}

// Nominatim implements ports.Geocoder.
type Nominatim struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration

	client *fasthttp.Client
}

// NewNominatim creates a client for baseURL, e.g. https://nominatim.openstreetmap.org.
func NewNominatim(baseURL, userAgent string) *Nominatim {
	return &Nominatim{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		UserAgent: userAgent,
		Timeout:   5 * time.Second,
		client: &fasthttp.Client{
			Name:                userAgent,
			MaxConnsPerHost:     8,
			ReadTimeout:         5 * time.Second,
			WriteTimeout:        5 * time.Second,
			MaxIdleConnDuration: time.Minute,
		},
	}
}

// Search returns up to limit places, projected to Web Mercator.
// Places the projection cannot represent are skipped.
func (n *Nominatim) Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("limit", strconv.Itoa(limit))

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(n.BaseURL + "/search?" + params.Encode())
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")
	if n.UserAgent != "" {
		req.Header.SetUserAgent(n.UserAgent)
	}

	timeout := n.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}
	if timeout <= 0 {
		return nil, context.DeadlineExceeded
	}

	if err := n.client.DoTimeout(req, resp, timeout); err != nil {
		return nil, fmt.Errorf("geocoder request: %w", err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("geocoder returned status %d", resp.StatusCode())
	}

	var places []nominatimPlace
	if err := json.Unmarshal(resp.Body(), &places); err != nil {
		return nil, fmt.Errorf("decode geocoder response: %w", err)
	}
	return toResults(places), nil
}

func toResults(places []nominatimPlace) []domain.SearchResult {
	results := make([]domain.SearchResult, 0, len(places))
	for _, p := range places {
		lat, err := strconv.ParseFloat(p.Lat, 64)
		if err != nil {
			continue
		}
		lon, err := strconv.ParseFloat(p.Lon, 64)
		if err != nil {
			continue
		}
		pos := domain.GeoPosition{Latitude: lat, Longitude: lon}
		pt, err := geo.ProjectClamped(pos)
		if err != nil {
			continue
		}
		results = append(results, domain.SearchResult{
			DisplayName: p.DisplayName,
			Position:    pos,
			Point:       pt,
		})
	}
	return results
}
