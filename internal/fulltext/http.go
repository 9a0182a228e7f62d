// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fulltext

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/time/rate"

	"github.com/pdiddy/evidence-engine/internal/httputil"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// HTTPSource fetches full text from an extraction service exposing
// GET <base>/studies/<id>/fulltext. A 404 means unavailable.
type HTTPSource struct {
	Client     *http.Client
	BaseURL    string
	APIKey     string
	UserAgent  string
	MaxRetries int

	limiter *rate.Limiter
}

// NewHTTPSource returns a client for the service at cfg.URL. A zero
// RateLimit disables client-side throttling.
func NewHTTPSource(cfg types.FulltextConfig) *HTTPSource {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &HTTPSource{
		Client:     &http.Client{Timeout: cfg.Timeout},
		BaseURL:    strings.TrimRight(cfg.URL, "/"),
		APIKey:     cfg.APIKey,
		UserAgent:  cfg.UserAgent,
		MaxRetries: cfg.MaxRetries,
		limiter:    rate.NewLimiter(limit, burst),
	}
}

// fulltextResponse is the service's JSON body.
type fulltextResponse struct {
	Status   types.FulltextStatus `json:"status"`
	Sections map[string]string    `json:"sections"`
	Metadata types.StudyMetadata  `json:"metadata"`
}

// Fetch implements Source.
func (s *HTTPSource) Fetch(ctx context.Context, studyID string) (types.FullText, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return types.FullText{}, fmt.Errorf("rate limiter: %w", err)
		}
	}

	reqURL := s.BaseURL + "/studies/" + url.PathEscape(studyID) + "/fulltext"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return types.FullText{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}

	resp, err := httputil.DoWithRetry(ctx, s.Client, req, s.MaxRetries)
	if err != nil {
		return types.FullText{}, fmt.Errorf("fetching full text for %s: %w", studyID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return types.Unavailable(studyID), nil
	default:
		return types.FullText{}, fmt.Errorf("extraction service returned HTTP %d for %s", resp.StatusCode, studyID)
	}

	var body fulltextResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return types.FullText{}, fmt.Errorf("parsing full text for %s: %w", studyID, err)
	}
	if body.Status == types.FulltextUnavailable {
		return types.Unavailable(studyID), nil
	}

	names := make([]string, 0, len(body.Sections))
	for name := range body.Sections {
		names = append(names, name)
	}
	sort.Strings(names)

	sections := make(map[string]string, len(names))
	for _, name := range names {
		text := body.Sections[name]
		key := CanonicalSection(name)
		if prev, ok := sections[key]; ok {
			text = prev + "\n\n" + text
		}
		sections[key] = text
	}
	return types.FullText{
		StudyID:  studyID,
		Status:   types.FulltextAvailable,
		Sections: sections,
		Metadata: body.Metadata,
	}, nil
}

// NewSource builds the source named by cfg: a directory or a service URL.
func NewSource(cfg types.FulltextConfig) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Dir != "" {
		return NewDirSource(cfg.Dir), nil
	}
	return NewHTTPSource(cfg), nil
}
