package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/liamwears/reeldeck/internal/logging"
	"github.com/liamwears/reeldeck/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// TMDB refuses pages past 500 on list endpoints
const maxCatalogPages = 500

const maxResponseBytes = 4 << 20

// Limiter throttles outbound catalog requests
type Limiter interface {
	Wait(ctx context.Context) error
}

// CatalogService reads movies from The Movie Database API.
// It never retries; callers decide what to do with a failure.
type CatalogService struct {
	client       *http.Client
	apiKey       string
	baseURL      string
	imageBaseURL string
	language     string
	limiter      Limiter
	logger       *log.Logger
	now          func() time.Time

	details *expirable.LRU[int, *models.MovieDetail]

	genresMu sync.Mutex
	genres   []models.Genre
}

// CatalogConfig holds catalog client configuration
type CatalogConfig struct {
	// APIKey is a v3 key sent as the api_key query parameter
	APIKey string
	// ReadAccessToken is a v4 token sent as a bearer token; it wins over APIKey
	ReadAccessToken string
	BaseURL         string
	ImageBaseURL    string
	Language        string
	Timeout         time.Duration

	// Limiter defaults to a token bucket of RequestsPerSecond / Burst
	Limiter           Limiter
	RequestsPerSecond float64
	Burst             int

	DetailCacheSize int
	DetailCacheTTL  time.Duration

	// Transport is the base round tripper, mainly for tests
	Transport http.RoundTripper
	Logger    *log.Logger
}

// NewCatalogService creates a new catalog client
func NewCatalogService(cfg CatalogConfig) *CatalogService {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	if cfg.DetailCacheSize <= 0 {
		cfg.DetailCacheSize = 128
	}
	if cfg.DetailCacheTTL <= 0 {
		cfg.DetailCacheTTL = 30 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}

	limiter := cfg.Limiter
	if limiter == nil {
		rps, burst := cfg.RequestsPerSecond, cfg.Burst
		if rps <= 0 {
			rps = 20
		}
		if burst <= 0 {
			burst = 10
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}

	base := &http.Client{Transport: cfg.Transport}
	client := &http.Client{Transport: cfg.Transport, Timeout: cfg.Timeout}
	if cfg.ReadAccessToken != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		client = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: cfg.ReadAccessToken,
			TokenType:   "Bearer",
		}))
		client.Timeout = cfg.Timeout
	}

	apiKey := cfg.APIKey
	if cfg.ReadAccessToken != "" {
		apiKey = ""
	}

	return &CatalogService{
		client:       client,
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		imageBaseURL: cfg.ImageBaseURL,
		language:     cfg.Language,
		limiter:      limiter,
		logger:       cfg.Logger.WithPrefix("catalog"),
		now:          time.Now,
		details:      expirable.NewLRU[int, *models.MovieDetail](cfg.DetailCacheSize, nil, cfg.DetailCacheTTL),
	}
}

type movieListResponse struct {
	Page         int                   `json:"page"`
	Results      []models.MovieSummary `json:"results"`
	TotalPages   int                   `json:"total_pages"`
	TotalResults int                   `json:"total_results"`
}

func (r movieListResponse) toPage() *models.MoviePage {
	total := r.TotalPages
	if total > maxCatalogPages {
		total = maxCatalogPages
	}
	items := r.Results
	if items == nil {
		items = []models.MovieSummary{}
	}
	return &models.MoviePage{
		Page:         r.Page,
		Items:        items,
		TotalPages:   total,
		TotalResults: r.TotalResults,
	}
}

type genreListResponse struct {
	Genres []models.Genre `json:"genres"`
}

type movieDetailResponse struct {
	models.MovieSummary
	Overview string         `json:"overview"`
	Runtime  int            `json:"runtime"`
	Genres   []models.Genre `json:"genres"`
	Videos   struct {
		Results []models.Video `json:"results"`
	} `json:"videos"`
	Credits struct {
		Cast []models.CastMember `json:"cast"`
		Crew []models.CrewMember `json:"crew"`
	} `json:"credits"`
}

func (r movieDetailResponse) toDetail() *models.MovieDetail {
	d := &models.MovieDetail{
		MovieSummary: r.MovieSummary,
		Overview:     r.Overview,
		Genres:       r.Genres,
		Videos:       r.Videos.Results,
		Cast:         r.Credits.Cast,
		Crew:         r.Credits.Crew,
	}
	if r.Runtime > 0 {
		runtime := r.Runtime
		d.RuntimeMinutes = &runtime
	}
	d.MovieSummary = d.Summary()
	return d
}

// doRequest performs a GET against the catalog and classifies failures
func (s *CatalogService) doRequest(ctx context.Context, op, endpoint string, params url.Values) ([]byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	q := req.URL.Query()
	q.Set("language", s.language)
	q.Set("include_adult", "false")
	if s.apiKey != "" {
		q.Set("api_key", s.apiKey)
	}
	for key, values := range params {
		for _, v := range values {
			q.Add(key, v)
		}
	}
	req.URL.RawQuery = q.Encode()

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("catalog %s: %w", op, ctx.Err())
		}
		return nil, &CatalogError{Op: op, Kind: ErrNetwork, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &CatalogError{Op: op, Kind: ErrNetwork, Status: resp.StatusCode, Err: err}
	}

	s.logger.Debug("request", "op", op, "endpoint", endpoint, "status", resp.StatusCode, "took", time.Since(start))

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, &CatalogError{Op: op, Kind: ErrNotFound, Status: resp.StatusCode}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &CatalogError{
			Op:         op,
			Kind:       ErrRateLimited,
			Status:     resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), s.now()),
		}
	default:
		return nil, &CatalogError{
			Op:     op,
			Kind:   ErrNetwork,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("unexpected response: %s", truncate(string(body), 200)),
		}
	}
}

func (s *CatalogService) getJSON(ctx context.Context, op, endpoint string, params url.Values, dst any) error {
	body, err := s.doRequest(ctx, op, endpoint, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return &CatalogError{Op: op, Kind: ErrNetwork, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (s *CatalogService) getPage(ctx context.Context, op, endpoint string, params url.Values) (*models.MoviePage, error) {
	var response movieListResponse
	if err := s.getJSON(ctx, op, endpoint, params, &response); err != nil {
		return nil, err
	}
	return response.toPage(), nil
}

// ListCategory returns one page of the browse list for a sort order, optionally
// restricted to a genre. Genre filtering goes through discover, which orders
// results the way the matching category list does.
func (s *CatalogService) ListCategory(ctx context.Context, sort models.SortOrder, genre *int, page int) (*models.MoviePage, error) {
	if !sort.IsValid() {
		return nil, fmt.Errorf("catalog list: unknown sort order %q", sort)
	}
	if page < 1 {
		page = 1
	}

	params := url.Values{"page": {strconv.Itoa(page)}}
	if genre == nil {
		return s.getPage(ctx, "list", "/movie/"+sort.Category(), params)
	}

	params.Set("with_genres", strconv.Itoa(*genre))
	switch sort {
	case models.SortTopRated:
		params.Set("sort_by", "vote_average.desc")
		params.Set("vote_count.gte", "200")
	case models.SortUpcoming:
		params.Set("sort_by", "primary_release_date.asc")
		params.Set("primary_release_date.gte", s.now().Format("2006-01-02"))
	default:
		params.Set("sort_by", "popularity.desc")
	}
	return s.getPage(ctx, "discover", "/discover/movie", params)
}

// Search returns the first matching page for a title query.
// A blank query returns an empty page without calling the catalog.
func (s *CatalogService) Search(ctx context.Context, query string, page int) (*models.MoviePage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return &models.MoviePage{Page: 1, Items: []models.MovieSummary{}}, nil
	}
	if page < 1 {
		page = 1
	}

	params := url.Values{
		"query": {query},
		"page":  {strconv.Itoa(page)},
	}
	return s.getPage(ctx, "search", "/search/movie", params)
}

// Trending returns today's trending movies
func (s *CatalogService) Trending(ctx context.Context) (*models.MoviePage, error) {
	return s.getPage(ctx, "trending", "/trending/movie/day", nil)
}

// Genres returns the movie genre list, fetched once per process
func (s *CatalogService) Genres(ctx context.Context) ([]models.Genre, error) {
	s.genresMu.Lock()
	defer s.genresMu.Unlock()

	if s.genres != nil {
		return s.genres, nil
	}

	var response genreListResponse
	if err := s.getJSON(ctx, "genres", "/genre/movie/list", nil, &response); err != nil {
		return nil, err
	}
	if response.Genres == nil {
		response.Genres = []models.Genre{}
	}
	s.genres = response.Genres
	return s.genres, nil
}

// Details returns a movie with videos and credits. Results are cached for
// the configured TTL so revisiting a movie in one session does not refetch it.
func (s *CatalogService) Details(ctx context.Context, id int) (*models.MovieDetail, error) {
	if cached, ok := s.details.Get(id); ok {
		d := *cached
		return &d, nil
	}

	params := url.Values{"append_to_response": {"videos,credits"}}
	var response movieDetailResponse
	if err := s.getJSON(ctx, "details", fmt.Sprintf("/movie/%d", id), params, &response); err != nil {
		return nil, err
	}

	detail := response.toDetail()
	s.details.Add(id, detail)

	d := *detail
	return &d, nil
}

// ImageURL returns the full URL for an image path
func (s *CatalogService) ImageURL(path *string) string {
	if path == nil || *path == "" {
		return ""
	}
	return s.imageBaseURL + *path
}

func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
