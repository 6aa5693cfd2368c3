// Package prismic is a small client for the Prismic v2 REST content API: the
// repository that stores every sketch. It covers what the site needs: master
// ref lookup, predicate search, lookups by id and uid, paging through a type,
// and preview sessions.
package prismic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sketchplanations/sketchweb/pkg/log"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

var (
	// ErrMalformedResponse is returned when a response body does not have the
	// expected shape.
	ErrMalformedResponse = errors.New("malformed repository response")
	// ErrNotFound is returned by single document lookups with no match.
	ErrNotFound = errors.New("document not found")
)

// APIError is a non-2xx answer from the repository.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("repository returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("repository returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Ref is a content release. The master ref points at published content.
type Ref struct {
	ID          string `json:"id"`
	Ref         string `json:"ref"`
	Label       string `json:"label"`
	IsMasterRef bool   `json:"isMasterRef"`
}

// API is the repository entry point document.
type API struct {
	Refs  []Ref             `json:"refs"`
	Types map[string]string `json:"types"`
}

// Master returns the master ref, if the repository advertises one.
func (a *API) Master() (string, bool) {
	for _, r := range a.Refs {
		if r.IsMasterRef && r.Ref != "" {
			return r.Ref, true
		}
	}
	return "", false
}

// Response is one page of documents/search results.
type Response struct {
	Page             int        `json:"page"`
	ResultsPerPage   int        `json:"results_per_page"`
	ResultsSize      int        `json:"results_size"`
	TotalResultsSize int        `json:"total_results_size"`
	TotalPages       int        `json:"total_pages"`
	NextPage         *string    `json:"next_page"`
	Results          []Document `json:"results"`
}

// Options configures a Client.
type Options struct {
	// Endpoint is the API entry point, e.g. https://repo.cdn.prismic.io/api/v2.
	Endpoint string
	// AccessToken is sent as a bearer token when set (private repositories).
	AccessToken string
	Timeout     time.Duration
	// RequestsPerSecond caps outgoing requests; zero means unlimited.
	RequestsPerSecond float64
	// RefTTL is how long the master ref is reused before asking again.
	RefTTL time.Duration
	// HTTPClient is the base client; mostly useful in tests.
	HTTPClient *http.Client
}

// Client talks to one repository. It is safe for concurrent use.
type Client struct {
	endpoint *url.URL
	http     *http.Client
	limiter  *rate.Limiter
	refTTL   time.Duration
	l        *log.Logger

	mu    sync.Mutex
	ref   string
	refAt time.Time
}

// NewClient validates opts and builds a Client.
func NewClient(opts Options) (*Client, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("prismic endpoint is required")
	}
	endpoint, err := url.Parse(strings.TrimRight(opts.Endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing endpoint: %w", err)
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return nil, fmt.Errorf("endpoint %q must be an http(s) URL", opts.Endpoint)
	}

	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{}
	}
	httpClient := &http.Client{
		Transport:     base.Transport,
		CheckRedirect: base.CheckRedirect,
		Jar:           base.Jar,
	}
	if opts.AccessToken != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.AccessToken}))
	}
	httpClient.Timeout = opts.Timeout

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), int(math.Ceil(opts.RequestsPerSecond)))
	}

	refTTL := opts.RefTTL
	if refTTL <= 0 {
		refTTL = 30 * time.Second
	}

	return &Client{
		endpoint: endpoint,
		http:     httpClient,
		limiter:  limiter,
		refTTL:   refTTL,
		l:        log.ForService("prismic"),
	}, nil
}

// Endpoint returns the API entry point URL.
func (c *Client) Endpoint() string {
	return c.endpoint.String()
}

// API fetches the repository entry point document.
func (c *Client) API(ctx context.Context) (*API, error) {
	var api API
	if err := c.getJSON(ctx, c.endpoint.String(), &api); err != nil {
		return nil, fmt.Errorf("fetching api: %w", err)
	}
	return &api, nil
}

// MasterRef returns the current master ref, reusing a recent answer.
func (c *Client) MasterRef(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.ref != "" && time.Since(c.refAt) < c.refTTL {
		ref := c.ref
		c.mu.Unlock()
		return ref, nil
	}
	c.mu.Unlock()

	api, err := c.API(ctx)
	if err != nil {
		return "", err
	}
	ref, ok := api.Master()
	if !ok {
		return "", fmt.Errorf("%w: no master ref", ErrMalformedResponse)
	}

	c.mu.Lock()
	c.ref, c.refAt = ref, time.Now()
	c.mu.Unlock()
	c.l.Debugf("master ref %s", ref)
	return ref, nil
}

// Query runs a documents/search request.
func (c *Client) Query(ctx context.Context, q Query) (*Response, error) {
	ref := q.Ref
	if ref == "" {
		var err error
		if ref, err = c.MasterRef(ctx); err != nil {
			return nil, err
		}
	}

	values := url.Values{}
	values.Set("ref", ref)
	for _, p := range q.Predicates {
		values.Add("q", p.String())
	}
	if q.PageSize > 0 {
		values.Set("pageSize", strconv.Itoa(q.PageSize))
	}
	if q.Page > 0 {
		values.Set("page", strconv.Itoa(q.Page))
	}
	if q.Orderings != "" {
		values.Set("orderings", q.Orderings)
	}

	u := c.endpoint.String() + "/documents/search?" + values.Encode()
	c.l.Debugf("GET %s", u)

	var resp Response
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SearchDocuments returns up to pageSize documents of docType whose content
// matches text.
func (c *Client) SearchDocuments(ctx context.Context, docType, text string, pageSize int) ([]Document, error) {
	resp, err := c.Query(ctx, Query{
		Predicates: []Predicate{At("document.type", docType), Fulltext("document", text)},
		PageSize:   pageSize,
	})
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// GetByUID returns the document of docType with the given uid.
func (c *Client) GetByUID(ctx context.Context, docType, uid string) (*Document, error) {
	return c.GetByUIDAt(ctx, docType, uid, "")
}

// GetByUIDAt is GetByUID as seen by ref, e.g. a preview ref.
func (c *Client) GetByUIDAt(ctx context.Context, docType, uid, ref string) (*Document, error) {
	return c.single(ctx, Query{
		Predicates: []Predicate{At("my."+docType+".uid", uid)},
		PageSize:   1,
		Ref:        ref,
	})
}

// GetByID returns the document with the given id as seen by ref; an empty ref
// means the master ref.
func (c *Client) GetByID(ctx context.Context, id, ref string) (*Document, error) {
	return c.single(ctx, Query{
		Predicates: []Predicate{At("document.id", id)},
		PageSize:   1,
		Ref:        ref,
	})
}

func (c *Client) single(ctx context.Context, q Query) (*Document, error) {
	resp, err := c.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, ErrNotFound
	}
	return &resp.Results[0], nil
}

// Each pages through every document of docType, oldest first, calling fn once
// per page.
func (c *Client) Each(ctx context.Context, docType string, pageSize int, fn func(page []Document) error) error {
	ref, err := c.MasterRef(ctx)
	if err != nil {
		return err
	}
	for page := 1; ; page++ {
		resp, err := c.Query(ctx, Query{
			Predicates: []Predicate{At("document.type", docType)},
			PageSize:   pageSize,
			Page:       page,
			Orderings:  "[document.first_publication_date]",
			Ref:        ref,
		})
		if err != nil {
			return fmt.Errorf("fetching page %d: %w", page, err)
		}
		if len(resp.Results) > 0 {
			if err := fn(resp.Results); err != nil {
				return err
			}
		}
		if resp.NextPage == nil || page >= resp.TotalPages {
			return nil
		}
	}
}

func (c *Client) getJSON(ctx context.Context, u string, v any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.l.Warnf("closing response body: %v", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
