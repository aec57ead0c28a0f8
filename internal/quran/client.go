package quran

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/tilawa-app/tilawa/internal/netx"
)

// DefaultBaseURL is the public alquran.cloud endpoint.
const DefaultBaseURL = "https://api.alquran.cloud/v1"

// TextEdition is the original-language edition paired with translations.
const TextEdition = "quran-uthmani"

// API is the subset of the Quran content API this module consumes.
type API interface {
	Surahs(ctx context.Context) ([]Surah, error)
	Surah(ctx context.Context, id int) (*Surah, error)
	SurahEdition(ctx context.Context, id int, edition string) (*SurahEdition, error)
	Ayah(ctx context.Context, key, edition string) (*Ayah, error)
}

// APIError is returned when the envelope reports a non-200 code inside a 200
// response.
type APIError struct {
	Code   int
	Status string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("quran api: code %d (%s)", e.Code, e.Status)
}

// Client talks to the API over a retrying netx.Client.
type Client struct {
	baseURL string
	http    *netx.Client
}

var _ API = (*Client)(nil)

// NewClient returns a Client for baseURL. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL string, httpClient *netx.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *Client) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.baseURL + "/" + strings.Join(escaped, "/")
}

func get[T any](ctx context.Context, c *Client, rawURL string) (T, error) {
	var env envelope[T]
	if err := c.http.GetJSON(ctx, rawURL, &env); err != nil {
		var zero T
		return zero, err
	}
	if env.Code != 0 && env.Code != 200 {
		var zero T
		return zero, &APIError{Code: env.Code, Status: env.Status}
	}
	return env.Data, nil
}

// Surahs lists every chapter.
func (c *Client) Surahs(ctx context.Context) ([]Surah, error) {
	return get[[]Surah](ctx, c, c.endpoint("surah"))
}

// Surah fetches chapter metadata.
func (c *Client) Surah(ctx context.Context, id int) (*Surah, error) {
	se, err := get[SurahEdition](ctx, c, c.endpoint("surah", strconv.Itoa(id)))
	if err != nil {
		return nil, err
	}
	return &se.Surah, nil
}

// SurahEdition fetches a chapter with all ayahs in the given edition.
func (c *Client) SurahEdition(ctx context.Context, id int, edition string) (*SurahEdition, error) {
	se, err := get[SurahEdition](ctx, c, c.endpoint("surah", strconv.Itoa(id), edition))
	if err != nil {
		return nil, err
	}
	return &se, nil
}

// Ayah fetches one verse ("surah:verse") in the given edition. Audio editions
// populate Ayah.Audio.
func (c *Client) Ayah(ctx context.Context, key, edition string) (*Ayah, error) {
	a, err := get[Ayah](ctx, c, c.endpoint("ayah", key, edition))
	if err != nil {
		return nil, err
	}
	return &a, nil
}
