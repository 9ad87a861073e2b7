// Package apod is a thin client for NASA's "Astronomy Picture of the Day"
// API. Responses are decoded into the subset of fields the bot presents.
package apod

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultEndpoint is NASA's public APOD endpoint.
const DefaultEndpoint = "https://api.nasa.gov/planetary/apod"

// ErrNotImage means the day's entry is a video or other non-photo media.
var ErrNotImage = errors.New("apod entry is not an image")

// Picture is one APOD entry.
type Picture struct {
	Date        string `json:"date"`
	Title       string `json:"title"`
	Explanation string `json:"explanation"`
	URL         string `json:"url"`
	HDURL       string `json:"hdurl"`
	MediaType   string `json:"media_type"`
}

// Client fetches APOD entries. Zero value is not usable; construct with New.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// New returns a client for the given endpoint (DefaultEndpoint when empty)
// and API key.
func New(endpoint, apiKey string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Fetch returns the picture for a YYYY-MM-DD date (today when empty).
// Non-image entries return ErrNotImage.
func (c *Client) Fetch(ctx context.Context, date string) (*Picture, error) {
	q := url.Values{}
	q.Set("api_key", c.apiKey)
	if date != "" {
		q.Set("date", date)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("apod request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("apod: unexpected status %d: %s", resp.StatusCode, body)
	}

	var p Picture
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("apod decode: %w", err)
	}
	if p.MediaType != "image" {
		return nil, fmt.Errorf("%w (%s)", ErrNotImage, p.MediaType)
	}
	return &p, nil
}
