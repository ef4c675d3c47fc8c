package oracle

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	pythusd "github.com/chewyuenrachael/pythUsdToken"
	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
)

// DefaultHermesEndpoint is the public Hermes price API.
const DefaultHermesEndpoint = "https://hermes.pyth.network"

// hermesPrice is the price block of one feed in a Hermes response. Numeric
// values arrive as strings to preserve precision through JSON.
type hermesPrice struct {
	Price       string `json:"price" validate:"required,numeric"`
	Conf        string `json:"conf" validate:"required,numeric"`
	Expo        int32  `json:"expo"`
	PublishTime int64  `json:"publish_time" validate:"required"`
}

// hermesFeed is one parsed feed entry.
type hermesFeed struct {
	ID    string      `json:"id" validate:"required"`
	Price hermesPrice `json:"price"`
}

// hermesResponse is the envelope returned by /v2/updates/price/latest.
type hermesResponse struct {
	Parsed []hermesFeed `json:"parsed" validate:"required,min=1,dive"`
}

// hermesService reads prices from a Hermes-style REST endpoint.
type hermesService struct {
	// endpoint base API url
	endpoint string

	// feedID hex identifier of the price feed to read
	feedID string

	// client for HTTP requests
	client http.Client

	validate *validator.Validate
}

// NewHermesService constructs a Service reading one feed from a Hermes-style
// endpoint. An empty endpoint selects the public Hermes API; a non-positive
// timeout falls back to 5s.
func NewHermesService(endpoint, feedID string, timeout time.Duration) Service {
	if endpoint == "" {
		endpoint = DefaultHermesEndpoint
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &hermesService{
		endpoint: endpoint,
		feedID:   feedID,
		client: http.Client{
			Timeout: timeout,
		},
		validate: validator.New(),
	}
}

// Price fetches the latest published sample for the configured feed.
func (s *hermesService) Price(ctx context.Context) (pythusd.PriceData, error) {
	url := fmt.Sprintf("%v/v2/updates/price/latest?ids[]=%v", s.endpoint, s.feedID)

	request, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return pythusd.PriceData{}, fmt.Errorf("building http request: %w", err)
	}
	httpResponse, err := s.client.Do(request)
	if err != nil {
		return pythusd.PriceData{}, fmt.Errorf("http get: %w", err)
	}
	defer httpResponse.Body.Close()

	if httpResponse.StatusCode != http.StatusOK {
		return pythusd.PriceData{}, fmt.Errorf("hermes status %d", httpResponse.StatusCode)
	}

	bytes, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return pythusd.PriceData{}, fmt.Errorf("reading json: %w", err)
	}

	var response hermesResponse
	if err := json.Unmarshal(bytes, &response); err != nil {
		return pythusd.PriceData{}, fmt.Errorf("decoding json: %w", err)
	}
	if err := s.validate.Struct(&response); err != nil {
		return pythusd.PriceData{}, fmt.Errorf("validating response: %w", err)
	}

	feed := response.Parsed[0]
	if !feedMatches(feed.ID, s.feedID) {
		return pythusd.PriceData{}, fmt.Errorf("unexpected feed id %v", feed.ID)
	}

	return parseFeed(feed)
}

// parseFeed converts a validated feed entry into a normalized sample.
func parseFeed(feed hermesFeed) (pythusd.PriceData, error) {
	price, err := strconv.ParseInt(feed.Price.Price, 10, 64)
	if err != nil {
		return pythusd.PriceData{}, fmt.Errorf("bad price value: %w", err)
	}
	conf, err := strconv.ParseUint(feed.Price.Conf, 10, 64)
	if err != nil {
		return pythusd.PriceData{}, fmt.Errorf("bad confidence value: %w", err)
	}
	return normalize(price, conf, feed.Price.Expo, feed.Price.PublishTime)
}

// feedMatches compares feed identifiers ignoring case and a 0x prefix.
func feedMatches(got, want string) bool {
	if want == "" {
		return true
	}
	return strings.EqualFold(strings.TrimPrefix(got, "0x"), strings.TrimPrefix(want, "0x"))
}
