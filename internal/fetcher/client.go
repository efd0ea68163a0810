package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ais-diff-events/internal/vessel"
)

const vesselsPathFmt = "/v1/ports/%s/vessels"

// Options parameterise the AIS feed client.
type Options struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	UserAgent string
}

// Client fetches vessel lists from the rate-limited third-party feed.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewClient constructs a feed client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "feed_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchVessels performs the key-authenticated GET. Non-2xx responses and
// malformed payloads are fetch failures; individual odd vessel rows are
// tolerated and skipped.
func (c *Client) FetchVessels(ctx context.Context, portCode string, fromS, toS int64) ([]vessel.Record, error) {
	if c.baseURL == "" {
		return nil, errors.New("feed base url not configured")
	}
	if c.opts.APIKey == "" {
		return nil, errors.New("feed api key not configured")
	}
	if portCode == "" {
		return nil, errors.New("port code required")
	}

	endpoint := c.baseURL + fmt.Sprintf(vesselsPathFmt, url.PathEscape(portCode))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	query := req.URL.Query()
	query.Set("from", strconv.FormatInt(fromS, 10))
	query.Set("to", strconv.FormatInt(toS, 10))
	req.URL.RawQuery = query.Encode()

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Key", c.opts.APIKey)
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "shipwatcher/1.0")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseHTTPError(resp.StatusCode, payload)
	}

	var body vesselsResponse
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("decode feed payload: %w", err)
	}

	records := make([]vessel.Record, 0, len(body.Vessels))
	skipped := 0
	for _, raw := range body.Vessels {
		rec, ok := raw.toRecord()
		if !ok {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	if skipped > 0 {
		c.logger.Warn().Int("skipped", skipped).Str("port", portCode).Msg("feed rows without mmsi dropped")
	}

	return records, nil
}

type vesselsResponse struct {
	Vessels []apiVessel `json:"vessels"`
}

// apiVessel mirrors the feed's wire shape; several fields arrive as either
// numbers or strings depending on the upstream source.
type apiVessel struct {
	MMSI         any      `json:"mmsi"`
	Name         string   `json:"name"`
	Flag         string   `json:"flag"`
	Eta          string   `json:"eta"`
	EtaTs        *float64 `json:"etaTs"`
	LastUpdate   string   `json:"lastUpdate"`
	LastUpdateTs *float64 `json:"lastUpdateTs"`
	Draught      any      `json:"draught"`
	Length       *float64 `json:"length"`
	Width        *float64 `json:"width"`
	Deadweight   *float64 `json:"deadweight"`
	PrevPort     string   `json:"prevPort"`
	PrevPortName string   `json:"prevPortName"`
	Destination  string   `json:"dest"`
}

func (v apiVessel) toRecord() (vessel.Record, bool) {
	mmsi := asString(v.MMSI)
	if mmsi == "" {
		return vessel.Record{}, false
	}
	return vessel.Record{
		MMSI:          mmsi,
		Name:          strings.TrimSpace(v.Name),
		Flag:          strings.TrimSpace(v.Flag),
		EtaRaw:        strings.TrimSpace(v.Eta),
		EtaTs:         v.EtaTs,
		LastUpdateRaw: strings.TrimSpace(v.LastUpdate),
		LastUpdateTs:  v.LastUpdateTs,
		Draught:       v.Draught,
		Length:        v.Length,
		Width:         v.Width,
		Deadweight:    v.Deadweight,
		PrevPort:      strings.TrimSpace(v.PrevPort),
		PrevPortName:  strings.TrimSpace(v.PrevPortName),
		Destination:   strings.TrimSpace(v.Destination),
	}, true
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case json.Number:
		return s.String()
	default:
		return ""
	}
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Message != "" {
			return fmt.Errorf("feed api error (%d): %s", status, apiErr.Message)
		}
		if apiErr.Error != "" {
			return fmt.Errorf("feed api error (%d): %s", status, apiErr.Error)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("feed api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("feed api error (%d)", status)
}

var _ VesselFetcher = (*Client)(nil)
