package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bitobit-development/bms-dashboard-sub000/pkg/common"
	"github.com/bitobit-development/bms-dashboard-sub000/pkg/log"
	"github.com/bitobit-development/bms-dashboard-sub000/pkg/types"

	"github.com/levenlabs/go-lflag"
)

var (
	// ErrInvalidRange is returned when a fetch window is empty or inverted.
	ErrInvalidRange = errors.New("invalid weather range: start must be before end")
	// ErrUpstreamUnavailable is returned when the upstream errors or returns
	// a payload we cannot use. Callers retry on their next scheduled refresh.
	ErrUpstreamUnavailable = errors.New("weather upstream unavailable")
)

// Location identifies a site's coordinates for weather lookups.
type Location struct {
	LatitudeDeg  float64
	LongitudeDeg float64
}

type cacheKey struct {
	location  string
	startDate string
	endDate   string
}

type cacheEntry struct {
	samples   []types.WeatherSample
	fetchedAt time.Time
}

// Provider fetches hourly weather series from the archive API and caches
// whole windows in memory. Entries are replaced wholesale on refetch, so
// concurrent writers are last-writer-wins safe.
type Provider struct {
	apiURL string
	client *http.Client

	mu    sync.RWMutex
	cache map[cacheKey]cacheEntry
	ttl   time.Duration
}

// Configured sets up the weather Provider.
// It uses lflag to register command-line flags for configuration.
func Configured() *Provider {
	p := &Provider{
		client: common.HTTPClient(15 * time.Second),
		cache:  make(map[cacheKey]cacheEntry),
	}
	apiURL := lflag.String("weather-api-url", "https://archive-api.open-meteo.com/v1/archive", "URL for the historical weather API")
	ttl := lflag.Duration("weather-cache-ttl", 24*time.Hour, "Validity of a cached weather window")

	lflag.Do(func() {
		p.apiURL = *apiURL
		p.ttl = *ttl
	})

	return p
}

// NewProvider builds a Provider without flag registration. Tests and the
// batch sweep use this with an httptest server URL.
func NewProvider(apiURL string, client *http.Client, ttl time.Duration) *Provider {
	if client == nil {
		client = common.HTTPClient(15 * time.Second)
	}
	return &Provider{
		apiURL: apiURL,
		client: client,
		cache:  make(map[cacheKey]cacheEntry),
		ttl:    ttl,
	}
}

// Validate ensures the configuration is valid.
func (p *Provider) Validate() error {
	if p.apiURL == "" {
		return fmt.Errorf("weather-api-url is required")
	}
	if _, err := url.Parse(p.apiURL); err != nil {
		return fmt.Errorf("failed to parse weather url (%s): %w", p.apiURL, err)
	}
	return nil
}

func (l Location) key() string {
	return fmt.Sprintf("%.4f,%.4f", l.LatitudeDeg, l.LongitudeDeg)
}

// Fetch returns the ordered hourly samples covering [start, end] for the
// location. A cache hit within the TTL avoids any network call; a miss or
// expired entry refetches and overwrites the whole entry.
func (p *Provider) Fetch(ctx context.Context, loc Location, start, end time.Time) ([]types.WeatherSample, error) {
	if !start.Before(end) {
		return nil, ErrInvalidRange
	}

	key := cacheKey{
		location:  loc.key(),
		startDate: start.UTC().Format("2006-01-02"),
		endDate:   end.UTC().Format("2006-01-02"),
	}

	p.mu.RLock()
	entry, ok := p.cache[key]
	p.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < p.ttl {
		log.Ctx(ctx).DebugContext(ctx, "weather cache hit",
			slog.String("location", key.location),
			slog.String("start", key.startDate),
			slog.String("end", key.endDate),
		)
		return entry.samples, nil
	}

	samples, err := p.fetchUpstream(ctx, loc, start, end)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.cache[key] = cacheEntry{samples: samples, fetchedAt: time.Now()}
	p.mu.Unlock()

	return samples, nil
}

// openMeteoResponse mirrors the archive API's column-oriented payload.
type openMeteoResponse struct {
	Hourly struct {
		Time               []string  `json:"time"`
		Temperature2M      []float64 `json:"temperature_2m"`
		RelativeHumidity2M []float64 `json:"relative_humidity_2m"`
		CloudCover         []float64 `json:"cloud_cover"`
		ShortwaveRadiation []float64 `json:"shortwave_radiation"`
		WindSpeed10M       []float64 `json:"wind_speed_10m"`
		Precipitation      []float64 `json:"precipitation"`
		UVIndex            []float64 `json:"uv_index"`
	} `json:"hourly"`
	Daily struct {
		Time    []string `json:"time"`
		Sunrise []string `json:"sunrise"`
		Sunset  []string `json:"sunset"`
	} `json:"daily"`
}

func (p *Provider) fetchUpstream(ctx context.Context, loc Location, start, end time.Time) ([]types.WeatherSample, error) {
	u, err := url.Parse(p.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api url: %w", err)
	}

	params := url.Values{}
	params.Set("latitude", fmt.Sprintf("%.4f", loc.LatitudeDeg))
	params.Set("longitude", fmt.Sprintf("%.4f", loc.LongitudeDeg))
	params.Set("start_date", start.UTC().Format("2006-01-02"))
	params.Set("end_date", end.UTC().Format("2006-01-02"))
	params.Set("hourly", strings.Join([]string{
		"temperature_2m",
		"relative_humidity_2m",
		"cloud_cover",
		"shortwave_radiation",
		"wind_speed_10m",
		"precipitation",
		"uv_index",
	}, ","))
	params.Set("daily", "sunrise,sunset")
	params.Set("timezone", "UTC")
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	log.Ctx(ctx).DebugContext(ctx, "fetching weather window", "url", u.String())

	resp, err := p.client.Do(req)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to fetch weather", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	var data openMeteoResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to decode weather response", slog.Any("error", err))
		return nil, fmt.Errorf("%w: decode: %v", ErrUpstreamUnavailable, err)
	}

	samples, err := buildSamples(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	log.Ctx(ctx).DebugContext(
		ctx,
		"fetched weather window",
		slog.Int("count", len(samples)),
		slog.String("start", start.Format(time.RFC3339)),
		slog.String("end", end.Format(time.RFC3339)),
	)
	return samples, nil
}

func buildSamples(data openMeteoResponse) ([]types.WeatherSample, error) {
	h := data.Hourly
	n := len(h.Time)
	if n == 0 {
		return nil, fmt.Errorf("payload has no hourly series")
	}
	if len(h.Temperature2M) != n || len(h.CloudCover) != n || len(h.ShortwaveRadiation) != n {
		return nil, fmt.Errorf("payload hourly columns are ragged")
	}

	// daily sunrise/sunset indexed by date
	type dayTimes struct{ sunrise, sunset time.Time }
	days := make(map[string]dayTimes, len(data.Daily.Time))
	for i, d := range data.Daily.Time {
		if i >= len(data.Daily.Sunrise) || i >= len(data.Daily.Sunset) {
			break
		}
		sr, err1 := time.Parse("2006-01-02T15:04", data.Daily.Sunrise[i])
		ss, err2 := time.Parse("2006-01-02T15:04", data.Daily.Sunset[i])
		if err1 != nil || err2 != nil {
			continue
		}
		days[d] = dayTimes{sunrise: sr.UTC(), sunset: ss.UTC()}
	}

	at := func(col []float64, i int) float64 {
		if i < len(col) {
			return col[i]
		}
		return 0
	}

	samples := make([]types.WeatherSample, 0, n)
	for i := 0; i < n; i++ {
		ts, err := time.Parse("2006-01-02T15:04", h.Time[i])
		if err != nil {
			return nil, fmt.Errorf("bad hourly timestamp %q: %v", h.Time[i], err)
		}
		ts = ts.UTC()

		s := types.WeatherSample{
			TS:                 ts,
			TemperatureC:       at(h.Temperature2M, i),
			HumidityPct:        at(h.RelativeHumidity2M, i),
			CloudCoverPct:      at(h.CloudCover, i),
			SolarIrradianceWM2: at(h.ShortwaveRadiation, i),
			WindSpeedMS:        at(h.WindSpeed10M, i),
			PrecipitationMM:    at(h.Precipitation, i),
			UVIndex:            at(h.UVIndex, i),
		}
		if dt, ok := days[ts.Format("2006-01-02")]; ok {
			s.Sunrise = dt.sunrise
			s.Sunset = dt.sunset
		}
		s.Condition = classify(s)
		samples = append(samples, s)
	}
	return samples, nil
}

// classify maps a sample to the coarse condition enum.
func classify(s types.WeatherSample) types.Condition {
	switch {
	case s.PrecipitationMM > 4 && s.WindSpeedMS > 10:
		return types.ConditionStormy
	case s.PrecipitationMM > 0.5:
		return types.ConditionRainy
	case s.CloudCoverPct > 80:
		return types.ConditionCloudy
	case s.CloudCoverPct > 40:
		return types.ConditionPartlyCloudy
	default:
		return types.ConditionClear
	}
}
