package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrAQIUpstream is returned when the WAQI feed cannot be reached or
// answers with a non-ok status.
var ErrAQIUpstream = errors.New("aqi upstream failure")

const aqiCacheTTL = 10 * time.Minute

// AQIReading is the flattened WAQI feed payload.
type AQIReading struct {
	City        string `json:"city"`
	AQI         int    `json:"aqius"`
	DominantPol string `json:"mainus"`
	Timestamp   string `json:"ts"`
}

// AQIAdvisory pairs a reading with clinical advice for citizens.
type AQIAdvisory struct {
	AQIReading
	Category           string   `json:"category"`
	MaskRecommendation string   `json:"mask_recommendation,omitempty"`
	ImmediateActions   []string `json:"immediate_actions"`
}

// AQIService fetches live readings from the WAQI feed and derives the
// advisory shown alongside report portals. Readings are cached in
// Redis per coordinate for ten minutes.
type AQIService struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	rdb        *redis.Client
}

func NewAQIService(token string, rdb *redis.Client) *AQIService {
	return &AQIService{
		BaseURL:    "https://api.waqi.info",
		Token:      token,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		rdb:        rdb,
	}
}

// AQICategory maps a raw AQI value onto the standard severity scale.
func AQICategory(value int) string {
	switch {
	case value <= 50:
		return "Good"
	case value <= 100:
		return "Moderate"
	case value <= 150:
		return "Unhealthy for Sensitive Groups"
	case value <= 200:
		return "Unhealthy"
	case value <= 300:
		return "Very Unhealthy"
	default:
		return "Hazardous"
	}
}

func maskRecommendation(category string) string {
	switch category {
	case "Good", "Moderate":
		return ""
	case "Unhealthy for Sensitive Groups", "Unhealthy":
		return "Recommended (especially for sensitive groups)."
	default:
		return "Strongly recommended."
	}
}

func immediateActions(category string) []string {
	switch category {
	case "Moderate":
		return []string{"Sensitive groups should reduce outdoor exertion."}
	case "Unhealthy for Sensitive Groups":
		return []string{
			"Limit outdoor activities.",
			"Keep rescue inhaler handy if asthmatic.",
		}
	case "Unhealthy":
		return []string{
			"Avoid prolonged outdoor exertion.",
			"Wear a certified mask outdoors.",
		}
	case "Very Unhealthy":
		return []string{
			"Stay indoors.",
			"Run air purifier if possible.",
		}
	case "Hazardous":
		return []string{
			"Avoid going outside completely.",
			"Seek medical attention for any breathing difficulty.",
		}
	default:
		return []string{}
	}
}

// Advise composes the clinical advisory for a reading.
func Advise(reading AQIReading) AQIAdvisory {
	category := AQICategory(reading.AQI)
	return AQIAdvisory{
		AQIReading:         reading,
		Category:           category,
		MaskRecommendation: maskRecommendation(category),
		ImmediateActions:   immediateActions(category),
	}
}

// waqiFeed is the subset of the WAQI response this service reads.
type waqiFeed struct {
	Status string `json:"status"`
	Data   struct {
		AQI  int `json:"aqi"`
		City struct {
			Name string `json:"name"`
		} `json:"city"`
		DominentPol string `json:"dominentpol"`
		Time        struct {
			S string `json:"s"`
		} `json:"time"`
	} `json:"data"`
}

// Fetch returns the advisory for a coordinate, served from cache when
// a reading for (roughly) the same point is fresh.
func (s *AQIService) Fetch(ctx context.Context, lat, lon float64) (*AQIAdvisory, error) {
	cacheKey := fmt.Sprintf("aqi:%.3f:%.3f", lat, lon)
	if s.rdb != nil {
		if raw, err := s.rdb.Get(ctx, cacheKey).Result(); err == nil {
			var advisory AQIAdvisory
			if err := json.Unmarshal([]byte(raw), &advisory); err == nil {
				return &advisory, nil
			}
		}
	}

	url := fmt.Sprintf("%s/feed/geo:%f;%f/?token=%s", s.BaseURL, lat, lon, s.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAQIUpstream, err)
	}
	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAQIUpstream, err)
	}
	defer resp.Body.Close()

	var feed waqiFeed
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAQIUpstream, err)
	}
	if feed.Status != "ok" {
		return nil, fmt.Errorf("%w: status %q", ErrAQIUpstream, feed.Status)
	}

	advisory := Advise(AQIReading{
		City:        feed.Data.City.Name,
		AQI:         feed.Data.AQI,
		DominantPol: feed.Data.DominentPol,
		Timestamp:   feed.Data.Time.S,
	})

	if s.rdb != nil {
		if raw, err := json.Marshal(advisory); err == nil {
			_ = s.rdb.Set(ctx, cacheKey, raw, aqiCacheTTL).Err()
		}
	}
	return &advisory, nil
}
