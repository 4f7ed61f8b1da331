package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"time"

	"github.com/smartsetter/ssot_backend/config"
	"github.com/smartsetter/ssot_backend/models"
	"github.com/smartsetter/ssot_backend/utils"
)

var httpClient = &http.Client{Timeout: 15 * time.Second}

const zipCacheTTL = 30 * 24 * time.Hour

var (
	usZipPattern = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
	caZipPattern = regexp.MustCompile(`^[A-Za-z]\d[A-Za-z]\s?(\d[A-Za-z]\d)?$`)
)

// CountryHintFromZip guesses the country from the postal code shape. US ZIP
// and ZIP+4 codes are all digits; Canadian codes alternate letters and
// digits. Unknown shapes default to US.
func CountryHintFromZip(zip string) string {
	if caZipPattern.MatchString(zip) {
		return "CA"
	}
	if usZipPattern.MatchString(zip) {
		return "US"
	}
	return utils.CountryCode
}

type geocodeResult struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// LocationForZipcode resolves a postal code to a point through the zip index
// service, caching hits in redis. A nil result with nil error means the index
// has no entry for the code.
func LocationForZipcode(ctx context.Context, zip string) (*models.Point, error) {
	if zip == "" {
		return nil, nil
	}

	cacheKey := "zip_location:" + zip
	var cached geocodeResult
	if found, err := config.GetRedisObject(cacheKey, &cached); err == nil && found {
		return &models.Point{Lng: cached.Lng, Lat: cached.Lat}, nil
	}

	baseURL := os.Getenv("ZIP_INDEX_URL")
	if baseURL == "" {
		return nil, nil
	}
	endpoint := fmt.Sprintf("%s/zip/%s?country=%s",
		baseURL, url.PathEscape(zip), CountryHintFromZip(zip))

	result, err := fetchGeocode(ctx, endpoint)
	if err != nil || result == nil {
		return nil, err
	}

	if err := config.SetRedisObject(cacheKey, result, zipCacheTTL); err != nil {
		config.LogError(config.GetLogger(), "geo", "LocationForZipcode", "cache write",
			map[string]any{"zip": zip}, err)
	}
	return &models.Point{Lng: result.Lng, Lat: result.Lat}, nil
}

// GeocodeAddress resolves a street address through the fallback geocoding
// API. Used when the postal code alone cannot be resolved.
func GeocodeAddress(ctx context.Context, address, city, state, zip string) (*models.Point, error) {
	baseURL := os.Getenv("GEOCODER_URL")
	if baseURL == "" {
		return nil, nil
	}

	query := url.Values{}
	query.Set("address", address)
	query.Set("city", city)
	query.Set("state", state)
	query.Set("zip", zip)
	query.Set("country", CountryHintFromZip(zip))

	result, err := fetchGeocode(ctx, baseURL+"/geocode?"+query.Encode())
	if err != nil || result == nil {
		return nil, err
	}
	return &models.Point{Lng: result.Lng, Lat: result.Lat}, nil
}

func fetchGeocode(ctx context.Context, endpoint string) (*geocodeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if apiKey := os.Getenv("GEOCODER_API_KEY"); apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrorExternalService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: geocoder returned %d", utils.ErrorExternalService, resp.StatusCode)
	}

	var result geocodeResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if result.Lat == 0 && result.Lng == 0 {
		return nil, nil
	}
	return &result, nil
}
