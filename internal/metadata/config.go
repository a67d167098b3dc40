// Package metadata talks to the assay metadata REST API.
package metadata

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// DefaultURL is used when API_URL is unset.
const DefaultURL = "https://api.clue.io/api/"

// ErrNoAPIKey is returned when a client is built without a user key.
var ErrNoAPIKey = errors.New("API_KEY is not set")

// Config holds API access settings.
type Config struct {
	APIKey   string        `env:"API_KEY"`
	URL      string        `env:"API_URL"       envDefault:"https://api.clue.io/api/"`
	Timeout  time.Duration `env:"API_TIMEOUT"   envDefault:"30s"`
	PrismKey string        `env:"API_PRISM_KEY" envDefault:"prism_mts"`
}

// LoadConfig reads Config from the environment and normalizes the URL.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse API environment: %w", err)
	}
	u, err := NormalizeURL(cfg.URL)
	if err != nil {
		return Config{}, err
	}
	cfg.URL = u
	return cfg, nil
}

// NormalizeURL makes sure raw ends in "/api/". Both "https://host" and
// "https://host/api" become "https://host/api/".
func NormalizeURL(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return DefaultURL, nil
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid API_URL %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid API_URL %q: need scheme and host", raw)
	}
	p := strings.TrimRight(u.Path, "/")
	if !strings.HasSuffix(p, "/api") {
		p += "/api"
	}
	u.Path = p + "/"
	u.RawQuery = ""
	return u.String(), nil
}
