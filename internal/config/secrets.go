package config

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/juju/errors"
)

const (
	EnvPrefix   = "WEATHERMATRIX_"
	EnvSSID     = "SSID"
	EnvPassword = "PASSWORD"
	EnvAPIKey   = "APIKEY"
	EnvLat      = "LAT"
	EnvLng      = "LNG"
	EnvTZ       = "TZ"
)

// LookupEnv has os.LookupEnv signature.
type LookupEnv func(key string) (string, bool)

type secretMap map[string]string

func (m secretMap) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

func readSecrets(fs FullReader, name string) (secretMap, error) {
	norm := fs.Normalize(name)
	b, err := fs.ReadAll(norm)
	if err != nil {
		return nil, errors.Annotatef(err, "read path=%s", norm)
	}
	if b == nil {
		return nil, errors.NotFoundf("secrets file path=%s", norm)
	}
	m, err := godotenv.Parse(bytes.NewReader(b))
	if err != nil {
		return nil, errors.Annotatef(err, "parse path=%s", norm)
	}
	return secretMap(m), nil
}

// applySecrets overrides config values with non-empty lookup results.
func (c *Config) applySecrets(lookup LookupEnv) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	var ce ConfigError

	if v, ok := get(EnvSSID); ok {
		c.Wifi.SSID = v
	}
	if v, ok := get(EnvPassword); ok {
		c.Wifi.Password = v
	}
	if v, ok := get(EnvAPIKey); ok {
		c.Weather.APIKey = v
	}
	if v, ok := get(EnvLat); ok {
		if f, err := strconv.ParseFloat(v, 64); err != nil {
			ce.Fields = append(ce.Fields, FieldError{Field: "weather.lat", Rule: "number"})
		} else {
			c.Weather.Lat = &f
		}
	}
	if v, ok := get(EnvLng); ok {
		if f, err := strconv.ParseFloat(v, 64); err != nil {
			ce.Fields = append(ce.Fields, FieldError{Field: "weather.lng", Rule: "number"})
		} else {
			c.Weather.Lng = &f
		}
	}
	if v, ok := get(EnvTZ); ok {
		if i, err := strconv.Atoi(v); err != nil {
			ce.Fields = append(ce.Fields, FieldError{Field: "weather.tz", Rule: "integer"})
		} else {
			c.Weather.TZ = i
		}
	}

	if len(ce.Fields) != 0 {
		return ce
	}
	return nil
}
