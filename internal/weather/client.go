// Package weather fetches current conditions and parses them into Reading.
package weather

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/weathermatrix/helpers"
	"github.com/temoto/weathermatrix/log2"
)

const (
	FieldTemp      = "temp"
	FieldFeelsLike = "feels_like"
)

// Link is the subset of network.Session used here.
type Link interface {
	EnsureConnected(ctx context.Context) error
	Request(ctx context.Context, url string, headers map[string]string) ([]byte, error)
}

type Config struct {
	URL    string
	APIKey string
	Lat    float64
	Lng    float64
	// TZ is signed UTC offset in hours.
	TZ int
	// Field selects temperature value: "temp" (default) or "feels_like".
	Field string
	Lang  string
}

type Client struct {
	log    *log2.Log
	config Config
	link   Link
	clock  helpers.Clock
	url    string
}

func NewClient(log *log2.Log, c Config, link Link, clock helpers.Clock) *Client {
	if c.Field == "" {
		c.Field = FieldTemp
	}
	if c.Lang == "" {
		c.Lang = "en"
	}
	if clock == nil {
		clock = helpers.SystemClock{}
	}
	self := &Client{
		log:    log,
		config: c,
		link:   link,
		clock:  clock,
	}
	self.url = self.buildURL()
	return self
}

func (self *Client) buildURL() string {
	values := url.Values{}
	values.Set("lat", strconv.FormatFloat(self.config.Lat, 'f', 6, 64))
	values.Set("lon", strconv.FormatFloat(self.config.Lng, 'f', 6, 64))
	values.Set("appid", self.config.APIKey)
	values.Set("units", "metric")
	values.Set("lang", self.config.Lang)
	return self.config.URL + "?" + values.Encode()
}

// Fetch performs single request and parse. No retries.
func (self *Client) Fetch(ctx context.Context) (Reading, error) {
	if err := self.link.EnsureConnected(ctx); err != nil {
		return Reading{}, FetchError{Kind: FetchNetwork, Err: err}
	}
	body, err := self.link.Request(ctx, self.url, map[string]string{"Accept": "application/json"})
	if err != nil {
		return Reading{}, FetchError{Kind: FetchNetwork, Err: err}
	}
	r, err := Parse(body, self.config.Field, self.config.TZ, self.clock.Now())
	if err != nil {
		self.log.Debugf("weather malformed body=%q", helpers.Truncate(body, 200))
		return Reading{}, err
	}
	self.log.Debugf("weather reading %s", r.String())
	return r, nil
}

type payload struct {
	Dt   *int64 `json:"dt"`
	Main *struct {
		Temp      *float64 `json:"temp"`
		FeelsLike *float64 `json:"feels_like"`
	} `json:"main"`
	Weather []struct {
		ID   int    `json:"id"`
		Main string `json:"main"`
		Icon string `json:"icon"`
	} `json:"weather"`
}

// Parse builds Reading from response body.
// fetched is clock reading, its wall part substitutes missing provider timestamp.
func Parse(body []byte, field string, tz int, fetched time.Time) (Reading, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return Reading{}, malformed("empty body")
	}
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return Reading{}, FetchError{Kind: FetchMalformed, Err: errors.Annotate(err, "json")}
	}
	if p.Main == nil {
		return Reading{}, malformed("main absent")
	}
	temp := p.Main.Temp
	if field == FieldFeelsLike && p.Main.FeelsLike != nil {
		temp = p.Main.FeelsLike
	}
	if temp == nil {
		return Reading{}, malformed("main.%s absent", field)
	}
	if len(p.Weather) == 0 {
		return Reading{}, malformed("weather condition absent")
	}

	w := p.Weather[0]
	cond, icon, label := Classify(w.ID, w.Main, w.Icon)
	observed := fetched.UTC().Round(0)
	if p.Dt != nil && *p.Dt > 0 {
		observed = time.Unix(*p.Dt, 0).UTC()
	}
	r := Reading{
		Temperature: *temp,
		Condition:   cond,
		Icon:        icon,
		Label:       label,
		Observed:    observed,
		Local:       observed.In(time.FixedZone("", tz*3600)),
		Fetched:     fetched,
	}
	return r, nil
}
