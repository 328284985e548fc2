package weather

import (
	"encoding/json"
	"fmt"
	"time"
)

// Reading is immutable result of one successful fetch.
type Reading struct {
	Temperature float64
	Condition   Condition
	Icon        string
	Label       string
	// Observed is provider timestamp in UTC.
	Observed time.Time
	// Local is Observed shifted by configured offset.
	Local time.Time
	// Fetched is loop clock reading taken when response was parsed.
	Fetched time.Time
}

func (r Reading) IsZero() bool { return r.Fetched.IsZero() }

func (r Reading) Age(now time.Time) time.Duration { return now.Sub(r.Fetched) }

func (r Reading) String() string {
	return fmt.Sprintf("%.1fC %s icon=%s local=%s", r.Temperature, r.Condition, r.Icon, r.Local.Format("15:04"))
}

// MarshalJSON is compact form used by telemetry.
func (r Reading) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Temperature float64 `json:"temperature"`
		Condition   string  `json:"condition"`
		Icon        string  `json:"icon"`
		Label       string  `json:"label"`
		Observed    int64   `json:"observed"`
		Local       string  `json:"local"`
	}{
		Temperature: r.Temperature,
		Condition:   r.Condition.String(),
		Icon:        r.Icon,
		Label:       r.Label,
		Observed:    r.Observed.Unix(),
		Local:       r.Local.Format("2006-01-02T15:04:05-07:00"),
	})
}
