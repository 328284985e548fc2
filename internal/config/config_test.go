package config

import (
	"strings"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/weathermatrix/log2"
)

const testSecrets = `
SSID=homenet
PASSWORD="pass word"
APIKEY=X
LAT=51.5
LNG=-0.12
TZ=1
`

func TestReadConfig(t *testing.T) {
	t.Parallel()

	type Case struct {
		name      string
		files     map[string]string
		env       map[string]string
		check     func(testing.TB, *Config)
		expectErr string
	}
	cases := []Case{
		{"secrets-file",
			map[string]string{
				"main.hcl":    `secrets_file = "secrets.env"`,
				"secrets.env": testSecrets,
			}, nil,
			func(t testing.TB, c *Config) {
				assert.Equal(t, "homenet", c.Wifi.SSID)
				assert.Equal(t, "pass word", c.Wifi.Password)
				assert.Equal(t, "X", c.Weather.APIKey)
				assert.Equal(t, 51.5, c.Lat())
				assert.Equal(t, -0.12, c.Lng())
				assert.Equal(t, 1, c.Weather.TZ)
			}, ""},

		{"defaults",
			map[string]string{
				"main.hcl": `
wifi { ssid = "a" password = "b" }
weather { apikey = "k" lat = 0 lng = 0 }`,
			}, nil,
			func(t testing.TB, c *Config) {
				assert.Equal(t, 0.0, c.Lat())
				assert.Equal(t, 0, c.Weather.TZ)
				assert.Equal(t, DefaultWeatherURL, c.Weather.URL)
				assert.Equal(t, "temp", c.Weather.Temperature)
				assert.Equal(t, DefaultDailyLimit, c.Weather.DailyLimit)
				assert.Equal(t, 0x70, c.Display.Address)
				assert.Equal(t, 1, c.Display.ScrollStep)
				assert.Equal(t, DefaultTick, c.Tick())
				assert.Equal(t, DefaultPollInterval, c.PollInterval())
				assert.Equal(t, DefaultBackoffBase, c.BackoffBase())
				assert.Equal(t, DefaultBackoffCeiling, c.BackoffCeiling())
				assert.Equal(t, DefaultReplay, c.Replay())
			}, ""},

		{"env-override",
			map[string]string{
				"main.hcl": `
secrets_file = "secrets.env"
schedule { poll_interval_sec = 300 }
display { tick_ms = 50 }`,
				"secrets.env": testSecrets,
			},
			map[string]string{"WEATHERMATRIX_APIKEY": "Y", "WEATHERMATRIX_TZ": "-5", "TZ": "Europe/London"},
			func(t testing.TB, c *Config) {
				assert.Equal(t, "Y", c.Weather.APIKey)
				assert.Equal(t, -5, c.Weather.TZ)
				assert.Equal(t, "homenet", c.Wifi.SSID)
				assert.Equal(t, 5*time.Minute, c.PollInterval())
				assert.Equal(t, 50*time.Millisecond, c.Tick())
			}, ""},

		{"include",
			map[string]string{
				"main.hcl": `
include "secrets.hcl" {}
include "local.hcl" { optional = true }
display { brightness = 3 }`,
				"secrets.hcl": `
wifi { ssid = "a" password = "b" }
weather { apikey = "k" lat = 10.25 lng = -20 }
display { brightness = 9 }`,
			}, nil,
			func(t testing.TB, c *Config) {
				assert.Equal(t, 10.25, c.Lat())
				assert.Equal(t, -20.0, c.Lng())
				assert.Equal(t, 9, c.Display.Brightness, "include is read after including file")
			}, ""},

		{"icons",
			map[string]string{
				"main.hcl": `
secrets_file = "secrets.env"
display {
	icon "sun" { bitmap = "91 42 18 3d bc 18 42 89" }
	icon "fog" { bitmap = "aa 55 aa 55 aa 55 aa 55" }
}`,
				"secrets.env": testSecrets,
			}, nil,
			func(t testing.TB, c *Config) {
				require.Len(t, c.Display.Icons, 2)
				assert.Equal(t, "sun", c.Display.Icons[0].Name)
				assert.Equal(t, "aa 55 aa 55 aa 55 aa 55", c.Display.Icons[1].Bitmap)
			}, ""},

		{"include-required-missing",
			map[string]string{"main.hcl": `include "nope.hcl" {}`}, nil,
			nil, "config required name=nope.hcl"},

		{"include-loop",
			map[string]string{
				"main.hcl":  `include "other.hcl" {}`,
				"other.hcl": `include "main.hcl" {}`,
			}, nil,
			nil, "config include loop: from=other.hcl include=main.hcl"},

		{"secrets-missing",
			map[string]string{"main.hcl": `secrets_file = "secrets.env"`}, nil,
			nil, "secrets file path=secrets.env not found"},

		{"hcl-syntax",
			map[string]string{"main.hcl": `wifi {`}, nil,
			nil, "config unmarshal source=main.hcl"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			log := log2.NewTest(t, log2.LDebug)
			fs := NewMockFullReader(c.files)
			env := func(key string) (string, bool) { v, ok := c.env[key]; return v, ok }
			cfg, err := ReadConfig(log, fs, env, "main.hcl")
			if c.expectErr == "" {
				require.NoError(t, err, errors.ErrorStack(err))
				c.check(t, cfg)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), c.expectErr)
			}
		})
	}
}

func TestConfigError(t *testing.T) {
	t.Parallel()

	type Case struct {
		name    string
		input   string
		missing []string
		invalid []string
	}
	cases := []Case{
		{"empty", "",
			[]string{"wifi.ssid", "wifi.password", "weather.apikey", "weather.lat", "weather.lng"}, nil},
		{"no-password", `
wifi { ssid = "a" }
weather { apikey = "k" lat = 1 lng = 2 }`,
			[]string{"wifi.password"}, nil},
		{"range", `
wifi { ssid = "a" password = "b" }
weather { apikey = "k" lat = 95 lng = -200 tz = 20 }
display { angle = 45 }`,
			nil, []string{"weather.lat", "weather.lng", "weather.tz", "display.angle"}},
		{"tele", `
wifi { ssid = "a" password = "b" }
weather { apikey = "k" lat = 1 lng = 2 }
tele { enable = true }`,
			nil, []string{"tele.broker"}},
		{"schedule", `
wifi {
  ssid = "a"
  password = "b"
}
weather {
  apikey = "k"
  lat = 1
  lng = 2
}
schedule {
  poll_interval_sec = 3600
  backoff_base_sec = 600
}`,
			nil, []string{"schedule.stale_sec", "schedule.backoff_ceiling_sec"}},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			fs := NewMockFullReader(map[string]string{"main.hcl": c.input})
			_, err := ReadConfig(log2.NewTest(t, log2.LError), fs, nil, "main.hcl")
			require.Error(t, err)
			ce, ok := errors.Cause(err).(ConfigError)
			require.True(t, ok, "expected ConfigError, got %#v", err)
			assert.ElementsMatch(t, c.missing, ce.MissingFields())
			var invalid []string
			for _, fe := range ce.Fields {
				if !fe.Missing {
					invalid = append(invalid, fe.Field)
				}
			}
			assert.ElementsMatch(t, c.invalid, invalid)
			assert.True(t, strings.HasPrefix(err.Error(), "config: "))
		})
	}
}

func TestSecretsBadNumber(t *testing.T) {
	t.Parallel()

	fs := NewMockFullReader(map[string]string{
		"main.hcl": `secrets_file = "s.env"`,
		"s.env":    "SSID=a\nPASSWORD=b\nAPIKEY=k\nLAT=north\nLNG=2\n",
	})
	_, err := ReadConfig(log2.NewTest(t, log2.LError), fs, nil, "main.hcl")
	ce, ok := errors.Cause(err).(ConfigError)
	require.True(t, ok)
	require.Len(t, ce.Fields, 1)
	assert.Equal(t, FieldError{Field: "weather.lat", Rule: "number"}, ce.Fields[0])
}
