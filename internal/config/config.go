// Package config reads immutable device configuration:
// HCL files with includes, dotenv secrets and environment overrides.
package config

import (
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/temoto/weathermatrix/helpers"
	"github.com/temoto/weathermatrix/log2"
)

const (
	DefaultWeatherURL     = "https://api.openweathermap.org/data/2.5/weather"
	DefaultConnectTimeout = 20 * time.Second
	DefaultRequestTimeout = 10 * time.Second
	DefaultPollInterval   = 10 * time.Minute
	DefaultBackoffBase    = 5 * time.Second
	DefaultBackoffCeiling = 5 * time.Minute
	DefaultStale          = 30 * time.Minute
	DefaultTick           = 100 * time.Millisecond
	DefaultDwell          = 2 * time.Second
	DefaultReplay         = 20 * time.Second
	DefaultDailyLimit     = 990
	DefaultBanner         = "PicoWeather"
)

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []Source `hcl:"include"`

	SecretsFile string `hcl:"secrets_file"`

	Wifi struct {
		SSID              string `hcl:"ssid" validate:"required"`
		Password          string `hcl:"password" validate:"required"`
		Interface         string `hcl:"interface"`
		ConnectTimeoutSec int    `hcl:"connect_timeout_sec" validate:"gte=0"`
		LogDebug          bool   `hcl:"log_debug"`
	} `hcl:"wifi"`

	Weather struct {
		APIKey            string   `hcl:"apikey" validate:"required"`
		Lat               *float64 `hcl:"lat" validate:"required,gte=-90,lte=90"`
		Lng               *float64 `hcl:"lng" validate:"required,gte=-180,lte=180"`
		TZ                int      `hcl:"tz" validate:"gte=-12,lte=14"`
		URL               string   `hcl:"url" validate:"omitempty,url"`
		Temperature       string   `hcl:"temperature" validate:"omitempty,oneof=temp feels_like"`
		RequestTimeoutSec int      `hcl:"request_timeout_sec" validate:"gte=0"`
		DailyLimit        int      `hcl:"daily_limit" validate:"gte=0"`
		LogDebug          bool     `hcl:"log_debug"`
	} `hcl:"weather"`

	Schedule struct {
		PollIntervalSec   int  `hcl:"poll_interval_sec" validate:"gte=0"`
		BackoffBaseSec    int  `hcl:"backoff_base_sec" validate:"gte=0"`
		BackoffCeilingSec int  `hcl:"backoff_ceiling_sec" validate:"gte=0"`
		StaleSec          int  `hcl:"stale_sec" validate:"gte=0"`
		LogDebug          bool `hcl:"log_debug"`
	} `hcl:"schedule"`

	Display struct {
		I2CDriver       string       `hcl:"i2c_driver" validate:"omitempty,oneof=periph raw"`
		I2CBus          string       `hcl:"i2c_bus"`
		I2CBusNo        int          `hcl:"i2c_bus_no" validate:"gte=0,lte=255"`
		Address         int          `hcl:"address" validate:"gte=0,lte=127"`
		Brightness      int          `hcl:"brightness" validate:"gte=0,lte=15"`
		Blink           int          `hcl:"blink" validate:"gte=0,lte=3"`
		Angle           int          `hcl:"angle" validate:"oneof=0 90 180 270"`
		TickMs          int          `hcl:"tick_ms" validate:"gte=0"`
		ScrollStep      int          `hcl:"scroll_step" validate:"gte=0,lte=8"`
		DwellMs         int          `hcl:"dwell_ms" validate:"gte=0"`
		ReplaySec       int          `hcl:"replay_sec" validate:"gte=0"`
		ScrollCondition bool         `hcl:"scroll_condition"`
		Banner          string       `hcl:"banner"`
		Icons           []IconConfig `hcl:"icon" validate:"dive"`
		LogDebug        bool         `hcl:"log_debug"`
	} `hcl:"display"`

	GPIO struct {
		Chip      string `hcl:"chip"`
		LedPin    string `hcl:"led_pin" validate:"omitempty,numeric"`
		PowerPin  string `hcl:"power_pin" validate:"omitempty,numeric"`
		ButtonPin string `hcl:"button_pin" validate:"omitempty,numeric"`
	} `hcl:"gpio"`

	Tele struct {
		Enable       bool   `hcl:"enable"`
		Broker       string `hcl:"broker" validate:"required_if=Enable true"`
		ClientID     string `hcl:"client_id"`
		Username     string `hcl:"username"`
		Password     string `hcl:"password"`
		TopicPrefix  string `hcl:"topic_prefix"`
		TLSCAFile    string `hcl:"tls_ca_file"`
		KeepaliveSec int    `hcl:"keepalive_sec" validate:"gte=0"`
		LogDebug     bool   `hcl:"log_debug"`
	} `hcl:"tele"`

	Metrics struct {
		Listen string `hcl:"listen" validate:"omitempty,hostname_port"`
	} `hcl:"metrics"`

	_copy_guard sync.Mutex //nolint:unused
}

type Source struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

// IconConfig overrides or adds display icon, bitmap is 8 hex column bytes.
type IconConfig struct {
	Name   string `hcl:"name,key" validate:"required"`
	Bitmap string `hcl:"bitmap" validate:"required"`
}

func (c *Config) Lat() float64 { return derefFloat(c.Weather.Lat) }
func (c *Config) Lng() float64 { return derefFloat(c.Weather.Lng) }

func (c *Config) ConnectTimeout() time.Duration {
	return helpers.IntSecondDefault(c.Wifi.ConnectTimeoutSec, DefaultConnectTimeout)
}
func (c *Config) RequestTimeout() time.Duration {
	return helpers.IntSecondDefault(c.Weather.RequestTimeoutSec, DefaultRequestTimeout)
}
func (c *Config) PollInterval() time.Duration {
	return helpers.IntSecondDefault(c.Schedule.PollIntervalSec, DefaultPollInterval)
}
func (c *Config) BackoffBase() time.Duration {
	return helpers.IntSecondDefault(c.Schedule.BackoffBaseSec, DefaultBackoffBase)
}
func (c *Config) BackoffCeiling() time.Duration {
	return helpers.IntSecondDefault(c.Schedule.BackoffCeilingSec, DefaultBackoffCeiling)
}
func (c *Config) Stale() time.Duration {
	return helpers.IntSecondDefault(c.Schedule.StaleSec, DefaultStale)
}
func (c *Config) Tick() time.Duration {
	return helpers.IntMillisecondDefault(c.Display.TickMs, DefaultTick)
}
func (c *Config) Dwell() time.Duration {
	return helpers.IntMillisecondDefault(c.Display.DwellMs, DefaultDwell)
}
func (c *Config) Replay() time.Duration {
	return helpers.IntSecondDefault(c.Display.ReplaySec, DefaultReplay)
}

func (c *Config) read(log *log2.Log, fs FullReader, source Source, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[source.Name] = struct{}{}
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	err = hcl.Unmarshal(bs, c)
	if err != nil {
		err = errors.Annotatef(err, "config unmarshal source=%s", source.Name)
		*errs = append(*errs, err)
		return
	}

	var includes []Source
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

// ReadConfig builds Config from HCL sources, secrets file and env (may be nil).
// Secrets file keys are SSID, PASSWORD, APIKEY, LAT, LNG, TZ;
// same keys with EnvPrefix in env override both.
// Returns ConfigError (see errors.Cause) when required fields are missing or invalid.
func ReadConfig(log *log2.Log, fs FullReader, env LookupEnv, names ...string) (*Config, error) {
	if len(names) == 0 {
		return nil, errors.New("code error ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		if dir != "" {
			osfs.SetBase(dir)
		}
		names[0] = name
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, Source{Name: name}, &errs)
	}
	if err := helpers.FoldErrors(errs); err != nil {
		return nil, err
	}

	if c.SecretsFile != "" {
		secrets, err := readSecrets(fs, c.SecretsFile)
		if err != nil {
			return nil, errors.Annotate(err, "secrets")
		}
		if err = c.applySecrets(secrets.Lookup); err != nil {
			return nil, err
		}
	}
	if env != nil {
		prefixed := func(key string) (string, bool) { return env(EnvPrefix + key) }
		if err := c.applySecrets(prefixed); err != nil {
			return nil, err
		}
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	c.applyDefaults()
	return c, nil
}

func MustReadConfig(log *log2.Log, fs FullReader, env LookupEnv, names ...string) *Config {
	c, err := ReadConfig(log, fs, env, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("hcl"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

func (c *Config) validate() error {
	ce := ConfigError{}
	if err := getValidator().Struct(c); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return errors.Annotate(err, "config validate")
		}
		for _, fe := range verrs {
			name := fe.Namespace()
			if i := strings.IndexByte(name, '.'); i >= 0 {
				name = name[i+1:]
			}
			ce.Fields = append(ce.Fields, FieldError{
				Field:   name,
				Missing: fe.Tag() == "required",
				Rule:    fe.Tag(),
			})
		}
	}
	// defaults count, stale reading must outlive poll interval
	if c.Stale() < c.PollInterval() {
		ce.Fields = append(ce.Fields, FieldError{Field: "schedule.stale_sec", Rule: "gte=poll_interval_sec"})
	}
	if c.BackoffCeiling() < c.BackoffBase() {
		ce.Fields = append(ce.Fields, FieldError{Field: "schedule.backoff_ceiling_sec", Rule: "gte=backoff_base_sec"})
	}
	if len(ce.Fields) != 0 {
		return ce
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Weather.URL == "" {
		c.Weather.URL = DefaultWeatherURL
	}
	if c.Weather.Temperature == "" {
		c.Weather.Temperature = "temp"
	}
	if c.Weather.DailyLimit == 0 {
		c.Weather.DailyLimit = DefaultDailyLimit
	}
	if c.Display.I2CDriver == "" {
		c.Display.I2CDriver = "periph"
	}
	if c.Display.Address == 0 {
		c.Display.Address = 0x70
	}
	if c.Display.ScrollStep == 0 {
		c.Display.ScrollStep = 1
	}
	if c.Display.Banner == "" {
		c.Display.Banner = DefaultBanner
	}
	if c.GPIO.Chip == "" {
		c.GPIO.Chip = "/dev/gpiochip0"
	}
	if c.Tele.ClientID == "" {
		c.Tele.ClientID = "weathermatrix"
	}
	if c.Tele.TopicPrefix == "" {
		c.Tele.TopicPrefix = "weathermatrix"
	}
}

func derefFloat(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
