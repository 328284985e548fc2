// Validate configuration and print effective settings.
package check

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/temoto/weathermatrix/cmd/weathermatrix/subcmd"
	"github.com/temoto/weathermatrix/internal/config"
)

var Mod = subcmd.Mod{Name: "check", Help: "validate config and print effective settings", Main: Main}

func Main(ctx context.Context, cfg *config.Config) error {
	return Print(os.Stdout, cfg)
}

// Print never shows secrets.
func Print(w io.Writer, cfg *config.Config) error {
	_, err := fmt.Fprintf(w, `wifi ssid=%s interface=%s connect_timeout=%v
weather url=%s lat=%.4f lng=%.4f tz=%+d temperature=%s daily_limit=%d
schedule poll=%v backoff=%v..%v stale=%v
display i2c=%s/%s#%d address=0x%02x brightness=%d blink=%d angle=%d tick=%v icons+%d
tele enable=%t broker=%s prefix=%s
metrics listen=%s
`,
		cfg.Wifi.SSID, cfg.Wifi.Interface, cfg.ConnectTimeout(),
		cfg.Weather.URL, cfg.Lat(), cfg.Lng(), cfg.Weather.TZ, cfg.Weather.Temperature, cfg.Weather.DailyLimit,
		cfg.PollInterval(), cfg.BackoffBase(), cfg.BackoffCeiling(), cfg.Stale(),
		cfg.Display.I2CDriver, cfg.Display.I2CBus, cfg.Display.I2CBusNo, cfg.Display.Address,
		cfg.Display.Brightness, cfg.Display.Blink, cfg.Display.Angle, cfg.Tick(), len(cfg.Display.Icons),
		cfg.Tele.Enable, cfg.Tele.Broker, cfg.Tele.TopicPrefix,
		cfg.Metrics.Listen,
	)
	return err
}
