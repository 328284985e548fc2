package check

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/weathermatrix/internal/config"
	"github.com/temoto/weathermatrix/log2"
)

func TestPrint(t *testing.T) {
	t.Parallel()

	fs := config.NewMockFullReader(map[string]string{"c": `
wifi {
  ssid = "home"
  password = "hunter2"
}
weather {
  apikey = "topsecret"
  lat = 51.5
  lng = -0.12
  tz = -3
}
`})
	cfg, err := config.ReadConfig(log2.NewTest(t, log2.LDebug), fs, nil, "c")
	require.NoError(t, err)
	buf := bytes.NewBuffer(nil)
	require.NoError(t, Print(buf, cfg))
	s := buf.String()
	assert.Contains(t, s, "wifi ssid=home")
	assert.Contains(t, s, "lat=51.5000 lng=-0.1200 tz=-3")
	assert.Contains(t, s, "address=0x70")
	assert.NotContains(t, s, "hunter2")
	assert.NotContains(t, s, "topsecret")
}
