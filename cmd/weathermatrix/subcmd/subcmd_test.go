package subcmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/weathermatrix/internal/config"
)

func TestParse(t *testing.T) {
	t.Parallel()

	noop := func(context.Context, *config.Config) error { return nil }
	mods := []Mod{{Name: "run", Main: noop}, {Name: "check", Main: noop}}

	m, err := Parse("check", mods)
	require.NoError(t, err)
	assert.Equal(t, "check", m.Name)

	_, err = Parse("", mods)
	assert.EqualError(t, err, "empty command")
	_, err = Parse("dance", mods)
	assert.EqualError(t, err, "unknown command='dance'")
	assert.Panics(t, func() { _, _ = Parse("x", []Mod{{}}) })
}
