package tele

import (
	"context"

	"github.com/temoto/weathermatrix/log2"
)

// Tele transport contract:
// - Init fails only with invalid config, ignores network errors
// - application may start without network available
// - Publish must not block for long, delivery is best effort
type Transporter interface {
	Init(ctx context.Context, log *log2.Log, c Config) error
	Publish(topicSuffix string, payload []byte, retained bool) bool
	Close()
}
