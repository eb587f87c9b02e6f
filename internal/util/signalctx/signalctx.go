package signalctx

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/vbp1/magicwand/internal/log"
)

// WithSignals возвращает context, который отменяется при получении INT или TERM.
// Отмена завершает запущенные через exec.CommandContext дочерние процессы.
func WithSignals(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(c)
		select {
		case <-ctx.Done():
		case sig := <-c:
			log.Component("signal").Warn().Str("signal", sig.String()).Msg("interrupted, stopping")
			cancel()
		}
	}()

	return ctx, cancel
}
