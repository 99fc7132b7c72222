package watch

import (
	"errors"
	"log/slog"

	"github.com/roach88/assetpack/internal/ir"
)

// LogNotifier reports build failures through a logger. Transform failures
// carry their source excerpt.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(err error) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{"kind", string(ir.KindOf(err)), "error", err}
	var be *ir.BuildError
	if errors.As(err, &be) {
		if be.Path != "" {
			attrs = append(attrs, "path", be.Path)
		}
		if be.Excerpt != "" {
			attrs = append(attrs, "excerpt", "\n"+be.Excerpt)
		}
	}
	logger.Error("watch: build error", attrs...)
}
