package health

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"overseerr-tg-bot/internal/config"
)

// Writer keeps a liveness file fresh so container health checks can probe
// the bot from outside the process.
type Writer struct {
	path     string
	interval time.Duration
	logger   *slog.Logger
}

// NewWriter creates a liveness-file writer.
func NewWriter(cfg config.HealthConfig, logger *slog.Logger) *Writer {
	return &Writer{
		path:     cfg.FilePath,
		interval: cfg.Interval,
		logger:   logger,
	}
}

// Run rewrites the liveness file on every tick until the context is
// cancelled, then removes it.
func (w *Writer) Run(ctx context.Context) error {
	if dir := filepath.Dir(w.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create health file directory: %w", err)
		}
	}

	if err := w.touch(); err != nil {
		w.logger.Error("failed to write health file", "error", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := os.Remove(w.path); err != nil && !os.IsNotExist(err) {
				w.logger.Warn("failed to remove health file", "error", err)
			}
			return ctx.Err()
		case <-ticker.C:
			if err := w.touch(); err != nil {
				w.logger.Error("failed to write health file", "error", err)
			}
		}
	}
}

func (w *Writer) touch() error {
	content := fmt.Sprintf("Bot is healthy at %s\n", time.Now().UTC().Format(time.RFC3339))
	return os.WriteFile(w.path, []byte(content), 0o644)
}
