package logging

import (
	"log/slog"
	"os"
)

// Setup installs a JSON stdout logger until the database sink is attached.
func Setup() {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
}
