package main

import (
	"log/slog"
	"os"

	"github.com/colorlens/colorlens/cmd/colorlens/commands"
)

func main() {
	// Logs go to stderr so command output stays pipeable
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: commands.LogLevel,
	}))
	slog.SetDefault(logger)

	commands.Execute()
}
