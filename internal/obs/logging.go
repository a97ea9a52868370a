package obs

import (
	"log/slog"
	"os"
	"strings"
)

// InitLogging configures a global slog logger. JSON if OMNISKETCH_JSON_LOG
// is 1/true/json, else a human-readable text handler. Source locations are
// only attached at debug level, so the hot Add/Estimate path does not pay
// runtime.Caller's cost at info level.
func InitLogging(component string) *slog.Logger {
	mode := strings.ToLower(os.Getenv("OMNISKETCH_JSON_LOG"))
	level := levelFromEnv()
	opts := &slog.HandlerOptions{AddSource: level.Level() <= slog.LevelDebug, Level: level}

	var handler slog.Handler
	if mode == "1" || mode == "true" || mode == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler).With("component", component)
	slog.SetDefault(logger)
	logger.Info("logging initialized", "json", mode == "1" || mode == "true" || mode == "json", "source", opts.AddSource)
	return logger
}

// WithShard returns a logger carrying the shard's ID as a structured field,
// so log lines about one shard (internal/schedule's compaction,
// cmd/omnisketchd's record handler) can be correlated without repeating
// "shard", shardID at every call site.
func WithShard(logger *slog.Logger, shardID string) *slog.Logger {
	return logger.With("shard", shardID)
}

func levelFromEnv() slog.Leveler {
	switch strings.ToLower(os.Getenv("OMNISKETCH_LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "info", "":
		return slog.LevelInfo
	default:
		return slog.LevelInfo
	}
}
