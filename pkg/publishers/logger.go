package publishers

import "github.com/samvad-hq/samvad-news-feed/internal/logger"

// Logger is the logging surface sinks report delivery through.
type Logger = logger.Logger

func ensureLogger(log Logger) Logger {
	return logger.Ensure(log)
}
