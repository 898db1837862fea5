package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/addiskers/webp/internal/config"
	"github.com/addiskers/webp/internal/model"
)

// NewLogger builds the logrus logger described by cfg, writing to w.
// --verbose forces debug level regardless of the configured level.
func NewLogger(cfg *config.Config, w io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitInvalidConfig,
			fmt.Sprintf("invalid log level %q", cfg.LogLevel), err)
	}
	if verbose {
		level = logrus.DebugLevel
	}

	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetLevel(level)

	switch cfg.LogFormat {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}

// verboseLogger carries --verbose traces for commands that run before a
// config-driven logger exists.
var verboseLogger = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return l
}()

// VerboseLog emits a debug trace on stderr when --verbose is set.
func VerboseLog(format string, args ...interface{}) {
	if !verbose {
		return
	}
	verboseLogger.SetLevel(logrus.DebugLevel)
	verboseLogger.Debugf(format, args...)
}
