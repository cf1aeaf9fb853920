package storage

import (
	"fmt"
	"log/slog"
	"strings"
)

// badgerLogger routes badger's printf-style logging into slog.
type badgerLogger struct {
	logger *slog.Logger
}

func newBadgerLogger(logger *slog.Logger) *badgerLogger {
	return &badgerLogger{logger: logger.With("component", "badger")}
}

func format(f string, v ...interface{}) string {
	return strings.TrimSpace(fmt.Sprintf(f, v...))
}

func (l *badgerLogger) Errorf(f string, v ...interface{})   { l.logger.Error(format(f, v...)) }
func (l *badgerLogger) Warningf(f string, v ...interface{}) { l.logger.Warn(format(f, v...)) }
func (l *badgerLogger) Infof(f string, v ...interface{})    { l.logger.Debug(format(f, v...)) }
func (l *badgerLogger) Debugf(f string, v ...interface{})   { l.logger.Debug(format(f, v...)) }
