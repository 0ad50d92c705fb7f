package storage

import "github.com/sirupsen/logrus"

// badgerLogger routes BadgerDB output into the engine logger. BadgerDB is
// chatty at info level (compaction, value log GC), so Infof is demoted to debug.
type badgerLogger struct {
	log logrus.FieldLogger
}

func newBadgerLogger(log logrus.FieldLogger) *badgerLogger {
	return &badgerLogger{log: log.WithField("component", "badger")}
}

func (l *badgerLogger) Errorf(format string, args ...any)   { l.log.Errorf(format, args...) }
func (l *badgerLogger) Warningf(format string, args ...any) { l.log.Warnf(format, args...) }
func (l *badgerLogger) Infof(format string, args ...any)    { l.log.Debugf(format, args...) }
func (l *badgerLogger) Debugf(format string, args ...any)   { l.log.Debugf(format, args...) }
