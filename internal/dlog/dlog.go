// Package dlog provides a context.Context-scoped logging facade over
// logrus, so call sites never reach for a package-global logger.
package dlog

import (
	"context"

	"github.com/sirupsen/logrus"
)

type loggerKey struct{}

// WithLogger returns a context carrying the given entry. Use WithField(s)
// to attach structured fields before storing a new logger in the context.
func WithLogger(ctx context.Context, entry *logrus.Entry) context.Context {
	return context.WithValue(ctx, loggerKey{}, entry)
}

// WithField returns a context whose logger has the given field attached.
func WithField(ctx context.Context, key string, value interface{}) context.Context {
	return WithLogger(ctx, entryFrom(ctx).WithField(key, value))
}

// WithFields returns a context whose logger has the given fields attached.
func WithFields(ctx context.Context, fields logrus.Fields) context.Context {
	return WithLogger(ctx, entryFrom(ctx).WithFields(fields))
}

func entryFrom(ctx context.Context) *logrus.Entry {
	if e, ok := ctx.Value(loggerKey{}).(*logrus.Entry); ok {
		return e
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

func Trace(ctx context.Context, args ...interface{})            { entryFrom(ctx).Trace(args...) }
func Tracef(ctx context.Context, f string, a ...interface{})     { entryFrom(ctx).Tracef(f, a...) }
func Debug(ctx context.Context, args ...interface{})             { entryFrom(ctx).Debug(args...) }
func Debugf(ctx context.Context, f string, a ...interface{})     { entryFrom(ctx).Debugf(f, a...) }
func Info(ctx context.Context, args ...interface{})              { entryFrom(ctx).Info(args...) }
func Infof(ctx context.Context, f string, a ...interface{})      { entryFrom(ctx).Infof(f, a...) }
func Warn(ctx context.Context, args ...interface{})              { entryFrom(ctx).Warn(args...) }
func Warnf(ctx context.Context, f string, a ...interface{})      { entryFrom(ctx).Warnf(f, a...) }
func Error(ctx context.Context, args ...interface{})             { entryFrom(ctx).Error(args...) }
func Errorf(ctx context.Context, f string, a ...interface{})     { entryFrom(ctx).Errorf(f, a...) }
