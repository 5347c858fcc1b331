// Package logging builds the process logger.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/sirupsen/logrus"

	"github.com/high-horse/fingerprint-server/config"
)

type Fields = logrus.Fields

const (
	filePattern = "fingerprint-%Y%m%d.log"
	linkName    = "fingerprint.log"
)

// New returns a logger writing to out (stderr when nil) and, when cfg.Dir is
// set, to a daily rotated file in that directory.
func New(cfg config.Log, out io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	if out == nil {
		out = os.Stderr
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetReportCaller(true)
	logger.SetFormatter(&formatter.Formatter{
		NoColors:        cfg.NoColors,
		TimestampFormat: "02 Jan 06 - 15:04:05",
		CallerFirst:     true,
		CustomCallerFormatter: func(f *runtime.Frame) string {
			s := strings.Split(f.Function, ".")
			return fmt.Sprintf(" [%s:%d][%s()]", path.Base(f.File), f.Line, s[len(s)-1])
		},
	})

	writers := []io.Writer{out}
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("log dir: %w", err)
		}
		rl, err := rotatelogs.New(
			filepath.Join(cfg.Dir, filePattern),
			rotatelogs.WithLinkName(filepath.Join(cfg.Dir, linkName)),
			rotatelogs.WithMaxAge(cfg.MaxAge),
			rotatelogs.WithRotationTime(cfg.RotationTime),
		)
		if err != nil {
			return nil, fmt.Errorf("rotating log file: %w", err)
		}
		writers = append(writers, rl)
	}
	logger.SetOutput(io.MultiWriter(writers...))
	return logger, nil
}

type requestIDKey struct{}

// WithRequestID stores the request id for Entry.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id stored by WithRequestID, or "unknown".
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return "unknown"
}

// Entry is logger tagged with the request id carried by ctx.
func Entry(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	return logger.WithField("request_id", RequestID(ctx))
}
