// Package logging builds the logrus logger used by the awolmrf command.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where and how log entries are written
type Options struct {
	// Level is a logrus level name such as "info" or "debug"
	Level string

	// File, when set, receives the log through a size-rotated writer instead of Stderr
	File string

	// MaxSizeMB is the rotation size of File in megabytes
	MaxSizeMB int

	// MaxBackups is the number of rotated files kept
	MaxBackups int

	// JSON selects the JSON formatter
	JSON bool

	// Stderr is the console writer; os.Stderr when nil
	Stderr io.Writer
}

// New creates a logger from opts. The returned closer releases the log
// file and must be called once logging is over.
func New(opts Options) (*logrus.Logger, io.Closer, error) {
	level := logrus.InfoLevel
	if opts.Level != "" {
		var err error
		level, err = logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid log level: %w", err)
		}
	}

	logger := logrus.New()
	logger.SetLevel(level)

	var out io.Writer = opts.Stderr
	if out == nil {
		out = os.Stderr
	}
	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		rotated := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB, // megabytes
			MaxBackups: opts.MaxBackups,
			Compress:   true,
		}
		out = rotated
		closer = rotated
	}
	logger.SetOutput(out)

	if opts.JSON {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			DisableColors: opts.File != "",
		})
	}

	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
