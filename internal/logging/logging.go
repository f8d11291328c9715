package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps logrus with file rotation. Output goes to both the rotating
// file and stdout.
type Logger struct {
	*logrus.Logger
}

func New(dir, level string) (*Logger, error) {
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "automation-service.log"),
		MaxSize:    50, // MB
		MaxBackups: 7,
		MaxAge:     28, // days
		Compress:   true,
	}

	l := logrus.New()
	l.SetOutput(io.MultiWriter(rotator, os.Stdout))
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	return &Logger{Logger: l}, nil
}

// NewNop returns a logger that discards everything, for tests.
func NewNop() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &Logger{Logger: l}
}
