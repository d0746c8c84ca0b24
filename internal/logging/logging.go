package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// TimestampLayout names the per-run log file
const TimestampLayout = "20060102_150405"

// New initializes a logrus logger that outputs to stdout and, when dir is
// not empty, to <dir>/<YYYYmmdd_HHMMSS>.log. The returned closer releases the
// log file and is never nil.
func New(dir string, level logrus.Level) (*logrus.Logger, io.Closer, error) {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetLevel(level)
	log.SetOutput(os.Stdout)

	if dir == "" {
		return log, nopCloser{}, nil
	}

	path := filepath.Join(dir, time.Now().Format(TimestampLayout)+".log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0666)
	if err != nil {
		log.Warn("Failed to log to file, using stdout only")
		return log, nopCloser{}, err
	}
	log.SetOutput(io.MultiWriter(os.Stdout, file))
	return log, file, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
