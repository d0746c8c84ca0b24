package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesLogFile(t *testing.T) {
	dir := t.TempDir()
	log, closer, err := New(dir, logrus.InfoLevel)
	require.NoError(t, err)

	log.Info("split started")
	log.Debug("hidden")
	require.NoError(t, closer.Close())

	matches, err := filepath.Glob(filepath.Join(dir, "*.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Len(t, strings.TrimSuffix(filepath.Base(matches[0]), ".log"), len(TimestampLayout))

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "split started")
	assert.NotContains(t, string(data), "hidden")
}

func TestNewWithoutDir(t *testing.T) {
	log, closer, err := New("", logrus.WarnLevel)
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, log.GetLevel())
	assert.NoError(t, closer.Close())
}

func TestNewMissingDir(t *testing.T) {
	log, closer, err := New(filepath.Join(t.TempDir(), "nope"), logrus.InfoLevel)
	require.Error(t, err)
	require.NotNil(t, log)
	assert.NoError(t, closer.Close())
}
