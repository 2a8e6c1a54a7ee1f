package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"staticsite/internal/config"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(config.LogConfig{Level: "DEBUG", Format: "json"}, &buf)
	assert.NilError(t, err)
	assert.Check(t, is.Equal(logger.GetLevel(), logrus.DebugLevel))

	logger.WithField("path", "/a/b.css").Debug("served file")

	var entry map[string]any
	assert.NilError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Check(t, is.Equal(entry["msg"], "served file"))
	assert.Check(t, is.Equal(entry["path"], "/a/b.css"))
}

func TestNewDefaults(t *testing.T) {
	logger, err := New(config.LogConfig{}, &bytes.Buffer{})
	assert.NilError(t, err)
	assert.Check(t, is.Equal(logger.GetLevel(), logrus.InfoLevel))
}

func TestNewErrors(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud"}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "ログレベル")

	_, err = New(config.LogConfig{Format: "xml"}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "未対応のログ形式")
}
