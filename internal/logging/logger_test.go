package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithOutput(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput(&buf, "debug", "json")
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())

	log.WithField("reservation_id", "r1").Info("created")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "r1", line["reservation_id"])
	assert.Equal(t, "created", line["msg"])

	assert.Equal(t, logrus.InfoLevel, NewWithOutput(&buf, "loud", "text").GetLevel())
}
