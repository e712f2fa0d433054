/*
Licensed to the Apache Software Foundation (ASF) under one
or more contributor license agreements.  See the NOTICE file
distributed with this work for additional information
regarding copyright ownership.  The ASF licenses this file
to you under the Apache License, Version 2.0 (the
"License"); you may not use this file except in compliance
with the License.  You may obtain a copy of the License at

  http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing,
software distributed under the License is distributed on an
"AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
KIND, either express or implied.  See the License for the
specific language governing permissions and limitations
under the License.
*/

package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/common/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/positron-amqp/positron/internal/config"
)

func TestSetupJSON(t *testing.T) {
	var out bytes.Buffer
	logger, cleanup, err := Setup(config.LoggingConfig{Level: "WARN"}, &out)
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())
	logger.Info().Msg("dropped")
	logger.Warn().Str("conn", "c1").Msg("kept")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &entry))
	assert.Equal(t, "kept", entry["message"])
	assert.Equal(t, "c1", entry["conn"])
	assert.Contains(t, entry, "time")
}

func TestSetupText(t *testing.T) {
	var out bytes.Buffer
	logger, cleanup, err := Setup(config.LoggingConfig{Format: "text"}, &out)
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
	logger.Info().Msg("connection open")
	assert.Contains(t, out.String(), "connection open")
	assert.NotContains(t, out.String(), `"message"`)
}

func TestSetupFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positron.log")
	var out bytes.Buffer
	logger, cleanup, err := Setup(config.LoggingConfig{File: config.FileConfig{Path: path}}, &out)
	require.NoError(t, err)
	logger.Error().Msg("written twice")
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written twice")
	assert.Contains(t, out.String(), "written twice")
}

func TestSetupErrors(t *testing.T) {
	_, _, err := Setup(config.LoggingConfig{Level: "loud"}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "parse log level")

	_, _, err = Setup(config.LoggingConfig{Loki: config.LokiConfig{Enabled: true}}, &bytes.Buffer{})
	assert.EqualError(t, err, "loki url is required")
}

func TestLokiLabels(t *testing.T) {
	assert.Equal(t, model.LabelSet{"app": "positron"}, lokiLabels(nil))
	assert.Equal(t, model.LabelSet{"env": "test"}, lokiLabels(map[string]string{"env": "test"}))
}
