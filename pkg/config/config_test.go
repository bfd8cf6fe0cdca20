package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	c, err := Load(writeConfig(t, "environment: staging\n"))
	require.NoError(t, err)

	assert.Equal(t, "staging", c.Environment)
	assert.Equal(t, 1e6, c.Backtest.CapitalUnit)
	assert.Equal(t, []int{5, 10, 20}, c.Backtest.Horizons)
	assert.Equal(t, []float64{0.38, 0.5, 0.62}, c.Backtest.StopFractions)
	assert.Equal(t, "tercile", c.Regime.Split)
	assert.Equal(t, SourceFile, c.Source.Type)
	assert.Equal(t, []string{SinkFile}, c.Sinks)
	assert.Equal(t, time.Hour, c.Source.Cache.TTL)
	assert.Equal(t, -1, c.Kafka.RequiredAcks)
	assert.True(t, c.Server.RunOnStart)
	assert.False(t, c.UsesClickHouse())
	assert.False(t, c.UsesKafka())
}

func TestLoad_SampleFile(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)
	require.Len(t, c.Backtest.Bands, 3)
	assert.Equal(t, BandConfig{Min: 0.115}, c.Backtest.Bands[2])
	assert.Equal(t, 8, c.Backtest.Workers)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, `
server:
  run_on_start: false
backtest:
  horizons: [3]
regime:
  split: median
`))
	require.NoError(t, err)
	assert.False(t, c.Server.RunOnStart)
	assert.Equal(t, []int{3}, c.Backtest.Horizons)
	assert.Equal(t, "median", c.Regime.Split)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad split", "regime: {split: quartile}"},
		{"stop fraction out of range", "backtest: {stop_fractions: [1.2]}"},
		{"bad date", "backtest: {from: 2024/01/04}"},
		{"from after to", "backtest: {from: \"2024-06-01\", to: \"2024-01-01\"}"},
		{"clickhouse source without host", "source: {type: clickhouse}"},
		{"http source without url", "source: {type: http}"},
		{"unknown sink", "sinks: [s3]"},
		{"postgres sink without dsn", "sinks: [file, postgres]"},
		{"kafka sink without brokers", "sinks: [kafka]"},
		{"digest without brokers", "log: {digest: {enabled: true}}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadWithEnv(t *testing.T) {
	t.Setenv("BARS_SOURCE", "clickhouse")
	t.Setenv("CLICKHOUSE_HOST", "ch.local")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("SINKS", "file,kafka,clickhouse")
	t.Setenv("CAPITAL_UNIT", "500000")
	t.Setenv("HTTP_PORT", "not-a-port")

	c, err := LoadWithEnv(writeConfig(t, "environment: development\n"))
	require.NoError(t, err)

	assert.Equal(t, SourceClickHouse, c.Source.Type)
	assert.Equal(t, "ch.local", c.ClickHouse.Host)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, 5e5, c.Backtest.CapitalUnit)
	assert.Equal(t, 8080, c.Server.Port, "unparsable override keeps the configured port")
	assert.True(t, c.HasSink(SinkKafka))
	assert.True(t, c.UsesClickHouse())
	assert.True(t, c.UsesKafka())
}

func TestLoadWithEnv_BadCapital(t *testing.T) {
	t.Setenv("CAPITAL_UNIT", "NaN")
	c, err := LoadWithEnv(writeConfig(t, "backtest: {capital_unit: 2000000}\n"))
	require.NoError(t, err)
	assert.Equal(t, 2e6, c.Backtest.CapitalUnit)
}
