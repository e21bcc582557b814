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
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(body), 0o600))
	return dir
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 14, cfg.Scheduling.HorizonDays)
	assert.Equal(t, time.UTC, cfg.Scheduling.Location())
	assert.Equal(t, 50, cfg.Outbox.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.Outbox.PollInterval)
	assert.Equal(t, "/metrics", cfg.Server.MetricsPath)
	assert.Equal(t, "hospital-workers", cfg.Redis.ToBrokerConfig().Group)
	assert.EqualValues(t, 10000, cfg.Redis.StreamMaxLen)
}

func TestLoadFileAndEnvironment(t *testing.T) {
	dir := writeConfig(t, `
server:
  port: 9000
database:
  host: db.internal
  password: from-file
scheduling:
  horizon_days: 21
  timezone: Asia/Kolkata
outbox:
  poll_interval: 5s
`)
	t.Setenv("HOSPITAL_DB_PASSWORD", "from-env")
	t.Setenv("HOSPITAL_JWT_SECRET", "s3cret")
	t.Setenv("HOSPITAL_SERVER_PORT", "9100")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "from-env", cfg.Database.Password)
	assert.Equal(t, "s3cret", cfg.JWT.Secret)
	assert.Equal(t, 21, cfg.Scheduling.HorizonDays)
	assert.Equal(t, "Asia/Kolkata", cfg.Scheduling.Location().String())
	assert.Equal(t, 5*time.Second, cfg.Outbox.ToWorkerConfig().PollInterval)

	pg := cfg.Database.ToPostgresConfig()
	assert.Contains(t, pg.DSN(), "host=db.internal")
}

func TestLoadRejectsBadTimezone(t *testing.T) {
	dir := writeConfig(t, "scheduling:\n  timezone: Mars/Olympus\n")
	_, err := Load(dir)
	assert.Error(t, err)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := writeConfig(t, "server: [unterminated\n")
	_, err := Load(dir)
	assert.Error(t, err)
}
