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
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsAndFile(t *testing.T) {
	path := writeConfig(t, `
jwt:
  secret: file-secret
scheduling:
  workday_start: "08:30"
  slot_minutes: 15
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "file-secret", cfg.JWT.Secret)
	assert.Equal(t, 2*time.Second, cfg.Scheduling.LockTimeout)

	hours, err := cfg.Scheduling.WorkingHours()
	require.NoError(t, err)
	assert.Equal(t, 8, hours.Start.Hour)
	assert.Equal(t, 30, hours.Start.Minute)
	assert.Equal(t, 17, hours.End.Hour)
	assert.Equal(t, 15*time.Minute, hours.SlotSize)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "jwt:\n  secret: file-secret\n")
	t.Setenv("HOSPITAL_JWT_SECRET", "env-secret")
	t.Setenv("HOSPITAL_SCHEDULING_LOCK_TIMEOUT", "750ms")
	t.Setenv("HOSPITAL_DATABASE_HOST", "db.internal")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.JWT.Secret)
	assert.Equal(t, 750*time.Millisecond, cfg.Scheduling.LockTimeout)
	assert.Equal(t, "db.internal", cfg.Database.Host)
}

func TestLoad_RejectsInvalidSettings(t *testing.T) {
	tests := map[string]string{
		"missing secret":  "database:\n  driver: memory\n",
		"unknown driver":  "jwt:\n  secret: s\ndatabase:\n  driver: mongo\n",
		"unknown broker":  "jwt:\n  secret: s\nbroker:\n  type: nats\n",
		"inverted window": "jwt:\n  secret: s\nscheduling:\n  workday_start: \"18:00\"\n",
		"bad timezone":    "jwt:\n  secret: s\nscheduling:\n  timezone: Mars/Olympus\n",
		"short notes key": "jwt:\n  secret: s\nsecurity:\n  notes_key: c2hvcnQ=\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}
