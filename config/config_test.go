package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "08:00", cfg.Attendance.WorkingHours.Start)
	assert.Equal(t, "17:00", cfg.Attendance.WorkingHours.End)
	assert.Equal(t, 5*time.Second, cfg.Attendance.LockTTL)
	assert.Equal(t, 24*time.Hour, cfg.Broker.MessageTTL)
	assert.Equal(t, "staffclock.validation", cfg.Broker.Exchange)
	assert.False(t, cfg.Attendance.Sweep.Enabled)
	assert.Equal(t, 3, cfg.Attendance.Sweep.MaxRetries)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
attendance:
  working_hours:
    start: "09:30"
    end: "18:00"
  sweep:
    enabled: true
    interval: 30s
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "09:30", cfg.Attendance.WorkingHours.Start)
	assert.True(t, cfg.Attendance.Sweep.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Attendance.Sweep.Interval)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")
	t.Setenv("STAFFCLOCK_SERVER_PORT", "7070")
	t.Setenv("STAFFCLOCK_ATTENDANCE_WORKING_HOURS_END", "16:00")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "16:00", cfg.Attendance.WorkingHours.End)
}

func TestLoad_InvalidPort(t *testing.T) {
	_, err := Load(writeConfig(t, "server:\n  port: 70000\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server: ServerConfig{Port: 8080},
			Broker: BrokerConfig{URL: "amqp://localhost", Exchange: "x"},
			Attendance: AttendanceConfig{
				WorkingHours: WorkingHoursConfig{Start: "08:00", End: "17:00"},
				LockTTL:      time.Second,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"empty broker url", func(c *Config) { c.Broker.URL = "" }, true},
		{"empty exchange", func(c *Config) { c.Broker.Exchange = "" }, true},
		{"zero lock ttl", func(c *Config) { c.Attendance.LockTTL = 0 }, true},
		{"missing working hours", func(c *Config) { c.Attendance.WorkingHours.End = "" }, true},
		{"sweep without interval", func(c *Config) {
			c.Attendance.Sweep = SweepConfig{Enabled: true, Timeout: time.Minute}
		}, true},
		{"sweep negative retries", func(c *Config) {
			c.Attendance.Sweep = SweepConfig{Enabled: true, Interval: time.Minute, Timeout: time.Minute, MaxRetries: -1}
		}, true},
		{"sweep disabled ignores zero interval", func(c *Config) {
			c.Attendance.Sweep = SweepConfig{Enabled: false}
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable", Timezone: "UTC"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable TimeZone=UTC", c.DSN())
}
