package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.Server.Addr)
	require.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	require.Equal(t, "./data/docreg.db", cfg.Database.Path)
	require.Equal(t, "user", cfg.Registration.DefaultRole)
	require.Equal(t, 10, cfg.Registration.BcryptCost)
	require.Equal(t, "info", cfg.Logging.Level)
	require.False(t, cfg.Telegram.Enabled)
	require.Equal(t, "none", cfg.Tracing.Exporter)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: "127.0.0.1:9000"
  base_path: "/api"
  admin_token: "secret"
database:
  path: "/tmp/reg.db"
registration:
  bcrypt_cost: 4
logging:
  level: debug
  json_format: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	require.Equal(t, "/api", cfg.Server.BasePath)
	require.Equal(t, "secret", cfg.Server.AdminToken)
	require.Equal(t, "/tmp/reg.db", cfg.Database.Path)
	require.Equal(t, 4, cfg.Registration.BcryptCost)
	require.True(t, cfg.Logging.JSONFormat)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  addr: \":9000\"\n")
	t.Setenv("DOCREG_SERVER_ADDR", ":7000")
	t.Setenv("DOCREG_DATABASE_PATH", "/var/lib/docreg.db")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":7000", cfg.Server.Addr)
	require.Equal(t, "/var/lib/docreg.db", cfg.Database.Path)
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadFrom_BoundValuesWin(t *testing.T) {
	t.Chdir(t.TempDir())
	v := viper.New()
	v.Set("database.path", "/override.db")

	cfg, err := LoadFrom(v, "")
	require.NoError(t, err)
	require.Equal(t, "/override.db", cfg.Database.Path)
}

func validConfig() Config {
	return Config{
		Server:       ServerConfig{Addr: ":8080", ShutdownTimeout: time.Second},
		Database:     DatabaseConfig{Path: "x.db"},
		Registration: RegistrationConfig{DefaultRole: "user", BcryptCost: 10},
		Logging:      LoggingConfig{Level: "info"},
		Tracing:      TracingConfig{Exporter: "none", SampleRate: 1},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
		{"base path without slash", func(c *Config) { c.Server.BasePath = "api" }, "server.base_path"},
		{"base path trailing slash", func(c *Config) { c.Server.BasePath = "/api/" }, "server.base_path"},
		{"missing db path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"missing role", func(c *Config) { c.Registration.DefaultRole = "" }, "default_role"},
		{"low bcrypt cost", func(c *Config) { c.Registration.BcryptCost = 2 }, "bcrypt_cost"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"telegram without token", func(c *Config) {
			c.Telegram.Enabled = true
			c.Telegram.AdminChatID = 1
		}, "bot_token"},
		{"telegram without chat", func(c *Config) {
			c.Telegram.Enabled = true
			c.Telegram.BotToken = "t"
		}, "admin_chat_id"},
		{"bad exporter", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "jaeger"
		}, "tracing.exporter"},
		{"bad sample rate", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.SampleRate = 2
		}, "sample_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}
