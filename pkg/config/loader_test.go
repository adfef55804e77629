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
	path := filepath.Join(t.TempDir(), "dataflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFrameworkConfig(t *testing.T) {
	t.Setenv("DATAFLOW_TEST_DSN", "postgres://etl@db/dataflow")
	path := writeConfig(t, `
dataflow:
  general:
    instance_name: "test-engine"
    log_level: "debug"
    env: "test"
    timezone: "UTC"
  storage:
    database:
      type: "postgres"
      dsn: "${DATAFLOW_TEST_DSN}"
      max_open_conns: 5
      conn_max_lifetime: "1h"
    cache:
      enabled: true
      default_ttl: "2m"
  execution:
    default_chunk_size: 1000
    sql_guard: false
  scheduler:
    enabled: false
  notification:
    webhook:
      timeout: "3s"
  server:
    port: 9000
`)

	cfg, err := LoadFrameworkConfig(path)
	require.NoError(t, err, "加载配置失败")

	d := cfg.Dataflow
	assert.Equal(t, "test-engine", d.General.InstanceName)
	assert.Equal(t, "debug", d.General.LogLevel)
	assert.Equal(t, "postgres://etl@db/dataflow", cfg.GetDatabaseDSN(), "${ENV}引用应被展开")
	assert.Equal(t, "postgres", cfg.GetDatabaseType())
	assert.Equal(t, 5, d.Storage.Database.MaxOpenConns)
	assert.Equal(t, time.Hour, d.Storage.Database.ConnMaxLifetime)
	assert.Equal(t, 2*time.Minute, d.Storage.Cache.DefaultTTL)
	assert.Equal(t, 1000, cfg.GetDefaultChunkSize())
	assert.Equal(t, 500, cfg.GetDefaultBatchSize(), "未配置时使用默认值")
	assert.Equal(t, 100, cfg.GetPreviewRowLimit())
	assert.False(t, cfg.SQLGuardEnabled())
	assert.False(t, cfg.SchedulerEnabled())
	assert.Equal(t, 3*time.Second, d.Notification.Webhook.Timeout)
	assert.Equal(t, 3, d.Notification.Webhook.MaxRetries)
	assert.Equal(t, "0.0.0.0:9000", cfg.GetServerAddr())

	loc, err := cfg.GetLocation()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoadFrameworkConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrameworkConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "dataflow-engine", cfg.Dataflow.General.InstanceName)
	assert.Equal(t, "sqlite", cfg.GetDatabaseType())
	assert.Equal(t, "./dataflow.db", cfg.GetDatabaseDSN())
	assert.Equal(t, 5000, cfg.GetDefaultChunkSize())
	assert.True(t, cfg.SQLGuardEnabled(), "SQL安全检查默认开启")
	assert.True(t, cfg.SchedulerEnabled())
	assert.Equal(t, 8000, cfg.Dataflow.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Dataflow.Storage.Cache.DefaultTTL)
}

func TestLoadFrameworkConfig_EnvOverrides(t *testing.T) {
	t.Setenv("DATAFLOW_DATABASE_TYPE", "mysql")
	t.Setenv("DATAFLOW_DATABASE_DSN", "etl:pw@tcp(db:3306)/dataflow")
	t.Setenv("DATAFLOW_SERVER_PORT", "8081")
	t.Setenv("DATAFLOW_LOG_LEVEL", "warn")
	path := writeConfig(t, "dataflow:\n  storage:\n    database:\n      type: sqlite\n      dsn: ./x.db\n")

	cfg, err := LoadFrameworkConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.GetDatabaseType(), "环境变量优先于文件")
	assert.Equal(t, "etl:pw@tcp(db:3306)/dataflow", cfg.GetDatabaseDSN())
	assert.Equal(t, 8081, cfg.Dataflow.Server.Port)
	assert.Equal(t, "warn", cfg.Dataflow.General.LogLevel)

	t.Setenv("DATAFLOW_SERVER_PORT", "eighty")
	_, err = LoadFrameworkConfig(path)
	assert.Error(t, err)
}

func TestLoadFrameworkConfig_Invalid(t *testing.T) {
	_, err := LoadFrameworkConfig(writeConfig(t, "dataflow: [unclosed"))
	assert.Error(t, err, "YAML格式错误")

	_, err = LoadFrameworkConfig(writeConfig(t, "dataflow:\n  general:\n    log_level: verbose\n"))
	assert.ErrorContains(t, err, "log_level")

	_, err = LoadFrameworkConfig(writeConfig(t, "dataflow:\n  storage:\n    database:\n      type: oracle\n      dsn: x\n"))
	assert.ErrorContains(t, err, "database.type")

	_, err = LoadFrameworkConfig(writeConfig(t, "dataflow:\n  general:\n    timezone: Mars/Olympus\n"))
	assert.ErrorContains(t, err, "timezone")

	_, err = LoadFrameworkConfig(writeConfig(t, "dataflow:\n  notification:\n    email:\n      enabled: true\n"))
	assert.ErrorContains(t, err, "notification.email")
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("DATAFLOW_TEST_HOST", "db.internal")
	assert.Equal(t, "host=db.internal cost=$5", expandEnv("host=${DATAFLOW_TEST_HOST} cost=$5"))
	assert.Equal(t, "x=", expandEnv("x=${DATAFLOW_TEST_UNSET_VAR}"))
}
