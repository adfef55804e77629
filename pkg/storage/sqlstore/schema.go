package sqlstore

import (
	"strings"

	"github.com/LENAX/dataflow-engine/pkg/logger"
	"github.com/LENAX/dataflow-engine/pkg/storage"
)

// 通用DDL中的类型占位符，由方言替换
const (
	tokenText = "{TEXT}"
	tokenBool = "{BOOL}"
	tokenTime = "{TIME}"
	tokenAuto = "{AUTO_ID}"
)

var tableDDL = []string{
	`CREATE TABLE IF NOT EXISTS workflows (
		id VARCHAR(64) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		description {TEXT},
		definition {TEXT} NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		is_active {BOOL} NOT NULL,
		notification_webhook_url VARCHAR(2048),
		notification_on_failure {BOOL} NOT NULL,
		notification_on_success {BOOL} NOT NULL,
		created_at {TIME} NOT NULL,
		updated_at {TIME} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS connections (
		id VARCHAR(64) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		type VARCHAR(32) NOT NULL,
		config {TEXT} NOT NULL,
		is_active {BOOL} NOT NULL,
		created_at {TIME} NOT NULL,
		updated_at {TIME} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS executions (
		id VARCHAR(64) PRIMARY KEY,
		workflow_id VARCHAR(64) NOT NULL,
		status VARCHAR(16) NOT NULL,
		trigger_type VARCHAR(16) NOT NULL,
		error_message {TEXT},
		rows_processed BIGINT NOT NULL DEFAULT 0,
		rows_failed BIGINT NOT NULL DEFAULT 0,
		started_at {TIME} NULL,
		finished_at {TIME} NULL,
		created_at {TIME} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS execution_logs (
		id {AUTO_ID},
		execution_id VARCHAR(64) NOT NULL,
		node_id VARCHAR(255),
		level VARCHAR(16) NOT NULL,
		message {TEXT} NOT NULL,
		created_at {TIME} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS schedules (
		id VARCHAR(64) PRIMARY KEY,
		workflow_id VARCHAR(64) NOT NULL,
		name VARCHAR(255) NOT NULL,
		cron_expression VARCHAR(128) NOT NULL,
		is_active {BOOL} NOT NULL,
		last_run_at {TIME} NULL,
		next_run_at {TIME} NULL,
		created_at {TIME} NOT NULL,
		updated_at {TIME} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS orchestrations (
		id VARCHAR(64) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		description {TEXT},
		cron_expression VARCHAR(128) NOT NULL,
		is_active {BOOL} NOT NULL,
		on_error VARCHAR(16) NOT NULL,
		last_run_at {TIME} NULL,
		next_run_at {TIME} NULL,
		created_at {TIME} NOT NULL,
		updated_at {TIME} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS orchestration_steps (
		id VARCHAR(64) PRIMARY KEY,
		orchestration_id VARCHAR(64) NOT NULL,
		workflow_id VARCHAR(64) NOT NULL,
		order_index INTEGER NOT NULL,
		retry_count INTEGER NOT NULL DEFAULT 0,
		retry_delay_seconds INTEGER NOT NULL DEFAULT 0,
		timeout_seconds INTEGER NOT NULL DEFAULT 0,
		on_failure VARCHAR(16) NOT NULL
	)`,
}

// indexes 名称、表、列
var indexes = [][3]string{
	{"idx_executions_workflow_id", "executions", "workflow_id"},
	{"idx_executions_created_at", "executions", "created_at"},
	{"idx_execution_logs_execution_id", "execution_logs", "execution_id"},
	{"idx_schedules_workflow_id", "schedules", "workflow_id"},
	{"idx_orchestration_steps_orchestration_id", "orchestration_steps", "orchestration_id"},
}

// schemaStatements 按方言展开建表与建索引语句
func schemaStatements(d storage.Dialect) (tables []string, idx []string) {
	r := strings.NewReplacer(
		tokenText, d.TextType(),
		tokenBool, d.BooleanType(),
		tokenTime, d.TimestampType(),
		tokenAuto, d.AutoIncrementKeyword(),
	)
	for _, ddl := range tableDDL {
		tables = append(tables, d.CreateTableSQL(r.Replace(ddl)))
	}
	for _, ix := range indexes {
		idx = append(idx, d.CreateIndexSQL(ix[0], ix[1], ix[2]))
	}
	return tables, idx
}

// initSchema 初始化数据库表结构
// 建表失败即返回错误；建索引失败只记录警告（MySQL不支持IF NOT EXISTS，重复创建会报错）
func (s *Store) initSchema() error {
	tables, idx := schemaStatements(s.dialect)
	for _, stmt := range tables {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	for _, stmt := range idx {
		if _, err := s.db.Exec(stmt); err != nil {
			logger.L().Warnf("⚠️ [存储] 创建索引失败(已忽略): %v", err)
		}
	}
	return nil
}
