package storage

// Dialect 持久化数据库方言接口（对外导出）
// 表结构以通用DDL书写，由方言替换类型并补充数据库特有子句
type Dialect interface {
	// Name 方言名称（sqlite、mysql、postgres）
	Name() string

	// DriverName database/sql驱动名，同时决定sqlx的占位符风格
	DriverName() string

	// UpsertSQL 返回按主键插入或更新的命名参数语句
	// columns: 列名列表；conflictColumn: 冲突判断列；updateColumns: 冲突时更新的列
	UpsertSQL(tableName string, columns []string, conflictColumn string, updateColumns []string) string

	// CreateTableSQL 把通用DDL转换为本方言的DDL
	CreateTableSQL(ddl string) string

	// ConfigureDB 打开连接后执行的配置语句
	ConfigureDB() []string

	// AutoIncrementKeyword 自增主键列定义
	// SQLite: INTEGER PRIMARY KEY AUTOINCREMENT
	// MySQL: BIGINT PRIMARY KEY AUTO_INCREMENT
	// PostgreSQL: BIGSERIAL PRIMARY KEY
	AutoIncrementKeyword() string

	// BooleanType 布尔类型
	BooleanType() string

	// TextType 大文本类型（工作流定义、连接配置、日志消息）
	TextType() string

	// TimestampType 时间戳类型
	TimestampType() string

	// CreateIndexSQL 创建索引语句，支持时带IF NOT EXISTS
	CreateIndexSQL(indexName, tableName, columns string) string

	// ReturningID 插入语句是否需要以 RETURNING id 获取自增主键
	ReturningID() bool
}
