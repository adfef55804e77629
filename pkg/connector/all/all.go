// Package all 通过副作用导入注册全部内置连接器：mssql、postgres、mysql、sqlite
package all

import (
	_ "github.com/LENAX/dataflow-engine/pkg/connector/mssql"
	_ "github.com/LENAX/dataflow-engine/pkg/connector/mysql"
	_ "github.com/LENAX/dataflow-engine/pkg/connector/postgres"
	_ "github.com/LENAX/dataflow-engine/pkg/connector/sqlite"
)
