// Package sqlguard 拦截危险的SQL语句并校验、转义标识符
package sqlguard

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrDangerousSQL SQL中出现被禁止的命令
var ErrDangerousSQL = errors.New("SQL包含被禁止的命令")

type rule struct {
	re   *regexp.Regexp
	name string
}

var rules = []rule{
	{regexp.MustCompile(`(?i)\bxp_cmdshell\b`), "xp_cmdshell"},
	{regexp.MustCompile(`(?i)\bsp_configure\b`), "sp_configure"},
	{regexp.MustCompile(`(?i)\bsp_OACreate\b`), "sp_OACreate"},
	{regexp.MustCompile(`(?i)\bsp_OAMethod\b`), "sp_OAMethod"},
	{regexp.MustCompile(`(?i)\bOPENROWSET\b`), "OPENROWSET"},
	{regexp.MustCompile(`(?i)\bOPENDATASOURCE\b`), "OPENDATASOURCE"},
	{regexp.MustCompile(`(?i)\bOPENQUERY\b`), "OPENQUERY"},
	{regexp.MustCompile(`(?i)\bBULK\s+INSERT\b`), "BULK INSERT"},
	{regexp.MustCompile(`(?i)\bSHUTDOWN\b`), "SHUTDOWN"},
	{regexp.MustCompile(`(?i)\bRECONFIGURE\b`), "RECONFIGURE"},
	{regexp.MustCompile(`(?i)\bEXEC\s*\(\s*@`), "动态 EXEC(@...)"},
	{regexp.MustCompile(`(?i)\bEXECUTE\s*\(\s*@`), "动态 EXECUTE(@...)"},
}

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_@#$]{0,127}$`)

// ValidateSQL 检查语句中是否包含被禁止的命令
func ValidateSQL(sql string) error {
	for _, r := range rules {
		if r.re.MatchString(sql) {
			return fmt.Errorf("%w: %s", ErrDangerousSQL, r.name)
		}
	}
	return nil
}

// ValidateIdentifier 判断表名/模式名是否为合法标识符
func ValidateIdentifier(name string) bool {
	return identifierRe.MatchString(name)
}

// BracketIdent 以方括号包裹标识符，内部的 ] 转义为 ]]
func BracketIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// SafeTableReference 返回 [schema].[table] 或 [table]
func SafeTableReference(schema, table string) string {
	if schema == "" {
		return BracketIdent(table)
	}
	return BracketIdent(schema) + "." + BracketIdent(table)
}
