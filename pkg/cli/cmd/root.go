// Package cmd dataflow命令行
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/LENAX/dataflow-engine/pkg/cli/client"
)

// DefaultServerURL 默认API服务地址
const DefaultServerURL = "http://localhost:8000"

// rootOptions 全局参数
type rootOptions struct {
	serverURL  string
	outputJSON bool
}

func (o *rootOptions) client() *client.Client {
	return client.New(o.serverURL)
}

// NewRootCommand 创建根命令
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "dataflow",
		Short: "Dataflow Engine CLI - 数据同步引擎命令行工具",
		Long: `Dataflow Engine CLI 用于校验、运行和查询数据同步工作流。

支持的功能：
  - 本地校验工作流定义
  - 运行工作流与编排
  - 查询执行记录、日志与时间线，取消执行
  - cron表达式换算与触发时间预览

使用示例：
  # 校验工作流定义
  dataflow workflow validate ./pipeline.json

  # 运行工作流并跟踪日志
  dataflow run <workflow-id> --async --follow

  # 查看最近失败的执行
  dataflow executions list --status failed`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serverURL := os.Getenv("DATAFLOW_SERVER_URL")
	if serverURL == "" {
		serverURL = DefaultServerURL
	}
	cmd.PersistentFlags().StringVarP(&opts.serverURL, "server", "s", serverURL, "API服务地址")
	cmd.PersistentFlags().BoolVarP(&opts.outputJSON, "json", "j", false, "使用JSON格式输出")

	cmd.AddCommand(
		newWorkflowCommand(opts),
		newRunCommand(opts),
		newOrchestrateCommand(opts),
		newExecutionsCommand(opts),
		newCronCommand(opts),
		newVersionCommand(),
	)
	return cmd
}

// Execute 执行根命令
func Execute() {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		root.PrintErrln("Error:", err)
		os.Exit(1)
	}
}
