package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/LENAX/dataflow-engine/pkg/cli/client"
	"github.com/LENAX/dataflow-engine/pkg/cli/output"
)

func newExecutionsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "executions",
		Aliases: []string{"exec"},
		Short:   "执行记录命令",
	}
	cmd.AddCommand(
		newExecutionsListCommand(opts),
		newExecutionsLogsCommand(opts),
		newExecutionsTimelineCommand(opts),
		newExecutionsCancelCommand(opts),
	)
	return cmd
}

func newExecutionsListCommand(opts *rootOptions) *cobra.Command {
	var q client.ExecutionQuery
	cmd := &cobra.Command{
		Use:   "list",
		Short: "列出执行记录（按创建时间倒序）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := opts.client().ListExecutions(cmd.Context(), q)
			if err != nil {
				return fmt.Errorf("查询失败: %w", err)
			}
			w := cmd.OutOrStdout()
			if opts.outputJSON {
				return output.PrintJSON(w, res)
			}
			if len(res.Items) == 0 {
				output.Info(w, "暂无执行记录")
				return nil
			}

			table := output.NewTable("EXECUTION_ID", "WORKFLOW", "STATUS", "TRIGGER", "ROWS", "FAILED", "CREATED")
			for _, e := range res.Items {
				name := e.WorkflowName
				if name == "" {
					name = e.WorkflowID
				}
				table.AddRow(
					e.ID,
					name,
					output.FormatStatus(e.Status),
					string(e.TriggerType),
					strconv.FormatInt(e.RowsProcessed, 10),
					strconv.FormatInt(e.RowsFailed, 10),
					formatTime(e.CreatedAt),
				)
			}
			table.Render(w)
			fmt.Fprintf(w, "\n总计: %d 条记录\n", res.Total)
			return nil
		},
	}
	cmd.Flags().StringVar(&q.WorkflowID, "workflow", "", "按工作流ID过滤")
	cmd.Flags().StringVar(&q.Status, "status", "", "按状态过滤 (pending/running/success/failed/cancelled)")
	cmd.Flags().StringVar(&q.DateFrom, "from", "", "起始日期 YYYY-MM-DD（含）")
	cmd.Flags().StringVar(&q.DateTo, "to", "", "截止日期 YYYY-MM-DD（含当天）")
	cmd.Flags().IntVar(&q.Limit, "limit", 20, "返回记录数量限制")
	return cmd
}

func newExecutionsLogsCommand(opts *rootOptions) *cobra.Command {
	var afterID int64
	cmd := &cobra.Command{
		Use:   "logs <execution-id>",
		Short: "输出执行日志",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logs, err := opts.client().Logs(cmd.Context(), args[0], afterID)
			if err != nil {
				return fmt.Errorf("查询日志失败: %w", err)
			}
			w := cmd.OutOrStdout()
			if opts.outputJSON {
				return output.PrintJSON(w, logs)
			}
			for _, l := range logs {
				printLog(w, l)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&afterID, "after", 0, "只输出ID大于该值的日志")
	return cmd
}

func newExecutionsTimelineCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "timeline <execution-id>",
		Short: "按节点汇总的执行时间线",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tl, err := opts.client().Timeline(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("查询时间线失败: %w", err)
			}
			w := cmd.OutOrStdout()
			if opts.outputJSON {
				return output.PrintJSON(w, tl)
			}

			table := output.NewTable("NODE", "LABEL", "STATUS", "START", "DURATION", "ROWS")
			for _, n := range tl.Nodes {
				table.AddRow(
					n.NodeID,
					n.NodeLabel,
					output.StatusIcon(n.Status)+" "+n.Status,
					n.StartTime.Local().Format("15:04:05"),
					formatSeconds(n.DurationSeconds),
					strconv.FormatInt(n.RowCount, 10),
				)
			}
			table.Render(w)
			fmt.Fprintf(w, "\n总耗时: %s\n", formatSeconds(tl.TotalDurationSeconds))
			return nil
		},
	}
}

func newExecutionsCancelCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <execution-id>",
		Short: "取消pending或running的执行",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exec, err := opts.client().CancelExecution(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("取消失败: %w", err)
			}
			w := cmd.OutOrStdout()
			if opts.outputJSON {
				return output.PrintJSON(w, exec)
			}
			output.Success(w, "执行已取消: %s", exec.ID)
			return nil
		},
	}
}
