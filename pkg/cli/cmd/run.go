package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/LENAX/dataflow-engine/pkg/api/dto"
	"github.com/LENAX/dataflow-engine/pkg/cli/output"
	"github.com/LENAX/dataflow-engine/pkg/storage"
)

func newRunCommand(opts *rootOptions) *cobra.Command {
	var (
		async    bool
		follow   bool
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run <workflow-id>",
		Short: "运行工作流",
		Long: `运行工作流。默认等待执行结束后输出结果；
--async 提交后立即返回执行ID，配合 --follow 轮询输出日志直到结束。`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := opts.client()
			w := cmd.OutOrStdout()

			exec, err := c.RunWorkflow(ctx, args[0], !async)
			if err != nil {
				return fmt.Errorf("运行失败: %w", err)
			}
			if async && follow {
				if !opts.outputJSON {
					output.Info(w, "已提交: %s", exec.ID)
				}
				exec, err = c.Follow(ctx, exec.ID, interval, func(l storage.ExecutionLog) {
					if !opts.outputJSON {
						printLog(w, l)
					}
				})
				if err != nil {
					return fmt.Errorf("跟踪执行失败: %w", err)
				}
			}

			if opts.outputJSON {
				return output.PrintJSON(w, exec)
			}
			printExecution(w, exec)
			if exec.Status == storage.ExecutionFailed {
				return fmt.Errorf("执行失败: %s", exec.ErrorMessage)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&async, "async", false, "提交后立即返回")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "异步提交后轮询日志直到执行结束")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "轮询间隔")
	return cmd
}

func newOrchestrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "orchestrate <orchestration-id>",
		Short: "同步运行编排，按顺序执行各步骤",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := opts.client().RunOrchestration(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("运行编排失败: %w", err)
			}
			w := cmd.OutOrStdout()
			if opts.outputJSON {
				return output.PrintJSON(w, res)
			}
			fmt.Fprintf(w, "Orchestration: %s (%s)\n", res.OrchestrationName, res.OrchestrationID)
			fmt.Fprintf(w, "Status:        %s %s\n", output.StatusIcon(res.Status), res.Status)
			fmt.Fprintf(w, "Steps:         %d total, %d completed, %d failed, %d skipped\n",
				res.TotalSteps, res.CompletedSteps, res.FailedSteps, res.SkippedSteps)
			for i, id := range res.ExecutionIDs {
				fmt.Fprintf(w, "  %d. %s\n", i+1, id)
			}
			if res.FailedSteps > 0 {
				return fmt.Errorf("%d 个步骤失败", res.FailedSteps)
			}
			return nil
		},
	}
}

func printExecution(w io.Writer, e *dto.ExecutionDetail) {
	fmt.Fprintf(w, "Execution: %s\n", e.ID)
	fmt.Fprintf(w, "Workflow:  %s\n", e.WorkflowID)
	fmt.Fprintf(w, "Status:    %s\n", output.FormatStatus(e.Status))
	fmt.Fprintf(w, "Trigger:   %s\n", e.TriggerType)
	fmt.Fprintf(w, "Rows:      %d processed, %d failed\n", e.RowsProcessed, e.RowsFailed)
	if e.StartedAt != nil {
		fmt.Fprintf(w, "Started:   %s\n", formatTime(*e.StartedAt))
	}
	if e.FinishedAt != nil {
		fmt.Fprintf(w, "Finished:  %s\n", formatTime(*e.FinishedAt))
	}
	if e.DurationSeconds != nil {
		fmt.Fprintf(w, "Duration:  %s\n", formatSeconds(*e.DurationSeconds))
	}
	if e.ErrorMessage != "" {
		fmt.Fprintf(w, "Error:     %s\n", e.ErrorMessage)
	}
}

func printLog(w io.Writer, l storage.ExecutionLog) {
	node := ""
	if l.NodeID != "" {
		node = "[" + l.NodeID + "] "
	}
	output.LevelColor(l.Level).Fprintf(w, "%s %-7s %s%s\n", l.CreatedAt.Local().Format("15:04:05"), l.Level, node, l.Message)
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatSeconds(s float64) string {
	return (time.Duration(s * float64(time.Second))).Round(time.Millisecond).String()
}
