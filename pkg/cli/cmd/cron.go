package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/LENAX/dataflow-engine/pkg/cli/output"
	"github.com/LENAX/dataflow-engine/pkg/core/cronexpr"
)

func newCronCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cron",
		Short: "cron表达式工具",
	}
	cmd.AddCommand(newCronConvertCommand(opts), newCronNextCommand(opts))
	return cmd
}

// cronArg 接受整体加引号或分开的5个参数
func cronArg(args []string) string {
	return strings.Join(args, " ")
}

func newCronConvertCommand(opts *rootOptions) *cobra.Command {
	var base string
	cmd := &cobra.Command{
		Use:   "convert <expression>",
		Short: "把标准cron表达式（0=周日）换算为定时器使用的星期编号",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			expr := cronArg(args)
			conv := cronexpr.Convention(base)
			if conv != cronexpr.SundayFirst && conv != cronexpr.MondayFirst {
				return fmt.Errorf("--base 只能是 sunday 或 monday: %q", base)
			}
			if err := cronexpr.Validate(expr); err != nil {
				return err
			}
			spec, err := cronexpr.ToTimerSpec(expr, conv)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if opts.outputJSON {
				return output.PrintJSON(w, map[string]string{"expression": expr, "base": base, "spec": spec})
			}
			fmt.Fprintln(w, spec)
			return nil
		},
	}
	cmd.Flags().StringVar(&base, "base", string(cronexpr.MondayFirst), "定时器的星期编号约定 (sunday/monday)")
	return cmd
}

func newCronNextCommand(opts *rootOptions) *cobra.Command {
	var (
		count    int
		timezone string
	)
	cmd := &cobra.Command{
		Use:   "next <expression>",
		Short: "输出接下来的触发时间",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			expr := cronArg(args)
			loc := time.Local
			if timezone != "" {
				l, err := time.LoadLocation(timezone)
				if err != nil {
					return fmt.Errorf("无效的时区 %q: %w", timezone, err)
				}
				loc = l
			}
			runs, err := cronexpr.Next(expr, time.Now(), loc, count)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if opts.outputJSON {
				return output.PrintJSON(w, runs)
			}
			for _, t := range runs {
				fmt.Fprintln(w, t.Format("2006-01-02 15:04:05 Mon MST"))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 5, "输出的触发次数")
	cmd.Flags().StringVar(&timezone, "timezone", "", "时区，如 Asia/Shanghai，默认本地时区")
	return cmd
}
