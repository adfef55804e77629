package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/LENAX/dataflow-engine/pkg/cli/output"
	"github.com/LENAX/dataflow-engine/pkg/core/workflow"
)

// errInvalid 校验未通过，报告已输出
var errInvalid = errors.New("工作流定义无效")

func newWorkflowCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "工作流命令",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate <file>",
		Short: "本地校验工作流定义文件，输出错误、警告与执行顺序",
		Long: `校验工作流定义JSON。文件可以是定义本身（含nodes与edges），
也可以是导出的工作流对象（定义放在definition字段中）。`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("读取文件失败: %w", err)
			}
			return validateDefinition(cmd, opts, unwrapDefinition(raw))
		},
	})
	return cmd
}

// unwrapDefinition 导出的工作流对象取其definition字段，字符串形式的定义同样接受
func unwrapDefinition(raw []byte) []byte {
	var wrapper struct {
		Definition json.RawMessage `json:"definition"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil || len(wrapper.Definition) == 0 {
		return raw
	}
	var s string
	if err := json.Unmarshal(wrapper.Definition, &s); err == nil {
		return []byte(s)
	}
	return wrapper.Definition
}

type validationReport struct {
	workflow.ValidationResult
	ExecutionOrder []string `json:"execution_order,omitempty"`
}

func validateDefinition(cmd *cobra.Command, opts *rootOptions, raw []byte) error {
	report := validationReport{ValidationResult: workflow.Validate(raw)}
	if report.Valid {
		if def, err := workflow.Parse(raw); err == nil {
			if order, err := def.ExecutionOrder(); err == nil {
				for _, n := range order {
					report.ExecutionOrder = append(report.ExecutionOrder, fmt.Sprintf("%s (%s)", n.ID, n.Type))
				}
			}
		}
	}

	w := cmd.OutOrStdout()
	if opts.outputJSON {
		if err := output.PrintJSON(w, report); err != nil {
			return err
		}
	} else {
		for _, e := range report.Errors {
			output.Error(w, "%s", e)
		}
		for _, warn := range report.Warnings {
			output.Warning(w, "%s", warn)
		}
		if report.Valid {
			output.Success(w, "定义有效")
			for i, step := range report.ExecutionOrder {
				fmt.Fprintf(w, "  %d. %s\n", i+1, step)
			}
		}
	}
	if !report.Valid {
		return errInvalid
	}
	return nil
}
