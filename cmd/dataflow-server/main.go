package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/LENAX/dataflow-engine/internal/app"
	"github.com/LENAX/dataflow-engine/pkg/cli/cmd"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:          "dataflow-server",
		Short:        "数据流引擎服务",
		Version:      cmd.Version,
		SilenceUsage: true,
		RunE: func(c *cobra.Command, _ []string) error {
			fmt.Fprintf(c.OutOrStdout(), "Dataflow Engine Server v%s\n配置文件: %s\n", cmd.Version, configPath)
			fx.New(app.Module(configPath, cmd.Version), app.WithZapLogger()).Run()
			return nil
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "./configs/dataflow.yaml", "配置文件路径")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
