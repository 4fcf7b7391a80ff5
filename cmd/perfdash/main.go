// Command perfdash поднимает дашборд статистики WebPageTest и рисует
// разовые картинки графиков.
//
//	perfdash serve --config configs/config.yaml
//	perfdash serve --demo
//	perfdash render --label home --from 01-01-2018 --to 01-31-2018 -o home.png
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Заполняется через ldflags при сборке.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := buildRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "perfdash",
		Short:         "Performance test records dashboard",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var configPath string
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")

	root.AddCommand(buildServeCmd(&configPath), buildRenderCmd(&configPath))
	return root
}
