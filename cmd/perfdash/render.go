package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xela07ax/perfdash/internal/dataset"
	"github.com/xela07ax/perfdash/internal/domain"
	"github.com/xela07ax/perfdash/internal/engine"
	"github.com/xela07ax/perfdash/internal/infra"
	"github.com/xela07ax/perfdash/internal/render"
)

type renderOptions struct {
	label  string
	from   string
	to     string
	format string
	output string
	demo   bool
}

func buildRenderCmd(configPath *string) *cobra.Command {
	var opts renderOptions

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Fetch records once and write the chart image to a file",
		Long: `Fetch records for a label, filter them by the date range and draw the chart.

Dates use MM-DD-YYYY. A missing side is derived from the other one with the
configured window; with neither the window ends now. The to day is inclusive.`,
		Example: `  perfdash render --label home --to 01-31-2018 -o home.png
  perfdash render --label home --from 01-01-2018 --format svg -o -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd.Context(), *configPath, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.label, "label", "l", "", "Test label (defaults to chart.default_label)")
	cmd.Flags().StringVar(&opts.from, "from", "", "First day, MM-DD-YYYY")
	cmd.Flags().StringVar(&opts.to, "to", "", "Last day, MM-DD-YYYY")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "png or svg (defaults to the output extension)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "chart.png", "Output file, - for stdout")
	cmd.Flags().BoolVar(&opts.demo, "demo", false, "Use generated records")

	return cmd
}

func runRender(ctx context.Context, configPath string, opts renderOptions, stdout io.Writer) error {
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	from, err := domain.ParseDay(opts.from)
	if err != nil {
		return fmt.Errorf("--from: %w", err)
	}
	to, err := domain.ParseDay(opts.to)
	if err != nil {
		return fmt.Errorf("--to: %w", err)
	}
	b := domain.DefaultBoundary(time.Now(), from, to, cfg.Chart.Window())
	if err := b.Validate(); err != nil {
		return err
	}

	format, err := outputFormat(opts.format, opts.output)
	if err != nil {
		return err
	}

	label := opts.label
	if label == "" {
		label = cfg.Chart.DefaultLabel
	}

	source := engine.NewReliabilityWrapper(newRecordSource(cfg.Records, opts.demo, logger), reliabilitySettings(cfg.Records), nil)
	q := domain.RecordQuery{Label: label, From: b.From}
	if end, ok := b.End(); ok {
		q.To = &end
	}
	records, err := source.FetchRecords(ctx, q)
	if err != nil {
		return fmt.Errorf("fetch records: %w", err)
	}
	ds := dataset.Build(dataset.Filter(records, b))
	logger.Info("records fetched", zap.String("label", label), zap.Int("fetched", len(records)), zap.Int("shown", ds.Len()))

	title := label
	if title == "" {
		title = cfg.Chart.Title
	}

	// Рисуем в буфер, чтобы не оставлять пустой файл при ошибке.
	var buf bytes.Buffer
	err = render.NewRenderer(render.Palette(cfg.Chart.Palette)).Render(&buf, ds, render.Options{
		Title:  title,
		Format: format,
		Width:  cfg.Chart.Width,
		Height: cfg.Chart.Height,
	})
	if err != nil {
		return err
	}

	if opts.output == "-" {
		_, err = buf.WriteTo(stdout)
		return err
	}
	if err := os.WriteFile(opts.output, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write chart: %w", err)
	}
	logger.Info("chart written", zap.String("file", opts.output), zap.String("format", string(format)))
	return nil
}

// outputFormat: явный --format важнее расширения файла.
func outputFormat(flag, output string) (render.Format, error) {
	if flag != "" {
		return render.ParseFormat(flag)
	}
	if strings.EqualFold(filepath.Ext(output), ".svg") {
		return render.FormatSVG, nil
	}
	return render.FormatPNG, nil
}
