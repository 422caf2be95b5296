package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/muandane/glimpse/internal/browser"
	"github.com/muandane/glimpse/internal/config"
	"github.com/muandane/glimpse/internal/imaging"
	"github.com/muandane/glimpse/internal/screenshot"
)

type captureFlags struct {
	outDir    string
	fullPage  bool
	width     int
	height    int
	quality   int
	thumbnail int
	format    string
}

func newCaptureCmd() *cobra.Command {
	var f captureFlags
	cmd := &cobra.Command{
		Use:   "capture URL",
		Short: "Capture a page once and write the full, small and thumbnail images",
		Example: `  glimpse capture https://example.com
  glimpse capture --full-page --format png -o shots https://example.com`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCapture(cmd, args[0], f)
		},
	}
	cmd.Flags().StringVarP(&f.outDir, "output", "o", ".", "Directory to write images to")
	cmd.Flags().BoolVar(&f.fullPage, "full-page", false, "Capture the whole scrollable page")
	cmd.Flags().IntVar(&f.width, "width", 0, "Full image width (0 keeps the captured width)")
	cmd.Flags().IntVar(&f.height, "height", 0, "Full image height (0 keeps the captured height)")
	cmd.Flags().IntVarP(&f.quality, "quality", "q", imaging.DefaultQuality, "JPEG quality (1-100)")
	cmd.Flags().IntVar(&f.thumbnail, "thumbnail-size", imaging.DefaultThumbnailMaxDim, "Longest thumbnail edge")
	cmd.Flags().StringVarP(&f.format, "format", "f", "jpeg", "Image format (jpeg, png)")
	return cmd
}

func runCapture(cmd *cobra.Command, url string, f captureFlags) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.LogLevel)

	format, err := imaging.ParseFormat(f.format)
	if err != nil {
		return err
	}
	req := screenshot.Request{
		URL:             url,
		FullPage:        f.fullPage,
		Width:           f.width,
		Height:          f.height,
		Quality:         f.quality,
		ThumbnailMaxDim: f.thumbnail,
		Format:          format,
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return err
	}

	b, err := browser.New(&cfg.Browser, logger)
	if err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer b.Close()

	res, err := screenshot.NewService(b, nil, 0, logger).Screenshot(cmd.Context(), req)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(f.outDir, 0o755); err != nil {
		return err
	}
	ext := "." + string(format)
	for name, img := range map[string]imaging.EncodedImage{
		"full":      res.Set.Full,
		"small":     res.Set.Small,
		"thumbnail": res.Set.Thumbnail,
	} {
		path := filepath.Join(f.outDir, name+ext)
		if err := os.WriteFile(path, img.Bytes, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %dx%d %s\n", name, img.Width, img.Height, path)
	}
	return nil
}
