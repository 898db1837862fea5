package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/addiskers/webp/internal/config"
	"github.com/addiskers/webp/internal/convert"
	"github.com/addiskers/webp/internal/model"
)

// convertFlags holds the flag values for the convert command.
type convertFlags struct {
	output   string
	quality  int
	lossless bool
	workers  int
}

// NewConvertCommand creates the "convert" command, the offline counterpart
// of the web form's POST /convert.
func NewConvertCommand() *cobra.Command {
	flags := &convertFlags{}

	cmd := &cobra.Command{
		Use:   "convert FILE...",
		Short: "Convert JPEG files to WebP and write a ZIP archive",
		Long: `Convert local JPEG files to WebP and bundle them into a ZIP archive.

Files that are not .jpg/.jpeg or cannot be decoded are skipped and
reported; the command fails only when nothing could be converted.

Examples:
  webp-converter convert photo.jpg scan.jpeg
  webp-converter convert -o out.zip --quality 80 *.jpg
  webp-converter convert --json --lossless a.jpg`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			opts := convert.Options{
				Quality:  float32(cfg.Quality),
				Lossless: cfg.Lossless,
				Workers:  cfg.Workers,
			}
			if cmd.Flags().Changed("quality") {
				opts.Quality = float32(flags.quality)
			}
			if cmd.Flags().Changed("lossless") {
				opts.Lossless = flags.lossless
			}
			if cmd.Flags().Changed("workers") {
				opts.Workers = flags.workers
			}
			return runConvert(cmd.Context(), cmd.OutOrStdout(), args, flags.output, opts)
		},
	}

	cmd.Flags().StringVarP(&flags.output, "output", "o", "",
		"Archive path (default: webp-conversion-<timestamp>.zip)")
	cmd.Flags().IntVarP(&flags.quality, "quality", "q", config.DefaultQuality, "Lossy WebP quality (0-100)")
	cmd.Flags().BoolVar(&flags.lossless, "lossless", false, "Encode lossless WebP")
	cmd.Flags().IntVarP(&flags.workers, "workers", "w", 0, "Concurrent conversions (0: one per CPU)")

	return cmd
}

// convertReport is the --json output of the convert command.
type convertReport struct {
	model.ConversionSummary
	Archive string `json:"archive"`
}

// runConvert converts paths and writes the archive. Per-file failures are
// reported; having no successes is an ExitConversionFailed error.
func runConvert(ctx context.Context, out io.Writer, paths []string, output string, opts convert.Options) error {
	if opts.Quality < 0 || opts.Quality > 100 {
		return model.NewCLIError(model.ExitInvalidConfig,
			fmt.Sprintf("quality %v out of range (0-100)", opts.Quality))
	}

	uploads := make([]convert.Upload, 0, len(paths))
	for _, p := range paths {
		uploads = append(uploads, fileUpload(p))
	}

	VerboseLog("Converting %d file(s) with %d worker(s)", len(uploads), opts.Workers)
	res, err := convert.ConvertBatch(ctx, uploads, opts)
	if err != nil {
		return model.WrapCLIError(model.ExitConversionFailed, "conversion aborted", err)
	}

	if len(res.Successes) == 0 {
		return model.WrapCLIError(model.ExitConversionFailed, "no files were converted",
			errors.New(strings.Join(res.Failures, "; ")))
	}

	res.ArchiveName = convert.ArchiveName(time.Now())
	if output == "" {
		output = res.ArchiveName
	}
	if err := os.WriteFile(output, res.Archive.Bytes(), 0o644); err != nil {
		return model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("failed to write %s", output), err)
	}

	if IsJSONOutput() {
		return printJSON(out, convertReport{ConversionSummary: res.ConversionSummary, Archive: output})
	}

	for _, f := range res.Failures {
		_, _ = fmt.Fprintf(out, "skipped: %s\n", f)
	}
	if len(res.Failures) > 0 {
		_, _ = fmt.Fprintln(out, res.PartialMessage())
	}
	_, _ = fmt.Fprintf(out, "Wrote %d file(s) to %s\n", len(res.Successes), output)
	return nil
}

// fileUpload adapts a local path to a convert.Upload named after the
// file's base name, the same name a browser would send.
func fileUpload(path string) convert.Upload {
	return convert.Upload{
		Name: filepath.Base(path),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}
}
