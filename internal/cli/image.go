package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	units "github.com/docker/go-units"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/addiskers/webp/internal/config"
	"github.com/addiskers/webp/internal/docker"
	"github.com/addiskers/webp/internal/model"
)

// NewImageCommand creates the "image" command group.
func NewImageCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "image",
		Short: "Build and list container images of the server",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newImageBuildCommand())
	cmd.AddCommand(newImageListCommand())
	return cmd
}

// imageBuildFlags holds the flag values for image build.
type imageBuildFlags struct {
	tag        string
	contextDir string
	descriptor string
}

func newImageBuildCommand() *cobra.Command {
	flags := &imageBuildFlags{}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the server image with the local Docker daemon",
		Long: `Render the Dockerfile from the descriptor and build it against the
source tree in --context. The image is labelled so "image list" can find it.

Examples:
  webp-converter image build
  webp-converter image build --tag webp-converter:1.0 --context .
  webp-converter image build --descriptor deploy.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImageBuild(cmd.Context(), cmd.OutOrStdout(), flags)
		},
	}

	cmd.Flags().StringVarP(&flags.tag, "tag", "t", "webp-converter:latest", "Image reference to tag")
	cmd.Flags().StringVar(&flags.contextDir, "context", ".", "Source tree to send as build context")
	cmd.Flags().StringVarP(&flags.descriptor, "descriptor", "d", "",
		"YAML descriptor overriding the built-in defaults")

	return cmd
}

func runImageBuild(ctx context.Context, out io.Writer, flags *imageBuildFlags) error {
	d, err := loadDescriptor(flags.descriptor)
	if err != nil {
		return err
	}

	log, err := commandLogger()
	if err != nil {
		return err
	}

	entry := log.WithField("command", "image build")
	c, err := docker.Connect(ctx, entry)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	// Progress goes to stderr when stdout carries the JSON result.
	progress := out
	if IsJSONOutput() {
		progress = os.Stderr
	}

	err = docker.BuildImage(ctx, c, docker.BuildRequest{
		ContextDir: flags.contextDir,
		Tag:        flags.tag,
		Descriptor: d,
		Version:    Version,
		Out:        progress,
	}, entry)
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		return printJSON(out, map[string]interface{}{
			"tag":  flags.tag,
			"port": d.Port,
		})
	}
	_, _ = fmt.Fprintf(out, "Built %s (port %d)\n", flags.tag, d.Port)
	return nil
}

func newImageListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List images built by webp-converter",
		Long: `List local images carrying the webp.managed-by label, newest first.

Examples:
  webp-converter image list
  webp-converter image list --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImageList(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func runImageList(ctx context.Context, out io.Writer) error {
	log, err := commandLogger()
	if err != nil {
		return err
	}

	entry := log.WithField("command", "image list")
	c, err := docker.Connect(ctx, entry)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	images, err := docker.ListManagedImages(ctx, c, entry)
	if err != nil {
		return model.WrapCLIError(model.ExitDockerNotRunning, "failed to list images", err)
	}
	VerboseLog("Found %d managed image(s)", len(images))

	if IsJSONOutput() {
		return printJSON(out, map[string]interface{}{"images": images})
	}
	return printImageTable(out, images, time.Now())
}

// commandLogger builds the stderr logger for one-shot commands from the
// config file and environment.
func commandLogger() (*logrus.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return NewLogger(cfg, os.Stderr)
}

// printImageTable writes images as an aligned table:
//
//	TAG                    VERSION  PORT  SIZE    CREATED
//	webp-converter:latest  1.0.0    5008  92.1MB  3 hours ago
func printImageTable(w io.Writer, images []model.ImageInfo, now time.Time) error {
	if len(images) == 0 {
		_, err := fmt.Fprintln(w, "No webp-converter images found.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TAG\tVERSION\tPORT\tSIZE\tCREATED")
	for _, img := range images {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			FormatTags(img.Tags),
			img.Version,
			img.Port,
			units.HumanSize(float64(img.Size)),
			units.HumanDuration(now.Sub(img.CreatedAt))+" ago",
		)
	}
	return tw.Flush()
}

// FormatTags joins image tags with commas. Untagged images show "<none>".
func FormatTags(tags []string) string {
	if len(tags) == 0 {
		return "<none>"
	}
	return strings.Join(tags, ",")
}
