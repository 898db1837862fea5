package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/addiskers/webp/internal/dockerfile"
	"github.com/addiskers/webp/internal/model"
)

// dockerfileFlags holds the flag values for the dockerfile command.
type dockerfileFlags struct {
	descriptor string
	output     string
	check      string
}

// NewDockerfileCommand creates the "dockerfile" command. It renders the
// container build file from a descriptor, or with --check verifies an
// existing file declares the descriptor's port, entry point and install
// order.
func NewDockerfileCommand() *cobra.Command {
	flags := &dockerfileFlags{}

	cmd := &cobra.Command{
		Use:   "dockerfile",
		Short: "Render or check the container Dockerfile",
		Long: `Render the Dockerfile that packages the server, or check an existing one.

Without --check the Dockerfile is written to stdout (or -o). With --check
the named file is parsed and verified against the descriptor: the final
stage must EXPOSE and export the port, launch the entry point in exec form,
and install dependencies before copying the source tree.

Examples:
  webp-converter dockerfile -o Dockerfile
  webp-converter dockerfile --descriptor deploy.yaml
  webp-converter dockerfile --check Dockerfile`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDockerfile(cmd.OutOrStdout(), flags)
		},
	}

	cmd.Flags().StringVarP(&flags.descriptor, "descriptor", "d", "",
		"YAML descriptor overriding the built-in defaults")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Write to file instead of stdout")
	cmd.Flags().StringVar(&flags.check, "check", "", "Verify an existing Dockerfile instead of rendering")

	return cmd
}

// loadDescriptor returns the descriptor at path, or the defaults when path
// is empty.
func loadDescriptor(path string) (*dockerfile.Descriptor, error) {
	if path == "" {
		return dockerfile.Default(), nil
	}
	VerboseLog("Loading descriptor %s", path)
	return dockerfile.LoadDescriptor(path)
}

func runDockerfile(out io.Writer, flags *dockerfileFlags) error {
	d, err := loadDescriptor(flags.descriptor)
	if err != nil {
		return err
	}

	if flags.check != "" {
		return checkDockerfile(out, flags.check, d)
	}

	text, err := dockerfile.RenderString(d)
	if err != nil {
		return model.WrapCLIError(model.ExitDescriptorInvalid, "cannot render Dockerfile", err)
	}

	if flags.output == "" {
		_, err = io.WriteString(out, text)
		return err
	}
	if err := os.WriteFile(flags.output, []byte(text), 0o644); err != nil {
		return model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("failed to write %s", flags.output), err)
	}
	VerboseLog("Wrote %s", flags.output)
	return nil
}

// checkResult is the --json output of dockerfile --check.
type checkResult struct {
	Path     string   `json:"path"`
	OK       bool     `json:"ok"`
	Problems []string `json:"problems"`
}

// checkDockerfile parses path and lints it against d. A lint failure is
// an ExitDescriptorInvalid error so scripts can gate on it.
func checkDockerfile(out io.Writer, path string, d *dockerfile.Descriptor) error {
	f, err := os.Open(path)
	if err != nil {
		return model.WrapCLIError(model.ExitDescriptorInvalid,
			fmt.Sprintf("cannot open %s", path), err)
	}
	defer func() { _ = f.Close() }()

	summary, err := dockerfile.Parse(f)
	if err != nil {
		return model.WrapCLIError(model.ExitDescriptorInvalid,
			fmt.Sprintf("cannot parse %s", path), err)
	}

	result := checkResult{Path: path, OK: true, Problems: []string{}}
	lintErr := dockerfile.Lint(summary, d.Expectations())
	var le *dockerfile.LintError
	if errors.As(lintErr, &le) {
		result.OK = false
		result.Problems = le.Problems
	}

	if IsJSONOutput() {
		if err := printJSON(out, result); err != nil {
			return err
		}
	} else if result.OK {
		_, _ = fmt.Fprintf(out, "%s: ok\n", path)
	}

	if lintErr != nil {
		return model.WrapCLIError(model.ExitDescriptorInvalid,
			fmt.Sprintf("%s does not match the descriptor", path), lintErr)
	}
	return nil
}
