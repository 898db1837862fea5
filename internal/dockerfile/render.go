package dockerfile

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
	"text/template"
)

// dockerfileTemplate lays out a two-stage build. The manifest copy and
// install run before the full source copy so dependency layers survive
// source edits.
const dockerfileTemplate = `# syntax=docker/dockerfile:1
FROM {{.BuilderImage}} AS {{.Stage}}
WORKDIR {{.Workdir}}
COPY {{.ManifestFiles}} ./
RUN {{.InstallCommand}}
COPY . .
RUN CGO_ENABLED=1 go build -trimpath -o {{.BinaryPath}} {{.Package}}

FROM {{.RuntimeImage}}
{{- range .Env}}
ENV {{.Key}}={{.Value}}
{{- end}}
COPY --from={{.Stage}} {{.BinaryPath}} {{.InstallPath}}
EXPOSE {{.Port}}
CMD {{.Command}}
`

var parsedTemplate = template.Must(template.New("Dockerfile").Parse(dockerfileTemplate))

// templateData is the flattened view of a Descriptor used by the template.
type templateData struct {
	BuilderImage   string
	RuntimeImage   string
	Workdir        string
	InstallCommand string
	Package        string
	Port           int
	Stage          string
	ManifestFiles  string
	BinaryPath     string
	InstallPath    string
	Env            []EnvVar
	Command        string
}

// Render writes the Dockerfile for d to w.
func Render(w io.Writer, d *Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}

	// Exec-form CMD is a JSON array, so the process receives signals
	// directly instead of through a shell.
	cmd, err := json.Marshal(d.Command())
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}

	return parsedTemplate.Execute(w, templateData{
		BuilderImage:   d.BuilderImage,
		RuntimeImage:   d.RuntimeImage,
		Workdir:        d.Workdir,
		InstallCommand: d.InstallCommand,
		Package:        d.Package,
		Port:           d.Port,
		Stage:          builderStage,
		ManifestFiles:  strings.Join(d.Manifest, " "),
		BinaryPath:     d.BinaryPath(),
		InstallPath:    installDir + "/" + d.Binary,
		Env:            quotedEnv(d.RuntimeEnv()),
		Command:        strings.ReplaceAll(string(cmd), `","`, `", "`),
	})
}

// RenderString is Render into a string.
func RenderString(d *Descriptor) (string, error) {
	var b strings.Builder
	if err := Render(&b, d); err != nil {
		return "", err
	}
	return b.String(), nil
}

// plainEnvValue matches values that need no quoting on an ENV line.
var plainEnvValue = regexp.MustCompile(`^[A-Za-z0-9_./:,+@%=-]+$`)

// quotedEnv returns env with each value in Dockerfile ENV syntax.
func quotedEnv(env []EnvVar) []EnvVar {
	out := make([]EnvVar, len(env))
	for i, e := range env {
		out[i] = EnvVar{Key: e.Key, Value: quoteEnvValue(e.Value)}
	}
	return out
}

// quoteEnvValue double-quotes v unless it is a plain word. Inside the
// quotes, backslash, double quote and dollar are escaped so the builder
// neither splits nor expands the value.
//
//	quoteEnvValue("5008")        → 5008
//	quoteEnvValue("hello world") → "hello world"
//	quoteEnvValue(`a$b"c`)       → "a\$b\"c"
func quoteEnvValue(v string) string {
	if plainEnvValue.MatchString(v) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `\$`)
	return `"` + r.Replace(v) + `"`
}
