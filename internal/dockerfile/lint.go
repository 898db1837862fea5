package dockerfile

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Expectations are the deployment facts a Dockerfile must declare.
type Expectations struct {
	// Port must be exposed, exported as PORT, and passed as --port.
	Port int

	// Entrypoint must prefix the exec-form CMD.
	Entrypoint []string

	// Manifest files must be copied and installed before the full source copy.
	Manifest []string
}

// LintError lists every problem found by Lint.
type LintError struct {
	Problems []string
}

// Error joins the problems into one message.
func (e *LintError) Error() string {
	return fmt.Sprintf("Dockerfile check failed: %s", strings.Join(e.Problems, "; "))
}

// Lint checks a parsed Dockerfile against want and returns a *LintError
// listing every violation, or nil.
//
// Checks:
//   - the final stage exposes want.Port, exports PORT with the same value,
//     and runs an exec-form CMD starting with want.Entrypoint whose --port
//     flag (if present) matches
//   - in the stage that copies the full source tree, every manifest file is
//     copied and a RUN step executes before that copy
func Lint(s *Summary, want Expectations) error {
	var problems []string

	final, ok := s.Final()
	if !ok {
		return &LintError{Problems: []string{"no FROM instruction"}}
	}

	problems = append(problems, lintPort(final, want.Port)...)
	problems = append(problems, lintCmd(final, want)...)
	problems = append(problems, lintInstallOrder(s, want.Manifest)...)

	if len(problems) > 0 {
		return &LintError{Problems: problems}
	}
	return nil
}

// lintPort checks EXPOSE and ENV PORT in the final stage.
func lintPort(final Stage, port int) []string {
	var problems []string

	exposed, err := final.ExposedPorts()
	if err != nil {
		return []string{err.Error()}
	}
	found := false
	for _, p := range exposed {
		if p == port {
			found = true
		}
	}
	if !found {
		problems = append(problems, fmt.Sprintf("final stage does not EXPOSE %d (exposes %v)", port, exposed))
	}

	envPort, ok := final.Env()["PORT"]
	switch {
	case !ok:
		problems = append(problems, "final stage does not set ENV PORT")
	case envPort != strconv.Itoa(port):
		problems = append(problems, fmt.Sprintf("ENV PORT=%s does not match exposed port %d", envPort, port))
	}
	return problems
}

// lintCmd checks the launch command in the final stage.
func lintCmd(final Stage, want Expectations) []string {
	cmd, ok := final.Cmd()
	if !ok {
		return []string{"final stage has no CMD"}
	}
	if !cmd.JSON {
		return []string{fmt.Sprintf("line %d: CMD must use exec form (JSON array)", cmd.Line)}
	}

	var problems []string
	if len(cmd.Args) < len(want.Entrypoint) || !slices.Equal(cmd.Args[:len(want.Entrypoint)], want.Entrypoint) {
		problems = append(problems, fmt.Sprintf("line %d: CMD %v does not start with entry point %v",
			cmd.Line, cmd.Args, want.Entrypoint))
	}

	for i, arg := range cmd.Args {
		if arg == "--port" && i+1 < len(cmd.Args) && cmd.Args[i+1] != strconv.Itoa(want.Port) {
			problems = append(problems, fmt.Sprintf("line %d: CMD binds port %s, expected %d",
				cmd.Line, cmd.Args[i+1], want.Port))
		}
	}
	return problems
}

// lintInstallOrder checks that dependencies are installed from the
// manifest before the full source tree is copied.
func lintInstallOrder(s *Summary, manifest []string) []string {
	for _, stage := range s.Stages {
		sourceCopy := -1
		for i, ins := range stage.Instructions {
			if isFullSourceCopy(ins) {
				sourceCopy = i
				break
			}
		}
		if sourceCopy < 0 {
			continue
		}

		manifestCopy := -1
		for i := 0; i < sourceCopy; i++ {
			if copiesAll(stage.Instructions[i], manifest) {
				manifestCopy = i
				break
			}
		}
		if manifestCopy < 0 {
			return []string{fmt.Sprintf("line %d: source is copied before the dependency manifest %v",
				stage.Instructions[sourceCopy].Line, manifest)}
		}

		for i := manifestCopy + 1; i < sourceCopy; i++ {
			if stage.Instructions[i].Command == "run" {
				return nil
			}
		}
		return []string{fmt.Sprintf("line %d: dependencies are not installed before the source copy",
			stage.Instructions[sourceCopy].Line)}
	}
	return []string{"no stage copies the source tree"}
}

// isFullSourceCopy matches "COPY . <dest>" without --from.
func isFullSourceCopy(ins Instruction) bool {
	if ins.Command != "copy" && ins.Command != "add" {
		return false
	}
	for _, f := range ins.Flags {
		if strings.HasPrefix(f, "--from") {
			return false
		}
	}
	if len(ins.Args) < 2 {
		return false
	}
	for _, src := range ins.Args[:len(ins.Args)-1] {
		if src == "." || src == "./" {
			return true
		}
	}
	return false
}

// copiesAll reports whether ins is a COPY whose sources include every file.
func copiesAll(ins Instruction, files []string) bool {
	if ins.Command != "copy" || len(ins.Args) < 2 {
		return false
	}
	srcs := map[string]bool{}
	for _, src := range ins.Args[:len(ins.Args)-1] {
		srcs[strings.TrimPrefix(src, "./")] = true
	}
	for _, f := range files {
		if !srcs[f] {
			return false
		}
	}
	return true
}
