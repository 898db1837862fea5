package dockerfile

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/moby/buildkit/frontend/dockerfile/parser"
	"github.com/moby/buildkit/frontend/dockerfile/shell"
)

// Instruction is one parsed Dockerfile instruction.
type Instruction struct {
	// Command is the lower-cased instruction keyword ("from", "run", ...).
	Command string

	// Args are the instruction arguments with flags removed.
	Args []string

	// Flags are the "--name=value" flags, e.g. "--from=build".
	Flags []string

	// JSON is true for exec-form (JSON array) arguments.
	JSON bool

	// Line is the 1-based source line where the instruction starts.
	Line int
}

// Stage is one FROM section.
type Stage struct {
	// Image is the base image reference.
	Image string

	// Name is the "AS" alias, if any.
	Name string

	// Instructions lists everything after the FROM line, in order.
	Instructions []Instruction
}

// Summary is the part of a Dockerfile that Lint inspects.
type Summary struct {
	Stages []Stage
}

// Final returns the last stage, the one the image is made from.
// ok is false for a Dockerfile without stages.
func (s *Summary) Final() (stage Stage, ok bool) {
	if len(s.Stages) == 0 {
		return Stage{}, false
	}
	return s.Stages[len(s.Stages)-1], true
}

// Env returns the environment declared in a stage. Later ENV lines win.
// Values are unquoted and expanded against earlier ENV entries the way the
// builder does, so `ENV PORT="5008"` yields 5008. A value the shell lexer
// rejects is kept raw.
func (st Stage) Env() map[string]string {
	lex := shell.NewLex('\\')
	env := map[string]string{}
	var declared []string
	for _, ins := range st.Instructions {
		if ins.Command != "env" {
			continue
		}
		for i := 0; i+1 < len(ins.Args); i += 2 {
			value, err := lex.ProcessWord(ins.Args[i+1], declared)
			if err != nil {
				value = ins.Args[i+1]
			}
			env[ins.Args[i]] = value
			declared = append(declared, ins.Args[i]+"="+value)
		}
	}
	return env
}

// ExposedPorts returns every port named by EXPOSE in a stage. A protocol
// suffix ("5008/tcp") is dropped.
func (st Stage) ExposedPorts() ([]int, error) {
	var ports []int
	for _, ins := range st.Instructions {
		if ins.Command != "expose" {
			continue
		}
		for _, arg := range ins.Args {
			p, err := strconv.Atoi(strings.SplitN(arg, "/", 2)[0])
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid EXPOSE value %q", ins.Line, arg)
			}
			ports = append(ports, p)
		}
	}
	return ports, nil
}

// Cmd returns the last CMD of a stage, or ok=false if there is none.
func (st Stage) Cmd() (ins Instruction, ok bool) {
	for _, i := range st.Instructions {
		if i.Command == "cmd" {
			ins, ok = i, true
		}
	}
	return ins, ok
}

// Parse reads a Dockerfile using the BuildKit parser and groups its
// instructions into stages. Instructions before the first FROM (ARG) are
// ignored.
func Parse(r io.Reader) (*Summary, error) {
	res, err := parser.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse Dockerfile: %w", err)
	}

	summary := &Summary{}
	for _, node := range res.AST.Children {
		ins := toInstruction(node)

		if ins.Command == "from" {
			stage, err := fromStage(ins)
			if err != nil {
				return nil, err
			}
			summary.Stages = append(summary.Stages, stage)
			continue
		}

		if len(summary.Stages) == 0 {
			continue
		}
		last := &summary.Stages[len(summary.Stages)-1]
		last.Instructions = append(last.Instructions, ins)
	}
	return summary, nil
}

// toInstruction flattens a parser node and its Next chain.
func toInstruction(node *parser.Node) Instruction {
	ins := Instruction{
		Command: strings.ToLower(node.Value),
		Flags:   node.Flags,
		JSON:    node.Attributes["json"],
		Line:    node.StartLine,
	}

	var args []string
	for n := node.Next; n != nil; n = n.Next {
		args = append(args, n.Value)
	}

	if ins.Command == "env" || ins.Command == "label" {
		args = keyValuePairs(args)
	}
	ins.Args = args
	return ins
}

// keyValuePairs normalizes ENV/LABEL arguments to flat key, value pairs.
// The parser emits "KEY=value" entries as key, value, "=" triples and the
// legacy "KEY value" form as key, value, "" triples.
func keyValuePairs(args []string) []string {
	if len(args)%3 != 0 {
		return args
	}
	pairs := make([]string, 0, len(args)/3*2)
	for i := 0; i+2 < len(args); i += 3 {
		if args[i+2] != "=" && args[i+2] != "" {
			return args
		}
		pairs = append(pairs, args[i], args[i+1])
	}
	return pairs
}

// fromStage interprets "FROM image [AS name]".
func fromStage(ins Instruction) (Stage, error) {
	switch {
	case len(ins.Args) == 1:
		return Stage{Image: ins.Args[0]}, nil
	case len(ins.Args) == 3 && strings.EqualFold(ins.Args[1], "as"):
		return Stage{Image: ins.Args[0], Name: ins.Args[2]}, nil
	default:
		return Stage{}, fmt.Errorf("line %d: malformed FROM %q", ins.Line, strings.Join(ins.Args, " "))
	}
}
