package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/itchyny/gojq"
)

// CommandProbe runs a command in the repository directory.
// Without an output query, any non-empty stdout is a positive signal.
// With an output query, stdout is parsed as a stream of JSON documents and
// the jq query is evaluated against each of them, a non-empty, truthy query
// result is a positive signal.
type CommandProbe struct {
	name        string
	dir         string
	command     []string
	outputQuery *gojq.Query
}

// NewCommandProbe returns a CommandProbe.
// outputQuery may be empty, otherwise it must be a valid jq expression.
func NewCommandProbe(name, dir string, command []string, outputQuery string) (*CommandProbe, error) {
	if len(command) == 0 {
		return nil, errors.New("command is empty")
	}

	p := CommandProbe{
		name:    name,
		dir:     dir,
		command: command,
	}

	if outputQuery != "" {
		query, err := gojq.Parse(outputQuery)
		if err != nil {
			return nil, fmt.Errorf("parsing output query failed: %w", err)
		}

		p.outputQuery = query
	}

	return &p, nil
}

func (p *CommandProbe) Name() string {
	return p.name
}

func (p *CommandProbe) Probe(ctx context.Context) (bool, error) {
	cmd := exec.CommandContext(ctx, p.command[0], p.command[1:]...)
	cmd.Dir = p.dir

	out, err := cmd.Output()
	if err != nil {
		return false, fmt.Errorf("running %q failed: %w", strings.Join(p.command, " "), err)
	}

	if p.outputQuery == nil {
		return strings.TrimSpace(string(out)) != "", nil
	}

	return p.evalOutputQuery(ctx, out)
}

func (p *CommandProbe) evalOutputQuery(ctx context.Context, stdout []byte) (bool, error) {
	dec := json.NewDecoder(strings.NewReader(string(stdout)))

	for {
		var doc any

		err := dec.Decode(&doc)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}

			return false, fmt.Errorf("decoding command output as json failed: %w", err)
		}

		truthy, err := evalQuery(ctx, p.outputQuery, doc)
		if err != nil {
			return false, err
		}

		if truthy {
			return true, nil
		}
	}

	return false, nil
}

func evalQuery(ctx context.Context, query *gojq.Query, doc any) (bool, error) {
	iter := query.RunWithContext(ctx, doc)

	for {
		res, ok := iter.Next()
		if !ok {
			return false, nil
		}

		if err, isErr := res.(error); isErr {
			return false, fmt.Errorf("json query returned an error, query: %q: %w", query.String(), err)
		}

		if res == nil || res == false {
			continue
		}

		return true, nil
	}
}
