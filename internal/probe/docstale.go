package probe

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// DocStaleProbe signals when a source file matching one of the globs has a
// newer modification time than the documentation artifact.
// A missing artifact counts as stale documentation.
type DocStaleProbe struct {
	name         string
	dir          string
	artifactFile string
	sourceGlobs  []string
}

func NewDocStaleProbe(name, dir, artifactFile string, sourceGlobs []string) (*DocStaleProbe, error) {
	if artifactFile == "" {
		return nil, errors.New("artifact file is empty")
	}

	if len(sourceGlobs) == 0 {
		return nil, errors.New("no source globs defined")
	}

	return &DocStaleProbe{
		name:         name,
		dir:          dir,
		artifactFile: artifactFile,
		sourceGlobs:  sourceGlobs,
	}, nil
}

func (p *DocStaleProbe) Name() string {
	return p.name
}

func (p *DocStaleProbe) Probe(_ context.Context) (bool, error) {
	artifactMtime, err := p.artifactModTime()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return true, nil
		}

		return false, err
	}

	for _, glob := range p.sourceGlobs {
		matches, err := filepath.Glob(filepath.Join(p.dir, glob))
		if err != nil {
			return false, fmt.Errorf("evaluating glob %q failed: %w", glob, err)
		}

		for _, match := range matches {
			fi, err := os.Stat(match)
			if err != nil {
				return false, err
			}

			if fi.IsDir() {
				continue
			}

			if fi.ModTime().After(artifactMtime) {
				return true, nil
			}
		}
	}

	return false, nil
}

func (p *DocStaleProbe) artifactModTime() (time.Time, error) {
	fi, err := os.Stat(filepath.Join(p.dir, p.artifactFile))
	if err != nil {
		return time.Time{}, err
	}

	return fi.ModTime(), nil
}
