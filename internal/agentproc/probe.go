package agentproc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/davidchris/thoughttree/internal/textutil"
)

// probeTimeout bounds the version probe; adapters launched through package
// runners (npx) can be slow on first run.
const probeTimeout = 30 * time.Second

// ErrNoVersionOutput indicates the probe ran but printed nothing usable.
var ErrNoVersionOutput = errors.New("no version output")

// ProbeVersion runs the executable with a version argument and returns the
// first non-empty output line. Used to validate a configured adapter path
// before any session is created against it.
func ProbeVersion(ctx context.Context, runner Runner, path string, args []string) (string, error) {
	if runner == nil {
		runner = NewOSRunner()
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	probeArgs := append(append([]string{}, args...), "--version")
	out, err := runner.Run(ctx, path, probeArgs...)
	if err != nil {
		return "", fmt.Errorf("probe %s: %w", path, err)
	}

	version := textutil.FirstLine(string(out))
	if version == "" {
		return "", fmt.Errorf("probe %s: %w", path, ErrNoVersionOutput)
	}
	return version, nil
}
