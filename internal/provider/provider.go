// Package provider resolves agent adapter executables. A Provider names an
// adapter program speaking the agent protocol over stdio; the catalog knows
// the built-in defaults and the config layer supplies per-provider path
// overrides.
package provider

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"

	"github.com/davidchris/thoughttree/internal/agentproc"
	"github.com/davidchris/thoughttree/internal/config"
)

// DefaultID is the provider used when the caller does not name one.
const DefaultID = "claude"

var ErrUnknownProvider = errors.New("unknown provider")

// Provider describes one adapter: how to launch it and which credential
// variables to forward into its environment.
type Provider struct {
	ID      string
	Command string   // executable looked up on PATH when no override is set
	Args    []string // fixed arguments before any per-call arguments
	EnvKeys []string // environment variables forwarded when present
}

// builtin is the adapter catalog. The claude adapter is launched through
// npx so a plain Node installation is enough.
var builtin = map[string]Provider{
	"claude": {
		ID:      "claude",
		Command: "npx",
		Args:    []string{"@zed-industries/claude-code-acp"},
		EnvKeys: []string{"ANTHROPIC_API_KEY"},
	},
}

// Catalog answers launch and availability questions about providers,
// honoring executable overrides from configuration.
type Catalog struct {
	cfg    *config.Config
	runner agentproc.Runner
}

func NewCatalog(cfg *config.Config, runner agentproc.Runner) *Catalog {
	if runner == nil {
		runner = agentproc.NewOSRunner()
	}
	return &Catalog{cfg: cfg, runner: runner}
}

// Get returns the catalog entry for id.
func (c *Catalog) Get(id string) (Provider, error) {
	p, ok := builtin[id]
	if !ok {
		return Provider{}, fmt.Errorf("%w: %q", ErrUnknownProvider, id)
	}
	return p, nil
}

// IDs lists the known provider ids, sorted.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(builtin))
	for id := range builtin {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Command resolves the executable and arguments to launch provider id.
// A configured override replaces both the command and the fixed arguments,
// since an override points directly at an adapter binary.
func (c *Catalog) Command(id string) (path string, args []string, err error) {
	p, err := c.Get(id)
	if err != nil {
		return "", nil, err
	}
	if override := c.overridePath(id); override != "" {
		return override, nil, nil
	}
	return p.Command, p.Args, nil
}

func (c *Catalog) overridePath(id string) string {
	if c.cfg == nil {
		return ""
	}
	return c.cfg.ProviderPath(id)
}

// Env returns the credential environment entries to pass to the adapter,
// in KEY=VALUE form, for the variables that are set in this process.
func (c *Catalog) Env(id string) []string {
	p, ok := builtin[id]
	if !ok {
		return nil
	}
	var out []string
	for _, k := range p.EnvKeys {
		if v := config.Env().Lookup(k); v != "" {
			out = append(out, k+"="+v)
		}
	}
	return out
}

// Available reports whether the provider's executable can be found. It does
// not start the adapter; use Validate for a real probe.
func (c *Catalog) Available(id string) bool {
	path, _, err := c.Command(id)
	if err != nil {
		return false
	}
	_, err = exec.LookPath(path)
	return err == nil
}

// Validate runs the executable at path with a version flag and returns the
// reported version line. Used to vet a user-supplied override before it is
// saved to configuration.
func (c *Catalog) Validate(ctx context.Context, id, path string) (string, error) {
	p, err := c.Get(id)
	if err != nil {
		return "", err
	}
	args := p.Args
	if path != "" {
		args = nil
	} else {
		path = p.Command
	}
	version, err := agentproc.ProbeVersion(ctx, c.runner, path, args)
	if err != nil {
		return "", fmt.Errorf("probe %s adapter: %w", id, err)
	}
	return version, nil
}
