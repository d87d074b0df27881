// Package cfcli fetches audit events by driving the cf command line client,
// the way operators export events by hand.
package cfcli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/crimson-sun/auditor/internal/connector"
	"github.com/crimson-sun/auditor/internal/model"
)

const (
	defaultEndpoint = "https://api.fr.cloud.gov"
	defaultBinary   = "cf"
	sinceLayout     = "20060102"
)

// Runner executes name with args and the extra environment, returning stdout.
type Runner func(ctx context.Context, env []string, name string, args ...string) ([]byte, error)

func init() {
	connector.Register("cfcli", func() connector.Connector {
		return &Connector{run: execRunner}
	})
}

// Connector implements connector.Connector using the cf CLI.
type Connector struct {
	run Runner
}

// New creates a Connector that uses run to execute commands.
func New(run Runner) *Connector {
	return &Connector{run: run}
}

// Fetch targets the API endpoint, authenticates with the credentials from
// Extra["username"]/Extra["password"] and returns the text output of
// `cf get-events --from <since>`. Credentials are handed to cf through its
// CF_USERNAME/CF_PASSWORD environment, never on the command line.
func (c *Connector) Fetch(ctx context.Context, cfg connector.ConnectorConfig, since time.Time) (model.Payload, error) {
	user, pass := cfg.Extra["username"], cfg.Extra["password"]
	if user == "" || pass == "" {
		return model.Payload{}, errors.New("cfcli connector: cloud.gov credentials not configured (username/password)")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	bin := cfg.Extra["cf_binary"]
	if bin == "" {
		bin = defaultBinary
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	env := []string{"CF_USERNAME=" + user, "CF_PASSWORD=" + pass}
	steps := [][]string{
		{"api", endpoint},
		{"auth"},
	}
	for _, args := range steps {
		if _, err := c.run(ctx, env, bin, args...); err != nil {
			return model.Payload{}, fmt.Errorf("cfcli connector: %w", err)
		}
	}

	out, err := c.run(ctx, env, bin, "get-events", "--from", since.Format(sinceLayout))
	if err != nil {
		return model.Payload{}, fmt.Errorf("cfcli connector: %w", err)
	}
	return model.Payload{Format: model.FormatText, Body: out}, nil
}

func execRunner(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s %s: %w: %s", name, args[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
