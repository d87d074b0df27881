// Package file reads a previously exported audit payload from disk. It is
// mainly used to re-run a report against a saved export.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/crimson-sun/auditor/internal/connector"
	"github.com/crimson-sun/auditor/internal/model"
)

func init() {
	connector.Register("file", func() connector.Connector {
		return &Connector{}
	})
}

// Connector implements connector.Connector over a local file. The path comes
// from Extra["path"], falling back to Endpoint; Extra["format"] may force
// "json" or "text". The since argument is ignored: the file is the batch.
type Connector struct{}

// Fetch reads the whole file as one payload.
func (c *Connector) Fetch(ctx context.Context, cfg connector.ConnectorConfig, _ time.Time) (model.Payload, error) {
	path := cfg.Extra["path"]
	if path == "" {
		path = cfg.Endpoint
	}
	if path == "" {
		return model.Payload{}, errors.New("file connector: no path configured")
	}
	if err := ctx.Err(); err != nil {
		return model.Payload{}, err
	}

	format, err := parseFormat(cfg.Extra["format"])
	if err != nil {
		return model.Payload{}, fmt.Errorf("file connector: %w", err)
	}

	body, err := os.ReadFile(path)
	if err != nil {
		return model.Payload{}, fmt.Errorf("file connector: %w", err)
	}
	return model.Payload{Format: format, Body: body}, nil
}

func parseFormat(s string) (model.Format, error) {
	switch model.Format(s) {
	case "", model.FormatAuto:
		return model.FormatAuto, nil
	case model.FormatJSON, model.FormatText:
		return model.Format(s), nil
	default:
		return "", fmt.Errorf("unknown format %q", s)
	}
}
