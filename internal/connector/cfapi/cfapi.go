// Package cfapi fetches audit events from the Cloud Foundry v3 API
// (GET /v3/audit_events), as exposed by cloud.gov.
package cfapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/crimson-sun/auditor/internal/connector"
	"github.com/crimson-sun/auditor/internal/connector/httpclient"
	"github.com/crimson-sun/auditor/internal/model"
)

const (
	defaultEndpoint = "https://api.fr.cloud.gov"
	defaultPerPage  = 5000
	maxPerPage      = 5000
	maxPages        = 1000
	eventsPath      = "/v3/audit_events"
)

func init() {
	connector.Register("cfapi", func() connector.Connector {
		return &Connector{now: time.Now}
	})
}

// Connector implements connector.Connector against the Cloud Controller.
type Connector struct {
	now func() time.Time
}

// eventsPage uses pointers so a body missing either key, such as an error
// document served with status 200, is told apart from an empty page.
type eventsPage struct {
	Pagination *struct {
		TotalResults int   `json:"total_results"`
		Next         *link `json:"next"`
	} `json:"pagination"`
	Resources *[]json.RawMessage `json:"resources"`
}

type link struct {
	Href string `json:"href"`
}

// Fetch pages through every audit event created at or after since and
// reassembles them into one {"resources": [...]} document. A failure on any
// page fails the whole fetch.
func (c *Connector) Fetch(ctx context.Context, cfg connector.ConnectorConfig, since time.Time) (model.Payload, error) {
	token := bareToken(cfg.APIKey)
	if err := checkToken(token, c.clock()); err != nil {
		return model.Payload{}, fmt.Errorf("cfapi connector: %w", err)
	}

	baseURL := strings.TrimRight(cfg.Endpoint, "/")
	if baseURL == "" {
		baseURL = defaultEndpoint
	}
	perPage, err := parsePerPage(cfg.Extra["per_page"])
	if err != nil {
		return model.Payload{}, fmt.Errorf("cfapi connector: %w", err)
	}

	client := httpclient.New(baseURL, token,
		httpclient.WithTimeout(cfg.Timeout),
		httpclient.WithUserAgent("auditor"),
	)

	path := eventsPath
	q := url.Values{}
	q.Set("created_ats[gte]", since.UTC().Format(time.RFC3339))
	q.Set("order_by", "created_at")
	q.Set("per_page", strconv.Itoa(perPage))

	all := make([]json.RawMessage, 0)
	for page := 0; ; page++ {
		if page >= maxPages {
			return model.Payload{}, fmt.Errorf("cfapi connector: gave up after %d pages", maxPages)
		}

		var resp eventsPage
		if err := client.GetJSON(ctx, path, q, &resp); err != nil {
			return model.Payload{}, fmt.Errorf("cfapi connector: page %d: %w", page+1, err)
		}
		if resp.Resources == nil || resp.Pagination == nil {
			return model.Payload{}, fmt.Errorf("cfapi connector: page %d: %w: expected \"pagination\" and \"resources\"", page+1, model.ErrPayloadShape)
		}
		all = append(all, *resp.Resources...)

		if resp.Pagination.Next == nil || resp.Pagination.Next.Href == "" {
			break
		}
		path, q, err = nextPage(resp.Pagination.Next.Href)
		if err != nil {
			return model.Payload{}, fmt.Errorf("cfapi connector: %w", err)
		}
	}

	body, err := json.Marshal(struct {
		Resources []json.RawMessage `json:"resources"`
	}{all})
	if err != nil {
		return model.Payload{}, fmt.Errorf("cfapi connector: encode payload: %w", err)
	}
	return model.Payload{Format: model.FormatJSON, Body: body}, nil
}

func (c *Connector) clock() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}

// bareToken strips the "bearer " prefix that `cf oauth-token` prints.
func bareToken(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		return strings.TrimSpace(raw[7:])
	}
	return raw
}

// checkToken fails fast on a missing or already expired token. UAA issues
// JWTs; the signature is not checked here, only the exp claim. Tokens that
// are not JWTs are passed through for the API to judge.
func checkToken(token string, now time.Time) error {
	if token == "" {
		return errors.New("missing API token")
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil
	}
	if claims.ExpiresAt != nil && !claims.ExpiresAt.After(now) {
		return fmt.Errorf("API token expired at %s", claims.ExpiresAt.UTC().Format(time.RFC3339))
	}
	return nil
}

func parsePerPage(raw string) (int, error) {
	if raw == "" {
		return defaultPerPage, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxPerPage {
		return 0, fmt.Errorf("per_page must be between 1 and %d, got %q", maxPerPage, raw)
	}
	return n, nil
}

// nextPage splits an absolute pagination href into the path and query the
// client expects. The host is assumed to be the configured endpoint.
func nextPage(href string) (string, url.Values, error) {
	u, err := url.Parse(href)
	if err != nil {
		return "", nil, fmt.Errorf("parse next page %q: %w", href, err)
	}
	if u.Path == "" {
		return "", nil, fmt.Errorf("next page %q has no path", href)
	}
	return u.Path, u.Query(), nil
}
