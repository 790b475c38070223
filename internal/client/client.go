// Package client calls the tracker HTTP API. Error responses match the combat
// sentinels under errors.Is, the same as errors from a local tracker.Service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cory-johannsen/initiative/internal/api"
	"github.com/cory-johannsen/initiative/internal/game/combat"
)

// Client is a thin JSON client over the /api/v1 routes.
type Client struct {
	base string
	http *http.Client
}

// New creates a Client for the server at baseURL, e.g. "http://localhost:8080".
//
// Precondition: baseURL must be an absolute http or https URL.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url %q must use http or https", baseURL)
	}
	return &Client{
		base: strings.TrimRight(u.String(), "/") + "/api/v1",
		http: &http.Client{Timeout: timeout},
	}, nil
}

// RemoteError is a non-2xx response. It matches combat.ErrValidation,
// combat.ErrNotFound or combat.ErrConflict according to Kind.
type RemoteError struct {
	Status  int
	Kind    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return e.Message
}

// Is maps the server's error kind onto the combat sentinels.
func (e *RemoteError) Is(target error) bool {
	switch e.Kind {
	case api.KindValidation:
		return target == combat.ErrValidation
	case api.KindNotFound:
		return target == combat.ErrNotFound
	case api.KindConflict:
		return target == combat.ErrConflict
	}
	return false
}

// ListEncounters returns every encounter.
func (c *Client) ListEncounters(ctx context.Context) ([]*combat.Encounter, error) {
	var views []api.EncounterView
	if err := c.do(ctx, http.MethodGet, "/encounters", nil, &views); err != nil {
		return nil, err
	}
	out := make([]*combat.Encounter, len(views))
	for i, v := range views {
		out[i] = v.Record()
	}
	return out, nil
}

// CreateEncounter creates an encounter in phase setup.
func (c *Client) CreateEncounter(ctx context.Context, name string) (*combat.Encounter, error) {
	return c.encounter(ctx, http.MethodPost, "/encounters", map[string]string{"name": name})
}

// GetEncounter returns one encounter.
func (c *Client) GetEncounter(ctx context.Context, id string) (*combat.Encounter, error) {
	return c.encounter(ctx, http.MethodGet, "/encounters/"+url.PathEscape(id), nil)
}

// CurrentEncounter returns the live encounter or a NotFoundError.
func (c *Client) CurrentEncounter(ctx context.Context) (*combat.Encounter, error) {
	return c.encounter(ctx, http.MethodGet, "/encounters/live", nil)
}

// FetchLive returns the live encounter, or (nil, nil) when none is live. It
// satisfies watch.FetchFunc.
func (c *Client) FetchLive(ctx context.Context) (*combat.Encounter, error) {
	enc, err := c.CurrentEncounter(ctx)
	if errors.Is(err, combat.ErrNotFound) {
		return nil, nil
	}
	return enc, err
}

// UpdateEncounter applies an administrative patch.
func (c *Client) UpdateEncounter(ctx context.Context, id string, patch combat.EncounterPatch) (*combat.Encounter, error) {
	return c.encounter(ctx, http.MethodPatch, "/encounters/"+url.PathEscape(id), patch)
}

// DeleteEncounter removes an encounter. Unknown ids succeed.
func (c *Client) DeleteEncounter(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/encounters/"+url.PathEscape(id), nil, nil)
}

// StartEncounter moves the encounter to active.
func (c *Client) StartEncounter(ctx context.Context, id string) (*combat.Encounter, error) {
	return c.encounter(ctx, http.MethodPost, "/encounters/"+url.PathEscape(id)+"/start", nil)
}

// AdvanceTurn moves to the next combatant.
func (c *Client) AdvanceTurn(ctx context.Context, id string) (*combat.Encounter, error) {
	return c.encounter(ctx, http.MethodPost, "/encounters/"+url.PathEscape(id)+"/advance", nil)
}

// EndEncounter ends the encounter with an optional outcome.
func (c *Client) EndEncounter(ctx context.Context, id, outcome string) (*combat.Encounter, error) {
	return c.encounter(ctx, http.MethodPost, "/encounters/"+url.PathEscape(id)+"/end", map[string]string{"outcome": outcome})
}

// AddCombatant adds a combatant to an encounter.
func (c *Client) AddCombatant(ctx context.Context, encounterID string, in combat.NewCombatant) (*combat.Combatant, error) {
	return c.combatant(ctx, http.MethodPost, "/encounters/"+url.PathEscape(encounterID)+"/combatants", in)
}

// ListCombatants returns an encounter's combatants in insertion order.
func (c *Client) ListCombatants(ctx context.Context, encounterID string) ([]*combat.Combatant, error) {
	var views []api.CombatantView
	if err := c.do(ctx, http.MethodGet, "/encounters/"+url.PathEscape(encounterID)+"/combatants", nil, &views); err != nil {
		return nil, err
	}
	out := make([]*combat.Combatant, len(views))
	for i, v := range views {
		out[i] = v.Combatant
	}
	return out, nil
}

// UpdateCombatant applies a partial patch.
func (c *Client) UpdateCombatant(ctx context.Context, id string, patch combat.CombatantPatch) (*combat.Combatant, error) {
	return c.combatant(ctx, http.MethodPatch, "/combatants/"+url.PathEscape(id), patch)
}

// RemoveCombatant removes a combatant. Unknown ids succeed.
func (c *Client) RemoveCombatant(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/combatants/"+url.PathEscape(id), nil, nil)
}

// Damage applies amount points of damage.
func (c *Client) Damage(ctx context.Context, id string, amount int) (*combat.Combatant, error) {
	return c.combatant(ctx, http.MethodPost, "/combatants/"+url.PathEscape(id)+"/damage", map[string]int{"amount": amount})
}

// Heal removes amount points of damage.
func (c *Client) Heal(ctx context.Context, id string, amount int) (*combat.Combatant, error) {
	return c.combatant(ctx, http.MethodPost, "/combatants/"+url.PathEscape(id)+"/heal", map[string]int{"amount": amount})
}

// ApplyDelta applies a signed damage delta.
func (c *Client) ApplyDelta(ctx context.Context, id string, delta int) (*combat.Combatant, error) {
	return c.combatant(ctx, http.MethodPost, "/combatants/"+url.PathEscape(id)+"/delta", map[string]int{"delta": delta})
}

func (c *Client) encounter(ctx context.Context, method, path string, body any) (*combat.Encounter, error) {
	var v api.EncounterView
	if err := c.do(ctx, method, path, body, &v); err != nil {
		return nil, err
	}
	return v.Record(), nil
}

func (c *Client) combatant(ctx context.Context, method, path string, body any) (*combat.Combatant, error) {
	var v api.CombatantView
	if err := c.do(ctx, method, path, body, &v); err != nil {
		return nil, err
	}
	if v.Combatant == nil {
		return nil, fmt.Errorf("empty combatant in response")
	}
	return v.Combatant, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	rerr := &RemoteError{Status: resp.StatusCode}
	var body api.ErrorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Kind != "" {
		rerr.Kind, rerr.Message = body.Kind, body.Error
	} else {
		rerr.Message = strings.TrimSpace(string(raw))
	}
	return rerr
}
