// Package hue implements the hue_* tool family against the Philips Hue
// bridge v1 REST API.
package hue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/voxmachina/jarvis/internal/config"
	"github.com/voxmachina/jarvis/internal/httpkit"
)

// Bridge API value ranges.
const (
	briMin = 1
	briMax = 254
	hueMax = 65535
	satMax = 254
	ctMin  = 153
	ctMax  = 500
)

// Light is one bulb known to the bridge.
type Light struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	ModelID      string `json:"model_id"`
	Manufacturer string `json:"manufacturer_name"`
	Product      string `json:"product_name"`
	UniqueID     string `json:"unique_id"`
	On           bool   `json:"on"`
	Brightness   int    `json:"brightness"`
	Hue          int    `json:"hue"`
	Saturation   int    `json:"saturation"`
	ColorTemp    int    `json:"color_temp"`
	Reachable    bool   `json:"reachable"`
}

// Group is a room or zone grouping several lights.
type Group struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Type   string         `json:"type"`
	Class  string         `json:"class"`
	Lights []string       `json:"lights"`
	State  map[string]any `json:"state"`
}

// State is a partial light or group state update. Nil fields are left
// unchanged by the bridge.
type State struct {
	On         *bool `json:"on,omitempty"`
	Brightness *int  `json:"bri,omitempty"`
	Hue        *int  `json:"hue,omitempty"`
	Saturation *int  `json:"sat,omitempty"`
	ColorTemp  *int  `json:"ct,omitempty"`
}

// Client talks to a Hue bridge using its local v1 API.
type Client struct {
	baseURL    string // http://<bridge>/api/<username>
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a bridge client from configuration.
func NewClient(cfg config.HueConfig, logger *slog.Logger) *Client {
	return &Client{
		baseURL: fmt.Sprintf("%s/api/%s", cfg.BridgeURL, cfg.Username),
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(cfg.Timeout()),
			httpkit.WithRetry(2, 500*time.Millisecond),
			httpkit.WithLogger(logger),
		),
		logger: logger,
	}
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bridge request failed: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bridge error %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 1024))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// put sends a state update. The bridge answers 200 even for bad
// resource ids, reporting problems in the response array instead.
func (c *Client) put(ctx context.Context, endpoint string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/"+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bridge request failed: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bridge error %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 1024))
	}

	var results []map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	for _, r := range results {
		if raw, ok := r["error"]; ok {
			var e struct {
				Description string `json:"description"`
			}
			_ = json.Unmarshal(raw, &e)
			return fmt.Errorf("bridge rejected update: %s", e.Description)
		}
	}
	return nil
}

// Wire shape of a light resource.
type lightResource struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	ModelID      string `json:"modelid"`
	Manufacturer string `json:"manufacturername"`
	Product      string `json:"productname"`
	UniqueID     string `json:"uniqueid"`
	State        struct {
		On        bool `json:"on"`
		Bri       int  `json:"bri"`
		Hue       int  `json:"hue"`
		Sat       int  `json:"sat"`
		CT        int  `json:"ct"`
		Reachable bool `json:"reachable"`
	} `json:"state"`
}

func (r lightResource) toLight(id string) Light {
	return Light{
		ID:           id,
		Name:         r.Name,
		Type:         r.Type,
		ModelID:      r.ModelID,
		Manufacturer: r.Manufacturer,
		Product:      r.Product,
		UniqueID:     r.UniqueID,
		On:           r.State.On,
		Brightness:   r.State.Bri,
		Hue:          r.State.Hue,
		Saturation:   r.State.Sat,
		ColorTemp:    r.State.CT,
		Reachable:    r.State.Reachable,
	}
}

// Lights returns every light on the bridge, sorted by ID for stable
// output.
func (c *Client) Lights(ctx context.Context) ([]Light, error) {
	var raw map[string]lightResource
	if err := c.get(ctx, "lights", &raw); err != nil {
		return nil, err
	}

	lights := make([]Light, 0, len(raw))
	for id, r := range raw {
		lights = append(lights, r.toLight(id))
	}
	sort.Slice(lights, func(i, j int) bool { return lights[i].ID < lights[j].ID })
	return lights, nil
}

// Light returns one light by bridge ID.
func (c *Client) Light(ctx context.Context, id string) (*Light, error) {
	var raw lightResource
	if err := c.get(ctx, "lights/"+id, &raw); err != nil {
		return nil, err
	}
	if raw.Name == "" && raw.UniqueID == "" {
		return nil, fmt.Errorf("light %s not found", id)
	}
	l := raw.toLight(id)
	return &l, nil
}

// SetLightState applies a partial state update to one light.
func (c *Client) SetLightState(ctx context.Context, id string, state State) error {
	c.logger.Debug("setting light state", "light", id)
	return c.put(ctx, "lights/"+id+"/state", state)
}

// Groups returns every group/room on the bridge, sorted by ID.
func (c *Client) Groups(ctx context.Context) ([]Group, error) {
	var raw map[string]struct {
		Name   string         `json:"name"`
		Type   string         `json:"type"`
		Class  string         `json:"class"`
		Lights []string       `json:"lights"`
		Action map[string]any `json:"action"`
	}
	if err := c.get(ctx, "groups", &raw); err != nil {
		return nil, err
	}

	groups := make([]Group, 0, len(raw))
	for id, g := range raw {
		groups = append(groups, Group{
			ID:     id,
			Name:   g.Name,
			Type:   g.Type,
			Class:  g.Class,
			Lights: g.Lights,
			State:  g.Action,
		})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	return groups, nil
}

// SetGroupState applies a partial state update to a whole group.
func (c *Client) SetGroupState(ctx context.Context, id string, state State) error {
	c.logger.Debug("setting group state", "group", id)
	return c.put(ctx, "groups/"+id+"/action", state)
}

// rgbToHueSat converts 0-255 RGB to the bridge's hue (0-65535) and
// saturation (0-254) scales.
func rgbToHueSat(r, g, b int) (int, int) {
	rf, gf, bf := float64(r)/255, float64(g)/255, float64(b)/255

	maxVal := rf
	if gf > maxVal {
		maxVal = gf
	}
	if bf > maxVal {
		maxVal = bf
	}
	minVal := rf
	if gf < minVal {
		minVal = gf
	}
	if bf < minVal {
		minVal = bf
	}
	diff := maxVal - minVal

	var sat float64
	if maxVal > 0 {
		sat = diff / maxVal
	}

	var h float64
	switch {
	case diff == 0:
		h = 0
	case maxVal == rf:
		h = (gf - bf) / diff
		for h < 0 {
			h += 6
		}
	case maxVal == gf:
		h = (bf-rf)/diff + 2
	default:
		h = (rf-gf)/diff + 4
	}

	return int(h * 60 * 182), int(sat * 254)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
