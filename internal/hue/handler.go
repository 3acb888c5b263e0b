package hue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Handler exposes the hue_* tools for lights and groups.
type Handler struct {
	client *Client
	logger *slog.Logger
}

// NewHandler creates the Hue tool handler.
func NewHandler(client *Client, logger *slog.Logger) *Handler {
	return &Handler{client: client, logger: logger}
}

// Execute runs a hue_* tool.
func (h *Handler) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case "hue_list_lights":
		return h.listLights(ctx)
	case "hue_get_light":
		return h.getLight(ctx, args)
	case "hue_turn_on_light":
		return h.turnOn(ctx, args, false)
	case "hue_turn_off_light":
		return h.turnOff(ctx, args, false)
	case "hue_set_brightness":
		return h.setBrightness(ctx, args, false)
	case "hue_set_color":
		return h.setColor(ctx, args, false)
	case "hue_set_color_temp":
		return h.setColorTemp(ctx, args, false)
	case "hue_set_rgb_color":
		return h.setRGB(ctx, args, false)
	case "hue_list_groups":
		return h.listGroups(ctx)
	case "hue_turn_on_group":
		return h.turnOn(ctx, args, true)
	case "hue_turn_off_group":
		return h.turnOff(ctx, args, true)
	case "hue_set_group_brightness":
		return h.setBrightness(ctx, args, true)
	case "hue_set_group_color":
		return h.setColor(ctx, args, true)
	case "hue_set_group_color_temp":
		return h.setColorTemp(ctx, args, true)
	case "hue_set_group_rgb_color":
		return h.setRGB(ctx, args, true)
	default:
		return "", fmt.Errorf("unknown Hue tool: %s", name)
	}
}

func (h *Handler) listLights(ctx context.Context) (string, error) {
	lights, err := h.client.Lights(ctx)
	if err != nil {
		return "", fmt.Errorf("list lights: %w", err)
	}

	out, err := json.Marshal(map[string]any{
		"lights": lights,
		"total":  len(lights),
	})
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(out), nil
}

func (h *Handler) getLight(ctx context.Context, args map[string]any) (string, error) {
	id, err := targetID(args, "light_id")
	if err != nil {
		return "", err
	}

	light, err := h.client.Light(ctx, id)
	if err != nil {
		return "", fmt.Errorf("get light %s: %w", id, err)
	}

	out, _ := json.Marshal(map[string]any{"light": light})
	return string(out), nil
}

func (h *Handler) listGroups(ctx context.Context) (string, error) {
	groups, err := h.client.Groups(ctx)
	if err != nil {
		return "", fmt.Errorf("list groups: %w", err)
	}

	out, err := json.Marshal(map[string]any{
		"groups": groups,
		"total":  len(groups),
	})
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(out), nil
}

// turnOn switches a light or group on, with optional brightness,
// hue/saturation, color temperature or RGB in the same call.
func (h *Handler) turnOn(ctx context.Context, args map[string]any, group bool) (string, error) {
	id, err := targetID(args, idKey(group))
	if err != nil {
		return "", err
	}

	on := true
	state := State{On: &on}

	if bri, ok := optInt(args, "brightness"); ok {
		v := clamp(bri, briMin, briMax)
		state.Brightness = &v
	}

	hueVal, hasHue := optInt(args, "hue")
	satVal, hasSat := optInt(args, "saturation")
	if r, hasR := optInt(args, "r"); hasR {
		if g, hasG := optInt(args, "g"); hasG {
			if b, hasB := optInt(args, "b"); hasB {
				hueVal, satVal = rgbToHueSat(r, g, b)
				hasHue, hasSat = true, true
			}
		}
	}
	if hasHue && hasSat {
		hv := clamp(hueVal, 0, hueMax)
		sv := clamp(satVal, 0, satMax)
		state.Hue = &hv
		state.Saturation = &sv
	}

	if ct, ok := optInt(args, "color_temp"); ok {
		v := clamp(ct, ctMin, ctMax)
		state.ColorTemp = &v
	}

	if err := h.apply(ctx, id, state, group); err != nil {
		return "", err
	}
	return message("%s %s turned on", id, group), nil
}

func (h *Handler) turnOff(ctx context.Context, args map[string]any, group bool) (string, error) {
	id, err := targetID(args, idKey(group))
	if err != nil {
		return "", err
	}

	off := false
	if err := h.apply(ctx, id, State{On: &off}, group); err != nil {
		return "", err
	}
	return message("%s %s turned off", id, group), nil
}

func (h *Handler) setBrightness(ctx context.Context, args map[string]any, group bool) (string, error) {
	id, err := targetID(args, idKey(group))
	if err != nil {
		return "", err
	}
	bri, ok := optInt(args, "brightness")
	if !ok {
		return "", fmt.Errorf("brightness is required")
	}

	v := clamp(bri, briMin, briMax)
	if err := h.apply(ctx, id, State{Brightness: &v}, group); err != nil {
		return "", err
	}
	return message(fmt.Sprintf("%%s %%s brightness set to %d", v), id, group), nil
}

func (h *Handler) setColor(ctx context.Context, args map[string]any, group bool) (string, error) {
	id, err := targetID(args, idKey(group))
	if err != nil {
		return "", err
	}
	hueVal, hasHue := optInt(args, "hue")
	satVal, hasSat := optInt(args, "saturation")
	if !hasHue || !hasSat {
		return "", fmt.Errorf("hue and saturation are required")
	}

	hv := clamp(hueVal, 0, hueMax)
	sv := clamp(satVal, 0, satMax)
	if err := h.apply(ctx, id, State{Hue: &hv, Saturation: &sv}, group); err != nil {
		return "", err
	}
	return message(fmt.Sprintf("%%s %%s color set to hue=%d, sat=%d", hv, sv), id, group), nil
}

func (h *Handler) setColorTemp(ctx context.Context, args map[string]any, group bool) (string, error) {
	id, err := targetID(args, idKey(group))
	if err != nil {
		return "", err
	}
	ct, ok := optInt(args, "color_temp")
	if !ok {
		return "", fmt.Errorf("color_temp is required")
	}

	v := clamp(ct, ctMin, ctMax)
	if err := h.apply(ctx, id, State{ColorTemp: &v}, group); err != nil {
		return "", err
	}
	return message(fmt.Sprintf("%%s %%s color temperature set to %d", v), id, group), nil
}

func (h *Handler) setRGB(ctx context.Context, args map[string]any, group bool) (string, error) {
	id, err := targetID(args, idKey(group))
	if err != nil {
		return "", err
	}
	r, hasR := optInt(args, "r")
	g, hasG := optInt(args, "g")
	b, hasB := optInt(args, "b")
	if !hasR || !hasG || !hasB {
		return "", fmt.Errorf("r, g and b are required")
	}

	hv, sv := rgbToHueSat(r, g, b)
	if err := h.apply(ctx, id, State{Hue: &hv, Saturation: &sv}, group); err != nil {
		return "", err
	}
	return message(fmt.Sprintf("%%s %%s color set to RGB(%d, %d, %d)", r, g, b), id, group), nil
}

func (h *Handler) apply(ctx context.Context, id string, state State, group bool) error {
	if group {
		return h.client.SetGroupState(ctx, id, state)
	}
	return h.client.SetLightState(ctx, id, state)
}

func idKey(group bool) string {
	if group {
		return "group_id"
	}
	return "light_id"
}

// message renders a success payload. format takes the kind ("Light" or
// "Group") and the resource id.
func message(format, id string, group bool) string {
	kind := "Light"
	if group {
		kind = "Group"
	}
	out, _ := json.Marshal(map[string]any{
		"message": fmt.Sprintf(format, kind, id),
	})
	return string(out)
}

// targetID reads the resource id argument, accepting numbers since
// models often send bridge ids unquoted.
func targetID(args map[string]any, key string) (string, error) {
	switch v := args[key].(type) {
	case string:
		if v != "" {
			return v, nil
		}
	case float64:
		return fmt.Sprintf("%d", int(v)), nil
	}
	return "", fmt.Errorf("%s is required", key)
}

func optInt(args map[string]any, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}
