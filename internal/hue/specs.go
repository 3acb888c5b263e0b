package hue

import "github.com/voxmachina/jarvis/internal/tools"

// Shared parameter fragments. The light and group tool schemas differ
// only in their id parameter.
func lightID() map[string]any {
	return map[string]any{"type": "string", "description": "The light ID"}
}

func groupID() map[string]any {
	return map[string]any{"type": "string", "description": "The group/room ID"}
}

func brightnessParam() map[string]any {
	return map[string]any{
		"type":        "integer",
		"description": "Brightness level (1-254)",
	}
}

func hueParam() map[string]any {
	return map[string]any{
		"type":        "integer",
		"description": "Hue value (0-65535)",
	}
}

func satParam() map[string]any {
	return map[string]any{
		"type":        "integer",
		"description": "Saturation (0-254)",
	}
}

func ctParam() map[string]any {
	return map[string]any{
		"type":        "integer",
		"description": "Color temperature in mireds (153-500)",
	}
}

func rgbParams() (map[string]any, map[string]any, map[string]any) {
	mk := func(c string) map[string]any {
		return map[string]any{
			"type":        "integer",
			"description": c + " value (0-255)",
		}
	}
	return mk("Red"), mk("Green"), mk("Blue")
}

// Definitions returns all fifteen hue_* tool specs.
func (h *Handler) Definitions() []tools.Spec {
	r, g, b := rgbParams()

	return []tools.Spec{
		{
			Name:        "hue_list_lights",
			Description: "List all Philips Hue lights and their current state",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name:        "hue_get_light",
			Description: "Get the current state of a specific Hue light",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"light_id": lightID()},
				"required":   []string{"light_id"},
			},
		},
		{
			Name:        "hue_turn_on_light",
			Description: "Turn on a Hue light, optionally setting brightness or color",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"light_id":   lightID(),
					"brightness": brightnessParam(),
					"r":          r,
					"g":          g,
					"b":          b,
				},
				"required": []string{"light_id"},
			},
		},
		{
			Name:        "hue_turn_off_light",
			Description: "Turn off a Hue light",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"light_id": lightID()},
				"required":   []string{"light_id"},
			},
		},
		{
			Name:        "hue_set_brightness",
			Description: "Set the brightness of a Hue light",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"light_id":   lightID(),
					"brightness": brightnessParam(),
				},
				"required": []string{"light_id", "brightness"},
			},
		},
		{
			Name:        "hue_set_color",
			Description: "Set the color of a Hue light using hue and saturation values",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"light_id":   lightID(),
					"hue":        hueParam(),
					"saturation": satParam(),
				},
				"required": []string{"light_id", "hue", "saturation"},
			},
		},
		{
			Name:        "hue_set_color_temp",
			Description: "Set the color temperature of a Hue light",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"light_id":   lightID(),
					"color_temp": ctParam(),
				},
				"required": []string{"light_id", "color_temp"},
			},
		},
		{
			Name:        "hue_set_rgb_color",
			Description: "Set the color of a Hue light using RGB values",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"light_id": lightID(),
					"r":        r,
					"g":        g,
					"b":        b,
				},
				"required": []string{"light_id", "r", "g", "b"},
			},
		},
		{
			Name:        "hue_list_groups",
			Description: "List all Hue groups/rooms and their current state",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name:        "hue_turn_on_group",
			Description: "Turn on all lights in a Hue group/room, optionally setting brightness or color",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"group_id":   groupID(),
					"brightness": brightnessParam(),
					"r":          r,
					"g":          g,
					"b":          b,
				},
				"required": []string{"group_id"},
			},
		},
		{
			Name:        "hue_turn_off_group",
			Description: "Turn off all lights in a Hue group/room",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"group_id": groupID()},
				"required":   []string{"group_id"},
			},
		},
		{
			Name:        "hue_set_group_brightness",
			Description: "Set the brightness of all lights in a Hue group/room",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"group_id":   groupID(),
					"brightness": brightnessParam(),
				},
				"required": []string{"group_id", "brightness"},
			},
		},
		{
			Name:        "hue_set_group_color",
			Description: "Set the color of all lights in a Hue group/room using hue and saturation",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"group_id":   groupID(),
					"hue":        hueParam(),
					"saturation": satParam(),
				},
				"required": []string{"group_id", "hue", "saturation"},
			},
		},
		{
			Name:        "hue_set_group_color_temp",
			Description: "Set the color temperature of all lights in a Hue group/room",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"group_id":   groupID(),
					"color_temp": ctParam(),
				},
				"required": []string{"group_id", "color_temp"},
			},
		},
		{
			Name:        "hue_set_group_rgb_color",
			Description: "Set the color of all lights in a Hue group/room using RGB values",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"group_id": groupID(),
					"r":        r,
					"g":        g,
					"b":        b,
				},
				"required": []string{"group_id", "r", "g", "b"},
			},
		},
	}
}
