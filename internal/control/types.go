package control

// ListEffectsInput is the input for the list_effects tool.
type ListEffectsInput struct{}

// EffectInfo describes one selectable effect.
type EffectInfo struct {
	Hotkey      int    `json:"hotkey"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Active      bool   `json:"active"`
}

// ExcludedEffect is an effect that failed to load.
type ExcludedEffect struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// ListEffectsOutput is the output for the list_effects tool.
type ListEffectsOutput struct {
	Effects  []EffectInfo     `json:"effects"`
	Excluded []ExcludedEffect `json:"excluded,omitempty"`
}

// SelectEffectInput is the input for the select_effect tool.
type SelectEffectInput struct {
	Hotkey int `json:"hotkey" jsonschema:"required,Hotkey of the effect to activate (1-based, see list_effects)"`
}

// SelectEffectOutput is the output for the select_effect tool.
type SelectEffectOutput struct {
	Hotkey int    `json:"hotkey"`
	Name   string `json:"name"`
}

// TogglePauseInput is the input for the toggle_pause tool.
type TogglePauseInput struct{}

// TogglePauseOutput is the output for the toggle_pause tool.
type TogglePauseOutput struct {
	Paused bool `json:"paused"`
}

// SetRegionInput is the input for the set_region tool.
type SetRegionInput struct {
	X      int `json:"x,omitempty" jsonschema:"Left edge in desktop pixels"`
	Y      int `json:"y,omitempty" jsonschema:"Top edge in desktop pixels"`
	Width  int `json:"width" jsonschema:"required,Width in pixels (positive)"`
	Height int `json:"height" jsonschema:"required,Height in pixels (positive)"`
}

// Rect is a desktop rectangle.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// SetRegionOutput is the output for the set_region tool.
type SetRegionOutput struct {
	Region Rect `json:"region"`
}

// SaveSnapshotInput is the input for the save_snapshot tool.
type SaveSnapshotInput struct{}

// SaveSnapshotOutput is the output for the save_snapshot tool.
type SaveSnapshotOutput struct {
	Path string `json:"path"`
}

// StatusInput is the input for the status tool.
type StatusInput struct{}

// StatusOutput is the output for the status tool.
type StatusOutput struct {
	Frames uint64 `json:"frames"`
	Effect string `json:"effect"`
	Hotkey int    `json:"hotkey"`
	Paused bool   `json:"paused"`
	Region Rect   `json:"region"`
	Valid  Rect   `json:"valid"`
}
