package schema

// FuncTool declares a tool the model may call. Parameters is a JSON Schema
// object passed to vendors as-is.
type FuncTool struct {
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description" json:"description"`
	Parameters  map[string]any `yaml:"parameters" json:"parameters"`
}

// ParametersOrEmpty returns Parameters, or an empty object schema when unset.
func (t FuncTool) ParametersOrEmpty() map[string]any {
	if t.Parameters == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return t.Parameters
}
