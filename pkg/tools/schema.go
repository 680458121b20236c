package tools

// Schema is the subset of JSON Schema used to describe tool parameters.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

func object(required []string, props map[string]*Schema) *Schema {
	if props == nil {
		props = map[string]*Schema{}
	}
	return &Schema{Type: "object", Properties: props, Required: required}
}

func str(desc string) *Schema {
	return &Schema{Type: "string", Description: desc}
}

func array(desc string, items *Schema) *Schema {
	return &Schema{Type: "array", Description: desc, Items: items}
}
