package preset

import (
	"bytes"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/richinsley/comfyagent/comfyerr"
)

// Parse decodes and validates a preset document.
func Parse(data []byte) (*Preset, error) {
	p := &Preset{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(p); err != nil {
		return nil, comfyerr.New(comfyerr.InvalidPreset, "failed to parse preset YAML").
			WithDetails(map[string]any{"cause": err.Error()}).Wrap(err)
	}
	if issues := p.Validate(); len(issues) > 0 {
		return nil, comfyerr.New(comfyerr.InvalidPreset, "preset is invalid").
			WithDetails(map[string]any{"issues": issues})
	}
	return p, nil
}

// LoadFile reads a preset from a YAML file.
func LoadFile(path string) (*Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := Parse(data)
	if err != nil {
		if ce, ok := comfyerr.As(err); ok {
			if ce.Details == nil {
				ce.Details = map[string]any{}
			}
			ce.Details["file"] = path
		}
		return nil, err
	}
	return p, nil
}

// Marshal renders p as a preset YAML document.
func Marshal(p *Preset) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
