package config

import "gopkg.in/yaml.v3"

// parseYAMLStringMap decodes a flat YAML mapping into a string map,
// rejecting nested structures so the result has the same shape as the
// JSON object the CONFIG environment variable carries.
func parseYAMLStringMap(data []byte) (map[string]string, error) {
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		raw = map[string]string{}
	}
	return raw, nil
}
