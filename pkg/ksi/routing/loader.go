package routing

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ruleFile is the on-disk shape of a declarative rule set.
type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadFile reads a YAML rule file and returns its validated rules in
// declaration order.
//
// Expected format:
//
//	rules:
//	  - name: result_router
//	    source_pattern: "completion:internal_result"
//	    target_event: "completion:result"
//	    condition: "status == 'success'"
//	    pass_through: true
func LoadFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rule file: %w", err)
	}
	return ParseYAML(data)
}

// ParseYAML parses YAML rule definitions, validating every rule. Any
// invalid rule rejects the whole set.
func ParseYAML(data []byte) ([]Rule, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing rule file: %w", err)
	}
	for _, r := range f.Rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}
	return f.Rules, nil
}
