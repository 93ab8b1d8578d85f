package esg

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// LoadPolicies reads scoring policies from a YAML file with a top-level
// "policies" list. Each policy is defaulted and validated.
func LoadPolicies(path string) ([]Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "esg: read policies %s", path)
	}

	var wrapper struct {
		Policies []Policy `yaml:"policies"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "esg: parse policies")
	}
	if len(wrapper.Policies) == 0 {
		return nil, eris.Errorf("esg: no policies in %s", path)
	}

	out := make([]Policy, 0, len(wrapper.Policies))
	for _, p := range wrapper.Policies {
		p = p.WithDefaults()
		if err := ValidatePolicy(p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
