package behavior

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rmax-ai/auditsim/pkg/simerr"
)

type tableFile struct {
	Profiles []ProfileSpec `yaml:"profiles"`
}

// LoadModel reads transition tables from a YAML or JSON file and validates
// them. Durations are written as Go duration strings ("45s", "2m").
//
//	profiles:
//	  - role: analyst
//	    transitions:
//	      idle: {idle: 0.2, query: 0.8}
//	      query: {idle: 1.0}
//	    waits:
//	      idle: {kind: exponential, mean: 90s}
func LoadModel(path string) (*Model, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml", ".json":
	default:
		return nil, simerr.Configuration("behavior.LoadModel", "unsupported table format %q", ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, simerr.Configuration("behavior.LoadModel", "read %s: %v", path, err)
	}

	// JSON is a subset of YAML, so one decoder covers both.
	var tf tableFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, simerr.Configuration("behavior.LoadModel", "parse %s: %v", path, err)
	}
	return NewModel(tf.Profiles...)
}
