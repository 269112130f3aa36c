package nodemonitor

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// staticNode mirrors the YAML shape of a STEERING_STATIC_NODES_FILE entry.
type staticNode struct {
	Name    string   `yaml:"name"`
	Address string   `yaml:"address"`
	Lat     *float64 `yaml:"lat,omitempty"`
	Lon     *float64 `yaml:"lon,omitempty"`
}

// StaticLister reads a YAML file of node definitions on every List call —
// the "accept static configuration as an alternative" fallback for test
// harnesses and clusterless deployments.
type StaticLister struct {
	path string
}

// NewStaticLister builds a StaticLister reading from path.
func NewStaticLister(path string) *StaticLister {
	return &StaticLister{path: path}
}

// List implements Lister.
func (s *StaticLister) List() ([]Node, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read static nodes file %s: %w", s.path, err)
	}

	var entries []staticNode
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse static nodes file %s: %w", s.path, err)
	}

	nodes := make([]Node, 0, len(entries))
	for _, e := range entries {
		nodes = append(nodes, Node{
			Name:    e.Name,
			Address: e.Address,
			Lat:     e.Lat,
			Lon:     e.Lon,
		})
	}
	return nodes, nil
}
