// Package forest evaluates pre-trained random forest classifiers stored as YAML.
//
// A forest is a list of binary decision trees. Each internal node sends a
// feature vector left when x[Feature] <= Threshold and right otherwise; each
// leaf holds the probability of the positive class. The forest prediction is
// the mean leaf value over all trees.
package forest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Node is a decision tree node
type Node struct {
	Leaf      bool    `yaml:"leaf,omitempty"`
	Feature   int     `yaml:"feature,omitempty"`
	Threshold float64 `yaml:"threshold,omitempty"`
	Left      int     `yaml:"left,omitempty"`
	Right     int     `yaml:"right,omitempty"`
	Value     float64 `yaml:"value,omitempty"`
}

// Tree is a decision tree whose root is Nodes[0]
type Tree struct {
	Nodes []Node `yaml:"nodes"`
}

// Forest is an ensemble of decision trees over a fixed-size feature vector
type Forest struct {
	NumFeatures int    `yaml:"numFeatures"`
	Trees       []Tree `yaml:"trees"`
}

// Validate checks that every tree is well formed. Child indices must point
// forward, which rules out cycles.
func (f *Forest) Validate() error {
	if f == nil {
		return errors.New("forest is nil")
	}
	if f.NumFeatures < 1 {
		return fmt.Errorf("numFeatures must be >= 1, got %d", f.NumFeatures)
	}
	if len(f.Trees) == 0 {
		return errors.New("forest has no trees")
	}
	for ti, t := range f.Trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("tree %d has no nodes", ti)
		}
		for ni, n := range t.Nodes {
			if n.Leaf {
				if n.Value < 0 || n.Value > 1 {
					return fmt.Errorf("tree %d node %d: leaf value %v outside [0, 1]", ti, ni, n.Value)
				}
				continue
			}
			if n.Feature < 0 || n.Feature >= f.NumFeatures {
				return fmt.Errorf("tree %d node %d: feature %d outside [0, %d)", ti, ni, n.Feature, f.NumFeatures)
			}
			for _, child := range []int{n.Left, n.Right} {
				if child <= ni || child >= len(t.Nodes) {
					return fmt.Errorf("tree %d node %d: child %d must be in (%d, %d)", ti, ni, child, ni, len(t.Nodes))
				}
			}
		}
	}
	return nil
}

// Predict returns the mean positive-class probability over all trees
func (f *Forest) Predict(features []float64) (float64, error) {
	if len(features) != f.NumFeatures {
		return 0, fmt.Errorf("expected %d features, got %d", f.NumFeatures, len(features))
	}
	sum := 0.0
	for ti, t := range f.Trees {
		v, err := t.predict(features)
		if err != nil {
			return 0, fmt.Errorf("tree %d: %w", ti, err)
		}
		sum += v
	}
	return sum / float64(len(f.Trees)), nil
}

func (t Tree) predict(x []float64) (float64, error) {
	i := 0
	for steps := 0; steps <= len(t.Nodes); steps++ {
		if i < 0 || i >= len(t.Nodes) {
			return 0, fmt.Errorf("node index %d out of range", i)
		}
		n := t.Nodes[i]
		if n.Leaf {
			return n.Value, nil
		}
		if n.Feature < 0 || n.Feature >= len(x) {
			return 0, fmt.Errorf("node %d: feature %d out of range", i, n.Feature)
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return 0, errors.New("tree does not terminate")
}

// Decode reads a YAML forest from r and validates it
func Decode(r io.Reader) (*Forest, error) {
	var f Forest
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("error parsing forest: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Load reads and validates a YAML forest file
func Load(path string) (*Forest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading forest file: %w", err)
	}
	return Decode(bytes.NewReader(data))
}

// Encode writes f as YAML
func (f *Forest) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return err
	}
	return enc.Close()
}
