package chat

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed knowledge.yaml
var defaultKnowledgeYAML []byte

// Problem is one entry of the problem table.
type Problem struct {
	Keyword  string `yaml:"keyword"`
	Solution string `yaml:"solution"`
	Medicine string `yaml:"medicine"`
}

// Knowledge is the tip catalog and the ordered problem table. It is not
// modified after construction.
type Knowledge struct {
	Tips     []string  `yaml:"tips"`
	Problems []Problem `yaml:"problems"`
}

// DefaultKnowledge returns the built-in catalog.
func DefaultKnowledge() (*Knowledge, error) {
	return ParseKnowledge(defaultKnowledgeYAML)
}

// LoadKnowledge reads a catalog from a YAML file. An empty path returns the
// built-in catalog.
func LoadKnowledge(path string) (*Knowledge, error) {
	if path == "" {
		return DefaultKnowledge()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge file %s: %w", path, err)
	}
	k, err := ParseKnowledge(data)
	if err != nil {
		return nil, fmt.Errorf("knowledge file %s: %w", path, err)
	}
	return k, nil
}

// ParseKnowledge decodes and validates a YAML catalog.
func ParseKnowledge(data []byte) (*Knowledge, error) {
	var k Knowledge
	if err := yaml.Unmarshal(data, &k); err != nil {
		return nil, fmt.Errorf("decode knowledge: %w", err)
	}
	if err := k.Validate(); err != nil {
		return nil, err
	}
	return &k, nil
}

// Validate checks that the catalog can serve every reply.
func (k *Knowledge) Validate() error {
	if len(k.Tips) == 0 {
		return errors.New("knowledge: at least one tip is required")
	}
	tips := make(map[string]struct{}, len(k.Tips))
	for i, tip := range k.Tips {
		if strings.TrimSpace(tip) == "" {
			return fmt.Errorf("knowledge: tip %d is empty", i)
		}
		if _, dup := tips[tip]; dup {
			return fmt.Errorf("knowledge: duplicate tip %q", tip)
		}
		tips[tip] = struct{}{}
	}

	seen := make(map[string]struct{}, len(k.Problems))
	for i, p := range k.Problems {
		switch {
		case p.Keyword == "":
			return fmt.Errorf("knowledge: problem %d has no keyword", i)
		case p.Keyword != normalize(p.Keyword):
			return fmt.Errorf("knowledge: keyword %q must be lowercase", p.Keyword)
		case p.Solution == "" || p.Medicine == "":
			return fmt.Errorf("knowledge: problem %q needs a solution and a medicine", p.Keyword)
		}
		if _, dup := seen[p.Keyword]; dup {
			return fmt.Errorf("knowledge: duplicate keyword %q", p.Keyword)
		}
		seen[p.Keyword] = struct{}{}
	}
	return nil
}
