package scoring

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const taxonomyPathEnv = "SCORING_TAXONOMY_YAML"

//go:embed taxonomy.yaml
var taxonomyFS embed.FS

// The four category names are fixed: each maps onto a column of the
// keyword_score row.
const (
	CategoryReadiness  = "readiness"
	CategoryTechnology = "technology"
	CategoryFunding    = "funding"
	CategoryEngagement = "engagement"
)

var categoryNames = []string{CategoryReadiness, CategoryTechnology, CategoryFunding, CategoryEngagement}

// Keyword is one weighted pattern. Pattern is matched as a lowercase
// substring; Exact marks branded terms that earn the per-category bonus.
type Keyword struct {
	Pattern string  `yaml:"pattern"`
	Weight  float64 `yaml:"weight"`
	Exact   bool    `yaml:"exact"`
}

type TaxonomyCategory struct {
	Name     string    `yaml:"name"`
	Keywords []Keyword `yaml:"keywords"`
}

type Taxonomy struct {
	Name       string             `yaml:"taxonomy"`
	Version    int                `yaml:"version"`
	Categories []TaxonomyCategory `yaml:"categories"`
}

var (
	taxonomyOnce  sync.Once
	taxonomyCache *Taxonomy
	taxonomyErr   error
)

// LoadTaxonomy parses the embedded taxonomy, or the file named by
// SCORING_TAXONOMY_YAML when set. The parsed result is cached for the
// process; a load or validation failure is returned on every call.
func LoadTaxonomy() (*Taxonomy, error) {
	taxonomyOnce.Do(func() {
		taxonomyCache, taxonomyErr = loadTaxonomy()
	})
	return taxonomyCache, taxonomyErr
}

func loadTaxonomy() (*Taxonomy, error) {
	data, err := readTaxonomy()
	if err != nil {
		return nil, err
	}
	var tax Taxonomy
	if err := yaml.Unmarshal(data, &tax); err != nil {
		return nil, err
	}
	if err := validateTaxonomy(&tax); err != nil {
		return nil, err
	}
	for ci := range tax.Categories {
		for ki := range tax.Categories[ci].Keywords {
			kw := &tax.Categories[ci].Keywords[ki]
			kw.Pattern = strings.ToLower(strings.TrimSpace(kw.Pattern))
		}
	}
	return &tax, nil
}

func readTaxonomy() ([]byte, error) {
	if path := strings.TrimSpace(os.Getenv(taxonomyPathEnv)); path != "" {
		return os.ReadFile(path)
	}
	return taxonomyFS.ReadFile("taxonomy.yaml")
}

func validateTaxonomy(tax *Taxonomy) error {
	if tax == nil {
		return errors.New("missing taxonomy")
	}
	if len(tax.Categories) != len(categoryNames) {
		return fmt.Errorf("taxonomy must define exactly %d categories, got %d", len(categoryNames), len(tax.Categories))
	}
	want := map[string]bool{}
	for _, name := range categoryNames {
		want[name] = true
	}
	seenCategory := map[string]bool{}
	seenPattern := map[string]string{}
	for _, cat := range tax.Categories {
		name := strings.TrimSpace(cat.Name)
		if !want[name] {
			return fmt.Errorf("unknown category: %q", cat.Name)
		}
		if seenCategory[name] {
			return fmt.Errorf("duplicate category: %q", name)
		}
		seenCategory[name] = true
		if len(cat.Keywords) == 0 {
			return fmt.Errorf("category %s has no keywords", name)
		}
		for _, kw := range cat.Keywords {
			pattern := strings.ToLower(strings.TrimSpace(kw.Pattern))
			if pattern == "" {
				return fmt.Errorf("category %s: empty keyword pattern", name)
			}
			if kw.Weight < 1 || kw.Weight > 5 {
				return fmt.Errorf("category %s: keyword %q weight %v out of range [1,5]", name, pattern, kw.Weight)
			}
			if prev, dup := seenPattern[pattern]; dup {
				return fmt.Errorf("keyword %q appears in both %s and %s", pattern, prev, name)
			}
			seenPattern[pattern] = name
		}
	}
	return nil
}
