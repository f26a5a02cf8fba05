package scoring

import (
	"strings"
	"testing"
)

func TestLoadTaxonomy_EmbeddedParsesClean(t *testing.T) {
	tax, err := LoadTaxonomy()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(tax.Categories) != 4 {
		t.Fatalf("expected 4 categories, got %d", len(tax.Categories))
	}
	for i, want := range categoryNames {
		if tax.Categories[i].Name != want {
			t.Fatalf("category %d: expected %q, got %q", i, want, tax.Categories[i].Name)
		}
	}
	for _, cat := range tax.Categories {
		if len(cat.Keywords) == 0 {
			t.Fatalf("category %s has no keywords", cat.Name)
		}
		for _, kw := range cat.Keywords {
			if kw.Pattern != strings.ToLower(kw.Pattern) {
				t.Fatalf("pattern %q not normalized to lowercase", kw.Pattern)
			}
			if kw.Weight < 1 || kw.Weight > 5 {
				t.Fatalf("pattern %q weight %v out of range", kw.Pattern, kw.Weight)
			}
		}
	}
}

func validTestTaxonomy() *Taxonomy {
	return &Taxonomy{
		Name:    "test",
		Version: 1,
		Categories: []TaxonomyCategory{
			{Name: CategoryReadiness, Keywords: []Keyword{{Pattern: "strategic plan", Weight: 5}}},
			{Name: CategoryTechnology, Keywords: []Keyword{{Pattern: "technology plan", Weight: 5}}},
			{Name: CategoryFunding, Keywords: []Keyword{{Pattern: "bond measure", Weight: 5}}},
			{Name: CategoryEngagement, Keywords: []Keyword{{Pattern: "town hall", Weight: 3}}},
		},
	}
}

func TestValidateTaxonomy_AcceptsWellFormed(t *testing.T) {
	if err := validateTaxonomy(validTestTaxonomy()); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
}

func TestValidateTaxonomy_RejectsUnknownCategory(t *testing.T) {
	tax := validTestTaxonomy()
	tax.Categories[0].Name = "priority"
	if err := validateTaxonomy(tax); err == nil {
		t.Fatalf("expected error for unknown category")
	}
}

func TestValidateTaxonomy_RejectsMissingCategory(t *testing.T) {
	tax := validTestTaxonomy()
	tax.Categories = tax.Categories[:3]
	if err := validateTaxonomy(tax); err == nil {
		t.Fatalf("expected error for missing category")
	}
}

func TestValidateTaxonomy_RejectsWeightOutOfRange(t *testing.T) {
	tax := validTestTaxonomy()
	tax.Categories[0].Keywords[0].Weight = 6
	if err := validateTaxonomy(tax); err == nil {
		t.Fatalf("expected error for weight out of range")
	}
}

func TestValidateTaxonomy_RejectsDuplicatePatternAcrossCategories(t *testing.T) {
	tax := validTestTaxonomy()
	tax.Categories[1].Keywords = append(tax.Categories[1].Keywords, Keyword{Pattern: "Strategic Plan", Weight: 2})
	if err := validateTaxonomy(tax); err == nil {
		t.Fatalf("expected error for duplicate pattern")
	}
}

func TestValidateTaxonomy_RejectsEmptyPattern(t *testing.T) {
	tax := validTestTaxonomy()
	tax.Categories[2].Keywords[0].Pattern = "   "
	if err := validateTaxonomy(tax); err == nil {
		t.Fatalf("expected error for empty pattern")
	}
}
