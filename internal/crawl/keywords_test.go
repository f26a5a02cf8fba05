package crawl

import (
	"reflect"
	"testing"

	"github.com/yungbote/sitescout-backend/internal/domain/documents"
)

func TestDetectKeywords_SortedAndUnique(t *testing.T) {
	text := `The Strategic Plan was adopted after the budget hearing. Budget detail and
board minutes are posted after approval.`
	got := DetectKeywords(text)
	want := []string{"board minutes", "budget", "strategic plan"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestDetectKeywords_NoMatches(t *testing.T) {
	if got := DetectKeywords("Our campus has many trees and a garden."); len(got) != 0 {
		t.Fatalf("expected no keywords, got %v", got)
	}
}

func TestCategorize_URLHintOutranksBody(t *testing.T) {
	got := Categorize("https://district.org/budget/overview.html", "Overview",
		"This page describes the strategic plan in detail.")
	if got != documents.CategoryBudget {
		t.Fatalf("expected budget from the url path, got %q", got)
	}
}

func TestCategorize_BodyKeywordsInPriorityOrder(t *testing.T) {
	got := Categorize("https://district.org/welcome", "Welcome",
		"The technology plan and the board minutes are both linked below.")
	if got != documents.CategoryTechnologyPlan {
		t.Fatalf("expected technology_plan to win the tie, got %q", got)
	}
}

func TestCategorize_DefaultsToOther(t *testing.T) {
	got := Categorize("https://district.org/welcome", "Welcome", "Our campus has many trees.")
	if got != documents.CategoryOther {
		t.Fatalf("expected other, got %q", got)
	}
}
