package query

import (
	"reflect"
	"sync"
	"testing"

	"github.com/lysyi3m/mention-comb/app/content"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		item     content.Item
		matches  bool
		expected []string
	}{
		{
			name:     "phrase and keyword",
			query:    `"exact phrase" AND keyword`,
			item:     content.Item{Title: "An exact phrase", Body: "with the keyword inside"},
			matches:  true,
			expected: []string{"exact phrase", "keyword"},
		},
		{
			name:     "phrase words out of order",
			query:    `"exact phrase" AND keyword`,
			item:     content.Item{Title: "phrase exact", Body: "keyword"},
			matches:  false,
			expected: []string{},
		},
		{
			name:     "phrase across whitespace",
			query:    `"exact phrase"`,
			item:     content.Item{Body: "an exact\n\t  phrase here"},
			matches:  true,
			expected: []string{"exact phrase"},
		},
		{
			name:     "or with second branch only",
			query:    "apple OR banana",
			item:     content.Item{Title: "I like banana"},
			matches:  true,
			expected: []string{"banana"},
		},
		{
			name:     "or reports only matching branches",
			query:    "(apple OR cherry) banana",
			item:     content.Item{Title: "apple banana"},
			matches:  true,
			expected: []string{"apple", "banana"},
		},
		{
			name:     "not excludes",
			query:    "apple NOT banana",
			item:     content.Item{Title: "apple and banana"},
			matches:  false,
			expected: []string{},
		},
		{
			name:     "not contributes no terms",
			query:    "apple -pear",
			item:     content.Item{Title: "apple pie"},
			matches:  true,
			expected: []string{"apple"},
		},
		{
			name:     "only negation",
			query:    "-spam",
			item:     content.Item{Title: "clean post"},
			matches:  true,
			expected: []string{},
		},
		{
			name:     "case insensitive",
			query:    "SuperWidget",
			item:     content.Item{Title: "I love superwidget"},
			matches:  true,
			expected: []string{"SuperWidget"},
		},
		{
			name:     "substring containment",
			query:    "widget",
			item:     content.Item{Title: "SuperWidgets everywhere"},
			matches:  true,
			expected: []string{"widget"},
		},
		{
			name:     "duplicate terms reported once",
			query:    "apple (apple OR pear)",
			item:     content.Item{Title: "apple"},
			matches:  true,
			expected: []string{"apple"},
		},
		{
			name:     "body is searched",
			query:    "pricing",
			item:     content.Item{Title: "Question", Body: "The PRICING is insane"},
			matches:  true,
			expected: []string{"pricing"},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			expr, err := Compile(test.query)
			if err != nil {
				t.Fatalf("Compile(%q): %v", test.query, err)
			}

			result := Evaluate(expr, test.item)
			if result.Matches != test.matches {
				t.Errorf("Expected matches=%v, got %v", test.matches, result.Matches)
			}
			if !reflect.DeepEqual(result.MatchedTerms, test.expected) {
				t.Errorf("Expected terms %v, got %v", test.expected, result.MatchedTerms)
			}
		})
	}
}

func TestEvaluate_MalformedNeverMatches(t *testing.T) {
	expr := Parse(`"unterminated quote`)

	items := []content.Item{
		{},
		{Title: "unterminated quote"},
		{Title: `"unterminated quote`},
		{Title: "anything", Body: "at all"},
	}

	for _, item := range items {
		result := Evaluate(expr, item)
		if result.Matches {
			t.Errorf("Expected no match for %+v", item)
		}
		if len(result.MatchedTerms) != 0 {
			t.Errorf("Expected no terms for %+v, got %v", item, result.MatchedTerms)
		}
	}
}

func TestEvaluate_NilExpression(t *testing.T) {
	result := Evaluate(nil, content.Item{Title: "x"})
	if result.Matches {
		t.Error("Expected nil expression not to match")
	}
}

func TestEvaluate_ConcurrentSharedExpression(t *testing.T) {
	expr, err := Compile(`("project management" OR tasks) -spam`)
	if err != nil {
		t.Fatal(err)
	}

	item := content.Item{Title: "Organizing tasks", Body: "need project management help"}
	want := Evaluate(expr, item)

	var wg sync.WaitGroup
	errs := make(chan string, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got := Evaluate(expr, item)
			if !reflect.DeepEqual(got, want) {
				errs <- "result differs between evaluations"
			}
		}()
	}
	wg.Wait()
	close(errs)

	for e := range errs {
		t.Error(e)
	}
	if expr.String() != `(("project management" OR tasks) AND NOT spam)` {
		t.Errorf("Expression changed during evaluation: %s", expr)
	}
}
