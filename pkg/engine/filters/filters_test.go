package filters

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/pathscout/pathscout/pkg/engine/response"
	"github.com/pathscout/pathscout/pkg/engine/signature"
)

func mustResponse(status int, body string, method string) *response.Response {
	return response.New("http://example.com/foo", method, status, http.Header{"X-Test": []string{"hello"}}, []byte(body), false)
}

func TestStatusCodeFilter(t *testing.T) {
	f := NewStatusCode(404)
	if !f.ShouldFilter(mustResponse(404, "", "GET")) {
		t.Fatal("expected 404 to be filtered")
	}
	if f.ShouldFilter(mustResponse(200, "", "GET")) {
		t.Fatal("expected 200 to not be filtered")
	}
}

func TestSizeFilter(t *testing.T) {
	f := NewSize(5)
	if !f.ShouldFilter(mustResponse(200, "hello", "GET")) {
		t.Fatal("expected 5-byte body to be filtered")
	}
	if f.ShouldFilter(mustResponse(200, "hello!", "GET")) {
		t.Fatal("expected 6-byte body to not be filtered")
	}
}

func TestLinesAndWordsFilter(t *testing.T) {
	body := "one two\nthree four\nfive"
	if !NewLines(3).ShouldFilter(mustResponse(200, body, "GET")) {
		t.Fatal("expected 3-line body to be filtered")
	}
	if !NewWords(5).ShouldFilter(mustResponse(200, body, "GET")) {
		t.Fatal("expected 5-word body to be filtered")
	}
}

func TestRegexFilterMatchesBody(t *testing.T) {
	f, err := NewRegex(`error \d+`)
	if err != nil {
		t.Fatalf("NewRegex: %v", err)
	}
	if !f.ShouldFilter(mustResponse(200, "an error 42 occurred", "GET")) {
		t.Fatal("expected body match to be filtered")
	}
}

func TestRegexFilterMatchesHeaderValue(t *testing.T) {
	f, err := NewRegex(`hello`)
	if err != nil {
		t.Fatalf("NewRegex: %v", err)
	}
	if !f.ShouldFilter(mustResponse(200, "nothing interesting", "GET")) {
		t.Fatal("expected header value match to be filtered")
	}
}

func TestWildcardStaticSize(t *testing.T) {
	f := NewWildcardStatic(1234, "GET")
	r := mustResponse(200, "", "GET")
	r.ContentLength = 1234
	if !f.ShouldFilter(r) {
		t.Fatal("expected static wildcard match")
	}
	r.ContentLength = 1235
	if f.ShouldFilter(r) {
		t.Fatal("expected no match for differing size")
	}
}

func TestWildcardZeroLength(t *testing.T) {
	f := NewWildcardZeroLength("GET")
	r := mustResponse(200, "", "GET")
	r.ContentLength = 0
	if !f.ShouldFilter(r) {
		t.Fatal("expected zero-length wildcard match")
	}
}

func TestWildcardDynamicOffset(t *testing.T) {
	f := NewWildcardDynamic(50, "GET")
	r := mustResponse(200, "", "GET")
	r.URL = "http://example.com/abcde"
	r.ContentLength = int64(len("/abcde")) + 50
	if !f.ShouldFilter(r) {
		t.Fatal("expected dynamic wildcard match")
	}
}

func TestWildcardDisabledNeverMatches(t *testing.T) {
	f := NewWildcardDisabled("GET")
	r := mustResponse(200, "", "GET")
	r.ContentLength = 0
	if f.ShouldFilter(r) {
		t.Fatal("disabled wildcard filter should never match")
	}
}

func TestWildcardMethodMismatch(t *testing.T) {
	f := NewWildcardStatic(10, "GET")
	r := mustResponse(200, "", "POST")
	r.ContentLength = 10
	if f.ShouldFilter(r) {
		t.Fatal("expected no match for differing method")
	}
}

func TestSimilarityFuzzyFilter(t *testing.T) {
	original := []byte("the quick brown fox jumps over the lazy dog repeatedly for emphasis and padding")
	sig := signature.New(bytes.Repeat(original, 4)) // push over the fuzzy-hash size threshold
	f := NewSimilarity(sig, 10, "http://example.com/original")

	r := mustResponse(200, string(bytes.Repeat(original, 4)), "GET")
	if !f.ShouldFilter(r) {
		t.Fatal("expected identical body to be similar enough to filter")
	}
}

func TestPipelineFiltersIfAnyMatches(t *testing.T) {
	p := New()
	p.Add(NewStatusCode(500))
	p.Add(NewSize(3))

	if !p.ShouldFilter(mustResponse(200, "abc", "GET")) {
		t.Fatal("expected match on size filter")
	}
	if p.ShouldFilter(mustResponse(200, "abcd", "GET")) {
		t.Fatal("expected no match")
	}
}

func TestPipelineRemoveByOneBasedIndex(t *testing.T) {
	p := New()
	p.Add(NewStatusCode(1))
	p.Add(NewStatusCode(2))
	p.Add(NewStatusCode(3))

	p.Remove([]int{0, 2, 99})

	all := p.All()
	if len(all) != 2 {
		t.Fatalf("Len = %d, want 2", len(all))
	}
	if all[0].IntValue != 1 || all[1].IntValue != 3 {
		t.Fatalf("remaining filters = %+v, want [1, 3]", all)
	}
}

func TestFilterEquality(t *testing.T) {
	a := NewStatusCode(404)
	b := NewStatusCode(404)
	c := NewStatusCode(403)
	if !a.Equal(b) {
		t.Fatal("expected equal StatusCode filters to compare equal")
	}
	if a.Equal(c) {
		t.Fatal("expected differing StatusCode filters to compare unequal")
	}
}

func TestRegexFilterEqualityBySourceOnly(t *testing.T) {
	a, _ := NewRegex(`abc`)
	b, _ := NewRegex(`abc`)
	if !a.Equal(b) {
		t.Fatal("expected regex filters with identical source to compare equal")
	}
}
