package extractor

import (
	"sort"
	"testing"
)

func urlsOf(cands []Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.URL
	}
	sort.Strings(out)
	return out
}

func TestFromResponseBodyExtractsAbsoluteSameAuthorityURL(t *testing.T) {
	body := []byte(`<a href="http://example.com/admin">admin</a>`)
	got := urlsOf(FromResponseBody(body, "http://example.com/"))
	if len(got) != 1 || got[0] != "http://example.com/admin" {
		t.Fatalf("got %v, want [http://example.com/admin]", got)
	}
}

func TestFromResponseBodyDiscardsDifferentAuthority(t *testing.T) {
	body := []byte(`see http://other.example/path for details`)
	got := FromResponseBody(body, "http://example.com/")
	if len(got) != 0 {
		t.Fatalf("got %v, want none (different authority)", got)
	}
}

func TestFromResponseBodyExtractsQuotedPath(t *testing.T) {
	body := []byte(`<script src="/static/app.js"></script>`)
	got := urlsOf(FromResponseBody(body, "http://example.com/"))
	if len(got) != 1 || got[0] != "http://example.com/static/app.js" {
		t.Fatalf("got %v, want [http://example.com/static/app.js]", got)
	}
}

func TestFromResponseBodyDedupes(t *testing.T) {
	body := []byte(`"/a" "/a" "/a"`)
	got := FromResponseBody(body, "http://example.com/")
	if len(got) != 1 {
		t.Fatalf("got %d candidates, want 1", len(got))
	}
}

func TestFromRobotsTxtParsesAllowDisallow(t *testing.T) {
	body := []byte("User-agent: *\nDisallow: /admin\nAllow: /public\n")
	got := urlsOf(FromRobotsTxt(body, "http://example.com/"))
	want := []string{"http://example.com/admin", "http://example.com/public"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestIsDirectoryLikeTrailingSlash200(t *testing.T) {
	if !IsDirectoryLike("http://example.com/assets/", 200) {
		t.Fatal("expected trailing-slash 200 to be directory-like")
	}
}

func TestIsDirectoryLikeRedirect(t *testing.T) {
	if !IsDirectoryLike("http://example.com/assets", 301) {
		t.Fatal("expected 301 redirect to be directory-like")
	}
}

func TestIsDirectoryLikeOrdinaryFile(t *testing.T) {
	if IsDirectoryLike("http://example.com/file.txt", 200) {
		t.Fatal("expected ordinary file 200 to not be directory-like")
	}
}
