package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"mcpdocs/internal/docerr"
)

// testConfig returns a Config with negligible delays for fast tests.
func testConfig(baseURL string) Config {
	return Config{
		BaseURL:         baseURL,
		MaxRetries:      3,
		InitialBackoff:  time.Millisecond,
		MaxBackoff:      5 * time.Millisecond,
		PolitenessDelay: time.Millisecond,
	}
}

// requestRecorder wraps a mux and records every requested path.
type requestRecorder struct {
	mu    sync.Mutex
	paths []string
	next  http.Handler
}

func (r *requestRecorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	r.paths = append(r.paths, req.URL.Path)
	r.mu.Unlock()
	r.next.ServeHTTP(w, req)
}

func (r *requestRecorder) requested() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func page(body string) string {
	return "<html><body>" + body + "</body></html>"
}

func docblock(text string) string {
	return fmt.Sprintf(`<div class="docblock">%s</div>`, text)
}

func TestCrawlExtractsContentAndVersion(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/alpha/latest/alpha/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page(`<span class="version">1.2.3</span>`+docblock("Alpha root docs.")))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := New(testConfig(ts.URL))
	result, err := c.Crawl(context.Background(), "alpha", "latest", nil, 5)
	if err != nil {
		t.Fatalf("Crawl failed: %v", err)
	}
	if result.Version != "1.2.3" {
		t.Errorf("version = %q, want 1.2.3", result.Version)
	}
	if len(result.Documents) != 1 {
		t.Fatalf("got %d documents, want 1", len(result.Documents))
	}
	if result.Documents[0].Path != "/alpha/latest/alpha/" {
		t.Errorf("path = %q", result.Documents[0].Path)
	}
	if !strings.Contains(result.Documents[0].Content, "Alpha root docs.") {
		t.Errorf("content = %q", result.Documents[0].Content)
	}
}

func TestCrawlVersionFromRedirectedURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/alpha/latest/alpha/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/alpha/0.9.1/alpha/", http.StatusFound)
	})
	mux.HandleFunc("/alpha/0.9.1/alpha/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page(docblock("redirected docs")))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := New(testConfig(ts.URL))
	result, err := c.Crawl(context.Background(), "alpha", "latest", nil, 5)
	if err != nil {
		t.Fatalf("Crawl failed: %v", err)
	}
	if result.Version != "0.9.1" {
		t.Errorf("version = %q, want 0.9.1 (from redirect URL)", result.Version)
	}
}

func TestCrawlVersionAbsentWhenUndetectable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/alpha/latest/alpha/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page(docblock("no version anywhere")))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := New(testConfig(ts.URL))
	result, err := c.Crawl(context.Background(), "alpha", "latest", nil, 2)
	if err != nil {
		t.Fatalf("Crawl failed: %v", err)
	}
	if result.Version != "" {
		t.Errorf("version = %q, want empty", result.Version)
	}
}

func TestCrawlHonoursPageBudget(t *testing.T) {
	// A chain of pages, each linking to the next.
	mux := http.NewServeMux()
	mux.HandleFunc("/alpha/latest/alpha/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page(docblock("root")+`<a href="./p1.html">next</a>`))
	})
	for i := 1; i <= 20; i++ {
		i := i
		mux.HandleFunc(fmt.Sprintf("/alpha/latest/alpha/p%d.html", i), func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, page(docblock(fmt.Sprintf("page %d", i))+
				fmt.Sprintf(`<a href="./p%d.html">next</a>`, i+1)))
		})
	}
	rec := &requestRecorder{next: mux}
	ts := httptest.NewServer(rec)
	defer ts.Close()

	const maxPages = 4
	c := New(testConfig(ts.URL))
	result, err := c.Crawl(context.Background(), "alpha", "latest", nil, maxPages)
	if err != nil {
		t.Fatalf("Crawl failed: %v", err)
	}
	if got := len(rec.requested()); got > maxPages {
		t.Errorf("fetched %d pages, budget is %d", got, maxPages)
	}
	if len(result.Documents) > maxPages {
		t.Errorf("emitted %d documents, budget is %d", len(result.Documents), maxPages)
	}
}

func TestCrawlURLPolicyFiltersSourceAndAnchors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/alpha/latest/alpha/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page(docblock("root")+
			`<a href="../src/alpha/lib.rs.html">src view</a>`+
			`<a href="./struct.Thing.html#method.new">method anchor</a>`+
			`<a href="./struct.Thing.html#impl-Clone">impl anchor</a>`+
			`<a href="https://elsewhere.example/alpha/doc.html">absolute</a>`+
			`<a href="/alpha/latest/alpha/rooted.html">rooted</a>`+
			`<a href="./ok.html">fine</a>`))
	})
	mux.HandleFunc("/alpha/latest/alpha/ok.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page(docblock("ok page")))
	})
	mux.HandleFunc("/alpha/latest/alpha/struct.Thing.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page(docblock("thing page")))
	})
	rec := &requestRecorder{next: mux}
	ts := httptest.NewServer(rec)
	defer ts.Close()

	c := New(testConfig(ts.URL))
	if _, err := c.Crawl(context.Background(), "alpha", "latest", nil, 10); err != nil {
		t.Fatalf("Crawl failed: %v", err)
	}

	for _, p := range rec.requested() {
		if strings.Contains(p, "/src/") {
			t.Errorf("crawler fetched a source view: %s", p)
		}
		if p == "/alpha/latest/alpha/rooted.html" {
			t.Errorf("crawler followed a root-relative link: %s", p)
		}
	}
}

func TestCrawlSkipsFailedPagesAndContinues(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/alpha/latest/alpha/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page(docblock("root")+
			`<a href="./gone.html">gone</a>`+
			`<a href="./good.html">good</a>`))
	})
	mux.HandleFunc("/alpha/latest/alpha/gone.html", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/alpha/latest/alpha/good.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page(docblock("still here")))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := New(testConfig(ts.URL))
	result, err := c.Crawl(context.Background(), "alpha", "latest", nil, 10)
	if err != nil {
		t.Fatalf("Crawl failed: %v", err)
	}
	if len(result.Documents) != 2 {
		t.Errorf("got %d documents, want 2 (root + good)", len(result.Documents))
	}
}

func TestCrawlSeedFailureYieldsEmptyResult(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer ts.Close()

	c := New(testConfig(ts.URL))
	result, err := c.Crawl(context.Background(), "alpha", "latest", nil, 5)
	if err != nil {
		t.Fatalf("Crawl failed: %v", err)
	}
	if len(result.Documents) != 0 {
		t.Errorf("got %d documents from an unreachable seed, want 0", len(result.Documents))
	}
	if result.Version != "" {
		t.Errorf("version = %q, want empty", result.Version)
	}
}

func TestCrawlVersionOnlyFromFirstPage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/alpha/latest/alpha/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page(docblock("root, no version marker")+`<a href="./deep.html">deep</a>`))
	})
	mux.HandleFunc("/alpha/latest/alpha/deep.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page(`<span class="version">7.7.7</span>`+docblock("deep page")))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := New(testConfig(ts.URL))
	result, err := c.Crawl(context.Background(), "alpha", "latest", nil, 5)
	if err != nil {
		t.Fatalf("Crawl failed: %v", err)
	}
	if len(result.Documents) != 2 {
		t.Fatalf("got %d documents, want 2", len(result.Documents))
	}
	if result.Version != "" {
		t.Errorf("version = %q, want empty (only the first page is consulted)", result.Version)
	}
}

func TestFetchWithRetryTransientThenSuccess(t *testing.T) {
	var calls int
	var mu sync.Mutex
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		switch n {
		case 1:
			w.WriteHeader(http.StatusInternalServerError)
		case 2:
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			fmt.Fprint(w, "payload")
		}
	}))
	defer ts.Close()

	c := New(testConfig(ts.URL))
	body, _, err := c.fetchWithRetry(context.Background(), ts.URL+"/flaky")
	if err != nil {
		t.Fatalf("fetchWithRetry failed: %v", err)
	}
	if body != "payload" {
		t.Errorf("body = %q", body)
	}
	if calls != 3 {
		t.Errorf("made %d requests, want 3 (500, 429, 200)", calls)
	}
}

func TestFetchWithRetryPermanent404(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.NotFound(w, r)
	}))
	defer ts.Close()

	c := New(testConfig(ts.URL))
	_, _, err := c.fetchWithRetry(context.Background(), ts.URL+"/missing")
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if !docerr.Is(err, docerr.KindNotFound) {
		t.Errorf("error kind = %v, want NotFound", docerr.KindOf(err))
	}
	if calls != 1 {
		t.Errorf("made %d requests, want 1 (no retries on 404)", calls)
	}
}

func TestFetchWithRetryExhaustsOn5xx(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	cfg := testConfig(ts.URL)
	cfg.MaxRetries = 2
	c := New(cfg)
	_, _, err := c.fetchWithRetry(context.Background(), ts.URL+"/down")
	if err == nil {
		t.Fatal("expected error after retries exhausted")
	}
	if calls != 3 {
		t.Errorf("made %d requests, want 3 (initial + 2 retries)", calls)
	}
}

func TestFollowableHref(t *testing.T) {
	cases := []struct {
		href string
		want bool
	}{
		{"./page.html", true},
		{"../other/page.html", true},
		{"page.html", true},
		{"page.html#section", true},
		{"/rooted/page.html", false},
		{"https://example.com/page.html", false},
		{"#fragment", false},
		{"page.txt", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := followableHref(tc.href); got != tc.want {
			t.Errorf("followableHref(%q) = %v, want %v", tc.href, got, tc.want)
		}
	}
}

func TestCrawlCancellation(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/alpha/latest/alpha/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page(docblock("root")+`<a href="./p1.html">next</a>`))
	})
	mux.HandleFunc("/alpha/latest/alpha/p1.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page(docblock("p1")))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(testConfig(ts.URL))
	if _, err := c.Crawl(ctx, "alpha", "latest", nil, 10); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
