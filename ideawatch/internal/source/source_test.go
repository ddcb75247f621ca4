package source

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/net/html"
)

func TestRegistry_Order(t *testing.T) {
	// WHAT: Sources come back in registration order; duplicates are rejected.
	// WHY: The registry is a fixed, ordered enumeration.
	r := NewRegistry()
	noop := SearchFunc(func(context.Context, string) ([]Listing, error) { return nil, nil })
	for _, name := range []string{"b", "a", "c"} {
		if err := r.Register(name, noop); err != nil {
			t.Fatal(err)
		}
	}
	if err := r.Register("a", noop); !errors.Is(err, ErrDuplicateSource) {
		t.Fatalf("err = %v, want ErrDuplicateSource", err)
	}
	if got := strings.Join(r.Names(), ","); got != "b,a,c" {
		t.Fatalf("names = %s", got)
	}
}

func TestDefaultRegistry_Order(t *testing.T) {
	reg, err := NewDefaultRegistry(Defaults{
		APISources: []APIConfig{{Name: "extra", URL: "http://x/{query}"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := "aliexpress,kickstarter,google,producthunt,amazon,patents,extra"
	if got := strings.Join(reg.Names(), ","); got != want {
		t.Fatalf("names = %s, want %s", got, want)
	}
}

func TestClean(t *testing.T) {
	in := []Listing{
		{Name: "<b>Cat &amp; Kitten</b>  Collar", URL: " https://a.example/p ", Description: "<script>x</script>Soft"},
		{Name: "", URL: "https://b.example"},
		{Name: "No URL", URL: ""},
		{Name: "Tagged", URL: "https://c.example", Source: "kept"},
	}
	out := Clean(in, "google")
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if out[0].Name != "Cat & Kitten Collar" || out[0].URL != "https://a.example/p" || out[0].Source != "google" {
		t.Fatalf("cleaned = %+v", out[0])
	}
	if strings.Contains(out[0].Description, "script") {
		t.Fatalf("description not sanitized: %q", out[0].Description)
	}
	if out[1].Source != "kept" {
		t.Fatalf("source overwritten: %q", out[1].Source)
	}
}

func TestBreaker_OpensAndRecovers(t *testing.T) {
	// WHAT: Consecutive failures open the breaker; after the reset timeout one probe passes.
	// WHY: A dead source must stop costing a timeout on every scan.
	now := time.Unix(0, 0)
	b := NewBreaker(WithBreakerThreshold(2), WithBreakerResetTimeout(time.Minute),
		WithBreakerClock(func() time.Time { return now }))

	var calls atomic.Int32
	fail := true
	s := WithBreaker(SearchFunc(func(context.Context, string) ([]Listing, error) {
		calls.Add(1)
		if fail {
			return nil, errors.New("down")
		}
		return []Listing{{Name: "x", URL: "u"}}, nil
	}), b)

	ctx := context.Background()
	s.Search(ctx, "q")
	s.Search(ctx, "q")
	if _, err := s.Search(ctx, "q"); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}

	now = now.Add(time.Minute)
	if b.State() != BreakerHalfOpen {
		t.Fatalf("state = %v, want half-open", b.State())
	}
	fail = false
	if _, err := s.Search(ctx, "q"); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != BreakerClosed {
		t.Fatal("breaker should close after successful probe")
	}
}

func TestCache(t *testing.T) {
	var calls atomic.Int32
	inner := SearchFunc(func(_ context.Context, q string) ([]Listing, error) {
		calls.Add(1)
		if q == "bad" {
			return nil, errors.New("boom")
		}
		return []Listing{{Name: q, URL: "u"}}, nil
	})
	s := NewCache(time.Minute).Wrap("a", inner)
	ctx := context.Background()

	s.Search(ctx, "q")
	out, _ := s.Search(ctx, "q")
	if calls.Load() != 1 || len(out) != 1 {
		t.Fatalf("calls = %d, out = %v", calls.Load(), out)
	}
	s.Search(ctx, "bad")
	s.Search(ctx, "bad")
	if calls.Load() != 3 {
		t.Fatalf("errors must not be cached, calls = %d", calls.Load())
	}
}

func TestSerper_ProductFilter(t *testing.T) {
	var gotQ, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body serperRequest
		json.NewDecoder(r.Body).Decode(&body)
		gotQ, gotKey = body.Q, r.Header.Get("X-API-KEY")
		w.Write([]byte(`{"organic":[
			{"title":"Cat Collar","link":"https://shop.example/products/collar","snippet":"s"},
			{"title":"Best collars 2024","link":"https://blog.example/review","snippet":"s"},
			{"title":"About","link":"https://example.com/page","snippet":"s"}
		]}`))
	}))
	defer srv.Close()

	out, err := NewSerper("key", SerperProducts, WithSerperEndpoint(srv.URL)).Search(context.Background(), "cat collar")
	if err != nil {
		t.Fatal(err)
	}
	if gotQ != "cat collar buy product" || gotKey != "key" {
		t.Fatalf("q=%q key=%q", gotQ, gotKey)
	}
	if len(out) != 1 || out[0].Name != "Cat Collar" {
		t.Fatalf("out = %+v", out)
	}
}

func TestSerper_AmazonPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"organic":[
			{"title":"Collar","link":"https://www.amazon.com/dp/B0001","snippet":"Only $12.99 today"},
			{"title":"Search","link":"https://www.amazon.com/s?k=collar","snippet":""}
		]}`))
	}))
	defer srv.Close()

	out, err := NewSerper("key", SerperAmazon, WithSerperEndpoint(srv.URL)).Search(context.Background(), "collar")
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].Price == nil || *out[0].Price != 12.99 {
		t.Fatalf("out = %+v", out)
	}
}

func TestSerper_NoKeyDisabled(t *testing.T) {
	out, err := NewSerper("", SerperWeb).Search(context.Background(), "q")
	if err != nil || out != nil {
		t.Fatalf("got %v, %v", out, err)
	}
}

func TestSerper_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()
	if _, err := NewSerper("key", SerperWeb, WithSerperEndpoint(srv.URL)).Search(context.Background(), "q"); err == nil {
		t.Fatal("expected error on 403")
	}
}

func TestPatents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("engine") != "google_patents" {
			t.Errorf("engine = %q", r.URL.Query().Get("engine"))
		}
		w.Write([]byte(`{"organic_results":[
			{"title":"Pet collar","link":"https://patents.google.com/p1","pdf":"https://patents.google.com/p1.pdf","snippet":"` + strings.Repeat("a", 600) + `"},
			{"title":"","link":"https://patents.google.com/p2","snippet":""}
		]}`))
	}))
	defer srv.Close()

	out, err := NewPatents("key", nil).WithEndpoint(srv.URL).Search(context.Background(), "collar")
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("len = %d", len(out))
	}
	if out[0].Name != "Patent: Pet collar" || !strings.HasSuffix(out[0].URL, ".pdf") || len(out[0].Description) != 500 {
		t.Fatalf("first = %+v", out[0])
	}
	if out[1].Name != "Patent: Untitled" || out[1].Description != "No description available" || out[1].Price != nil {
		t.Fatalf("second = %+v", out[1])
	}
}

const aliPage = `<html><body>
<div class="search-Product-Item">
  <a href="//www.aliexpress.com/item/1.html"><h3>Cat Sleep Collar</h3></a>
  <span class="price-current">US $1,234.50</span>
  <div class="item-description">Soft silicone</div>
</div>
<div class="search-product-item">
  <a href="/item/2.html"><div class="card-title">Pet Tracker</div></a>
</div>
<div class="search-product-item"><span>no name or link</span></div>
</body></html>`

func TestAliExpress_ParseCards(t *testing.T) {
	// WHAT: Product cards yield name, absolute URL, price and description.
	// WHY: AliExpress markup varies; selectors must be tolerant.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wholesale/cat-collar.html" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(aliPage))
	}))
	defer srv.Close()

	out, err := NewAliExpress(nil).WithBase(srv.URL).Search(context.Background(), "cat collar")
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(out), out)
	}
	first := out[0]
	if first.Name != "Cat Sleep Collar" || first.URL != "https://www.aliexpress.com/item/1.html" {
		t.Fatalf("first = %+v", first)
	}
	if first.Price == nil || *first.Price != 1234.50 || first.Description != "Soft silicone" {
		t.Fatalf("first price/desc = %v %q", first.Price, first.Description)
	}
	if out[1].URL != "https://www.aliexpress.com/item/2.html" || out[1].Description != "Pet Tracker" {
		t.Fatalf("second = %+v", out[1])
	}
}

func TestSelectors(t *testing.T) {
	doc, _ := html.Parse(strings.NewReader(`<div id="main"><p class="a b">x</p><p data-k="v">y</p></div>`))
	cases := map[string]int{
		"p":           2,
		"p.b":         1,
		"#main p":     2,
		"p[data-k=v]": 1,
		"p[data-k]":   1,
		"[class*=A]":  1,
		"div#main":    1,
	}
	for sel, want := range cases {
		if got := len(selectAll(doc, sel)); got != want {
			t.Errorf("%q: got %d, want %d", sel, got, want)
		}
	}
}

func TestAPISearch_Kickstarter(t *testing.T) {
	var gotTerm string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTerm = r.URL.Query().Get("term")
		w.Write([]byte(`{"projects":[
			{"name":"SleepCat","blurb":"A collar","urls":{"web":{"project":"https://www.kickstarter.com/projects/1"}}},
			"not an object"
		]}`))
	}))
	defer srv.Close()

	cfg := KickstarterConfig()
	cfg.URL = srv.URL + "/discover/advanced?format=json&term={query}"
	out, err := NewAPISearch(cfg, nil).Search(context.Background(), "cat collar")
	if err != nil {
		t.Fatal(err)
	}
	if gotTerm != "cat collar" {
		t.Fatalf("term = %q", gotTerm)
	}
	if len(out) != 1 || out[0].URL != "https://www.kickstarter.com/projects/1" || out[0].Description != "A collar" {
		t.Fatalf("out = %+v", out)
	}
}

func TestAPISearch_EnvHeaderAndPrice(t *testing.T) {
	t.Setenv("TEST_API_TOKEN", "secret")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("auth = %q", r.Header.Get("Authorization"))
		}
		w.Write([]byte(`[{"title":"A","link":"https://a","cost":"$9.50"},{"title":"B","link":"https://b","cost":3}]`))
	}))
	defer srv.Close()

	out, err := NewAPISearch(APIConfig{
		Name:    "custom",
		URL:     srv.URL + "?q={query}",
		Headers: map[string]string{"Authorization": "Bearer ${TEST_API_TOKEN}"},
		Fields:  map[string]string{"name": "title", "url": "link", "price": "cost"},
	}, nil).Search(context.Background(), "x")
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || *out[0].Price != 9.5 || *out[1].Price != 3 {
		t.Fatalf("out = %+v", out)
	}
}

func TestIsProductURL(t *testing.T) {
	cases := map[string]bool{
		"https://www.etsy.com/listing/1":     true,
		"https://shop.example/p/123":         true,
		"https://news.example/products/1":    false,
		"https://www.reddit.com/r/cats/shop": false,
		"https://example.com/":               false,
		"":                                   false,
	}
	for u, want := range cases {
		if got := IsProductURL(u); got != want {
			t.Errorf("IsProductURL(%q) = %v, want %v", u, got, want)
		}
	}
}
