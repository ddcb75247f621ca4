package ideawatch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTP_SubmitAndResults(t *testing.T) {
	f := newFixture(t, nil)
	ts := httptest.NewServer(f.svc.Handler())
	defer ts.Close()

	body := `{"email":"owner@example.com","description":"cat sleep collar","monitor":"1m"}`
	resp, err := http.Post(ts.URL+"/api/ideas", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	var sub struct {
		IdeaID     string `json:"idea_id"`
		Monitoring bool   `json:"monitoring"`
	}
	json.NewDecoder(resp.Body).Decode(&sub)
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted || sub.IdeaID == "" || !sub.Monitoring {
		t.Fatalf("submit: %d %+v", resp.StatusCode, sub)
	}

	if _, err := f.svc.RunScan(context.Background(), sub.IdeaID); err != nil {
		t.Fatal(err)
	}

	resp, err = http.Get(ts.URL + "/api/results/owner@example.com")
	if err != nil {
		t.Fatal(err)
	}
	var res []*IdeaResults
	json.NewDecoder(resp.Body).Decode(&res)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || len(res) != 1 || len(res[0].Competitors) != 1 {
		t.Fatalf("results: %d %+v", resp.StatusCode, res)
	}
	cid := res[0].Competitors[0].ID

	resp, err = http.Get(ts.URL + "/api/feedback?competitor_id=" + cid + "&is_relevant=1")
	if err != nil {
		t.Fatal(err)
	}
	text, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(string(text), "✓") {
		t.Fatalf("feedback: %d %q", resp.StatusCode, text)
	}
	c, _ := f.svc.store.GetCompetitor(context.Background(), cid)
	if c.Feedback == nil || !*c.Feedback {
		t.Fatal("feedback not stored")
	}
}

func TestHTTP_Errors(t *testing.T) {
	f := newFixture(t, nil)
	ts := httptest.NewServer(f.svc.Handler())
	defer ts.Close()

	cases := []struct {
		method, path, body string
		want               int
	}{
		{"POST", "/api/ideas", `{"email":"owner@example.com"}`, http.StatusBadRequest},
		{"POST", "/api/ideas", `not json`, http.StatusBadRequest},
		{"GET", "/api/results/nobody@example.com", "", http.StatusNotFound},
		{"GET", "/api/feedback?competitor_id=x&is_relevant=maybe", "", http.StatusBadRequest},
		{"GET", "/api/feedback?competitor_id=x&is_relevant=0", "", http.StatusNotFound},
		{"GET", "/api/unsubscribe?email=nobody@example.com", "", http.StatusNotFound},
		{"POST", "/api/ideas/missing/rescan", "", http.StatusNotFound},
		{"GET", "/health", "", http.StatusOK},
	}
	for _, tc := range cases {
		req, _ := http.NewRequest(tc.method, ts.URL+tc.path, strings.NewReader(tc.body))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tc.want {
			t.Errorf("%s %s = %d, want %d", tc.method, tc.path, resp.StatusCode, tc.want)
		}
	}
}

func TestHTTP_UnsubscribeAndRescan(t *testing.T) {
	f := newFixture(t, nil)
	ts := httptest.NewServer(f.svc.Handler())
	defer ts.Close()
	idea, err := f.svc.SubmitIdea(context.Background(), SubmitRequest{Email: "owner@example.com", Description: "cat sleep collar"})
	if err != nil {
		t.Fatal(err)
	}

	resp, err := http.Post(ts.URL+"/api/ideas/"+idea.ID+"/rescan", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		Queued bool `json:"queued"`
	}
	json.NewDecoder(resp.Body).Decode(&out)
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted || out.Queued {
		t.Fatalf("rescan: %d queued=%v (submission job still pending)", resp.StatusCode, out.Queued)
	}

	resp, err = http.Get(ts.URL + "/api/unsubscribe?email=owner%40example.com")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unsubscribe: %d", resp.StatusCode)
	}
	u, _ := f.svc.store.GetUserByEmail(context.Background(), "owner@example.com")
	if u.Active {
		t.Fatal("user should be inactive")
	}
}

func TestHTTP_Metrics(t *testing.T) {
	m := NewMetrics()
	f := newFixture(t, nil)
	f.svc.metrics = m
	ts := httptest.NewServer(f.svc.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	text, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(text), "go_goroutines") {
		t.Fatalf("metrics: %d", resp.StatusCode)
	}
}
