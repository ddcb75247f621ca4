package ideawatch

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/shahar42/competotor-agent/kit"
)

func connectMCP(t *testing.T, svc *Service) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	impl := &mcp.Implementation{Name: "competotor-test", Version: "0.1.0"}
	srv := mcp.NewServer(impl, nil)
	svc.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	go srv.Run(ctx, serverT)

	client := mcp.NewClient(impl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func callText(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	if err := result.GetError(); err != nil {
		return err.Error(), true
	}
	if len(result.Content) == 0 {
		t.Fatalf("%s: empty result", name)
	}
	return result.Content[0].(*mcp.TextContent).Text, false
}

func TestMCP_ListTools(t *testing.T) {
	f := newFixture(t, nil)
	session := connectMCP(t, f.svc)

	res, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]bool{}
	for _, tool := range res.Tools {
		got[tool.Name] = true
	}
	for _, name := range []string{"idea_submit", "idea_results", "idea_feedback", "idea_rescan", "idea_runs"} {
		if !got[name] {
			t.Errorf("missing tool %s", name)
		}
	}
}

func TestMCP_SubmitScanResults(t *testing.T) {
	// WHAT: submit through MCP, scan, then read results and send feedback.
	f := newFixture(t, nil)
	session := connectMCP(t, f.svc)

	text, isErr := callText(t, session, "idea_submit", map[string]any{
		"email": "owner@example.com", "description": "cat sleep collar",
	})
	if isErr {
		t.Fatalf("submit: %s", text)
	}
	var idea Idea
	if err := json.Unmarshal([]byte(text), &idea); err != nil || idea.ID == "" {
		t.Fatalf("submit result %q: %v", text, err)
	}
	if _, err := f.svc.RunScan(context.Background(), idea.ID); err != nil {
		t.Fatal(err)
	}

	text, isErr = callText(t, session, "idea_results", map[string]any{"email": "owner@example.com"})
	if isErr {
		t.Fatalf("results: %s", text)
	}
	var res []*IdeaResults
	if err := json.Unmarshal([]byte(text), &res); err != nil || len(res) != 1 || len(res[0].Competitors) != 1 {
		t.Fatalf("results %q: %v", text, err)
	}

	text, isErr = callText(t, session, "idea_feedback", map[string]any{
		"competitor_id": res[0].Competitors[0].ID, "is_relevant": true,
	})
	if isErr {
		t.Fatalf("feedback: %s", text)
	}

	text, isErr = callText(t, session, "idea_runs", map[string]any{"idea_id": idea.ID})
	if isErr || !strings.Contains(text, `"state":"done"`) {
		t.Fatalf("runs: %s", text)
	}
}

func TestMCP_ToolErrors(t *testing.T) {
	f := newFixture(t, nil)
	session := connectMCP(t, f.svc)

	text, isErr := callText(t, session, "idea_submit", map[string]any{"email": "bad", "description": "x"})
	if !isErr || !strings.Contains(text, "invalid") {
		t.Fatalf("submit error = %v %q", isErr, text)
	}
	text, isErr = callText(t, session, "idea_rescan", map[string]any{"idea_id": "missing"})
	if !isErr || !strings.Contains(text, "not found") {
		t.Fatalf("rescan error = %v %q", isErr, text)
	}
}

func TestToolChain_TagsRequest(t *testing.T) {
	// WHAT: Tool calls get a request ID when none arrived; an existing one
	// is kept.
	// WHY: MCP calls carry no HTTP request ID, and log lines need one.
	f := newFixture(t, nil)
	var seen []string
	endpoint := f.svc.toolChain("idea_test")(func(ctx context.Context, _ any) (any, error) {
		seen = append(seen, kit.GetRequestID(ctx))
		return nil, nil
	})

	if _, err := endpoint(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if _, err := endpoint(kit.WithRequestID(context.Background(), "req_fixed"), nil); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 || !strings.HasPrefix(seen[0], "req_") || len(seen[0]) <= len("req_") {
		t.Fatalf("generated id = %v", seen)
	}
	if seen[1] != "req_fixed" {
		t.Fatalf("kept id = %q", seen[1])
	}
}
