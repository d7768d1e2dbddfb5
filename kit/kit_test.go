package kit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func TestChain_Order(t *testing.T) {
	var order []string

	mw := func(name string) Middleware {
		return func(next Endpoint) Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				order = append(order, name+">")
				resp, err := next(ctx, req)
				order = append(order, "<"+name)
				return resp, err
			}
		}
	}

	base := func(_ context.Context, _ any) (any, error) {
		order = append(order, "endpoint")
		return "ok", nil
	}

	resp, err := Chain(mw("a"), mw("b"))(base)(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp != "ok" {
		t.Fatalf("response: got %v", resp)
	}
	want := []string{"a>", "b>", "endpoint", "<b", "<a"}
	if len(order) != len(want) {
		t.Fatalf("order: got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order[%d]: got %q, want %q", i, order[i], want[i])
		}
	}
}

func TestRequireUser(t *testing.T) {
	errAnon := errors.New("anonymous")
	ep := RequireUser(errAnon)(func(ctx context.Context, _ any) (any, error) {
		return GetUserID(ctx), nil
	})

	if _, err := ep(context.Background(), nil); !errors.Is(err, errAnon) {
		t.Fatalf("anonymous call: got %v", err)
	}
	resp, err := ep(WithUserID(context.Background(), "usr_1"), nil)
	if err != nil || resp != "usr_1" {
		t.Fatalf("authenticated call: got %v, %v", resp, err)
	}
}

func TestContextDefaults(t *testing.T) {
	ctx := context.Background()
	if v := GetUserID(ctx); v != "" {
		t.Fatalf("user id default: got %q", v)
	}
	if v := GetTransport(ctx); v != "http" {
		t.Fatalf("transport default: got %q", v)
	}
	ctx = WithProjectID(WithRole(WithTraceID(ctx, "abcd"), "admin"), "prj_1")
	if GetTraceID(ctx) != "abcd" || GetRole(ctx) != "admin" || GetProjectID(ctx) != "prj_1" {
		t.Fatal("context values lost")
	}
}

func TestRegisterMCPTool(t *testing.T) {
	type echoReq struct {
		Text string `json:"text"`
	}

	srv := mcp.NewServer(&mcp.Implementation{Name: "test", Version: "0"}, nil)
	RegisterMCPTool[echoReq](srv, &mcp.Tool{
		Name:        "echo",
		Description: "echo text",
		InputSchema: map[string]any{"type": "object"},
	}, func(ctx context.Context, req any) (any, error) {
		r := req.(*echoReq)
		if r.Text == "" {
			return nil, errors.New("text required")
		}
		return map[string]string{"text": r.Text, "transport": GetTransport(ctx)}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serverT, clientT := mcp.NewInMemoryTransports()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "0"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer cs.Close()

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: "echo", Arguments: map[string]any{"text": "hi"}})
	if err != nil {
		t.Fatal(err)
	}
	if err := res.GetError(); err != nil {
		t.Fatalf("tool error: %v", err)
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(res.Content[0].(*mcp.TextContent).Text), &out); err != nil {
		t.Fatal(err)
	}
	if out["text"] != "hi" || out["transport"] != "mcp" {
		t.Fatalf("result: got %v", out)
	}

	res, err = cs.CallTool(ctx, &mcp.CallToolParams{Name: "echo", Arguments: map[string]any{}})
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Fatal("expected tool error for empty text")
	}
}
