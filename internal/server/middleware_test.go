package server

import (
	"log/slog"
	"testing"

	"github.com/valyala/fasthttp"
)

func TestRequestIDGenerated(t *testing.T) {
	var seen string
	h := requestID(func(ctx *fasthttp.RequestCtx) {
		seen, _ = ctx.UserValue("request_id").(string)
	})

	ctx := &fasthttp.RequestCtx{}
	h(ctx)

	if seen == "" {
		t.Error("request_id user value not set")
	}
	if got := string(ctx.Response.Header.Peek("X-Request-ID")); got != seen {
		t.Errorf("X-Request-ID header = %q, want %q", got, seen)
	}
}

func TestRequestIDPreserved(t *testing.T) {
	h := requestID(func(*fasthttp.RequestCtx) {})

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.Set("X-Request-ID", "client-supplied")
	h(ctx)

	if got := string(ctx.Response.Header.Peek("X-Request-ID")); got != "client-supplied" {
		t.Errorf("X-Request-ID = %q, want client-supplied", got)
	}
}

func TestRecoveryCatchesPanic(t *testing.T) {
	h := recovery(slog.Default())(func(*fasthttp.RequestCtx) {
		panic("boom")
	})

	ctx := &fasthttp.RequestCtx{}
	h(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusInternalServerError {
		t.Errorf("status = %d, want 500", ctx.Response.StatusCode())
	}
	if body := string(ctx.Response.Body()); body == "" {
		t.Error("expected an error envelope body")
	}
}

func TestCORSPreflight(t *testing.T) {
	called := false
	h := corsHandler(nil)(func(*fasthttp.RequestCtx) { called = true })

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(fasthttp.MethodOptions)
	h(ctx)

	if called {
		t.Error("preflight must not reach the handler")
	}
	if ctx.Response.StatusCode() != fasthttp.StatusNoContent {
		t.Errorf("status = %d, want 204", ctx.Response.StatusCode())
	}
	if got := string(ctx.Response.Header.Peek("Access-Control-Allow-Origin")); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
}

func TestCORSAllowlist(t *testing.T) {
	h := corsHandler([]string{"http://localhost:3000"})(func(*fasthttp.RequestCtx) {})

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(fasthttp.MethodGet)
	h(ctx)

	if got := string(ctx.Response.Header.Peek("Access-Control-Allow-Origin")); got != "http://localhost:3000" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestApplyMiddlewareOrdering(t *testing.T) {
	var order []string
	mw := func(name string) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
			return func(ctx *fasthttp.RequestCtx) {
				order = append(order, name)
				next(ctx)
			}
		}
	}

	h := applyMiddleware(func(*fasthttp.RequestCtx) {
		order = append(order, "handler")
	}, mw("outer"), mw("inner"))

	h(&fasthttp.RequestCtx{})

	want := []string{"outer", "inner", "handler"}
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestSecurityHeaders(t *testing.T) {
	h := securityHeaders(func(*fasthttp.RequestCtx) {})

	ctx := &fasthttp.RequestCtx{}
	h(ctx)

	if got := string(ctx.Response.Header.Peek("X-Content-Type-Options")); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := string(ctx.Response.Header.Peek("Content-Security-Policy")); got != "default-src 'none'" {
		t.Errorf("Content-Security-Policy = %q", got)
	}
}
