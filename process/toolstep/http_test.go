package toolstep

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPTool_Name(t *testing.T) {
	if (&HTTPTool{}).Name() != "http_request" {
		t.Fatal("expected registered name http_request")
	}
}

func TestHTTPTool_GetReturnsStatusHeadersAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		w.Header().Set("X-Custom", "yes")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	tool := NewHTTPTool()
	out, err := tool.Call(context.Background(), map[string]interface{}{"url": srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["status_code"] != http.StatusTeapot {
		t.Fatalf("expected status %d, got %v", http.StatusTeapot, out["status_code"])
	}
	if out["body"] != "hello" {
		t.Fatalf("expected body %q, got %v", "hello", out["body"])
	}
	headers, ok := out["headers"].(map[string]interface{})
	if !ok || headers["X-Custom"] != "yes" {
		t.Fatalf("expected X-Custom header to round trip, got %+v", out["headers"])
	}
}

func TestHTTPTool_PostSendsBodyAndHeaders(t *testing.T) {
	var gotBody string
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		gotHeader = r.Header.Get("Authorization")
		buf := make([]byte, 1024)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tool := NewHTTPTool()
	_, err := tool.Call(context.Background(), map[string]interface{}{
		"url":    srv.URL,
		"method": "post",
		"body":   "payload",
		"headers": map[string]interface{}{
			"Authorization": "Bearer token",
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotBody != "payload" {
		t.Fatalf("expected request body %q, got %q", "payload", gotBody)
	}
	if gotHeader != "Bearer token" {
		t.Fatalf("expected Authorization header to be forwarded, got %q", gotHeader)
	}
}

func TestHTTPTool_MissingURLReturnsError(t *testing.T) {
	tool := NewHTTPTool()
	_, err := tool.Call(context.Background(), map[string]interface{}{})
	if err == nil {
		t.Fatal("expected an error when url is missing")
	}
}

func TestHTTPTool_UnsupportedMethodReturnsError(t *testing.T) {
	tool := NewHTTPTool()
	_, err := tool.Call(context.Background(), map[string]interface{}{
		"url":    "http://example.invalid",
		"method": "DELETE",
	})
	if err == nil {
		t.Fatal("expected an error for an unsupported method")
	}
}
