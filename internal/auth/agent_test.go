package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGetTokenDisabledReturnsEmpty(t *testing.T) {
	a := New(Info{}, func() (string, bool) { return "", false }, nil)
	tok, err := a.GetToken(context.Background())
	if err != nil || tok != "" {
		t.Fatalf("expected empty token with no error, got %q %v", tok, err)
	}
}

func TestGetTokenLoginAndCache(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if !strings.HasSuffix(r.URL.Path, "/nacos/v1/auth/login") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"accessToken":"tok-1","tokenTtl":3600}`))
	}))
	defer srv.Close()

	addr := strings.TrimPrefix(srv.URL, "http://")
	a := New(Info{Username: "nacos", Password: "nacos"}, func() (string, bool) { return addr, true }, nil)

	tok, err := a.GetToken(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if tok != "tok-1" {
		t.Fatalf("expected tok-1, got %q", tok)
	}

	tok2, err := a.GetToken(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if tok2 != "tok-1" || calls != 1 {
		t.Fatalf("expected cached token without a second login call, calls=%d", calls)
	}
}
