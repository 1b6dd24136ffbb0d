package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

type staticTokens string

func (s staticTokens) GetToken(ctx context.Context) (string, error) { return string(s), nil }

func TestGetAppendsTokenAndDecodesOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("accessToken") != "tok" {
			t.Errorf("expected accessToken=tok, got %q", r.URL.RawQuery)
		}
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	h := NewHTTP(strings.TrimPrefix(srv.URL, "http://"), staticTokens("tok"), nil)
	body, err := h.Get(context.Background(), "/nacos/v1/cs/configs", url.Values{"dataId": {"a"}}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "hello" {
		t.Fatalf("expected hello, got %q", body)
	}
}

func TestNon200IsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := NewHTTP(strings.TrimPrefix(srv.URL, "http://"), staticTokens(""), nil)
	_, err := h.Get(context.Background(), "/x", nil, 0)
	if err == nil {
		t.Fatal("expected error on 500")
	}
}
