package serper

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"layai/searchservice/internal/domain"
)

func TestSearchPostsQueryAndMapsOrganicResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("X-API-KEY") != "secret" {
			t.Errorf("missing api key header")
		}
		var body searchRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.Query != "site:instagram.com running influencer" || body.Num != 10 || body.Country != "es" {
			t.Errorf("unexpected request body: %+v", body)
		}
		_, _ = w.Write([]byte(`{"organic":[
			{"title":"Laura Runner (@laura.runs) &amp; friends","link":"https://www.instagram.com/laura.runs/","snippet":"12.5K Followers, <b>300</b> Following","position":1},
			{"title":"no link","link":"","snippet":"","position":2}
		]}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "secret", Endpoint: server.URL, Country: "ES", Client: server.Client()})
	got, err := client.Search(context.Background(), "site:instagram.com running influencer", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []domain.WebResult{{
		Title:   "Laura Runner (@laura.runs) & friends",
		Link:    "https://www.instagram.com/laura.runs/",
		Snippet: "12.5K Followers, 300 Following",
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("results mismatch (-want +got):\n%s", diff)
	}
}

func TestSearchMapsStatusErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "secret", Endpoint: server.URL, Client: server.Client()})
	_, err := client.Search(context.Background(), "q", 10)
	var statusErr *domain.HTTPStatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusForbidden || statusErr.Service != "serper" {
		t.Fatalf("expected serper 403, got %v", err)
	}
}

func TestSearchWithoutKey(t *testing.T) {
	client := NewClient(Config{})
	if client.Enabled() {
		t.Fatal("client without key must be disabled")
	}
	if _, err := client.Search(context.Background(), "q", 10); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}
