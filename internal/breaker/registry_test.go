package breaker

import (
	"context"
	"testing"
	"time"
)

func TestRegistry_GetReturnsSameInstance(t *testing.T) {
	r := NewRegistry()
	a := r.Get("scraping-actor:instagram", nil)
	b := r.Get("Scraping-Actor:Instagram ", nil)
	if a != b {
		t.Fatal("expected one breaker per logical name")
	}
}

func TestRegistry_PresetsByClass(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name string
		want Config
	}{
		{"web-search:serper", Config{FailureThreshold: 5, ResetTimeout: 30 * time.Second, MonitoringPeriod: time.Minute}},
		{"scraping-actor:tiktok", Config{FailureThreshold: 3, ResetTimeout: 2 * time.Minute, MonitoringPeriod: 5 * time.Minute}},
		{"verification", Config{FailureThreshold: 3, ResetTimeout: time.Minute, MonitoringPeriod: 2 * time.Minute}},
		{"something-else", DefaultConfig()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Get(tt.name, nil).Config(); got != tt.want {
				t.Fatalf("expected %+v, got %+v", tt.want, got)
			}
		})
	}

	if r.Get(Name(ClassScrapingActor, "x"), nil).Config().ResetTimeout <= r.Get(Name(ClassWebSearch, "x"), nil).Config().ResetTimeout {
		t.Fatal("scraping actors should recover more slowly than web search")
	}
}

func TestRegistry_ExplicitConfigOnlyOnCreation(t *testing.T) {
	r := NewRegistry()
	first := r.Get("custom", &Config{FailureThreshold: 9, ResetTimeout: time.Second, MonitoringPeriod: time.Second})
	second := r.Get("custom", &Config{FailureThreshold: 1})
	if first != second || second.Config().FailureThreshold != 9 {
		t.Fatalf("expected original config to stick, got %+v", second.Config())
	}
}

func TestRegistry_StatsSortedAndResetAll(t *testing.T) {
	var transitions int
	r := NewRegistry(
		WithPresets(map[string]Config{ClassWebSearch: {FailureThreshold: 1, ResetTimeout: time.Hour, MonitoringPeriod: time.Hour}}),
		WithObserver(func(string, State, State, error) { transitions++ }),
	)
	_ = r.Get("web-search:serper", nil).Execute(context.Background(), failing, nil)
	_ = r.Get("web-search:google", nil).Execute(context.Background(), succeeding, nil)

	stats := r.Stats()
	if len(stats) != 2 || stats[0].Name != "web-search:google" || stats[1].Name != "web-search:serper" {
		t.Fatalf("unexpected stats order: %+v", stats)
	}
	if stats[1].State != StateOpen {
		t.Fatalf("expected serper open, got %s", stats[1].State)
	}

	r.ResetAll()
	for _, item := range r.Stats() {
		if item.State != StateClosed || item.FailureCount != 0 {
			t.Fatalf("expected reset breaker, got %+v", item)
		}
	}
	if transitions != 2 {
		t.Fatalf("expected open and reset transitions to reach observer, got %d", transitions)
	}
}
