package sink

import (
	"testing"
	"time"
)

func TestResolveIndexName(t *testing.T) {
	instant := time.Date(2024, 6, 1, 13, 45, 0, 0, time.UTC)

	tests := []struct {
		name    string
		pattern string
		want    string
	}{
		{"plain", "orders", "orders"},
		{"uppercase lowered", "Orders-Index", "orders-index"},
		{"daily token", "logs-{2006.01.02}", "logs-2024.06.01"},
		{"monthly token", "metrics_{2006-01}", "metrics_2024-06"},
		{"token mid pattern", "a-{2006}-b", "a-2024-b"},
		{"disallowed chars stripped", "logs?<>|#", "logs"},
		{"space and comma stripped", "my index,v2", "myindexv2"},
		{"unclosed brace literal", "logs-{2006", "logs-{2006"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveIndexName(tt.pattern, instant); got != tt.want {
				t.Errorf("ResolveIndexName(%q) = %q, want %q", tt.pattern, got, tt.want)
			}
		})
	}
}

func TestResolveIndexName_Deterministic(t *testing.T) {
	instant := time.Date(2024, 6, 1, 13, 45, 0, 0, time.UTC)
	first := ResolveIndexName("logs-{2006.01.02}", instant)
	second := ResolveIndexName("logs-{2006.01.02}", instant)
	if first != second {
		t.Errorf("resolver is not deterministic: %q vs %q", first, second)
	}
}

func TestResolveIndexName_DifferentDays(t *testing.T) {
	day1 := time.Date(2024, 6, 1, 23, 59, 0, 0, time.UTC)
	day2 := time.Date(2024, 6, 2, 0, 1, 0, 0, time.UTC)

	name1 := ResolveIndexName("logs-{2006.01.02}", day1)
	name2 := ResolveIndexName("logs-{2006.01.02}", day2)
	if name1 == name2 {
		t.Errorf("expected different names across calendar days, both %q", name1)
	}
}
