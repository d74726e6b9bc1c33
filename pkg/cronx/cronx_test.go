package cronx

import (
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	valid := []string{
		"0 2 * * *",
		"*/5 * * * *",
		"0 0 1 * *",
		"30 9 * * 1-5",
		"0 8,20 * * *",
	}
	for _, expr := range valid {
		if err := Validate(expr); err != nil {
			t.Errorf("Validate(%q) = %v, want nil", expr, err)
		}
	}

	invalid := []string{
		"",
		"not a cron",
		"61 * * * *",
		"* * * *",
		"0 0 * * * *",
	}
	for _, expr := range invalid {
		if err := Validate(expr); err == nil {
			t.Errorf("Validate(%q) = nil, want error", expr)
		}
	}
}

func TestNext(t *testing.T) {
	tests := []struct {
		name  string
		expr  string
		after string
		want  string
	}{
		{
			name:  "daily 2am from mid-morning",
			expr:  "0 2 * * *",
			after: "2024-01-01T10:00:00Z",
			want:  "2024-01-02T02:00:00Z",
		},
		{
			name:  "daily 2am from just before",
			expr:  "0 2 * * *",
			after: "2024-01-02T01:59:59Z",
			want:  "2024-01-02T02:00:00Z",
		},
		{
			name:  "strictly after the due instant",
			expr:  "0 2 * * *",
			after: "2024-01-02T02:00:00Z",
			want:  "2024-01-03T02:00:00Z",
		},
		{
			name:  "every five minutes",
			expr:  "*/5 * * * *",
			after: "2024-03-10T12:02:30Z",
			want:  "2024-03-10T12:05:00Z",
		},
		{
			name:  "weekday morning skips weekend",
			expr:  "30 9 * * 1-5",
			after: "2024-01-05T10:00:00Z", // 周五上午已过
			want:  "2024-01-08T09:30:00Z", // 下周一
		},
		{
			name:  "month boundary",
			expr:  "0 0 1 * *",
			after: "2024-01-15T00:00:00Z",
			want:  "2024-02-01T00:00:00Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			after, err := time.Parse(time.RFC3339, tt.after)
			if err != nil {
				t.Fatal(err)
			}
			got, err := Next(tt.expr, after)
			if err != nil {
				t.Fatalf("Next(%q) error: %v", tt.expr, err)
			}
			want, _ := time.Parse(time.RFC3339, tt.want)
			if !got.Equal(want) {
				t.Errorf("Next(%q, %s) = %s, want %s", tt.expr, tt.after, got, tt.want)
			}
		})
	}
}

func TestNextInvalidExpr(t *testing.T) {
	if _, err := Next("bad", time.Now()); err == nil {
		t.Fatal("expected error for invalid expression")
	}
}

func TestNextStrictlyIncreases(t *testing.T) {
	ref, _ := time.Parse(time.RFC3339, "2024-06-01T00:00:00Z")
	for i := 0; i < 10; i++ {
		next, err := Next("*/15 * * * *", ref)
		if err != nil {
			t.Fatal(err)
		}
		if !next.After(ref) {
			t.Fatalf("next %s not strictly after %s", next, ref)
		}
		ref = next
	}
}
