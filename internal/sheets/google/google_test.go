package google

import (
	"context"
	"testing"
)

func TestColumnLetter(t *testing.T) {
	tests := map[int]string{1: "A", 7: "G", 26: "Z", 27: "AA", 52: "AZ", 703: "AAA"}
	for n, want := range tests {
		if got := columnLetter(n); got != want {
			t.Errorf("columnLetter(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestColumnRange(t *testing.T) {
	tests := []struct {
		sheet string
		n     int
		want  string
	}{
		{"Alerts", 7, "'Alerts'!A:G"},
		{"Bob's log", 2, "'Bob''s log'!A:B"},
		{"Alerts", 0, "'Alerts'!A:A"},
	}
	for _, tt := range tests {
		if got := columnRange(tt.sheet, tt.n); got != tt.want {
			t.Errorf("columnRange(%q, %d) = %q, want %q", tt.sheet, tt.n, got, tt.want)
		}
	}
}

func TestNewRequiresSpreadsheetID(t *testing.T) {
	if _, err := New(context.Background(), "  "); err == nil {
		t.Fatal("expected error for blank spreadsheet id")
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	if _, err := New(context.Background(), "sheet-id"); err == nil {
		t.Fatal("expected error without credentials")
	}
}

func TestAppendRowWithoutService(t *testing.T) {
	c := &Client{spreadsheetID: "x"}
	if _, err := c.AppendRow(context.Background(), "Alerts", []any{"a"}); err == nil {
		t.Fatal("expected error without service")
	}
}
