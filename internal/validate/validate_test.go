package validate

import (
	"strings"
	"testing"
)

func TestTitle(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"valid", "Ordering coffee", ""},
		{"empty", "", "title is required"},
		{"blank", "   ", "title is required"},
		{"at limit", strings.Repeat("a", MaxTitleLength), ""},
		{"over limit", strings.Repeat("a", MaxTitleLength+1), "title must be 200 characters or fewer"},
		{"chinese at limit", strings.Repeat("字", MaxTitleLength), ""},
	}
	for _, tt := range tests {
		if got := Title(tt.input); got != tt.want {
			t.Errorf("Title(%s) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestDescription(t *testing.T) {
	if got := Description(""); got != "" {
		t.Errorf("expected empty description to pass, got %q", got)
	}
	if got := Description(strings.Repeat("x", MaxDescriptionLength+1)); got != "description must be 2000 characters or fewer" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestWord(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"serendipity", ""},
		{"", "word is required"},
		{strings.Repeat("w", MaxWordLength+1), "word must be 100 characters or fewer"},
	}
	for _, tt := range tests {
		if got := Word(tt.input); got != tt.want {
			t.Errorf("Word(len=%d) = %q, want %q", len(tt.input), got, tt.want)
		}
	}
}

func TestEnums(t *testing.T) {
	tests := []struct {
		name string
		fn   func(string) string
		ok   string
		bad  string
		msg  string
	}{
		{"difficulty", Difficulty, "advanced", "expert", "difficulty must be one of beginner, intermediate, advanced"},
		{"video status", VideoStatus, "draft", "archived", "status must be one of draft, published"},
		{"user status", UserStatus, "suspended", "banned", "status must be one of pending, approved, suspended"},
		{"role", Role, "admin", "owner", "role must be one of user, admin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(tt.ok); got != "" {
				t.Errorf("expected %q to pass, got %q", tt.ok, got)
			}
			if got := tt.fn(tt.bad); got != tt.msg {
				t.Errorf("expected %q, got %q", tt.msg, got)
			}
		})
	}
}

func TestFirst(t *testing.T) {
	if got := First("", "", ""); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
	if got := First("", "second", "third"); got != "second" {
		t.Errorf("expected first non-empty message, got %q", got)
	}
}

func TestFieldLimits(t *testing.T) {
	limits := FieldLimits()
	if limits["title"] != MaxTitleLength || limits["description"] != MaxDescriptionLength {
		t.Errorf("unexpected limits %v", limits)
	}
	for field, max := range limits {
		if max <= 0 {
			t.Errorf("limit for %s must be positive, got %d", field, max)
		}
	}
}
