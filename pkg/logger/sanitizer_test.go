package logger

import "testing"

func TestMaskToken(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"short", "abc", "***"},
		{"seven chars", "abcdefg", "***"},
		{"eight chars", "abcdefgh", "abcdefgh"},
		{"long token", "abcd1234567890wxyz", "abcd**********wxyz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskToken(tt.input); got != tt.want {
				t.Errorf("MaskToken(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsSensitiveKey(t *testing.T) {
	sensitive := []string{"token", "access_token", "Password", "douyin_cookie", "Authorization", "api_key"}
	for _, key := range sensitive {
		if !IsSensitiveKey(key) {
			t.Errorf("IsSensitiveKey(%q) = false, want true", key)
		}
	}

	plain := []string{"task_id", "status", "user", "url"}
	for _, key := range plain {
		if IsSensitiveKey(key) {
			t.Errorf("IsSensitiveKey(%q) = true, want false", key)
		}
	}
}

func TestSanitizeValue(t *testing.T) {
	if got := SanitizeValue("token", "abcd1234efgh5678"); got != "abcd********5678" {
		t.Errorf("SanitizeValue token = %v", got)
	}
	if got := SanitizeValue("password", 123456); got != "***MASKED***" {
		t.Errorf("SanitizeValue non-string = %v", got)
	}
	if got := SanitizeValue("task_id", "t-1"); got != "t-1" {
		t.Errorf("SanitizeValue plain = %v", got)
	}
}

func TestSanitizeArgs(t *testing.T) {
	args := SanitizeArgs("task_id", "t-1", "cookie", "abcdefgh12345678")
	if args[1] != "t-1" {
		t.Errorf("plain value modified: %v", args[1])
	}
	if args[3] == "abcdefgh12345678" {
		t.Errorf("sensitive value not masked")
	}

	// 奇数个参数不panic
	odd := SanitizeArgs("only_key")
	if len(odd) != 1 {
		t.Errorf("odd args length = %d", len(odd))
	}
}
