package exitcode

import (
	"errors"
	"fmt"
	"testing"
)

func TestExitCodeConstants(t *testing.T) {
	codes := []int{Success, GeneralError, ConfigError, ValidationError, FileSystemError, NetworkError, GitError}
	for i, c := range codes {
		if c != i {
			t.Errorf("code at position %d = %d", i, c)
		}
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		code     int
		expected string
	}{
		{Success, "Success"},
		{ConfigError, "Configuration error"},
		{NetworkError, "Network error"},
		{GitError, "Git error"},
		{99, "Unknown error"},
	}
	for _, tt := range tests {
		if got := String(tt.code); got != tt.expected {
			t.Errorf("String(%d) = %q, expected %q", tt.code, got, tt.expected)
		}
	}
}

func TestWrapAndOf(t *testing.T) {
	if Wrap(NetworkError, nil) != nil {
		t.Fatal("Wrap(nil) should stay nil")
	}
	if Of(nil) != Success {
		t.Errorf("Of(nil) = %d", Of(nil))
	}

	base := errors.New("cannot fetch index")
	err := fmt.Errorf("run: %w", Wrap(NetworkError, base))
	if Of(err) != NetworkError {
		t.Errorf("Of(wrapped) = %d, expected %d", Of(err), NetworkError)
	}
	if !errors.Is(err, base) {
		t.Error("wrapped error should unwrap to base")
	}
	if Of(base) != GeneralError {
		t.Errorf("Of(untagged) = %d", Of(base))
	}
}
