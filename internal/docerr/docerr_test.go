package docerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestNewAndError(t *testing.T) {
	err := New(KindConfig, "missing %s", "DATABASE_URL")
	if err.Error() != "CONFIG: missing DATABASE_URL" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestWrapUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindStore, cause, "connecting")

	if !errors.Is(err, cause) {
		t.Error("wrapped cause should be reachable via errors.Is")
	}
	if got := err.Error(); got != "STORE: connecting: connection refused" {
		t.Errorf("Error() = %q", got)
	}
}

func TestIsAndKindOf(t *testing.T) {
	err := New(KindRateLimited, "too many requests")
	wrapped := fmt.Errorf("fetching page: %w", err)

	if !Is(wrapped, KindRateLimited) {
		t.Error("Is should see through fmt.Errorf wrapping")
	}
	if Is(wrapped, KindNotFound) {
		t.Error("Is matched the wrong kind")
	}
	if KindOf(wrapped) != KindRateLimited {
		t.Errorf("KindOf = %v", KindOf(wrapped))
	}
	if KindOf(errors.New("plain")) != KindInternal {
		t.Error("plain errors should report KindInternal")
	}
}

func TestUserMessage(t *testing.T) {
	err := New(KindNotFound, "package not found")
	if UserMessage(err) != "package not found" {
		t.Errorf("UserMessage = %q", UserMessage(err))
	}
	plain := errors.New("something broke")
	if UserMessage(plain) != "something broke" {
		t.Errorf("UserMessage = %q", UserMessage(plain))
	}
}
