package mail

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestLogNotifier_Send(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewTextHandler(&buf, nil)))

	err := n.Send(context.Background(), "alice@x.com", "http://localhost:3000/user/activate/tok", "Verify your email address")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"alice@x.com", "http://localhost:3000/user/activate/tok", "Verify your email address"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q does not contain %q", out, want)
		}
	}
}
