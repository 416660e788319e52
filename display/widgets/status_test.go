package widgets

import (
	"strings"
	"testing"
)

func TestRenderStatus(t *testing.T) {
	tests := []struct {
		level StatusLevel
		icon  string
	}{
		{StatusOK, "●"},
		{StatusWarning, "●"},
		{StatusCritical, "●"},
		{StatusUnknown, "○"},
		{StatusPending, "◌"},
	}
	for _, tt := range tests {
		got := RenderStatus(tt.level, "text")
		if !strings.Contains(got, tt.icon) {
			t.Errorf("level %d: expected icon %q in %q", tt.level, tt.icon, got)
		}
		if !strings.HasSuffix(got, " text") {
			t.Errorf("level %d: expected text suffix in %q", tt.level, got)
		}
	}
}

func TestRenderStatus_IconOnly(t *testing.T) {
	got := RenderStatus(StatusOK, "")
	if strings.Contains(got, " ") {
		t.Errorf("expected icon only, got %q", got)
	}
}

func TestRenderConnection(t *testing.T) {
	if got := RenderConnection(true); !strings.Contains(got, TextConnected) {
		t.Errorf("expected %q, got %q", TextConnected, got)
	}
	got := RenderConnection(false)
	if !strings.Contains(got, TextDisconnected) {
		t.Errorf("expected %q, got %q", TextDisconnected, got)
	}
	if strings.Contains(got, TextConnected) {
		t.Errorf("disconnected badge should not read %q: %q", TextConnected, got)
	}
}
