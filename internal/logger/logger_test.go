package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSetLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := SetLevel(&buf, zerolog.WarnLevel)

	log.Info().Msg("hidden")
	log.Warn().Str("set_id", "S1").Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line leaked through warn level: %s", out)
	}
	if !strings.Contains(out, `"set_id":"S1"`) || !strings.Contains(out, `"level":"warn"`) {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestNewLevelFromEnv(t *testing.T) {
	tests := []struct {
		env  string
		want zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"debug", zerolog.DebugLevel},
		{"error", zerolog.ErrorLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Setenv("LOG_LEVEL", tt.env)
		if got := New().GetLevel(); got != tt.want {
			t.Errorf("LOG_LEVEL=%q: level = %s, want %s", tt.env, got, tt.want)
		}
	}
}
