package logging

import (
	"testing"

	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr bool
	}{
		{name: "json info", level: "info", format: "json"},
		{name: "console debug", level: "DEBUG", format: "console"},
		{name: "default format", level: "warn", format: ""},
		{name: "bad level", level: "loud", format: "json", wantErr: true},
		{name: "bad format", level: "info", format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.level, tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New(%q, %q) err = %v, wantErr %v", tt.level, tt.format, err, tt.wantErr)
			}
			if err == nil && zap.L() != logger {
				t.Error("logger was not installed globally")
			}
		})
	}
	zap.ReplaceGlobals(zap.NewNop())
}
