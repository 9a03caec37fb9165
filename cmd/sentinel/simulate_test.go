package main

import (
	"testing"
	"time"
)

func TestParseTimeRange(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name:  "valid interval",
			input: "2026-08-23T00:00:00Z/2026-08-24T00:00:00Z",
		},
		{
			name:    "missing separator",
			input:   "2026-08-23T00:00:00Z",
			wantErr: true,
		},
		{
			name:    "invalid start",
			input:   "yesterday/2026-08-24T00:00:00Z",
			wantErr: true,
		},
		{
			name:    "invalid end",
			input:   "2026-08-23T00:00:00Z/tomorrow",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := parseTimeRange(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseTimeRange() error = %v", err)
			}
			if !end.After(start) {
				t.Errorf("end %v not after start %v", end, start)
			}
			if !start.Equal(time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC)) {
				t.Errorf("start = %v", start)
			}
		})
	}
}
