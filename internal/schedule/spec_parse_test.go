package schedule

import (
	"testing"
	"time"
)

func TestParseScheduleVariants(t *testing.T) {
	cases := []struct {
		in      string
		kind    SpecKind
		cron    string
		every   time.Duration
		wantErr bool
	}{
		{in: "*/5 * * * *", kind: SpecCron, cron: "*/5 * * * *"},
		{in: "0 8 * * *", kind: SpecCron, cron: "0 8 * * *"},
		{in: "@daily", kind: SpecCron, cron: "@daily"},
		{in: "@every 55m", kind: SpecCron, cron: "@every 55m"},
		{in: "55m", kind: SpecInterval, every: 55 * time.Minute},
		{in: "2h30m", kind: SpecInterval, every: 2*time.Hour + 30*time.Minute},
		{in: "cron:0 8 * * *", kind: SpecCron, cron: "0 8 * * *"},
		{in: "every:90s", kind: SpecInterval, every: 90 * time.Second},
		{in: "  @hourly  ", kind: SpecCron, cron: "@hourly"},
		{in: "", wantErr: true},
		{in: "cron:", wantErr: true},
		{in: "every:", wantErr: true},
		{in: "every:-5m", wantErr: true},
		{in: "-5m", wantErr: true},
		{in: "bogus", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseSchedule(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseSchedule(%q): expected error, got %+v", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseSchedule(%q): %v", tc.in, err)
		}
		if got.Kind != tc.kind {
			t.Fatalf("ParseSchedule(%q): kind=%v want %v", tc.in, got.Kind, tc.kind)
		}
		if tc.kind == SpecCron && got.Cron != tc.cron {
			t.Fatalf("ParseSchedule(%q): cron=%q want %q", tc.in, got.Cron, tc.cron)
		}
		if tc.kind == SpecInterval && got.Every != tc.every {
			t.Fatalf("ParseSchedule(%q): every=%v want %v", tc.in, got.Every, tc.every)
		}
	}
}
