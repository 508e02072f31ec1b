package shelly

import "testing"

func TestBlockClickType(t *testing.T) {
	tests := []struct {
		event  string
		want   string
		wantOK bool
	}{
		{"S", "single", true},
		{"SS", "double", true},
		{"SSS", "triple", true},
		{"L", "long", true},
		{"SL", "single_long", true},
		{"LS", "long_single", true},
		{"X", "", false},
		{"", "", false},
		{"SSSS", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.event, func(t *testing.T) {
			got, ok := BlockClickType(tt.event)
			if ok != tt.wantOK {
				t.Errorf("BlockClickType(%q) ok = %v, want %v", tt.event, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("BlockClickType(%q) = %q, want %q", tt.event, got, tt.want)
			}
		})
	}
}

func TestIsRPCInputEvent(t *testing.T) {
	for _, event := range []string{"btn_down", "btn_up", "single_push", "double_push", "triple_push", "long_push"} {
		if !IsRPCInputEvent(event) {
			t.Errorf("IsRPCInputEvent(%q) = false, want true", event)
		}
	}

	for _, event := range []string{"config_changed", "ota_begin", "", "quadruple_push"} {
		if IsRPCInputEvent(event) {
			t.Errorf("IsRPCInputEvent(%q) = true, want false", event)
		}
	}
}

func TestModelClassification(t *testing.T) {
	if !IsButtonModel("SHBTN-1") || !IsButtonModel("SHBTN-2") {
		t.Error("SHBTN models should classify as button models")
	}
	if IsButtonModel("SHSW-25") {
		t.Error("SHSW-25 should not classify as a button model")
	}

	if !IsDualModeModel("SHRGBW2") {
		t.Error("SHRGBW2 should classify as dual-mode")
	}
	if IsDualModeModel("SHBLB-1") {
		t.Error("SHBLB-1 should not classify as dual-mode")
	}

	if !SupportsLightEffects("SHBLB-1") {
		t.Error("SHBLB-1 should support light effects")
	}
	if SupportsLightEffects("SHSW-1") {
		t.Error("SHSW-1 should not support light effects")
	}
}

func TestSleepModePeriodSeconds(t *testing.T) {
	tests := []struct {
		name string
		mode SleepModeSettings
		want int
	}{
		{"minutes", SleepModeSettings{Period: 10, Unit: "m"}, 600},
		{"hours", SleepModeSettings{Period: 2, Unit: "h"}, 7200},
		{"default unit is minutes", SleepModeSettings{Period: 5, Unit: ""}, 300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.mode.PeriodSeconds(); got != tt.want {
				t.Errorf("PeriodSeconds() = %d, want %d", got, tt.want)
			}
		})
	}
}
