package notifier

import (
	"testing"
	"time"
)

func TestDisabledNotifierIsSilent(t *testing.T) {
	n := New(Config{Enabled: false}, nil)

	// None of these may attempt delivery (or panic on the nil logger)
	n.NotifyBuildStart(3)
	n.NotifyBuildSuccess(time.Second, 2, 1)
	n.NotifyBuildFailure(1)
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Millisecond, "500ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1m30s"},
	}
	for _, tc := range cases {
		if got := formatDuration(tc.d); got != tc.want {
			t.Errorf("formatDuration(%s) = %s, want %s", tc.d, got, tc.want)
		}
	}
}
