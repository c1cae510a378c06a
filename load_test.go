package mdpreview

import (
	"testing"
	"time"
)

func TestRuntimeLoadMonitorLifecycle(t *testing.T) {
	t.Parallel()

	m := NewRuntimeLoadMonitor()

	if got := m.Load(); got < 0 || got > 1 {
		t.Errorf("Load() = %v, want within [0, 1]", got)
	}

	stopped := make(chan struct{})
	go func() {
		m.Stop()
		m.Stop() // second call must not block
		close(stopped)
	}()

	timer := time.NewTimer(2 * time.Second)
	defer timer.Stop()
	select {
	case <-stopped:
	case <-timer.C:
		t.Fatal("Stop() did not return within 2s")
	}
}

func TestLoadSample(t *testing.T) {
	t.Parallel()

	if got := loadSample(loadSampleInterval); got < 0 || got > 1 {
		t.Errorf("on-time tick sample = %v, want within [0, 1]", got)
	}
	if got := loadSample(2 * loadSampleInterval); got != 1 {
		t.Errorf("tick a full interval late = %v, want 1", got)
	}
	if got := loadSample(loadSampleInterval / 2); got < 0 || got > 1 {
		t.Errorf("early tick sample = %v, want within [0, 1]", got)
	}
}

func TestClamp01(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   float64
		want float64
	}{
		{in: -0.5, want: 0},
		{in: 0, want: 0},
		{in: 0.42, want: 0.42},
		{in: 1, want: 1},
		{in: 7.3, want: 1},
	}
	for _, tt := range tests {
		if got := clamp01(tt.in); got != tt.want {
			t.Errorf("clamp01(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
