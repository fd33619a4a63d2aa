package booking

import (
	"testing"
	"time"
)

func TestComputeRefund(t *testing.T) {
	start := time.Date(2030, 1, 10, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		now  time.Time
		paid float64
		want float64
	}{
		{
			name: "cancel well before cutoff refunds everything",
			now:  start.Add(-48 * time.Hour),
			paid: 150,
			want: 150,
		},
		{
			name: "cancel one minute past cutoff refunds everything",
			now:  start.Add(-24*time.Hour - time.Minute),
			paid: 80,
			want: 80,
		},
		{
			name: "cancel exactly at cutoff refunds nothing",
			now:  start.Add(-24 * time.Hour),
			paid: 80,
			want: 0,
		},
		{
			name: "cancel inside cutoff refunds nothing",
			now:  start.Add(-23 * time.Hour),
			paid: 200,
			want: 0,
		},
		{
			name: "cancel after the start refunds nothing",
			now:  start.Add(time.Hour),
			paid: 200,
			want: 0,
		},
		{
			name: "zero payment refunds zero",
			now:  start.Add(-48 * time.Hour),
			paid: 0,
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeRefund(start, tt.now, tt.paid)
			if got != tt.want {
				t.Errorf("ComputeRefund() = %v, want %v", got, tt.want)
			}
		})
	}
}
