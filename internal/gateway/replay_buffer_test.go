package gateway

import "testing"

func TestReplayBuffer_Range(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		pushed   int64
		from, to int64
		want     []int64
	}{
		{"middle", 100, 10, 3, 7, []int64{3, 4, 5, 6, 7}},
		{"wraparound keeps newest", 5, 8, 1, 10, []int64{4, 5, 6, 7, 8}},
		{"evicted range", 5, 8, 1, 3, nil},
		{"empty", 10, 0, 1, 100, nil},
		{"exactly full", 4, 4, 0, 9, []int64{1, 2, 3, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rb := NewReplayBuffer(tt.capacity)
			for i := int64(1); i <= tt.pushed; i++ {
				rb.Push(i, []byte("msg"))
			}
			got := rb.Range(tt.from, tt.to)
			if len(got) != len(tt.want) {
				t.Fatalf("Range(%d,%d): got %d entries, want %d", tt.from, tt.to, len(got), len(tt.want))
			}
			for i, e := range got {
				if e.Seq != tt.want[i] {
					t.Errorf("entry %d: seq %d, want %d", i, e.Seq, tt.want[i])
				}
			}
		})
	}
}

func TestReplayBuffer_Len(t *testing.T) {
	rb := NewReplayBuffer(3)
	for i := int64(1); i <= 2; i++ {
		rb.Push(i, nil)
	}
	if rb.Len() != 2 {
		t.Errorf("Len: got %d, want 2", rb.Len())
	}
	rb.Push(3, nil)
	rb.Push(4, nil)
	if rb.Len() != 3 {
		t.Errorf("Len after wrap: got %d, want 3", rb.Len())
	}
}
