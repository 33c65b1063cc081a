package repository

import "testing"

func TestMoveWithinQueue(t *testing.T) {
	tests := []struct {
		name        string
		ids         []int64
		entryID     int64
		newPosition int
		want        []int64
		ok          bool
	}{
		{"move middle to front", []int64{10, 20, 30, 40}, 30, 0, []int64{30, 10, 20, 40}, true},
		{"move front to back", []int64{10, 20, 30, 40}, 10, 3, []int64{20, 30, 40, 10}, true},
		{"move back to middle", []int64{10, 20, 30, 40}, 40, 1, []int64{10, 40, 20, 30}, true},
		{"swap adjacent forward", []int64{10, 20, 30, 40}, 20, 2, []int64{10, 30, 20, 40}, true},
		{"same position is a no-op", []int64{10, 20, 30, 40}, 30, 2, []int64{10, 20, 30, 40}, true},
		{"negative position clamps to front", []int64{10, 20, 30, 40}, 20, -5, []int64{20, 10, 30, 40}, true},
		{"position past end clamps to back", []int64{10, 20, 30, 40}, 20, 99, []int64{10, 30, 40, 20}, true},
		{"single entry", []int64{10}, 10, 0, []int64{10}, true},
		{"entry not in queue", []int64{10, 20, 30}, 99, 1, nil, false},
		{"empty queue", nil, 10, 0, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := moveWithinQueue(tt.ids, tt.entryID, tt.newPosition)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

// Positions are written back as the slice index, so a dense 0..n-1
// sequence holds exactly when the result keeps every entry once. Every
// target position, in and out of bounds, must preserve that.
func TestMoveWithinQueueKeepsEveryEntry(t *testing.T) {
	ids := []int64{10, 20, 30, 40, 50}

	for pos := -1; pos <= len(ids); pos++ {
		got, ok := moveWithinQueue(ids, 30, pos)
		if !ok {
			t.Fatalf("position %d: entry unexpectedly missing", pos)
		}
		if len(got) != len(ids) {
			t.Fatalf("position %d: len = %d, want %d", pos, len(got), len(ids))
		}

		seen := make(map[int64]bool, len(got))
		for _, id := range got {
			if seen[id] {
				t.Fatalf("position %d: duplicate entry %d in %v", pos, id, got)
			}
			seen[id] = true
		}
		for _, id := range ids {
			if !seen[id] {
				t.Fatalf("position %d: entry %d dropped from %v", pos, id, got)
			}
		}
	}

	// The input must survive untouched across the loop iterations above.
	for i, id := range []int64{10, 20, 30, 40, 50} {
		if ids[i] != id {
			t.Fatalf("input mutated: %v", ids)
		}
	}
}

func TestMoveWithinQueuePreservesRelativeOrder(t *testing.T) {
	ids := []int64{10, 20, 30, 40, 50}

	got, ok := moveWithinQueue(ids, 40, 1)
	if !ok {
		t.Fatal("entry unexpectedly missing")
	}

	// The untouched entries keep their order around the moved one.
	want := []int64{10, 40, 20, 30, 50}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
