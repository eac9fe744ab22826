package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ev(name string, op Operation) FileEvent {
	return FileEvent{Name: name, Operation: op, Timestamp: time.Now()}
}

func waitBatch(t *testing.T, d *Debouncer) []FileEvent {
	t.Helper()
	select {
	case batch := <-d.Output():
		return batch
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for debounced batch")
		return nil
	}
}

func TestDebouncer_SingleEventPassesThrough(t *testing.T) {
	// Given: a debouncer with a short window
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	// When: one event arrives
	d.Add(ev("a.md", OpCreate))

	// Then: it is emitted after the window
	batch := waitBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, "a.md", batch[0].Name)
	assert.Equal(t, OpCreate, batch[0].Operation)
}

func TestDebouncer_MergeRules(t *testing.T) {
	tests := []struct {
		name string
		ops  []Operation
		want []Operation
	}{
		{"modify bursts collapse", []Operation{OpModify, OpModify, OpModify}, []Operation{OpModify}},
		{"create then modify stays create", []Operation{OpCreate, OpModify}, []Operation{OpCreate}},
		{"modify then delete is delete", []Operation{OpModify, OpDelete}, []Operation{OpDelete}},
		{"delete then create is modify", []Operation{OpDelete, OpCreate}, []Operation{OpModify}},
		{"create then rename cancels", []Operation{OpCreate, OpRename}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDebouncer(30 * time.Millisecond)
			defer d.Stop()

			for _, op := range tt.ops {
				d.Add(ev("a.md", op))
			}

			if tt.want == nil {
				select {
				case batch := <-d.Output():
					t.Fatalf("unexpected batch: %v", batch)
				case <-time.After(120 * time.Millisecond):
				}
				return
			}
			batch := waitBatch(t, d)
			require.Len(t, batch, 1)
			assert.Equal(t, tt.want[0], batch[0].Operation)
		})
	}
}

func TestDebouncer_BatchIsSortedByName(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	d.Add(ev("c.md", OpCreate))
	d.Add(ev("a.md", OpModify))
	d.Add(ev("b.md", OpDelete))

	batch := waitBatch(t, d)
	require.Len(t, batch, 3)
	assert.Equal(t, "a.md", batch[0].Name)
	assert.Equal(t, "b.md", batch[1].Name)
	assert.Equal(t, "c.md", batch[2].Name)
}

func TestDebouncer_StopClosesOutput(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	d.Add(ev("a.md", OpCreate))

	d.Stop()
	d.Stop()
	d.Add(ev("b.md", OpCreate))

	_, ok := <-d.Output()
	assert.False(t, ok)
}
