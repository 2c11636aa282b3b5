package main

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"

	"fossiljourney/pkg/db"
	"fossiljourney/pkg/store"
)

func TestLadderAges(t *testing.T) {
	tests := []struct {
		oldest int
		want   []int
	}{
		{0, []int{0}},
		{30, []int{0, 10, 20, 30}},
		{140, []int{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100, 120, 140}},
		{250, []int{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100, 120, 140, 160, 180, 200, 250}},
	}
	for _, tc := range tests {
		got := ladderAges(tc.oldest)
		if len(got) != len(tc.want) {
			t.Errorf("ladderAges(%d) = %v, want %v", tc.oldest, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("ladderAges(%d)[%d] = %d, want %d", tc.oldest, i, got[i], tc.want[i])
			}
		}
	}
}

func TestResumeFrom(t *testing.T) {
	ages := []int{0, 10, 20, 30}
	tests := []struct {
		done int
		want []int
	}{
		{-1, []int{0, 10, 20, 30}},
		{0, []int{10, 20, 30}},
		{15, []int{20, 30}},
		{30, nil},
		{100, nil},
	}
	for _, tc := range tests {
		got := resumeFrom(ages, tc.done)
		if len(got) != len(tc.want) {
			t.Errorf("resumeFrom(%d) = %v, want %v", tc.done, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("resumeFrom(%d)[%d] = %d, want %d", tc.done, i, got[i], tc.want[i])
			}
		}
	}
}

// The checkpoint survives process restarts via the persistent_state table.
func TestCheckpointRoundTrip(t *testing.T) {
	d, err := db.Init(filepath.Join(t.TempDir(), "preload.db"))
	if err != nil {
		t.Fatalf("db.Init: %v", err)
	}
	defer d.Close()
	st := store.NewSQLiteStore(d)

	ctx := context.Background()
	if _, ok := st.GetState(ctx, "preload_checkpoint/MULLER2022"); ok {
		t.Fatal("unexpected checkpoint in a fresh database")
	}
	if err := st.SetState(ctx, "preload_checkpoint/MULLER2022", strconv.Itoa(60)); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	v, ok := st.GetState(ctx, "preload_checkpoint/MULLER2022")
	if !ok || v != "60" {
		t.Errorf("GetState = %q, %v, want \"60\", true", v, ok)
	}
}
