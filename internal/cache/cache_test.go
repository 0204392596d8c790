// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package cache

import (
	"errors"
	"testing"
)

func TestGetSet(t *testing.T) {
	c := New[string, int](0, nil)
	if _, ok := c.Get("a"); ok {
		t.Fatal("hit on empty cache")
	}
	c.Set("a", 1)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("Get = %v, %v", v, ok)
	}
}

func TestSoftLimitEvictsLRU(t *testing.T) {
	var evicted []string
	c := New[string, int](2, func(k string, _ int) { evicted = append(evicted, k) })
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a") // b is now the oldest
	c.Set("c", 3)
	if len(evicted) != 1 || evicted[0] != "b" {
		t.Fatalf("evicted = %v, want [b]", evicted)
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("recently used entry evicted")
	}
}

func TestReplaceEvictsOld(t *testing.T) {
	calls := 0
	c := New[string, int](0, func(string, int) { calls++ })
	c.Set("a", 1)
	c.Set("a", 2)
	if calls != 1 {
		t.Errorf("eviction callbacks = %d, want 1 for replaced value", calls)
	}
	if v, _ := c.Get("a"); v != 2 {
		t.Errorf("value = %d, want 2", v)
	}
}

func TestGetOrCreate(t *testing.T) {
	c := New[int, string](0, nil)
	creates := 0
	mk := func() (string, error) { creates++; return "v", nil }
	for i := 0; i < 3; i++ {
		if v, err := c.GetOrCreate(7, mk); err != nil || v != "v" {
			t.Fatalf("GetOrCreate = %v, %v", v, err)
		}
	}
	if creates != 1 {
		t.Errorf("create called %d times, want 1", creates)
	}

	fail := errors.New("nope")
	if _, err := c.GetOrCreate(8, func() (string, error) { return "", fail }); err != fail {
		t.Errorf("error = %v, want %v", err, fail)
	}
	if c.Len() != 1 {
		t.Errorf("failed creation was cached (len = %d)", c.Len())
	}
}

func TestFlushRunsCallbacks(t *testing.T) {
	n := 0
	c := New[int, int](0, func(int, int) { n++ })
	for i := 0; i < 5; i++ {
		c.Set(i, i)
	}
	c.Flush()
	if n != 5 || c.Len() != 0 {
		t.Errorf("after Flush: callbacks = %d, len = %d", n, c.Len())
	}
}
