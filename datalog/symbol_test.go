// Copyright 2026 The Biscuit Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package datalog

import (
	"testing"
)

func TestDefaultSymbols(t *testing.T) {
	table := NewSymbolTable()
	for i, s := range DefaultSymbols {
		idx, ok := table.Sym(s)
		if !ok || idx != uint64(i) {
			t.Fatalf("default symbol %q: expected index %d, got (%d, %v)", s, i, idx, ok)
		}
	}
	// interning a default symbol never allocates a new entry
	if idx := table.Insert("read"); idx != 0 {
		t.Fatalf("expected index 0 for read, got %d", idx)
	}
	if table.Len() != 0 {
		t.Fatalf("expected no new entries, got %d", table.Len())
	}
}

func TestSymbolOffset(t *testing.T) {
	table := NewSymbolTable()
	first := table.Insert("file1")
	if first != DefaultSymbolsOffset {
		t.Fatalf("expected first entry at %d, got %d", DefaultSymbolsOffset, first)
	}
	second := table.Insert("file2")
	if second != DefaultSymbolsOffset+1 {
		t.Fatalf("expected second entry at %d, got %d", DefaultSymbolsOffset+1, second)
	}
	// duplicate insert reuses the entry
	if again := table.Insert("file1"); again != first {
		t.Fatalf("expected %d, got %d", first, again)
	}

	s, ok := table.Str(first)
	if !ok || s != "file1" {
		t.Fatalf("resolution failed: (%q, %v)", s, ok)
	}
	if _, ok := table.Str(500); ok {
		t.Fatal("the reserved range must not resolve")
	}
}

func TestSymbolTableExtend(t *testing.T) {
	table := NewSymbolTable()
	table.Insert("a")
	if err := table.Extend([]string{"b", "c"}); err != nil {
		t.Fatal(err)
	}
	if _, ok := table.Sym("c"); !ok {
		t.Fatal("extended symbol missing")
	}
	if err := table.Extend([]string{"a"}); err == nil {
		t.Fatal("expected overlap error")
	}
}

func TestSplitOff(t *testing.T) {
	table := NewSymbolTable()
	table.Insert("a")
	table.Insert("b")
	mark := table.Len()
	table.Insert("c")
	table.Insert("d")

	tail := table.SplitOff(mark)
	if len(tail) != 2 || tail[0] != "c" || tail[1] != "d" {
		t.Fatalf("unexpected tail %v", tail)
	}
	if table.Len() != mark {
		t.Fatalf("expected %d entries, got %d", mark, table.Len())
	}
}

func TestTemporarySymbolTable(t *testing.T) {
	base := NewSymbolTable()
	file1 := base.Insert("file1")

	tmp := NewTemporarySymbolTable(base)

	// base entries resolve through the temporary table
	if s, ok := tmp.Str(file1); !ok || s != "file1" {
		t.Fatalf("base resolution failed: (%q, %v)", s, ok)
	}
	// base entries are reused, not duplicated
	if idx := tmp.Insert("file1"); idx != file1 {
		t.Fatalf("expected %d, got %d", file1, idx)
	}
	// new entries land above the base range and never touch the base
	idx := tmp.Insert("scratch")
	if idx != DefaultSymbolsOffset+1 {
		t.Fatalf("expected %d, got %d", DefaultSymbolsOffset+1, idx)
	}
	if s, ok := tmp.Str(idx); !ok || s != "scratch" {
		t.Fatalf("temporary resolution failed: (%q, %v)", s, ok)
	}
	if _, ok := base.Sym("scratch"); ok {
		t.Fatal("temporary entry leaked into the base table")
	}
}
