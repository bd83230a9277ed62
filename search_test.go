package pdfbridge

import (
	"slices"
	"testing"

	"github.com/jpl-au/pdfbridge/engine"
	"github.com/jpl-au/pdfbridge/engine/enginetest"
)

func openTestText(t *testing.T) (*enginetest.Engine, *TextPage) {
	t.Helper()
	lib, eng := newTestLibrary(t, enginetest.Options{})
	doc := loadTestDoc(t, lib, testDocument())
	page := loadTestPage(t, doc, 0)
	tp, err := page.LoadText()
	if err != nil {
		t.Fatalf("LoadText: %v", err)
	}
	return eng, tp
}

func TestSearchNext(t *testing.T) {
	_, tp := openTestText(t)
	s, err := tp.FindStart("hello", 0, 0)
	if err != nil {
		t.Fatalf("FindStart: %v", err)
	}
	defer s.Close()

	// "Hello world, hello Go"
	want := []int{0, 13}
	for i, idx := range want {
		if !s.Next() {
			t.Fatalf("Next #%d = false", i)
		}
		if s.ResultIndex() != idx || s.ResultCount() != 5 {
			t.Errorf("match #%d = %d+%d, want %d+5", i, s.ResultIndex(), s.ResultCount(), idx)
		}
	}
	if s.Next() {
		t.Error("Next after last match = true")
	}
}

func TestSearchPrev(t *testing.T) {
	_, tp := openTestText(t)
	s, _ := tp.FindStart("hello", 0, 0)
	defer s.Close()

	s.Next()
	s.Next()
	if !s.Prev() || s.ResultIndex() != 0 {
		t.Errorf("Prev = index %d, want 0", s.ResultIndex())
	}
	if s.Prev() {
		t.Error("Prev before first match = true")
	}
}

func TestSearchFlags(t *testing.T) {
	_, tp := openTestText(t)

	tests := []struct {
		name  string
		query string
		flags engine.SearchFlags
		want  []Match
	}{
		{"case insensitive", "hello", 0, []Match{{0, 5}, {13, 5}}},
		{"match case", "hello", engine.MatchCase, []Match{{13, 5}}},
		{"whole word", "wor", engine.MatchWholeWord, nil},
		{"substring", "wor", 0, []Match{{6, 3}}},
		{"consecutive", "ll", engine.Consecutive, []Match{{2, 2}, {15, 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := tp.FindStart(tt.query, tt.flags, 0)
			if err != nil {
				t.Fatalf("FindStart: %v", err)
			}
			defer s.Close()
			got := slices.Collect(s.Matches())
			if !slices.Equal(got, tt.want) {
				t.Errorf("matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSearchStartIndex(t *testing.T) {
	_, tp := openTestText(t)
	s, _ := tp.FindStart("hello", 0, 5)
	defer s.Close()

	if !s.Next() || s.ResultIndex() != 13 {
		t.Errorf("first match from 5 = %d, want 13", s.ResultIndex())
	}
}

func TestSearchExhaustion(t *testing.T) {
	_, tp := openTestText(t)
	s, err := tp.FindStart("zzz_not_present", 0, 0)
	if err != nil {
		t.Fatalf("FindStart: %v", err)
	}
	defer s.Close()

	for i := range 3 {
		if s.Next() {
			t.Errorf("Next #%d = true, want false", i)
		}
	}
}

func TestSearchSessionsIndependent(t *testing.T) {
	_, tp := openTestText(t)
	a, _ := tp.FindStart("hello", 0, 0)
	b, _ := tp.FindStart("hello", 0, 0)
	defer a.Close()
	defer b.Close()

	a.Next()
	a.Next()
	if !b.Next() || b.ResultIndex() != 0 {
		t.Errorf("second session index = %d, want 0", b.ResultIndex())
	}
	if a.ResultIndex() != 13 {
		t.Errorf("first session index = %d, want 13", a.ResultIndex())
	}
}

func TestSearchDoubleClose(t *testing.T) {
	eng, tp := openTestText(t)

	for range 100 {
		s, _ := tp.FindStart("go", 0, 0)
		if err := s.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		if err := s.Close(); err != nil {
			t.Fatalf("second Close: %v", err)
		}
		if s.Next() {
			t.Fatal("Next after Close = true")
		}
	}

	st := eng.Stats()
	if st.Opened[enginetest.KindSearch] != 100 || st.Closed[enginetest.KindSearch] != 100 {
		t.Errorf("search opened/closed = %d/%d, want 100/100",
			st.Opened[enginetest.KindSearch], st.Closed[enginetest.KindSearch])
	}
	if st.DoubleClose != 0 {
		t.Errorf("DoubleClose = %d, want 0", st.DoubleClose)
	}
}

func TestTextPageCloseClosesSearches(t *testing.T) {
	eng, tp := openTestText(t)
	s, _ := tp.FindStart("hello", 0, 0)

	tp.Close()
	if s.Handle() != 0 {
		t.Error("search survived its text page")
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close after cascade: %v", err)
	}
	if eng.Stats().Live(enginetest.KindSearch) != 0 {
		t.Error("engine search handle leaked")
	}
}

func TestFindStartEmptyQuery(t *testing.T) {
	_, tp := openTestText(t)
	if _, err := tp.FindStart("", 0, 0); err == nil {
		t.Error("FindStart(\"\") succeeded")
	}
}

func TestMatchesBreak(t *testing.T) {
	_, tp := openTestText(t)
	s, _ := tp.FindStart("o", 0, 0)
	defer s.Close()

	for m := range s.Matches() {
		if m.Index != 4 {
			t.Errorf("first match = %d, want 4", m.Index)
		}
		break
	}
	if s.ResultIndex() != 4 {
		t.Errorf("cursor = %d after break, want 4", s.ResultIndex())
	}
}
