package vm

import "testing"

func TestValueStackPushPop(t *testing.T) {
	s := newValueStack()
	s.Push(1)
	s.Push(2)
	s.Push(3)
	if got, want := s.Len(), 3; got != want {
		t.Fatalf("Len() = %d, want %d", got, want)
	}
	if got, want := s.Pop(), 3.0; got != want {
		t.Errorf("Pop() = %v, want %v", got, want)
	}
	if got, want := s.Pop(), 2.0; got != want {
		t.Errorf("Pop() = %v, want %v", got, want)
	}
	if got, want := s.Len(), 1; got != want {
		t.Errorf("Len() = %d, want %d", got, want)
	}
}

func TestValueStackPopEmptyYieldsZero(t *testing.T) {
	s := newValueStack()
	if got, want := s.Pop(), 0.0; got != want {
		t.Errorf("Pop() on empty stack = %v, want %v", got, want)
	}
	if got, want := s.Len(), 0; got != want {
		t.Errorf("Len() after popping empty stack = %d, want %d", got, want)
	}
}

func TestValueStackTopPushesZeroWhenEmpty(t *testing.T) {
	s := newValueStack()
	p := s.Top()
	if *p != 0 {
		t.Fatalf("Top() on empty stack = %v, want 0", *p)
	}
	if got, want := s.Len(), 1; got != want {
		t.Errorf("Len() after Top() on empty stack = %d, want %d", got, want)
	}
	*p = 42
	if got, want := s.Pop(), 42.0; got != want {
		t.Errorf("mutation through Top() pointer lost, Pop() = %v, want %v", got, want)
	}
}

func TestValueStackView(t *testing.T) {
	s := newValueStack()
	s.Push(1)
	s.Push(2)
	view := s.View()
	if len(view) != 2 || view[0] != 1 || view[1] != 2 {
		t.Fatalf("View() = %v, want [1 2]", view)
	}
	view[0] = 99
	if got := s.Pop(); got != 2 {
		t.Errorf("mutating View() result corrupted the stack: Pop() = %v", got)
	}
}

func TestValueStackDropN(t *testing.T) {
	cases := []struct {
		name  string
		push  int
		n     int64
		want  int
	}{
		{"drop fewer than depth", 5, 2, 3},
		{"drop exactly depth", 5, 5, 0},
		{"drop more than depth clears stack", 5, 100, 0},
		{"drop zero is a no-op", 5, 0, 5},
		{"drop negative is a no-op", 5, -3, 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newValueStack()
			for i := 0; i < tc.push; i++ {
				s.Push(float64(i))
			}
			s.DropN(tc.n)
			if got := s.Len(); got != tc.want {
				t.Errorf("Len() after DropN(%d) = %d, want %d", tc.n, got, tc.want)
			}
		})
	}
}

func TestValueStackRotateLaw(t *testing.T) {
	// rotate(1) pulls the element directly below the top up to the top,
	// which for a two-or-more element stack is exactly a swap of the top
	// two elements (the 'S' opcode's behavior).
	s := newValueStack()
	s.Push(1)
	s.Push(2)
	s.Push(3)
	s.Rotate(1)
	got := s.View()
	want := []float64{1, 3, 2}
	if len(got) != len(want) {
		t.Fatalf("View() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("View()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestValueStackRotateZeroIsNoop(t *testing.T) {
	s := newValueStack()
	s.Push(1)
	s.Push(2)
	s.Rotate(0)
	got := s.View()
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("Rotate(0) changed the stack: %v", got)
	}
}

func TestValueStackRotateBeyondDepthPushesZero(t *testing.T) {
	s := newValueStack()
	s.Push(1)
	s.Push(2)
	s.Rotate(5)
	got := s.View()
	want := []float64{1, 2, 0}
	if len(got) != len(want) {
		t.Fatalf("View() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("View()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestValueStackRotateDeeper(t *testing.T) {
	// [1 2 3 4] rotate(2) pulls the element two below the top (2) to the
	// top, sliding 3 and 4 down: [1 3 4 2].
	s := newValueStack()
	s.Push(1)
	s.Push(2)
	s.Push(3)
	s.Push(4)
	s.Rotate(2)
	got := s.View()
	want := []float64{1, 3, 4, 2}
	if len(got) != len(want) {
		t.Fatalf("View() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("View()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestVarTableDefaultsToZero(t *testing.T) {
	var vt varTable
	if got := vt.Get('a'); got != 0 {
		t.Errorf("Get('a') on fresh table = %v, want 0", got)
	}
}

func TestVarTableSetAndGet(t *testing.T) {
	var vt varTable
	vt.Set('z', 17)
	if got := vt.Get('z'); got != 17 {
		t.Errorf("Get('z') = %v, want 17", got)
	}
	if got := vt.Get('a'); got != 0 {
		t.Errorf("unrelated slot Get('a') = %v, want 0", got)
	}
}
