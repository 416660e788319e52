package series

import "fmt"

// Name identifies one chart series.
type Name string

// Series tracked by the dashboard.
const (
	CPU    Name = "cpu"
	Memory Name = "memory"
	GPU    Name = "gpu"
	NetIn  Name = "net_in"
	NetOut Name = "net_out"
)

// DashboardNames lists the dashboard series in display order.
var DashboardNames = []Name{CPU, Memory, GPU, NetIn, NetOut}

// Set is a group of independent buffers sharing one capacity.
type Set struct {
	capacity int
	order    []Name
	buffers  map[Name]*Buffer
}

// NewSet creates one zero-filled buffer per name.
func NewSet(capacity int, names ...Name) (*Set, error) {
	s := &Set{
		capacity: capacity,
		buffers:  make(map[Name]*Buffer, len(names)),
	}
	for _, name := range names {
		if _, dup := s.buffers[name]; dup {
			return nil, fmt.Errorf("series: duplicate name %q", name)
		}
		b, err := New(capacity)
		if err != nil {
			return nil, err
		}
		s.buffers[name] = b
		s.order = append(s.order, name)
	}
	return s, nil
}

// Push appends v to the named series.
func (s *Set) Push(name Name, v float64) error {
	b, ok := s.buffers[name]
	if !ok {
		return fmt.Errorf("series: unknown series %q", name)
	}
	b.Push(v)
	return nil
}

// PushPair appends to two series in the same step. Neither is touched when
// either name is unknown.
func (s *Set) PushPair(a Name, av float64, b Name, bv float64) error {
	ba, ok := s.buffers[a]
	if !ok {
		return fmt.Errorf("series: unknown series %q", a)
	}
	bb, ok := s.buffers[b]
	if !ok {
		return fmt.Errorf("series: unknown series %q", b)
	}
	ba.Push(av)
	bb.Push(bv)
	return nil
}

// Snapshot returns the ordered samples of the named series, or nil when the
// name is unknown.
func (s *Set) Snapshot(name Name) []float64 {
	b, ok := s.buffers[name]
	if !ok {
		return nil
	}
	return b.Snapshot()
}

// Names returns the series names in creation order.
func (s *Set) Names() []Name {
	out := make([]Name, len(s.order))
	copy(out, s.order)
	return out
}

// Capacity returns the shared buffer capacity.
func (s *Set) Capacity() int { return s.capacity }

// Clone deep-copies every buffer.
func (s *Set) Clone() *Set {
	c := &Set{
		capacity: s.capacity,
		order:    s.Names(),
		buffers:  make(map[Name]*Buffer, len(s.buffers)),
	}
	for name, b := range s.buffers {
		c.buffers[name] = b.Clone()
	}
	return c
}
