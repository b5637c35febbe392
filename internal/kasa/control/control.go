package control

import "time"

// Manager is the subset of *manager.Manager the control facade needs.
// Declaring it as an interface here (rather than importing the
// concrete type) keeps this package's tests free of a real device
// table and transport.
type Manager interface {
	Count() int
	Name(idx int) (string, error)
	Failure(idx int) (string, error)
	Status(idx int) (bool, error)
	Commanded(idx int) (bool, error)
	Deadline(idx int) (time.Time, error)
	Set(idx int, state bool, pulse time.Duration, cause string) error
}

// Point is one row of the external-facing surface the /kasa/status
// response serialises.
type Point struct {
	Name      string
	State     bool
	Commanded bool
	Failure   string
	Deadline  time.Time
}

// Points is the control-point facade: it resolves names to the opaque
// indices Manager exposes and applies Set to every matching point.
// More than one index may share a name.
type Points struct {
	mgr Manager
}

// New wraps mgr as a control-point facade.
func New(mgr Manager) *Points {
	return &Points{mgr: mgr}
}

// List enumerates every control point in table order.
func (p *Points) List() ([]Point, error) {
	count := p.mgr.Count()
	out := make([]Point, 0, count)
	for i := 0; i < count; i++ {
		pt, err := p.at(i)
		if err != nil {
			return nil, err
		}
		out = append(out, pt)
	}
	return out, nil
}

func (p *Points) at(idx int) (Point, error) {
	name, err := p.mgr.Name(idx)
	if err != nil {
		return Point{}, err
	}
	failure, err := p.mgr.Failure(idx)
	if err != nil {
		return Point{}, err
	}
	state, err := p.mgr.Status(idx)
	if err != nil {
		return Point{}, err
	}
	commanded, err := p.mgr.Commanded(idx)
	if err != nil {
		return Point{}, err
	}
	deadline, err := p.mgr.Deadline(idx)
	if err != nil {
		return Point{}, err
	}
	return Point{Name: name, State: state, Commanded: commanded, Failure: failure, Deadline: deadline}, nil
}

// Set drives point — a device name, or the literal "all" — toward
// state. Every control point whose name matches is driven individually
// and non-atomically; a failure partway leaves earlier points already
// commanded.
func (p *Points) Set(point string, state bool, pulse time.Duration, cause string) error {
	count := p.mgr.Count()

	if point == allPoint {
		for i := 0; i < count; i++ {
			if err := p.mgr.Set(i, state, pulse, cause); err != nil {
				return err
			}
		}
		return nil
	}

	matched := false
	for i := 0; i < count; i++ {
		name, err := p.mgr.Name(i)
		if err != nil {
			return err
		}
		if name != point {
			continue
		}
		matched = true
		if err := p.mgr.Set(i, state, pulse, cause); err != nil {
			return err
		}
	}
	if !matched {
		return ErrUnknownPoint
	}
	return nil
}
