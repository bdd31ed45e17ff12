package planet

import "time"

// Emitter is the XML layer the planet writer drives. *xmlout.Writer
// implements it.
type Emitter interface {
	Begin(name string) error
	End() error
	AttrBool(name string, v bool) error
	AttrInt32(name string, v int32) error
	AttrInt64(name string, v int64) error
	AttrFloat(name string, v float64) error
	AttrTime(name string, t time.Time) error
	AttrString(name, v string) error
	Text(v string) error
	Finish() error
	Abort() error
}

// stickyEmitter remembers the first failure and turns every later call into
// a no-op, so element code reads top to bottom and the caller checks err once.
type stickyEmitter struct {
	out Emitter
	err error
}

func (e *stickyEmitter) begin(name string) {
	if e.err == nil {
		e.err = e.out.Begin(name)
	}
}

func (e *stickyEmitter) end() {
	if e.err == nil {
		e.err = e.out.End()
	}
}

func (e *stickyEmitter) boolean(name string, v bool) {
	if e.err == nil {
		e.err = e.out.AttrBool(name, v)
	}
}

func (e *stickyEmitter) int32(name string, v int32) {
	if e.err == nil {
		e.err = e.out.AttrInt32(name, v)
	}
}

func (e *stickyEmitter) int64(name string, v int64) {
	if e.err == nil {
		e.err = e.out.AttrInt64(name, v)
	}
}

func (e *stickyEmitter) float(name string, v float64) {
	if e.err == nil {
		e.err = e.out.AttrFloat(name, v)
	}
}

// time omits the attribute entirely for the zero time
func (e *stickyEmitter) time(name string, t time.Time) {
	if e.err == nil && !t.IsZero() {
		e.err = e.out.AttrTime(name, t)
	}
}

func (e *stickyEmitter) str(name, v string) {
	if e.err == nil {
		e.err = e.out.AttrString(name, v)
	}
}

func (e *stickyEmitter) text(v string) {
	if e.err == nil {
		e.err = e.out.Text(v)
	}
}
