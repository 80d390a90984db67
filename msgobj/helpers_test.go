package msgobj_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/notnil/canobj"
	"github.com/notnil/canobj/msgobj"
	"github.com/notnil/canobj/sim"
)

type recordSink struct {
	mu      sync.Mutex
	records []slog.Record
}

func (s *recordSink) Enabled(context.Context, slog.Level) bool { return true }
func (s *recordSink) Handle(_ context.Context, r slog.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r.Clone())
	return nil
}
func (s *recordSink) WithAttrs([]slog.Attr) slog.Handler { return s }
func (s *recordSink) WithGroup(string) slog.Handler      { return s }

func (s *recordSink) count(level slog.Level, msg string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.records {
		if r.Level == level && r.Message == msg {
			n++
		}
	}
	return n
}

func canobjLoopback(t *testing.T) *canobj.LoopbackBus {
	t.Helper()
	lb := canobj.NewLoopbackBus()
	t.Cleanup(func() { _ = lb.Close() })
	return lb
}

// newManual returns a table on a bus-less simulated controller whose
// transmissions and interrupts are driven by the test.
func newManual(t *testing.T) (*sim.Controller, *msgobj.Table) {
	t.Helper()
	c := sim.New(nil, sim.Options{Manual: true})
	tbl, err := msgobj.NewTable(c, nil)
	require.NoError(t, err)
	return c, tbl
}

// drain runs the interrupt handler until the line drops.
func drain(t *testing.T, tbl *msgobj.Table) []msgobj.Dispatch {
	t.Helper()
	var out []msgobj.Dispatch
	for i := 0; i < 100; i++ {
		d := tbl.HandleInterrupt()
		if d.Outcome == msgobj.DispatchIdle {
			return out
		}
		out = append(out, d)
	}
	t.Fatalf("interrupt line never dropped")
	return nil
}

// fakeController scripts the cause register.
type fakeController struct {
	n       int
	causes  []msgobj.Cause
	status  msgobj.Status
	cleared []int
	handler func()
}

func (f *fakeController) NumObjects() int { return f.n }
func (f *fakeController) SetObject(int, *msgobj.Object, msgobj.ObjectType) error {
	return nil
}
func (f *fakeController) GetObject(int, *msgobj.Object, bool) error { return nil }
func (f *fakeController) ClearObject(int) error                    { return nil }
func (f *fakeController) TxRequests() uint32                       { return 0 }
func (f *fakeController) NewData() uint32                          { return 0 }
func (f *fakeController) InterruptCause() msgobj.Cause {
	if len(f.causes) == 0 {
		return msgobj.CauseNone
	}
	c := f.causes[0]
	f.causes = f.causes[1:]
	return c
}
func (f *fakeController) Status() msgobj.Status        { return f.status }
func (f *fakeController) ClearInterrupt(slot int)      { f.cleared = append(f.cleared, slot) }
func (f *fakeController) SetInterruptHandler(h func()) { f.handler = h }
