package msgobj_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/notnil/canobj/msgobj"
)

func TestHandleInterrupt_StatusNeverCounts(t *testing.T) {
	c, tbl := newManual(t)
	st := tbl.State()

	c.RaiseStatus(msgobj.StatusBusOff)
	d := tbl.HandleInterrupt()
	require.Equal(t, msgobj.DispatchError, d.Outcome)
	require.Equal(t, msgobj.StatusBusOff, d.Status&msgobj.StatusBusOff)
	require.False(t, c.Asserted(), "reading the status acknowledges it")

	snap := st.Snapshot()
	for slot := 1; slot <= tbl.NumObjects(); slot++ {
		require.Zero(t, snap.Counts[slot])
		require.False(t, snap.Pending[slot])
	}
	require.True(t, snap.ErrorFlag)
	require.EqualValues(t, 1, snap.StatusInterrupts)
	require.EqualValues(t, 1, snap.Interrupts)

	var cerr *msgobj.ControllerError
	require.ErrorAs(t, st.Err(), &cerr)
	require.ErrorIs(t, st.Err(), msgobj.ErrController)
	require.Equal(t, msgobj.StatusBusOff, cerr.Status&msgobj.StatusBusOff)
}

func TestHandleInterrupt_CompletionClearsErrorFlag(t *testing.T) {
	c, tbl := newManual(t)
	ctx := context.Background()

	c.SetAck(false)
	require.NoError(t, tbl.LoadTransmit(1, msgobj.MustMessage(0x1001, []byte{0, 0, 0, 0}), true))
	require.Equal(t, 0, c.Transmit(ctx))

	d := tbl.HandleInterrupt()
	require.Equal(t, msgobj.DispatchError, d.Outcome)
	require.Equal(t, msgobj.LECAck, d.Status.LEC())
	require.True(t, tbl.State().ErrorFlag())
	require.Zero(t, tbl.State().Count(1))

	// The peer comes back; the retried frame completes.
	c.SetAck(true)
	require.Equal(t, 1, c.Transmit(ctx))
	d = tbl.HandleInterrupt()
	require.Equal(t, msgobj.DispatchSlot, d.Outcome)
	require.False(t, tbl.State().ErrorFlag())
	require.NoError(t, tbl.State().Err())
	require.Equal(t, msgobj.LECAck, tbl.State().LastStatus().LEC(), "last status is kept")
}

func TestHandleInterrupt_StatusFirst(t *testing.T) {
	c, tbl := newManual(t)
	require.NoError(t, tbl.LoadReceiveFilter(2, msgobj.ExactFilter(0x2001)))
	require.True(t, c.Inject(msgobj.MustMessage(0x2001, []byte{1}).Frame()))
	c.RaiseStatus(msgobj.StatusEWarn)

	ds := drain(t, tbl)
	require.Len(t, ds, 2)
	require.Equal(t, msgobj.DispatchError, ds[0].Outcome)
	require.Equal(t, msgobj.DispatchSlot, ds[1].Outcome)
	require.Equal(t, 2, ds[1].Slot)
	require.False(t, tbl.State().ErrorFlag())
}

func TestHandleInterrupt_Spurious(t *testing.T) {
	f := &fakeController{n: 4, causes: []msgobj.Cause{0x4000, 5, msgobj.CauseNone, 2}}
	tbl, err := msgobj.NewTable(f, nil)
	require.NoError(t, err)

	require.Equal(t, msgobj.DispatchIdle, tbl.HandleInterrupt().Outcome) // reserved
	require.Equal(t, msgobj.DispatchIdle, tbl.HandleInterrupt().Outcome) // beyond NumObjects
	require.Equal(t, msgobj.DispatchIdle, tbl.HandleInterrupt().Outcome) // nothing pending
	require.Empty(t, f.cleared)

	d := tbl.HandleInterrupt()
	require.Equal(t, msgobj.DispatchSlot, d.Outcome)
	require.Equal(t, []int{2}, f.cleared)

	snap := tbl.State().Snapshot()
	require.EqualValues(t, 3, snap.Spurious)
	require.EqualValues(t, 4, snap.Interrupts)
	require.EqualValues(t, 1, snap.Counts[2])
}

// A handler that does not clear the object interrupt leaves the cause in
// place, so the next invocation sees the same slot again.
func TestHandleInterrupt_UnclearedSourceReenters(t *testing.T) {
	f := &fakeController{n: 4, causes: []msgobj.Cause{3, 3, 3}}
	tbl, err := msgobj.NewTable(f, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		f.handler()
	}
	require.EqualValues(t, 3, tbl.State().Count(3))
	require.Equal(t, []int{3, 3, 3}, f.cleared)
}

func TestControllerState_Reset(t *testing.T) {
	c, tbl := newManual(t)
	require.NoError(t, tbl.LoadTransmit(1, msgobj.MustMessage(0x1, nil), true))
	c.Transmit(context.Background())
	drain(t, tbl)
	c.RaiseStatus(msgobj.StatusEPass)
	drain(t, tbl)

	st := tbl.State()
	require.EqualValues(t, 1, st.Count(1))
	require.True(t, st.ErrorFlag())
	st.Reset()
	require.Zero(t, st.Count(1))
	require.False(t, st.Pending(1))
	require.False(t, st.ErrorFlag())
	require.Zero(t, st.Snapshot().Interrupts)
	require.Zero(t, st.Count(0))
	require.Zero(t, st.Count(99))
}

func TestControllerState_ResetCountersKeepsPending(t *testing.T) {
	c, tbl := newManual(t)
	msg := msgobj.MustMessage(0x1, nil)
	require.NoError(t, tbl.LoadTransmit(1, msg, true))
	c.Transmit(context.Background())
	drain(t, tbl)
	c.RaiseStatus(msgobj.StatusEWarn)
	drain(t, tbl)

	st := tbl.State()
	st.ResetCounters()
	require.Zero(t, st.Count(1))
	require.False(t, st.ErrorFlag())
	require.Zero(t, st.Errors())
	require.Zero(t, st.Snapshot().Interrupts)
	require.True(t, st.Pending(1))

	// The completion recorded before the reset still frees the slot.
	require.NoError(t, tbl.LoadTransmit(1, msg, true))
}

func TestControllerState_ErrorsAccumulate(t *testing.T) {
	f := &fakeController{n: 4}
	tbl, err := msgobj.NewTable(f, nil)
	require.NoError(t, err)
	st := tbl.State()

	f.causes = []msgobj.Cause{msgobj.CauseStatus}
	f.status = msgobj.StatusBusOff.WithLEC(msgobj.LECBit0)
	tbl.HandleInterrupt()
	f.causes = []msgobj.Cause{msgobj.CauseStatus}
	f.status = msgobj.StatusTxOK
	tbl.HandleInterrupt()

	require.Equal(t, msgobj.StatusTxOK, st.LastStatus(), "last status is overwritten")
	require.Equal(t, msgobj.LECBit0, st.Errors().LEC())
	require.Equal(t, msgobj.StatusBusOff, st.Errors()&msgobj.StatusBusOff)
	require.Equal(t, msgobj.StatusBusOff, st.Snapshot().Errors&msgobj.StatusBusOff)

	var cerr *msgobj.ControllerError
	require.ErrorAs(t, st.Err(), &cerr)
	require.Equal(t, msgobj.StatusBusOff, cerr.Status&msgobj.StatusBusOff)

	require.Equal(t, msgobj.StatusBusOff, st.TakeErrors()&msgobj.StatusBusOff)
	require.Zero(t, st.Errors())
}
