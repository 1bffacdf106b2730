package simfacade

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelectorString(t *testing.T) {
	require.Equal(t, "#12", RowIndex(12).String())
	require.Equal(t, "ip=12 & iq=34", Predicate("ip=12 & iq=34").String())
}

func TestOpErrorUnwrap(t *testing.T) {
	base := require.AnError
	err := &OpError{Op: "GET_F64", Path: "node.unom[#1]", Err: base}
	require.ErrorIs(t, err, base)
	require.Contains(t, err.Error(), "node.unom[#1]")
}

func TestFakeRoundTripsCells(t *testing.T) {
	f := NewFake()
	sel := RowIndex(3)
	require.NoError(t, f.SetVal(nil, "node", "unom", sel, 110.0))
	v, err := f.GetValF64(nil, "node", "unom", sel)
	require.NoError(t, err)
	require.Equal(t, 110.0, v)
	require.Contains(t, f.Calls(), "SetVal:node.unom[#3]")
}

func TestFakeSubscribeUnsubscribe(t *testing.T) {
	f := NewFake()
	ch, unsub := f.Subscribe()
	f.Emit(LogEvent{Code: 1, Description: "Uкз=10.5 кВ"})
	ev := <-ch
	require.Equal(t, "Uкз=10.5 кВ", ev.Description)
	unsub()
	_, ok := <-ch
	require.False(t, ok)
}
