package inputs

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseShuntTasksBasic(t *testing.T) {
	csv := "node;r1;x1;u1;r2;x2;u2\n" +
		"101;0.5;1.2;10.5;;;0\n" +
		"102;1,0;2,0;20,0;0,1;0,2;5,0\n"

	tasks, err := ParseShuntTasks(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	require.Equal(t, ShuntTask{Bus: 101, R1: 0.5, X1: 1.2, U1: 10.5, R2: Unspecified, X2: Unspecified, U2: Unspecified}, tasks[0])
	require.Equal(t, ShuntTask{Bus: 102, R1: 1.0, X1: 2.0, U1: 20.0, R2: 0.1, X2: 0.2, U2: 5.0}, tasks[1])
}

func TestParseShuntTasksBadHeader(t *testing.T) {
	_, err := ParseShuntTasks(strings.NewReader("bus;r1;x1\n1;1;1\n"))
	require.Error(t, err)
}

func TestParseShuntTasksEmptyFile(t *testing.T) {
	_, err := ParseShuntTasks(strings.NewReader(""))
	require.Error(t, err)
}

func TestParseShuntTasksWrongFieldCount(t *testing.T) {
	csv := "node;r1;x1;u1;r2;x2;u2\n101;0.5;1.2\n"
	_, err := ParseShuntTasks(strings.NewReader(csv))
	require.Error(t, err)
}

func TestActiveVariantsPreservesOrderAndDrops(t *testing.T) {
	vs := []Variant{
		{ID: -1, Name: "Normal", Ordinal: 0},
		{ID: 1, Name: "A", Ordinal: 1, Disabled: true},
		{ID: 2, Name: "B", Ordinal: 2},
	}
	active := ActiveVariants(vs)
	require.Len(t, active, 2)
	require.Equal(t, "Normal", active[0].Name)
	require.Equal(t, "B", active[1].Name)
	require.True(t, active[0].IsNormal())
}

func TestGroupPlotVariablesByOrdinal(t *testing.T) {
	vars := []PlotVariable{
		{ID: 1, Ordinal: 2, Name: "U"},
		{ID: 2, Ordinal: 1, Name: "P"},
		{ID: 3, Ordinal: 2, Name: "Q"},
	}
	groups := GroupPlotVariablesByOrdinal(vars)
	require.Len(t, groups, 2)
	require.Equal(t, 2, groups[0].Ordinal)
	require.Len(t, groups[0].Variables, 2)
	require.Equal(t, 1, groups[1].Ordinal)
	require.Len(t, groups[1].Variables, 1)
}
