package preemptcheck

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEntryArmDisarm(t *testing.T) {
	var e Entry
	armed, _ := e.Snapshot()
	require.False(t, armed)

	e.Arm(100)
	armed, ts := e.Snapshot()
	require.True(t, armed)
	require.Equal(t, int64(100), ts)

	e.Disarm()
	armed, _ = e.Snapshot()
	require.False(t, armed)
}

func TestNewTableAllDisarmed(t *testing.T) {
	tbl := NewTable(3)
	require.Len(t, tbl, 3)
	for _, e := range tbl {
		armed, _ := e.Snapshot()
		require.False(t, armed)
	}
}
