package layout

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("p%d", i+1)
	}
	return out
}

func TestLayoutRowCounts(t *testing.T) {
	cases := []struct {
		n     int
		sizes []int
	}{
		{1, []int{1}},
		{2, []int{2}},
		{3, []int{3}},
		{4, []int{1, 3}},
		{5, []int{2, 3}},
		{6, []int{3, 3}},
		{7, []int{1, 3, 3}},
		{8, []int{2, 3, 3}},
		{9, []int{3, 3, 3}},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("n=%d", tc.n), func(t *testing.T) {
			rows := Layout(ids(tc.n))
			require.Len(t, rows, len(tc.sizes))
			total := 0
			for i, r := range rows {
				assert.Equal(t, tc.sizes[i], r.Count)
				assert.Len(t, r.ParticipantIDs, r.Count)
				total += r.Count
			}
			assert.Equal(t, tc.n, total)
			assert.Zero(t, Remaining(ids(tc.n)))
		})
	}
}

func TestLayoutKeepsOrder(t *testing.T) {
	in := ids(8)
	var flat []string
	for _, r := range Layout(in) {
		flat = append(flat, r.ParticipantIDs...)
	}
	assert.Equal(t, in, flat)
}

func TestLayoutFourParticipants(t *testing.T) {
	rows := Layout([]string{"A", "B", "C", "D"})
	require.Len(t, rows, 2)

	assert.Equal(t, []string{"A"}, rows[0].ParticipantIDs)
	assert.InDelta(t, 100.0, rows[0].TileWidth(), 0.001)

	assert.Equal(t, []string{"B", "C", "D"}, rows[1].ParticipantIDs)
	assert.InDelta(t, 33.333, rows[1].TileWidth(), 0.001)

	assert.InDelta(t, 50.0, RowHeight(rows), 0.001)
}

func TestLayoutOverflow(t *testing.T) {
	in := ids(11)
	rows := Layout(in)
	require.Len(t, rows, 3)

	var flat []string
	for _, r := range rows {
		flat = append(flat, r.ParticipantIDs...)
	}
	require.Len(t, flat, MaxTiles)
	assert.Equal(t, in[:8], flat[:8])
	assert.Equal(t, RemainingTileID, flat[8])
	assert.Equal(t, 3, Remaining(in))
}

func TestLayoutEmpty(t *testing.T) {
	assert.Empty(t, Layout(nil))
	assert.Zero(t, RowHeight(nil))
	assert.Zero(t, Row{}.TileWidth())
}

func TestLayoutDoesNotAliasInput(t *testing.T) {
	in := ids(3)
	rows := Layout(in)
	rows[0].ParticipantIDs[0] = "changed"
	assert.Equal(t, "p1", in[0])
}
