// Package layout packs an ordered participant list into grid rows.
// Everything here is a pure function of its input.
package layout

const (
	// MaxTiles is the number of tiles shown at once.
	MaxTiles = 9
	// RemainingTileID marks the synthetic tile standing in for hidden participants.
	RemainingTileID = "remaining"
)

// Row is one horizontal band of equally wide tiles.
type Row struct {
	Count          int      `json:"count"`
	ParticipantIDs []string `json:"participantIds"`
}

// TileWidth is the width of every tile in the row, in percent.
func (r Row) TileWidth() float64 {
	if r.Count == 0 {
		return 0
	}
	return 100 / float64(r.Count)
}

// Layout maps ordered participant ids to rows. When there are more than
// MaxTiles participants the last visible slot becomes RemainingTileID.
func Layout(ids []string) []Row {
	tiles := visibleTiles(ids)
	sizes := rowSizes(len(tiles))
	rows := make([]Row, 0, len(sizes))
	off := 0
	for _, n := range sizes {
		rowIDs := make([]string, n)
		copy(rowIDs, tiles[off:off+n])
		rows = append(rows, Row{Count: n, ParticipantIDs: rowIDs})
		off += n
	}
	return rows
}

// Remaining returns how many participants the remainder tile represents, 0 if none.
func Remaining(ids []string) int {
	if len(ids) <= MaxTiles {
		return 0
	}
	return len(ids) - (MaxTiles - 1)
}

// RowHeight is the height shared by every row, in percent.
func RowHeight(rows []Row) float64 {
	if len(rows) == 0 {
		return 0
	}
	return 100 / float64(len(rows))
}

func visibleTiles(ids []string) []string {
	if len(ids) <= MaxTiles {
		return ids
	}
	out := make([]string, 0, MaxTiles)
	out = append(out, ids[:MaxTiles-1]...)
	return append(out, RemainingTileID)
}

// rowSizes returns tile counts per row for n visible tiles (n <= MaxTiles).
// The first row absorbs the unevenness so the bottom rows stay full.
func rowSizes(n int) []int {
	switch {
	case n <= 0:
		return nil
	case n <= 3:
		return []int{n}
	case n <= 6:
		first := n - 3
		return []int{first, 3}
	default:
		first := n - 6
		return []int{first, 3, 3}
	}
}
