package kvcache

import (
	"encoding/binary"
)

// MemKV is an in-memory KV implementation used by the stub executor
// backend (no CGO) and by tests. It stores one opaque "row" per committed
// token so Resize/Serialize/Load behave like a real per-layer buffer would,
// without depending on an actual neural executor.
type MemKV struct {
	rows [][]byte
}

// NewMemKV constructs an empty MemKV.
func NewMemKV() *MemKV { return &MemKV{} }

// Resize truncates the buffer to n rows. Growing past the current length
// is a caller error (growth only happens via prefill appending rows).
func (m *MemKV) Resize(n int) error {
	if n < 0 {
		n = 0
	}
	if n > len(m.rows) {
		n = len(m.rows)
	}
	m.rows = m.rows[:n]
	return nil
}

// AppendRow records one more committed token's opaque row data.
func (m *MemKV) AppendRow(row []byte) {
	m.rows = append(m.rows, row)
}

// Len returns the number of committed rows.
func (m *MemKV) Len() int { return len(m.rows) }

// Serialize packs the buffer into a length-prefixed byte stream.
func (m *MemKV) Serialize() ([]byte, error) {
	var out []byte
	hdr := make([]byte, 4)
	binary.LittleEndian.PutUint32(hdr, uint32(len(m.rows)))
	out = append(out, hdr...)
	for _, row := range m.rows {
		l := make([]byte, 4)
		binary.LittleEndian.PutUint32(l, uint32(len(row)))
		out = append(out, l...)
		out = append(out, row...)
	}
	return out, nil
}

// Load replaces the buffer's contents with a previously Serialize'd stream.
func (m *MemKV) Load(blob []byte) error {
	if len(blob) < 4 {
		m.rows = nil
		return nil
	}
	n := binary.LittleEndian.Uint32(blob[:4])
	blob = blob[4:]
	rows := make([][]byte, 0, n)
	for i := uint32(0); i < n; i++ {
		if len(blob) < 4 {
			break
		}
		l := binary.LittleEndian.Uint32(blob[:4])
		blob = blob[4:]
		if uint32(len(blob)) < l {
			break
		}
		rows = append(rows, append([]byte(nil), blob[:l]...))
		blob = blob[l:]
	}
	m.rows = rows
	return nil
}
