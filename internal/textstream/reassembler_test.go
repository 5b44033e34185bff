package textstream

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReassemblerSplitsTwoByteRuneAcrossPushes(t *testing.T) {
	var r Reassembler
	require.Equal(t, "", r.Push([]byte{0xC2}))
	require.Equal(t, "°", r.Push([]byte{0xB0}))
}

func TestReassemblerPassesThroughCompleteAsciiImmediately(t *testing.T) {
	var r Reassembler
	require.Equal(t, "hello", r.Push([]byte("hello")))
}

func TestReassemblerHandlesThreeByteRuneSplitByteByByte(t *testing.T) {
	var r Reassembler
	// "€" is 0xE2 0x82 0xAC.
	require.Equal(t, "", r.Push([]byte{0xE2}))
	require.Equal(t, "", r.Push([]byte{0x82}))
	require.Equal(t, "€", r.Push([]byte{0xAC}))
}

func TestReassemblerConcatenationEqualsWholeString(t *testing.T) {
	var r Reassembler
	want := "a°€b"
	raw := []byte(want)
	got := ""
	for _, b := range raw {
		got += r.Push([]byte{b})
	}
	require.Equal(t, want, got)
}

func TestReassemblerFlushesGenuinelyInvalidBytesEventually(t *testing.T) {
	var r Reassembler
	// 0xFF is never a valid UTF-8 lead byte; once enough bytes pile up
	// without completing a rune, the reassembler must not stall forever.
	out := r.Push([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF})
	require.NotEmpty(t, out)
}

func TestReassemblerResetDropsPendingBytes(t *testing.T) {
	var r Reassembler
	r.Push([]byte{0xC2})
	r.Reset()
	require.Equal(t, "a", r.Push([]byte("a")))
}
