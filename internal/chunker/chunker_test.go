package chunker

import (
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitWindows(t *testing.T) {
	text := "abcdefghijklmnopqrstuvwxyz"
	chunks, err := Split(text, 10, 2)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, "abcdefghij", chunks[0].Text)
	assert.Equal(t, "ijklmnopqr", chunks[1].Text)
	assert.Equal(t, "qrstuvwxyz", chunks[2].Text)
	assert.Equal(t, 0, chunks[0].Overlap)
	assert.Equal(t, 2, chunks[1].Overlap)
	assert.Equal(t, [2]int{16, 26}, [2]int{chunks[2].Start, chunks[2].End})
}

func TestSplitCoversTextWithExactOverlap(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	alphabet := []rune("abcdeé漢 \n")
	for i := 0; i < 200; i++ {
		n := rng.Intn(300)
		rs := make([]rune, n)
		for j := range rs {
			rs[j] = alphabet[rng.Intn(len(alphabet))]
		}
		text := string(rs)
		size := 1 + rng.Intn(40)
		overlap := rng.Intn(size)

		chunks, err := Split(text, size, overlap)
		require.NoError(t, err)
		if n == 0 {
			assert.Empty(t, chunks)
			continue
		}

		assert.Equal(t, 0, chunks[0].Start)
		assert.Equal(t, n, chunks[len(chunks)-1].End)
		for k, c := range chunks {
			assert.Equal(t, k, c.Index)
			assert.Equal(t, c.End-c.Start, utf8.RuneCountInString(c.Text))
			if k < len(chunks)-1 {
				assert.Equal(t, size, c.End-c.Start)
			}
			if k > 0 {
				prev := chunks[k-1]
				assert.Equal(t, overlap, prev.End-c.Start)
			}
		}
		assert.Equal(t, text, Merge(chunks), "size=%d overlap=%d", size, overlap)
	}
}

func TestSplitShortText(t *testing.T) {
	chunks, err := Split("short", DefaultSize, DefaultOverlap)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "short", chunks[0].Text)
}

func TestSplitInvalidConfig(t *testing.T) {
	for _, c := range [][2]int{{10, 10}, {10, 12}, {0, 0}, {-1, 0}, {10, -1}} {
		_, err := Split("text", c[0], c[1])
		assert.ErrorIs(t, err, ErrInvalidConfig, "size=%d overlap=%d", c[0], c[1])
	}
}

func editAll(chunks []Chunk, fn func(string) string) []Chunk {
	out := make([]Chunk, len(chunks))
	for i, c := range chunks {
		c.Text = fn(c.Text)
		out[i] = c
	}
	return out
}

func TestMergeOrdersByIndexAndPrefersEditedOverlap(t *testing.T) {
	chunks, err := Split("abcdefghijklmnopqrstuvwxyz", 10, 2)
	require.NoError(t, err)
	chunks[0].Text = strings.ToUpper(chunks[0].Text)
	chunks[2].Text = strings.ToUpper(chunks[2].Text)

	shuffled := []Chunk{chunks[2], chunks[0], chunks[1]}
	// "ij" was edited only by chunk 0 and "qr" only by chunk 2.
	assert.Equal(t, "ABCDEFGHIJklmnopQRSTUVWXYZ", Merge(shuffled))
}

func TestMergeLengthChangingEditInOverlap(t *testing.T) {
	chunks, err := Split("xxxxxxACMEyyyyyyzzzz", 10, 4)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	require.Equal(t, "ACMEyyyyyy", chunks[1].Text)

	rename := func(s string) string { return strings.ReplaceAll(s, "ACME", "GLOBEX INC") }
	assert.Equal(t, "xxxxxxGLOBEX INCyyyyyyzzzz", Merge(editAll(chunks, rename)))

	// Only the later chunk applied the edit.
	chunks[1].Text = rename(chunks[1].Text)
	assert.Equal(t, "xxxxxxGLOBEX INCyyyyyyzzzz", Merge(chunks))
}

func TestMergeEditsOnBothSidesOfBoundary(t *testing.T) {
	text := "ab" + "ACME" + "cdefghijklmnopqrstuvwxyz" + "012" + "ACME" + "zzz" + strings.Repeat("y", 30)
	chunks, err := Split(text, 40, 10)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	rename := func(s string) string { return strings.ReplaceAll(s, "ACME", "GLOBEX INC") }
	assert.Equal(t, rename(text), Merge(editAll(chunks, rename)))

	shrink := func(s string) string { return strings.ReplaceAll(s, "ACME", "AC") }
	assert.Equal(t, shrink(text), Merge(editAll(chunks, shrink)))
}

func TestMergeToleratesEmptiedChunk(t *testing.T) {
	chunks, err := Split("abcdefghijklmnop", 10, 2)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	chunks[1].Text = ""
	assert.Equal(t, "abcdefgh", Merge(chunks))
	assert.Equal(t, "", Merge(nil))
}

func TestMergeRoundTripLargeText(t *testing.T) {
	text := strings.Repeat("The Supplier shall deliver the Goods. ", 2000)
	chunks, err := Split(text, DefaultSize, DefaultOverlap)
	require.NoError(t, err)
	assert.Greater(t, len(chunks), 1)
	assert.Equal(t, text, Merge(chunks))
}
