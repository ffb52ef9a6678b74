package uci

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeGoRoundTrip(t *testing.T) {
	tests := []struct {
		limits Limits
		want   string
	}{
		{
			limits: Limits{Infinite: true},
			want:   "go infinite",
		},
		{
			limits: Limits{},
			want:   "go infinite",
		},
		{
			limits: Limits{Depth: 30},
			want:   "go depth 30",
		},
		{
			limits: Limits{MoveTime: 5000},
			want:   "go movetime 5000",
		},
		{
			limits: Limits{Nodes: 1000000},
			want:   "go nodes 1000000",
		},
		{
			limits: Limits{Depth: 20, MoveTime: 3000},
			want:   "go depth 20 movetime 3000",
		},
	}

	for testIndex, test := range tests {
		testName := fmt.Sprintf("Go-%d", testIndex+1)
		t.Run(testName, func(t *testing.T) {
			encoded := EncodeGo(test.limits)
			assert.Equal(t, test.want, encoded)

			decoded, err := ParseGo(encoded)
			require.NoError(t, err)

			// An unbounded search encodes as infinite, so it decodes
			// with the flag set.
			expected := test.limits
			if expected.Unbounded() {
				expected.Infinite = true
			}
			assert.Equal(t, expected, decoded)
		})
	}
}

func TestParseGoErrors(t *testing.T) {
	lines := []string{
		"",
		"stop",
		"go depth",
		"go depth x",
		"go movetime",
		"go nodes many",
		"go sideways",
	}

	for _, line := range lines {
		_, err := ParseGo(line)
		assert.Error(t, err, line)
	}
}

func TestEncodePosition(t *testing.T) {
	assert.Equal(t, "position startpos", EncodePosition(StartPos, nil))
	assert.Equal(t, "position startpos", EncodePosition("", nil))

	assert.Equal(t,
		"position startpos moves e2e4 e7e5",
		EncodePosition(StartPos, []string{"e2e4", "e7e5"}),
	)

	fen := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"
	assert.Equal(t, "position fen "+fen, EncodePosition(fen, nil))
}

func TestEncodeSetOption(t *testing.T) {
	assert.Equal(t, "setoption name Hash value 512", EncodeSetOption("Hash", "512"))
	assert.Equal(t, "setoption name Clear Hash", EncodeSetOption("Clear Hash", ""))
}
