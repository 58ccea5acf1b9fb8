package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriter_StatusAndVariants(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Status("🔍", "searching")
	w.Success("indexed")
	w.Warning("degraded")
	w.Error("failed")
	w.Statusf("", "%d results", 7)

	out := buf.String()
	assert.Contains(t, out, "🔍 searching")
	assert.Contains(t, out, "✅ indexed")
	assert.Contains(t, out, "degraded")
	assert.Contains(t, out, "❌ failed")
	assert.Contains(t, out, "   7 results")
}

func TestWriter_Newline(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Newline()
	assert.Equal(t, "\n", buf.String())
}

func TestWriter_Progress(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Progress(50, 100, "embedding")
	out := buf.String()
	assert.Contains(t, out, "50%")
	assert.Contains(t, out, "embedding")

	// Zero total is a no-op, not a panic
	buf.Reset()
	w.Progress(0, 0, "nothing")
	assert.Empty(t, buf.String())
}

func TestRenderProgressBar(t *testing.T) {
	tests := []struct {
		current, total, width, wantFull int
	}{
		{0, 100, 10, 0},
		{50, 100, 10, 5},
		{100, 100, 10, 10},
		{25, 100, 20, 5},
	}
	for _, tt := range tests {
		bar := renderProgressBar(tt.current, tt.total, tt.width)
		assert.Equal(t, tt.wantFull, strings.Count(bar, "█"))
		assert.Equal(t, tt.width, len([]rune(bar)))
	}
}
