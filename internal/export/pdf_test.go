package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/cwrk-planet/board-service/internal/domain"

	"github.com/stretchr/testify/require"
)

func TestParseColor(t *testing.T) {
	cases := map[string][3]int{
		"#ff0000": {255, 0, 0},
		"#0F0":    {0, 255, 0},
		"Blue":    {0, 0, 255},
		"#12345":  {0, 0, 0},
		"tomato?": {0, 0, 0},
		"#zzzzzz": {0, 0, 0},
	}
	for in, want := range cases {
		r, g, b := ParseColor(in)
		require.Equal(t, want, [3]int{r, g, b}, in)
	}
}

func TestRenderRoom(t *testing.T) {
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	room := &domain.Room{
		ID: "AB12CD34",
		DrawingData: []domain.Command{
			domain.NewStrokeCommand("A", domain.StrokeData{
				Points: []domain.Point{{X: 10, Y: 20}, {X: 15, Y: 25}, {X: 2000, Y: 1500}},
				Color:  "#ff0000",
				Width:  3,
			}, at),
			domain.NewStrokeCommand("B", domain.StrokeData{
				Points: []domain.Point{{X: 50, Y: 50}},
				Color:  "blue",
				Width:  8,
			}, at),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, RenderRoom(&buf, room, at))
	require.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

func TestRenderRoom_Empty(t *testing.T) {
	var buf bytes.Buffer
	room := &domain.Room{ID: "EMPTY", DrawingData: []domain.Command{domain.NewClearCommand(time.Now())}}
	require.NoError(t, RenderRoom(&buf, room, time.Now()))
	require.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

func TestRenderer_ScaleAndClear(t *testing.T) {
	r := newPDFRenderer("t", box{minX: 0, minY: 0, maxX: 2770, maxY: 1000})
	require.InDelta(t, 0.1, r.scale, 1e-3)

	x, y := r.xy(domain.Point{X: 100, Y: 50})
	require.InDelta(t, pageMargin+10, x, 1e-3)
	require.InDelta(t, pageMargin+headerH+5, y, 1e-3)

	// чистый лист не плодит страниц
	r.Clear()
	require.Equal(t, 1, r.Pages())

	r.Dot(domain.Point{X: 1, Y: 1}, "black", 2)
	r.Clear()
	require.Equal(t, 2, r.Pages())
}
