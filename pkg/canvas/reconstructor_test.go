package canvas_test

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cwrk-planet/board-service/pkg/canvas"
	"github.com/cwrk-planet/board-service/pkg/drawing"
	"github.com/cwrk-planet/board-service/pkg/protocol"

	"github.com/stretchr/testify/require"
)

type recorder struct {
	ops []string
}

func (r *recorder) Dot(p drawing.Point, color string, width float64) {
	r.ops = append(r.ops, fmt.Sprintf("dot %v,%v %s %v", p.X, p.Y, color, width))
}

func (r *recorder) Segment(a, b drawing.Point, color string, _ float64) {
	r.ops = append(r.ops, fmt.Sprintf("seg %v,%v-%v,%v %s", a.X, a.Y, b.X, b.Y, color))
}

func (r *recorder) Path(points []drawing.Point, color string, _ float64) {
	r.ops = append(r.ops, fmt.Sprintf("path %d %s", len(points), color))
}

func (r *recorder) Clear() { r.ops = append(r.ops, "clear") }

func pt(x, y float64) drawing.Point { return drawing.Point{X: x, Y: y} }

func sd(color string, pts ...drawing.Point) drawing.StrokeData {
	return drawing.StrokeData{Points: pts, Color: color, Width: 4}
}

func TestReconstructor_SingleStroke(t *testing.T) {
	rec := &recorder{}
	rc := canvas.NewReconstructor(rec)

	rc.DrawStart("A", sd("red", pt(10, 20)))
	rc.DrawMove("A", sd("red", pt(10, 20), pt(15, 25)))
	rc.DrawMove("A", sd("red", pt(10, 20), pt(15, 25), pt(20, 30)))
	rc.DrawEnd("A")

	require.Equal(t, []string{
		"dot 10,20 red 4",
		"seg 10,20-15,25 red",
		"seg 15,25-20,30 red",
		"seg 15,25-20,30 red",
	}, rec.ops)

	hist := rc.History()
	require.Len(t, hist, 1)
	require.Equal(t, []drawing.Point{pt(10, 20), pt(15, 25), pt(20, 30)}, hist[0].Points)

	_, ok := rc.Active("A")
	require.False(t, ok)
}

func TestReconstructor_InterleavedAuthors(t *testing.T) {
	rc := canvas.NewReconstructor(&recorder{})

	rc.DrawStart("A", sd("red", pt(0, 0)))
	rc.DrawStart("B", sd("blue", pt(100, 100)))
	rc.DrawMove("A", sd("red", pt(1, 1)))
	rc.DrawMove("B", sd("blue", pt(101, 101)))
	rc.DrawMove("A", sd("red", pt(2, 2)))
	rc.DrawEnd("B")
	rc.DrawMove("A", sd("red", pt(3, 3)))
	rc.DrawEnd("A")

	hist := rc.History()
	require.Len(t, hist, 2)
	require.Equal(t, "blue", hist[0].Color)
	require.Equal(t, []drawing.Point{pt(100, 100), pt(101, 101)}, hist[0].Points)
	require.Equal(t, "red", hist[1].Color)
	require.Equal(t, []drawing.Point{pt(0, 0), pt(1, 1), pt(2, 2), pt(3, 3)}, hist[1].Points)
}

func TestReconstructor_MoveWithoutStart(t *testing.T) {
	rec := &recorder{}
	rc := canvas.NewReconstructor(rec)

	rc.DrawMove("ghost", sd("red", pt(1, 1)))
	rc.DrawEnd("ghost")

	require.Empty(t, rec.ops)
	require.Empty(t, rc.History())
}

func TestReconstructor_SinglePointEnd(t *testing.T) {
	rec := &recorder{}
	rc := canvas.NewReconstructor(rec)

	rc.DrawStart("A", sd("red", pt(5, 5)))
	rc.DrawEnd("A")

	require.Equal(t, []string{"dot 5,5 red 4", "dot 5,5 red 4"}, rec.ops)
	require.Len(t, rc.History(), 1)
}

func TestReconstructor_LoadSnapshotAndClear(t *testing.T) {
	rec := &recorder{}
	rc := canvas.NewReconstructor(rec)
	at := time.Now()

	log := []drawing.Command{
		drawing.NewStrokeCommand("A", sd("red", pt(0, 0), pt(1, 1)), at),
		drawing.NewClearCommand(at),
		drawing.NewStrokeCommand("B", sd("blue", pt(5, 5)), at),
		drawing.NewStrokeCommand("A", sd("green", pt(1, 1), pt(2, 2), pt(3, 3)), at),
	}

	rc.DrawStart("C", sd("black", pt(9, 9)))
	rec.ops = nil

	rc.LoadSnapshot(log)
	require.Equal(t, []string{"clear", "dot 5,5 blue 4", "path 3 green", "dot 9,9 black 4"}, rec.ops)
	require.Len(t, rc.History(), 2)

	// незавершённый штрих C пережил загрузку снапшота
	_, ok := rc.Active("C")
	require.True(t, ok)

	rc.ClearCanvas()
	require.Empty(t, rc.History())
	require.Empty(t, rc.ActiveAuthors())

	// draw-move после clear ничего не рисует
	rec.ops = nil
	rc.DrawMove("C", sd("black", pt(10, 10)))
	require.Empty(t, rec.ops)
}

// Штрих, пришедший и живьём, и в снимке, попадает в историю один раз.
func TestReconstructor_SnapshotOverlapsLiveStroke(t *testing.T) {
	rec := &recorder{}
	rc := canvas.NewReconstructor(rec)
	at := time.Now()

	rc.DrawStart("A", sd("red", pt(0, 0)))
	rc.DrawMove("A", sd("red", pt(1, 1)))

	rc.LoadSnapshot([]drawing.Command{
		drawing.NewStrokeCommand("A", sd("green", pt(7, 7)), at),
		drawing.NewStrokeCommand("B", sd("blue", pt(5, 5)), at),
		drawing.NewStrokeCommand("A", sd("red", pt(0, 0), pt(1, 1), pt(2, 2)), at),
	})
	require.Len(t, rc.History(), 2)

	rc.DrawMove("A", sd("red", pt(2, 2)))
	rc.DrawEnd("A")

	hist := rc.History()
	require.Len(t, hist, 3)
	require.Equal(t, "green", hist[0].Color)
	require.Equal(t, "blue", hist[1].Color)
	require.Equal(t, []drawing.Point{pt(0, 0), pt(1, 1), pt(2, 2)}, hist[2].Points)

	// новый штрих того же автора другим цветом не дубль
	rc.DrawStart("B", sd("black", pt(5, 5)))
	rc.LoadSnapshot([]drawing.Command{drawing.NewStrokeCommand("B", sd("blue", pt(5, 5)), at)})
	require.Len(t, rc.History(), 1)
	_, ok := rc.Active("B")
	require.True(t, ok)
}

// Реплей лога и живой поток дают одну и ту же историю.
func TestReconstructor_SnapshotMatchesLive(t *testing.T) {
	live := canvas.NewReconstructor(&recorder{})
	live.DrawStart("A", sd("red", pt(0, 0)))
	live.DrawMove("A", sd("red", pt(1, 1)))
	live.DrawEnd("A")
	live.DrawStart("B", sd("blue", pt(7, 7)))
	live.DrawEnd("B")

	at := time.Now()
	var log []drawing.Command
	for i, s := range live.History() {
		log = append(log, drawing.NewStrokeCommand(fmt.Sprint(i), s, at))
	}
	raw, err := json.Marshal(log)
	require.NoError(t, err)

	replayed := canvas.NewReconstructor(&recorder{})
	require.NoError(t, replayed.Apply(protocol.Envelope{Type: protocol.TypeLoadDrawingData, Payload: raw}))
	require.Equal(t, live.History(), replayed.History())
}

func TestReconstructor_Apply(t *testing.T) {
	rc := canvas.NewReconstructor(&recorder{})

	envelope := func(typ string, payload any) protocol.Envelope {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		return protocol.Envelope{Type: typ, Payload: b}
	}
	red := sd("red", pt(1, 2))

	require.NoError(t, rc.Apply(envelope(protocol.TypeDrawStart, protocol.Draw{RoomID: "R", UserID: "A", DrawingCommand: &red})))
	moved := sd("red", pt(1, 2), pt(3, 4))
	require.NoError(t, rc.Apply(envelope(protocol.TypeDrawMove, protocol.Draw{RoomID: "R", UserID: "A", DrawingCommand: &moved})))

	got, ok := rc.Active("A")
	require.True(t, ok)
	require.Equal(t, []drawing.Point{pt(1, 2), pt(3, 4)}, got.Points)

	require.NoError(t, rc.Apply(envelope(protocol.TypeDrawEnd, protocol.Draw{RoomID: "R", UserID: "A"})))
	require.Len(t, rc.History(), 1)

	require.NoError(t, rc.Apply(envelope(protocol.TypeUserCountUpdate, protocol.UserCount{RoomID: "R", Count: 3})))
	require.NoError(t, rc.Apply(protocol.Envelope{Type: protocol.TypeClearCanvas}))
	require.Empty(t, rc.History())

	require.Error(t, rc.Apply(protocol.Envelope{Type: protocol.TypeLoadDrawingData, Payload: []byte(`{`)}))
}

func TestCursorThrottle(t *testing.T) {
	var (
		mu   sync.Mutex
		sent [][2]float64
	)
	th := canvas.NewCursorThrottle(20*time.Millisecond, func(x, y float64) {
		mu.Lock()
		sent = append(sent, [2]float64{x, y})
		mu.Unlock()
	})
	defer th.Stop()

	for i := 0; i < 10; i++ {
		th.Move(float64(i), float64(i))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(sent) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	require.Equal(t, [2]float64{9, 9}, sent[0])
	mu.Unlock()

	th.Move(42, 43)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(sent) == 2 && sent[1] == [2]float64{42, 43}
	}, time.Second, 5*time.Millisecond)

	th.Stop()
	th.Move(1, 1)
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	require.Len(t, sent, 2)
	mu.Unlock()
}
