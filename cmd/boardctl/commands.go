package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cwrk-planet/board-service/internal/discovery"
	"github.com/cwrk-planet/board-service/internal/domain"
	"github.com/cwrk-planet/board-service/pkg/boardclient"
	"github.com/cwrk-planet/board-service/pkg/canvas"
	"github.com/cwrk-planet/board-service/pkg/drawing"
	"github.com/cwrk-planet/board-service/pkg/protocol"

	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

type cli struct {
	cfg    Config
	client *boardclient.Client
	out    io.Writer
}

func newCLI(cfg Config, out io.Writer) (*cli, error) {
	client, err := boardclient.New(cfg.Server)
	if err != nil {
		return nil, err
	}
	if cfg.UserID == "" {
		cfg.UserID = "cli-" + uuid.NewString()[:8]
	}
	if cfg.UserName == "" {
		cfg.UserName = cfg.UserID
	}
	return &cli{cfg: cfg, client: client, out: out}, nil
}

func (c *cli) table(header ...string) *tablewriter.Table {
	t := tablewriter.NewWriter(c.out)
	t.SetHeader(header)
	t.SetAutoWrapText(false)
	t.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	t.SetBorder(false)
	t.SetColumnSeparator("")
	t.SetCenterSeparator("")
	t.SetRowSeparator("")
	t.SetHeaderLine(false)
	t.SetTablePadding("\t")
	return t
}

func roomArg(args []string) (string, []string, error) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return "", nil, fmt.Errorf("room id required: %w", errUsage)
	}
	return args[0], args[1:], nil
}

func (c *cli) join(ctx context.Context, args []string) error {
	var roomID string
	if len(args) > 0 {
		roomID = args[0]
	}
	res, err := c.client.JoinRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if res.Created {
		fmt.Fprint(c.out, color.Success.Sprintf("%s ", res.RoomID))
	} else {
		fmt.Fprint(c.out, color.Info.Sprintf("%s ", res.RoomID))
	}
	fmt.Fprintln(c.out, res.Message)
	return nil
}

func (c *cli) rooms(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("rooms", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "page size")
	cursor := fs.String("cursor", "", "page cursor")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	page, err := c.client.ListRooms(ctx, *limit, *cursor)
	if err != nil {
		return err
	}
	t := c.table("Room", "Commands", "Created", "Last activity")
	for _, r := range page.Items {
		t.Append([]string{r.ID, strconv.Itoa(r.Commands), fmtTime(r.CreatedAt), fmtTime(r.LastActivity)})
	}
	t.Render()
	if page.NextCursor != "" {
		fmt.Fprintf(c.out, "\nnext: -cursor %s\n", page.NextCursor)
	}
	return nil
}

func (c *cli) active(ctx context.Context) error {
	rooms, err := c.client.ActiveRooms(ctx)
	if err != nil {
		return err
	}
	t := c.table("Room", "Members", "Users")
	for _, r := range rooms {
		t.Append([]string{r.RoomID, strconv.Itoa(r.Count), strings.Join(r.Users, ", ")})
	}
	t.Render()
	return nil
}

func (c *cli) show(ctx context.Context, args []string) error {
	roomID, _, err := roomArg(args)
	if err != nil {
		return err
	}
	room, err := c.client.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "room %s, created %s, %d commands\n\n", room.RoomID, fmtTime(room.CreatedAt), len(room.DrawingData))
	t := c.table("#", "Type", "User", "Points", "Color", "Width", "Time")
	for i, cmd := range room.DrawingData {
		row := []string{strconv.Itoa(i), string(cmd.Type), cmd.UserID, "", "", "", fmtTime(cmd.Timestamp)}
		if cmd.IsStroke() {
			row[3] = strconv.Itoa(len(cmd.Data.Points))
			row[4] = cmd.Data.Color
			row[5] = strconv.FormatFloat(cmd.Data.Width, 'f', -1, 64)
		}
		t.Append(row)
	}
	t.Render()
	return nil
}

func (c *cli) watch(ctx context.Context, args []string) error {
	roomID, _, err := roomArg(args)
	if err != nil {
		return err
	}
	conn, err := boardclient.Dial(ctx, c.client.WSURL())
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Join(roomID, c.cfg.UserID, c.cfg.UserName); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "watching %s as %s, ctrl+c to stop\n", roomID, c.cfg.UserName)

	return follow(ctx, conn.Events(), canvas.NewReconstructor(newTermRenderer(c.out)), c.out, conn.Err)
}

// follow печатает события комнаты, пока не закончится ctx или соединение.
func follow(ctx context.Context, events <-chan protocol.Envelope, rc *canvas.Reconstructor, out io.Writer, connErr func() error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-events:
			if !ok {
				return connErr()
			}
			if err := rc.Apply(env); err != nil {
				fmt.Fprint(out, color.Warn.Sprintf("skip %s: %v\n", env.Type, err))
				continue
			}
			printEvent(out, env)
		}
	}
}

func printEvent(out io.Writer, env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeUserCountUpdate:
		var p protocol.UserCount
		if env.Decode(&p) == nil {
			fmt.Fprint(out, color.Info.Sprintf("* %d in room %s\n", p.Count, p.RoomID))
		}
	case protocol.TypeUserJoined:
		var p protocol.UserJoined
		if env.Decode(&p) == nil {
			fmt.Fprint(out, color.Info.Sprintf("* %s joined\n", orElse(p.UserName, p.UserID)))
		}
	case protocol.TypeUserLeft:
		var p protocol.UserLeft
		if env.Decode(&p) == nil {
			fmt.Fprint(out, color.Info.Sprintf("* %s left\n", orElse(p.UserID, p.ConnectionID)))
		}
	case protocol.TypeCursorMove:
		var p protocol.CursorMove
		if env.Decode(&p) == nil {
			fmt.Fprint(out, color.HEX(p.Color).Sprintf("  cursor %s (%.0f,%.0f)\n", orElse(p.UserName, p.UserID), p.X, p.Y))
		}
	case protocol.TypeError:
		var p protocol.Error
		if env.Decode(&p) == nil {
			fmt.Fprint(out, color.Error.Sprintf("! %s\n", p.Message))
		}
	}
}

func orElse(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

func (c *cli) draw(ctx context.Context, args []string) error {
	roomID, rest, err := roomArg(args)
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("draw", flag.ContinueOnError)
	col := fs.String("color", "#000000", "stroke color")
	width := fs.Float64("width", 3, "stroke width")
	if err := fs.Parse(rest); err != nil {
		return errUsage
	}
	points, err := parsePoints(fs.Args())
	if err != nil {
		return err
	}

	conn, err := boardclient.Dial(ctx, c.client.WSURL())
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := conn.Join(roomID, c.cfg.UserID, c.cfg.UserName); err != nil {
		return err
	}

	cursor := canvas.NewCursorThrottle(canvas.CursorInterval, func(x, y float64) {
		_ = conn.Cursor(roomID, x, y, *col)
	})
	defer cursor.Stop()

	stroke := drawing.StrokeData{Points: []drawing.Point{points[0]}, Color: *col, Width: *width}
	if err := conn.DrawStart(roomID, stroke); err != nil {
		return err
	}
	cursor.Move(points[0].X, points[0].Y)
	for _, p := range points[1:] {
		stroke.Append(p)
		if err := conn.DrawMove(roomID, stroke); err != nil {
			return err
		}
		cursor.Move(p.X, p.Y)
		time.Sleep(canvas.CursorInterval)
	}
	if err := conn.DrawEnd(roomID); err != nil {
		return err
	}
	fmt.Fprint(c.out, color.Success.Sprintf("drew %d points in %s\n", len(points), roomID))
	return nil
}

func parsePoints(args []string) ([]drawing.Point, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("at least one point required: %w", errUsage)
	}
	out := make([]drawing.Point, 0, len(args))
	for _, a := range args {
		xs, ys, ok := strings.Cut(a, ",")
		if !ok {
			return nil, fmt.Errorf("bad point %q, want x,y", a)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(xs), 64)
		if err != nil {
			return nil, fmt.Errorf("bad point %q: %w", a, err)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(ys), 64)
		if err != nil {
			return nil, fmt.Errorf("bad point %q: %w", a, err)
		}
		out = append(out, drawing.Point{X: x, Y: y})
	}
	return out, nil
}

func (c *cli) clear(ctx context.Context, args []string) error {
	roomID, _, err := roomArg(args)
	if err != nil {
		return err
	}
	conn, err := boardclient.Dial(ctx, c.client.WSURL())
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Join(roomID, c.cfg.UserID, c.cfg.UserName); err != nil {
		return err
	}
	if err := conn.Clear(roomID); err != nil {
		return err
	}

	// ждём эха, чтобы не закрыть сокет раньше, чем сервер прочтёт clear
	timeout := time.After(5 * time.Second)
	for {
		select {
		case env, ok := <-conn.Events():
			if !ok {
				return conn.Err()
			}
			if env.Type == protocol.TypeClearCanvas {
				fmt.Fprint(c.out, color.Success.Sprintf("cleared %s\n", roomID))
				return nil
			}
		case <-timeout:
			return errors.New("no clear-canvas echo from server")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *cli) export(ctx context.Context, args []string) error {
	roomID, rest, err := roomArg(args)
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	path := fs.String("o", "", "output file (default board-<room>.pdf)")
	if err := fs.Parse(rest); err != nil {
		return errUsage
	}
	if *path == "" {
		*path = fmt.Sprintf("board-%s.pdf", domain.NormalizeRoomID(roomID))
	}

	f, err := os.Create(*path)
	if err != nil {
		return err
	}
	if err := c.client.ExportPDF(ctx, roomID, f); err != nil {
		_ = f.Close()
		_ = os.Remove(*path)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprint(c.out, color.Success.Sprintf("saved %s\n", *path))
	return nil
}

func (c *cli) discover(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("discover", flag.ContinueOnError)
	timeout := fs.Duration("timeout", 2*time.Second, "how long to listen")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	entries, err := discovery.Browse(ctx, *timeout)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(c.out, color.Warn.Sprint("no board-service instances found"))
		return nil
	}
	t := c.table("Instance", "Address", "Info")
	for _, e := range entries {
		t.Append([]string{e.Instance, e.Addr, strings.Join(e.Info, " ")})
	}
	t.Render()
	return nil
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
