// boardctl — консольный клиент board-service.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
)

type Config struct {
	Server   string `env:"BOARDCTL_SERVER,default=http://localhost:5000"`
	UserID   string `env:"BOARDCTL_USER"`
	UserName string `env:"BOARDCTL_NAME"`
	NoColor  bool   `env:"BOARDCTL_NO_COLOR,default=false"`
}

var errUsage = errors.New("usage")

const usage = `boardctl <command> [args]

commands:
  join [roomId]                 join a room or create a new one
  rooms [-limit N] [-cursor C]  list stored rooms
  active                        list rooms with live members
  show <roomId>                 print the room's drawing log
  watch <roomId>                follow live drawing in a room
  draw <roomId> x,y x,y ...     draw one stroke through the given points
  clear <roomId>                clear the canvas
  export <roomId> [-o file]     save the room as PDF
  discover [-timeout 2s]        find board-service instances on the LAN

env: BOARDCTL_SERVER, BOARDCTL_USER, BOARDCTL_NAME, BOARDCTL_NO_COLOR
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		color.Error.Println(err)
		os.Exit(1)
	}
}

func run(args []string) error {
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if cfg.NoColor {
		color.Disable()
	}
	if len(args) == 0 {
		return errUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli, err := newCLI(cfg, os.Stdout)
	if err != nil {
		return err
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "join":
		return cli.join(ctx, rest)
	case "rooms":
		return cli.rooms(ctx, rest)
	case "active":
		return cli.active(ctx)
	case "show":
		return cli.show(ctx, rest)
	case "watch":
		return cli.watch(ctx, rest)
	case "draw":
		return cli.draw(ctx, rest)
	case "clear":
		return cli.clear(ctx, rest)
	case "export":
		return cli.export(ctx, rest)
	case "discover":
		return cli.discover(ctx, rest)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}
}
