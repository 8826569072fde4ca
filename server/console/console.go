package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/brickgame/brickworld/server"
	"github.com/brickgame/brickworld/server/brick"
	"github.com/brickgame/brickworld/server/brick/cube"
)

// errStop is returned by the stop command.
var errStop = errors.New("stop requested")

// Console provides a simple CLI backed command source that reads commands from
// an io.Reader (defaulting to os.Stdin) and executes them on the provided server.
type Console struct {
	srv    *server.Server
	log    *slog.Logger
	reader io.Reader
}

// New returns a Console bound to the provided server. The console reads from
// os.Stdin and writes command output to the supplied logger.
func New(srv *server.Server, log *slog.Logger) *Console {
	if log == nil {
		log = slog.Default()
	}
	return &Console{
		srv:    srv,
		log:    log,
		reader: os.Stdin,
	}
}

// WithReader sets a custom reader for the console input. It enables testing the
// console without relying on os.Stdin.
func (c *Console) WithReader(r io.Reader) *Console {
	if r != nil {
		c.reader = r
	}
	return c
}

// Run starts consuming commands from the console. It blocks until the context
// is cancelled, the underlying reader reaches EOF or the stop command is
// executed. Run reports whether it returned because of the stop command.
func (c *Console) Run(ctx context.Context) bool {
	scanner := bufio.NewScanner(c.reader)

	for {
		select {
		case <-ctx.Done():
			return false
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				c.log.Error("console input error", "err", err)
			}
			return false
		}
		line := strings.TrimPrefix(strings.TrimSpace(scanner.Text()), "/")
		if line == "" {
			continue
		}
		out, err := c.Execute(ctx, line)
		if errors.Is(err, errStop) {
			c.log.Info("Stopping server...")
			return true
		}
		if err != nil {
			c.log.Error(err.Error())
			continue
		}
		c.log.Info(out)
	}
}

// Execute runs a single command line and returns its output.
func (c *Console) Execute(ctx context.Context, line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	name, args := strings.ToLower(fields[0]), fields[1:]
	cmd, ok := commands[name]
	if !ok {
		return "", fmt.Errorf("unknown command %q, use help for a list of commands", name)
	}
	if len(args) != len(cmd.args) {
		return "", fmt.Errorf("usage: %s %s", name, strings.Join(cmd.args, " "))
	}
	return cmd.run(ctx, c.srv, args)
}

type command struct {
	args []string
	run  func(ctx context.Context, srv *server.Server, args []string) (string, error)
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"get":    {args: []string{"<x>", "<y>", "<z>"}, run: get},
		"set":    {args: []string{"<x>", "<y>", "<z>", "<brick>"}, run: set},
		"fill":   {args: []string{"<x1>", "<y1>", "<z1>", "<x2>", "<y2>", "<z2>", "<brick>"}, run: fill},
		"height": {args: []string{"<x>", "<y>"}, run: height},
		"focus":  {args: []string{"<x>", "<y>", "<z>"}, run: focus},
		"save":   {run: saveWorld},
		"stats":  {run: stats},
		"stop":   {run: func(context.Context, *server.Server, []string) (string, error) { return "", errStop }},
		"help":   {run: help},
	}
}

func get(_ context.Context, srv *server.Server, args []string) (string, error) {
	pos, err := parsePos(args)
	if err != nil {
		return "", err
	}
	b, err := srv.World().Brick(pos)
	if err != nil {
		return "", fmt.Errorf("get %v: %w", pos, err)
	}
	return fmt.Sprintf("%v is %v", pos, b), nil
}

func set(_ context.Context, srv *server.Server, args []string) (string, error) {
	pos, err := parsePos(args[:3])
	if err != nil {
		return "", err
	}
	b, err := parseBrick(args[3])
	if err != nil {
		return "", err
	}
	if err := srv.World().SetBrick(pos, b); err != nil {
		return "", fmt.Errorf("set %v: %w", pos, err)
	}
	return fmt.Sprintf("Set %v to %v.", pos, b), nil
}

func fill(_ context.Context, srv *server.Server, args []string) (string, error) {
	a, err := parsePos(args[:3])
	if err != nil {
		return "", err
	}
	b, err := parsePos(args[3:6])
	if err != nil {
		return "", err
	}
	id, err := parseBrick(args[6])
	if err != nil {
		return "", err
	}
	if err := srv.World().WriteBox(a, b, []brick.ID{id}); err != nil {
		return "", fmt.Errorf("fill: %w", err)
	}
	return fmt.Sprintf("Filled %v to %v with %v.", a, b, id), nil
}

func height(_ context.Context, srv *server.Server, args []string) (string, error) {
	x, err := strconv.Atoi(args[0])
	if err != nil {
		return "", fmt.Errorf("invalid x %q", args[0])
	}
	y, err := strconv.Atoi(args[1])
	if err != nil {
		return "", fmt.Errorf("invalid y %q", args[1])
	}
	h, ok := srv.World().HighestBrick(x, y)
	if !ok {
		return fmt.Sprintf("No bricks loaded at %d, %d.", x, y), nil
	}
	return fmt.Sprintf("Highest brick at %d, %d is at z=%d.", x, y, h), nil
}

func focus(_ context.Context, srv *server.Server, args []string) (string, error) {
	pos, err := parsePos(args)
	if err != nil {
		return "", err
	}
	srv.SetFocus(pos.Vec3Centre())
	return fmt.Sprintf("Focus moved to %v.", pos), nil
}

func saveWorld(ctx context.Context, srv *server.Server, _ []string) (string, error) {
	if err := srv.World().Save(ctx); err != nil {
		return "", fmt.Errorf("save: %w", err)
	}
	return "Saved world.", nil
}

func stats(_ context.Context, srv *server.Server, _ []string) (string, error) {
	s := srv.World().Stats()
	m := srv.Mesh().Metrics().Total()
	return fmt.Sprintf(
		"loaded=%d generated=%d from_provider=%d regenerated=%d saved=%d queue_saturation=%d meshes=%d stale=%d deferred=%d faces=%d",
		s.Loaded, s.Generated, s.FromProvider, s.Regenerated, s.Saved, s.QueueSaturation,
		m.Builds, m.Stale, m.Deferred, m.Faces,
	), nil
}

func help(context.Context, *server.Server, []string) (string, error) {
	var sb strings.Builder
	sb.WriteString("Commands:")
	for _, name := range []string{"get", "set", "fill", "height", "focus", "save", "stats", "stop", "help"} {
		sb.WriteString("\n  " + name)
		for _, a := range commands[name].args {
			sb.WriteString(" " + a)
		}
	}
	return sb.String(), nil
}

func parsePos(args []string) (cube.Pos, error) {
	var pos cube.Pos
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return pos, fmt.Errorf("invalid coordinate %q", a)
		}
		pos[i] = v
	}
	return pos, nil
}

func parseBrick(name string) (brick.ID, error) {
	id, ok := brick.ByName(name)
	if !ok {
		return 0, fmt.Errorf("unknown brick %q", name)
	}
	return id, nil
}
