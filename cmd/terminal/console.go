package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/HeroicKrishna160905/tradeshift-engine/internal/chart"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/model"
	"github.com/HeroicKrishna160905/tradeshift-engine/internal/terminal"
)

var errConsoleClosed = errors.New("console: input closed")

const consoleHelp = `commands:
  play | pause | toggle     start or stop playback
  speed X                   set the speed factor
  buy Q | sell Q            open a position at the live price
  close ID                  close an open position
  reset                     stop and restore the initial balance
  theme                     toggle dark/light
  resize W H                resize the chart
  state                     print balance, price and trades
  help`

// console reads line commands and applies them to the terminal.
type console struct {
	term    *terminal.Terminal
	resizes chan<- chart.Size
	out     io.Writer
}

func (c *console) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintln(c.out, `type "help" for commands`)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return errConsoleClosed
			}
			if err := c.exec(ctx, line); err != nil {
				if errors.Is(err, terminal.ErrStopped) {
					return err
				}
				fmt.Fprintln(c.out, "error:", err)
			}
		}
	}
}

func (c *console) exec(ctx context.Context, line string) error {
	f := strings.Fields(line)
	if len(f) == 0 {
		return nil
	}
	switch cmd, args := strings.ToLower(f[0]), f[1:]; cmd {
	case "help", "?":
		fmt.Fprintln(c.out, consoleHelp)

	case "play", "pause":
		return c.term.SetPlaying(ctx, cmd == "play")

	case "toggle":
		playing, err := c.term.TogglePlay(ctx)
		if err == nil {
			fmt.Fprintln(c.out, "playing:", playing)
		}
		return err

	case "speed":
		v, err := floatArg(args, 0)
		if err != nil {
			return err
		}
		return c.term.SetSpeed(ctx, v)

	case "buy", "sell":
		q, err := floatArg(args, 0)
		if err != nil {
			return err
		}
		side := model.SideBuy
		if cmd == "sell" {
			side = model.SideSell
		}
		tr, ok, err := c.term.PlaceOrder(ctx, side, q)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("order ignored")
		}
		fmt.Fprintf(c.out, "%s %s %g @ %.2f\n", tr.ID, tr.Side, tr.Quantity, tr.EntryPrice)

	case "close":
		if len(args) != 1 {
			return errors.New("usage: close ID")
		}
		tr, ok, err := c.term.ClosePosition(ctx, args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no open position %s", args[0])
		}
		fmt.Fprintf(c.out, "%s closed @ %.2f pnl %.2f\n", tr.ID, *tr.ExitPrice, *tr.PnL)

	case "reset":
		return c.term.ResetSimulation(ctx)

	case "theme":
		t, err := c.term.ToggleTheme(ctx)
		if err == nil {
			fmt.Fprintln(c.out, "theme:", t)
		}
		return err

	case "resize":
		w, err := intArg(args, 0)
		if err != nil {
			return err
		}
		h, err := intArg(args, 1)
		if err != nil {
			return err
		}
		select {
		case c.resizes <- chart.Size{Width: w, Height: h}:
		case <-ctx.Done():
			return ctx.Err()
		}

	case "state":
		s, err := c.term.Snapshot(ctx)
		if err != nil {
			return err
		}
		c.printState(s)

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func (c *console) printState(s terminal.Snapshot) {
	fmt.Fprintf(c.out, "playing=%v speed=%g price=%.2f balance=%.2f realized=%.2f unrealized=%.2f\n",
		s.IsPlaying, s.Speed, s.CurrentPrice, s.Balance, s.Summary.RealizedPnL, s.Summary.UnrealizedPnL)
	for _, tr := range s.Trades {
		line := fmt.Sprintf("  %s %-4s %g @ %.2f %s", tr.ID, tr.Side, tr.Quantity, tr.EntryPrice, tr.Status)
		if tr.PnL != nil {
			line += fmt.Sprintf(" pnl %.2f", *tr.PnL)
		}
		fmt.Fprintln(c.out, line)
	}
}

func floatArg(args []string, i int) (float64, error) {
	if len(args) <= i {
		return 0, errors.New("missing number")
	}
	return strconv.ParseFloat(args[i], 64)
}

func intArg(args []string, i int) (int, error) {
	if len(args) <= i {
		return 0, errors.New("missing number")
	}
	return strconv.Atoi(args[i])
}
