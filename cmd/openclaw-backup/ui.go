package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/openclaw/backup/internal/progress"
)

// terminalUI renders progress.Events as either a live progress bar (when
// attached to a terminal and not quieted) or as plain log lines, following
// the colored-when-a-tty convention fatih/color itself implements via
// color.NoColor, here driven explicitly by --no-color/--quiet instead of
// color's package-global state.
type terminalUI struct {
	quiet bool
	color bool
	bar   *progressbar.ProgressBar
	stage progress.Stage
	out   io.Writer
}

func newTerminalUI(noColor, quiet bool) *terminalUI {
	return &terminalUI{
		quiet: quiet,
		color: !noColor && isTerminal(),
		out:   os.Stderr,
	}
}

func (u *terminalUI) handle(ev progress.Event) error {
	if u.quiet {
		return nil
	}
	if ev.Total > 0 && isTerminal() {
		if u.bar == nil || u.stage != ev.Stage {
			u.stage = ev.Stage
			u.bar = progressbar.NewOptions(int(ev.Total),
				progressbar.OptionSetDescription(string(ev.Stage)),
				progressbar.OptionSetWriter(u.out),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		}
		u.bar.Set(int(ev.Current))
		return nil
	}

	line := fmt.Sprintf("[%s] %s", ev.Stage, ev.Message)
	if ev.Path != "" {
		line += " " + ev.Path
	}
	u.printLine(line)
	return nil
}

func (u *terminalUI) printLine(line string) {
	if !u.color {
		fmt.Fprintln(u.out, line)
		return
	}
	color.New(color.FgCyan).Fprintln(u.out, line)
}

func (u *terminalUI) success(format string, args ...any) {
	if u.color {
		color.New(color.FgGreen).Fprintf(os.Stdout, format+"\n", args...)
		return
	}
	fmt.Fprintf(os.Stdout, format+"\n", args...)
}

func (u *terminalUI) failure(format string, args ...any) {
	if u.color {
		color.New(color.FgRed).Fprintf(os.Stderr, format+"\n", args...)
		return
	}
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}
