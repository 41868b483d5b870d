// Package log provides the leveled, key-value structured logger used
// throughout minefleet, in the same call shape as the teacher's own
// log.Info("msg", "key", value, ...) package.
package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Level is a log severity.
type Level int

const (
	LvlError Level = iota
	LvlWarn
	LvlInfo
	LvlDebug
	LvlTrace
)

func (l Level) String() string {
	switch l {
	case LvlError:
		return "ERROR"
	case LvlWarn:
		return "WARN"
	case LvlInfo:
		return "INFO"
	case LvlDebug:
		return "DEBUG"
	case LvlTrace:
		return "TRACE"
	default:
		return "?????"
	}
}

var levelColor = map[Level]*color.Color{
	LvlError: color.New(color.FgRed, color.Bold),
	LvlWarn:  color.New(color.FgYellow),
	LvlInfo:  color.New(color.FgGreen),
	LvlDebug: color.New(color.FgCyan),
	LvlTrace: color.New(color.FgWhite),
}

// Logger is the interface every minefleet subsystem constructor receives
// as part of its injected Context (spec.md §9: no package-global logger).
type Logger interface {
	Error(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	Trace(msg string, ctx ...interface{})
	New(ctx ...interface{}) Logger
}

type logger struct {
	mu      *sync.Mutex
	out     io.Writer
	colored bool
	level   Level
	keyvals []interface{}
}

// New creates a root logger writing to os.Stderr, colorized if stderr is
// a terminal (mirrors the teacher's fatih/color + mattn/go-isatty combo).
func New(level Level) Logger {
	var out io.Writer = os.Stderr
	colored := false
	if f, ok := out.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		out = colorable.NewColorable(f)
		colored = true
	}
	return &logger{mu: &sync.Mutex{}, out: out, colored: colored, level: level}
}

func (l *logger) New(ctx ...interface{}) Logger {
	n := &logger{mu: l.mu, out: l.out, colored: l.colored, level: l.level}
	n.keyvals = append(append([]interface{}{}, l.keyvals...), ctx...)
	return n
}

func (l *logger) write(lvl Level, msg string, ctx []interface{}) {
	if lvl > l.level {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := time.Now().Format("2006-01-02T15:04:05.000")
	tag := lvl.String()
	if l.colored {
		tag = levelColor[lvl].Sprint(tag)
	}
	fmt.Fprintf(l.out, "%s [%s] %s", ts, tag, msg)

	all := append(append([]interface{}{}, l.keyvals...), ctx...)
	for i := 0; i+1 < len(all); i += 2 {
		fmt.Fprintf(l.out, " %v=%v", all[i], all[i+1])
	}
	if lvl == LvlError {
		// caller frame, cheap approximation of the teacher's go-stack usage
		if cs := stack.Trace().TrimRuntime(); len(cs) > 2 {
			fmt.Fprintf(l.out, " caller=%v", cs[2])
		}
	}
	fmt.Fprintln(l.out)
}

func (l *logger) Error(msg string, ctx ...interface{}) { l.write(LvlError, msg, ctx) }
func (l *logger) Warn(msg string, ctx ...interface{})  { l.write(LvlWarn, msg, ctx) }
func (l *logger) Info(msg string, ctx ...interface{})  { l.write(LvlInfo, msg, ctx) }
func (l *logger) Debug(msg string, ctx ...interface{}) { l.write(LvlDebug, msg, ctx) }
func (l *logger) Trace(msg string, ctx ...interface{}) { l.write(LvlTrace, msg, ctx) }

// Root is a process-wide convenience logger for early-boot code that runs
// before a Context exists (flag parsing, config load). Everything past
// boot should receive a Logger explicitly.
var Root = New(LvlInfo)
