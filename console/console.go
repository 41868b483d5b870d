// Package console implements the operator REPL (spec.md §4.9): a
// liner-driven prompt embedding an otto JavaScript interpreter, adapted
// from the teacher's console/console.go idiom but scoped to this fleet's
// own surface — registry.seed/status and stats.snapshot as JS globals —
// rather than a full web3/JSON-RPC bridge.
package console

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"

	"github.com/mattn/go-colorable"
	"github.com/peterh/liner"
	"github.com/robertkrimen/otto"

	"berith-chain/minefleet/ledger"
	"berith-chain/minefleet/registry"
)

var (
	onlyWhitespace = regexp.MustCompile(`^\s*$`)
	exitCommand    = regexp.MustCompile(`^\s*exit\s*;*\s*$`)
)

// HistoryFile is the file within DataDir used for input scrollback.
const HistoryFile = "history"

// DefaultPrompt is the prompt line prefix.
const DefaultPrompt = "> "

// Config configures a Console.
type Config struct {
	DataDir  string
	Registry *registry.Registry
	Stats    *ledger.StatsStore
	Prompt   string
	Printer  io.Writer
}

// Console is a JS-scriptable operator REPL over a running worker or
// controller's registry and stats.
type Console struct {
	ctx      context.Context
	reg      *registry.Registry
	stats    *ledger.StatsStore
	vm       *otto.Otto
	prompt   string
	printer  io.Writer
	liner    *liner.State
	histPath string
	history  []string
}

// New builds a Console wired to reg/stats, exposing registry.seed(...),
// registry.status(), and stats.snapshot() as JS globals.
func New(ctx context.Context, cfg Config) (*Console, error) {
	if cfg.Prompt == "" {
		cfg.Prompt = DefaultPrompt
	}
	if cfg.Printer == nil {
		cfg.Printer = colorable.NewColorableStdout()
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, err
	}

	c := &Console{
		ctx:      ctx,
		reg:      cfg.Registry,
		stats:    cfg.Stats,
		vm:       otto.New(),
		prompt:   cfg.Prompt,
		printer:  cfg.Printer,
		liner:    liner.NewLiner(),
		histPath: filepath.Join(cfg.DataDir, HistoryFile),
	}
	if err := c.bindGlobals(); err != nil {
		c.liner.Close()
		return nil, err
	}
	if content, err := ioutil.ReadFile(c.histPath); err == nil {
		c.history = strings.Split(string(content), "\n")
		c.liner.ReadHistory(strings.NewReader(string(content)))
	}
	return c, nil
}

func (c *Console) bindGlobals() error {
	registryObj, _ := c.vm.Object(`({})`)
	registryObj.Set("seed", c.jsRegistrySeed)
	registryObj.Set("status", c.jsRegistryStatus)
	if err := c.vm.Set("registry", registryObj); err != nil {
		return err
	}

	statsObj, _ := c.vm.Object(`({})`)
	statsObj.Set("snapshot", c.jsStatsSnapshot)
	if err := c.vm.Set("stats", statsObj); err != nil {
		return err
	}

	consoleObj, _ := c.vm.Object(`({})`)
	consoleObj.Set("log", c.consoleOutput)
	consoleObj.Set("error", c.consoleOutput)
	return c.vm.Set("console", consoleObj)
}

// jsRegistrySeed exposes registry.seed(addresses, addressesPerInstance)
// to operator scripts.
func (c *Console) jsRegistrySeed(call otto.FunctionCall) otto.Value {
	raw, err := call.Argument(0).Export()
	if err != nil {
		return c.ottoError(err)
	}
	items, ok := raw.([]interface{})
	if !ok {
		return c.ottoError(fmt.Errorf("registry.seed: first argument must be an array of addresses"))
	}
	addresses := make([]string, 0, len(items))
	for _, item := range items {
		addresses = append(addresses, fmt.Sprintf("%v", item))
	}
	perInstance, _ := call.Argument(1).ToInteger()
	if err := c.reg.Seed(c.ctx, addresses, int(perInstance)); err != nil {
		return c.ottoError(err)
	}
	result, _ := c.vm.ToValue(true)
	return result
}

// jsRegistryStatus exposes registry.status() returning the current
// registry document as a plain JS object.
func (c *Console) jsRegistryStatus(call otto.FunctionCall) otto.Value {
	doc, err := c.reg.Snapshot(c.ctx)
	if err != nil {
		return c.ottoError(err)
	}
	return c.toJSValue(doc)
}

// jsStatsSnapshot exposes stats.snapshot() returning current fleet stats.
func (c *Console) jsStatsSnapshot(call otto.FunctionCall) otto.Value {
	snap, err := c.stats.Snapshot(c.ctx)
	if err != nil {
		return c.ottoError(err)
	}
	return c.toJSValue(snap)
}

// toJSValue round-trips v through encoding/json before handing it to
// otto, so JS sees the wire field names (registry.json/solutions-stats.json
// tags) rather than otto's reflection-based Go field names.
func (c *Console) toJSValue(v interface{}) otto.Value {
	body, err := json.Marshal(v)
	if err != nil {
		return c.ottoError(err)
	}
	var generic interface{}
	if err := json.Unmarshal(body, &generic); err != nil {
		return c.ottoError(err)
	}
	result, err := c.vm.ToValue(generic)
	if err != nil {
		return c.ottoError(err)
	}
	return result
}

func (c *Console) ottoError(err error) otto.Value {
	v, _ := c.vm.ToValue(fmt.Sprintf("error: %v", err))
	return v
}

func (c *Console) consoleOutput(call otto.FunctionCall) otto.Value {
	parts := make([]string, 0, len(call.ArgumentList))
	for _, arg := range call.ArgumentList {
		parts = append(parts, fmt.Sprintf("%v", arg))
	}
	fmt.Fprintln(c.printer, strings.Join(parts, " "))
	return otto.Value{}
}

// Evaluate runs one statement and prints its result or error.
func (c *Console) Evaluate(statement string) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(c.printer, "[console] panic: %v\n", r)
		}
	}()
	v, err := c.vm.Run(statement)
	if err != nil {
		fmt.Fprintf(c.printer, "%v\n", err)
		return
	}
	if !v.IsUndefined() {
		fmt.Fprintf(c.printer, "%v\n", v)
	}
}

// Interactive runs the REPL loop until "exit" or Ctrl-C.
func (c *Console) Interactive() {
	abort := make(chan os.Signal, 1)
	signal.Notify(abort, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(abort)

	input := make(chan string)
	go func() {
		for {
			line, err := c.liner.Prompt(c.prompt)
			if err != nil {
				close(input)
				return
			}
			input <- line
		}
	}()

	for {
		select {
		case <-abort:
			fmt.Fprintln(c.printer, "caught interrupt, exiting")
			return
		case line, ok := <-input:
			if !ok || exitCommand.MatchString(line) {
				return
			}
			if onlyWhitespace.MatchString(line) {
				continue
			}
			command := strings.TrimSpace(line)
			if len(c.history) == 0 || command != c.history[len(c.history)-1] {
				c.history = append(c.history, command)
				c.liner.AppendHistory(command)
			}
			c.Evaluate(line)
		}
	}
}

// Stop flushes scrollback history and closes the underlying liner state.
func (c *Console) Stop() error {
	if err := ioutil.WriteFile(c.histPath, []byte(strings.Join(c.history, "\n")), 0600); err != nil {
		return err
	}
	return c.liner.Close()
}
