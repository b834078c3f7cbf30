package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/js-runtime/engine"
	"github.com/wippyai/js-runtime/modules"
	"github.com/wippyai/js-runtime/runtime"
	"github.com/wippyai/js-runtime/scheduler"
)

// wasmFlags collects repeated -wasm name=path flags.
type wasmFlags []string

func (w *wasmFlags) String() string     { return strings.Join(*w, ",") }
func (w *wasmFlags) Set(v string) error { *w = append(*w, v); return nil }

type options struct {
	source      string
	file        string
	label       string
	namespace   string
	async       bool
	verbose     bool
	interactive bool
	wasm        wasmFlags
}

func main() {
	var opts options
	flag.StringVar(&opts.source, "e", "", "Evaluate inline source")
	flag.StringVar(&opts.file, "f", "", "Path to script file")
	flag.StringVar(&opts.label, "label", "", "Script label used in stack traces")
	flag.StringVar(&opts.namespace, "core", runtime.DefaultCoreNamespace, "Global name of the module namespace")
	flag.BoolVar(&opts.async, "async", false, "Await the script result if it is a promise")
	flag.BoolVar(&opts.verbose, "v", false, "Verbose logging")
	flag.BoolVar(&opts.interactive, "i", false, "Interactive mode with TUI")
	flag.Var(&opts.wasm, "wasm", "Load a wasm module as Core.<name> (name=path, repeatable)")
	flag.Parse()

	if opts.file == "" && flag.NArg() > 0 {
		opts.file = flag.Arg(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	log := zap.NewNop()
	if opts.verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		log = l
		defer func() { _ = log.Sync() }()
	}
	engine.SetLogger(log)
	scheduler.SetLogger(log)
	modules.SetLogger(log)

	source, label, err := readSource(opts)
	if err != nil {
		return err
	}
	interactive := opts.interactive || source == ""
	if interactive && !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("no source: use -e, -f or pipe a script")
	}

	var out, errOut io.Writer = os.Stdout, os.Stderr
	var captured *captureBuffer
	if interactive {
		captured = &captureBuffer{}
		out, errOut = captured, captured
	}

	rt, closeAll, err := setup(ctx, opts, log, out, errOut)
	if err != nil {
		return err
	}
	defer closeAll()

	if source != "" {
		v, err := evaluate(ctx, rt, source, label, opts.async)
		if err != nil && !interactive {
			return err
		}
		if err == nil && !interactive {
			s, err := render(ctx, rt, v)
			if err != nil {
				return err
			}
			if s != "" {
				fmt.Println(s)
			}
		}
		if err != nil {
			fmt.Fprintf(captured, "Error: %v\n", err)
		}
	}
	if interactive {
		return runInteractive(ctx, rt, captured)
	}
	return nil
}

// setup creates the runtime and installs the console and wasm modules.
func setup(ctx context.Context, opts options, log *zap.Logger, out, errOut io.Writer) (*runtime.Runtime, func(), error) {
	cfg := runtime.DefaultConfig()
	cfg.Logger = log
	cfg.CoreNamespace = opts.namespace
	rt, err := runtime.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create runtime: %w", err)
	}

	var wasmMods []*modules.WasmModule
	closeAll := func() {
		bg := context.Background()
		_ = rt.Close(bg)
		for _, w := range wasmMods {
			_ = w.Close(bg)
		}
	}

	reg := modules.NewRegistry()
	if err := reg.Register(consoleModule(out, errOut)); err != nil {
		closeAll()
		return nil, nil, err
	}
	for _, arg := range opts.wasm {
		name, path, ok := strings.Cut(arg, "=")
		if !ok || name == "" || path == "" {
			closeAll()
			return nil, nil, fmt.Errorf("invalid -wasm %q: want name=path", arg)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("read wasm: %w", err)
		}
		w, err := modules.Wasm(ctx, name, data)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("load %s: %w", path, err)
		}
		wasmMods = append(wasmMods, w)
		if err := reg.Register(w.Definition()); err != nil {
			closeAll()
			return nil, nil, err
		}
	}
	if err := reg.Install(ctx, rt); err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("install modules: %w", err)
	}
	if _, err := rt.Eval(ctx, "globalThis.console = "+opts.namespace+".console", "<setup>"); err != nil {
		closeAll()
		return nil, nil, err
	}
	return rt, closeAll, nil
}

func readSource(opts options) (string, string, error) {
	switch {
	case opts.source != "":
		return opts.source, labelOr(opts.label, "<inline>"), nil
	case opts.file != "":
		data, err := os.ReadFile(opts.file)
		if err != nil {
			return "", "", fmt.Errorf("read file: %w", err)
		}
		return string(data), labelOr(opts.label, opts.file), nil
	case !term.IsTerminal(int(os.Stdin.Fd())):
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), labelOr(opts.label, "<stdin>"), nil
	}
	return "", "", nil
}

func labelOr(label, fallback string) string {
	if label != "" {
		return label
	}
	return fallback
}

func evaluate(ctx context.Context, rt *runtime.Runtime, source, label string, async bool) (*runtime.Value, error) {
	if async {
		return rt.EvalAsync(ctx, source, label)
	}
	return rt.Eval(ctx, source, label)
}

// render displays v on the engine goroutine. Undefined renders as "".
func render(ctx context.Context, rt *runtime.Runtime, v *runtime.Value) (string, error) {
	return runtime.Do(ctx, rt, func(*runtime.Runtime) (string, error) {
		if v.IsUndefined() {
			return "", nil
		}
		return display(v), nil
	})
}

// captureBuffer collects console output while the REPL owns the terminal.
type captureBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (c *captureBuffer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

// Drain returns and clears the collected output.
func (c *captureBuffer) Drain() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.buf.String()
	c.buf.Reset()
	return s
}

// display renders a result the way a REPL prints it. Must run on the
// engine goroutine.
func display(v *runtime.Value) string {
	if v.IsObject() && !v.IsFunction() {
		if s, ok := v.JSONStringify(nil, "  "); ok {
			return s
		}
	}
	return v.String()
}

// consoleModule exposes log and error writing to out and errOut.
func consoleModule(out, errOut io.Writer) *modules.Definition {
	write := func(w io.Writer) runtime.SyncFunc {
		return func(c *runtime.Call) (any, error) {
			parts := make([]string, c.Len())
			for i, a := range c.Args {
				if a.IsString() {
					parts[i] = a.AsString()
				} else {
					parts[i] = display(a)
				}
			}
			_, err := fmt.Fprintln(w, strings.Join(parts, " "))
			return nil, err
		}
	}
	return modules.Define("console").
		Function("log", write(out)).
		Function("info", write(out)).
		Function("warn", write(errOut)).
		Function("error", write(errOut))
}
