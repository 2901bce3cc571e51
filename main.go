package main

import (
	"fmt"
	"os"
	"strings"

	isatty "github.com/mattn/go-isatty"

	"github.com/antibyte/glyphvm/pkg/configuration"
	"github.com/antibyte/glyphvm/pkg/format"
	"github.com/antibyte/glyphvm/pkg/loader"
	"github.com/antibyte/glyphvm/pkg/logger"
	"github.com/antibyte/glyphvm/pkg/trace"
	"github.com/antibyte/glyphvm/pkg/vm"
)

func main() {
	configPath := "settings.cfg"
	if err := configuration.Initialize(configPath); err != nil {
		fmt.Printf("Error initializing configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Initialize(); err != nil {
		fmt.Printf("Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()
	logger.Info(logger.AreaConfig, "glyphvm started, configuration loaded from %s", configPath)

	program, err := loader.ReadProgram(os.Stdin)
	if err != nil {
		fmt.Printf("Error reading program: %v\n", err)
		os.Exit(1)
	}

	if required, key, err := loader.RequireSignature(); required {
		if err != nil {
			fmt.Printf("%v\n", err)
			os.Exit(1)
		}
		tokenPath := configuration.GetString("Security", "bundle_token_file", "program.bundle")
		token, err := os.ReadFile(tokenPath)
		if err != nil {
			fmt.Printf("signed bundle required but %s unreadable: %v\n", tokenPath, err)
			os.Exit(1)
		}
		if _, err := loader.VerifyBundle(strings.TrimSpace(string(token)), program, key); err != nil {
			fmt.Printf("bundle verification failed: %v\n", err)
			os.Exit(1)
		}
		logger.Info(logger.AreaBundle, "program bundle verified against %s", tokenPath)
	}

	traceEnabled := len(os.Args) > 1
	branchDebug := len(os.Args) > 1 && strings.HasPrefix(os.Args[1], "b")

	opts := []vm.Option{
		vm.WithFormat(format.Value),
		vm.WithDiagnostics(func(err error) {
			logger.Error(logger.AreaExec, "%v", err)
		}),
	}

	var branchPrinter *trace.BranchDebugPrinter
	if branchDebug {
		branchPrinter = trace.NewBranchDebugPrinter(os.Stdout)
		opts = append(opts, vm.WithBranchDebug(branchPrinter.Func()))
	}

	machine := vm.New(program, opts...)
	logger.Info(logger.AreaExec, "run %s starting, %d program bytes", machine.RunID(), len(program))

	var traceServer *trace.Server
	if configuration.GetBool("TraceServer", "enabled", false) {
		traceServer = trace.NewServer()
		go func() {
			if err := traceServer.ListenAndServe(); err != nil {
				logger.Error(logger.AreaTrace, "trace server stopped: %v", err)
			}
		}()
	}

	if traceEnabled {
		runTraced(machine, traceServer)
	} else {
		if err := machine.Run(); err != nil {
			fmt.Println(err)
		}
	}

	verbose := isatty.IsTerminal(os.Stdout.Fd())
	if verbose {
		fmt.Printf("DONE.  %s steps\n", format.StepCount(machine.Steps()))
	} else {
		fmt.Println("DONE")
	}
	logger.Info(logger.AreaExec, "run %s finished after %d steps", machine.RunID(), machine.Steps())
}

// runTraced drives the VM one step at a time so a StepObserver can print
// the about-to-execute instruction and stack ahead of it, per spec.md
// §6's trace mode.
func runTraced(machine *vm.VM, server *trace.Server) {
	observer := trace.NewStepObserver(os.Stdout, configuration.GetInt("Run", "trace_depth", 5))
	for {
		observer.Before(machine)
		if server != nil {
			server.Broadcast(trace.Frame{
				RunID: machine.RunID(),
				PC:    machine.PC(),
				Byte:  machine.PeekOpcode(),
				Stack: machine.StackView(),
			})
		}
		if err := machine.Step(); err != nil {
			fmt.Println(err)
			return
		}
		if machine.Terminated() {
			return
		}
	}
}
