package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/clipnest/internal/config"
	"github.com/hpungsan/clipnest/internal/logging"
	"github.com/hpungsan/clipnest/internal/sysclip"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"watch": true, "serve": true,
	"list": true, "pin": true, "unpin": true, "delete": true, "clear": true,
	"restore": true, "settings": true, "rules": true,
	"export": true, "import": true,
	"help": true,
}

// isCLIMode determines if we should run a subcommand vs the MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	// Known subcommand → CLI
	if cliCommands[arg] {
		return true
	}
	// --help or --version → CLI
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false // Default → MCP server
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
        _ _                       _
   ___ | (_)_ __  _ __   ___  ___| |_
  / __|| | | '_ \| '_ \ / _ \/ __| __|
 | (__ | | | |_) | | | |  __/\__ \ |_
  \___||_|_| .__/|_| |_|\___||___/\__|
           |_|

  Clipboard history with screenshot detection

  Usage: clipnest <command> [options]
         clipnest watch     capture in the foreground
         clipnest --help

  MCP server mode requires piped input.`)
}

// baseDirectory returns $CLIPNEST_HOME or ~/.clipnest.
func baseDirectory() (string, error) {
	if dir := os.Getenv("CLIPNEST_HOME"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".clipnest"), nil
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before storage init
	if isHelpOrVersion() {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	baseDir, err := baseDirectory()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser, err := logging.Open(baseDir, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	rt, err := newRuntime(context.Background(), baseDir, cfg, logger, system{
		Clipboard: sysclip.New(),
		Fallback:  sysclip.NewSecondary(),
		Window:    sysclip.NewInspector(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer rt.Close()

	args := os.Args
	if !isCLIMode() {
		// Unknown argument + terminal → show error (don't start MCP server)
		if len(os.Args) >= 2 && isTerminal() {
			fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
			fmt.Fprintf(os.Stderr, "Run 'clipnest --help' for usage.\n")
			rt.Close()
			os.Exit(1)
		}
		// MCP server mode (default)
		args = []string{os.Args[0], "serve"}
	}

	app := newCLIApp(rt)
	if err := app.Run(args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		rt.Close()
		os.Exit(1)
	}
}
