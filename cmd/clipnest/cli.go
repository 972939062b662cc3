package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/tailscale/hujson"
	"github.com/urfave/cli/v2"

	"github.com/hpungsan/clipnest/internal/errors"
	"github.com/hpungsan/clipnest/internal/mcp"
	"github.com/hpungsan/clipnest/internal/ops"
	"github.com/hpungsan/clipnest/internal/pipeline"
	"github.com/hpungsan/clipnest/internal/rules"
)

// MaxStdinBytes caps what the rules command reads from stdin.
const MaxStdinBytes = 1 << 20

// newCLIApp creates the CLI application with all commands.
// rt may be nil when only help or version output is needed.
func newCLIApp(rt *runtime) *cli.App {
	app := &cli.App{
		Name:    "clipnest",
		Usage:   "Clipboard history with screenshot detection",
		Version: Version,
		Commands: []*cli.Command{
			watchCmd(rt),
			serveCmd(rt),
			listCmd(rt),
			pinCmd(rt, "pin", true),
			pinCmd(rt, "unpin", false),
			deleteCmd(rt),
			clearCmd(rt),
			restoreCmd(rt),
			settingsCmd(rt),
			rulesCmd(rt),
			exportCmd(rt),
			importCmd(rt),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// event is one line of watch output.
type event struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// watchCmd creates the watch command.
func watchCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Capture the clipboard in the foreground, printing events as JSON lines",
		Action: func(c *cli.Context) error {
			if err := rt.requireOwner(); err != nil {
				return outputError(err)
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			var mu sync.Mutex
			enc := json.NewEncoder(os.Stdout)
			rt.sink = pipeline.EmitterFunc(func(name string, payload any) {
				mu.Lock()
				defer mu.Unlock()
				_ = enc.Encode(event{Event: name, Payload: payload})
			})

			go rt.watchConfig(ctx)
			return rt.p.Run(ctx)
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Capture the clipboard and serve history tools over MCP stdio",
		Action: func(c *cli.Context) error {
			if err := rt.requireOwner(); err != nil {
				return outputError(err)
			}

			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()

			if unknown := mcp.ValidateDisabledTools(rt.cfg.DisabledTools); len(unknown) > 0 {
				rt.logger.Warn("unknown tool names in disabled_tools", "tools", unknown)
			}

			notifier := mcp.NewNotifier(rt.logger)
			rt.sink = notifier
			s := mcp.NewServer(rt.p, rt.cfg, rt.baseDir, Version)
			notifier.Attach(s)

			done := make(chan struct{})
			go func() {
				defer close(done)
				_ = rt.p.Run(ctx)
			}()
			go rt.watchConfig(ctx)

			err := mcp.Run(s, rt.logger)
			cancel()
			<-done
			return err
		},
	}
}

// listCmd creates the list command.
func listCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List history entries, pinned first then newest",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Maximum items to return"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Items to skip"},
			&cli.StringFlag{Name: "type", Usage: "Filter by capture type: text|link|code"},
			&cli.StringFlag{Name: "tag", Usage: "Filter by tag"},
			&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "Case-insensitive text search"},
			&cli.BoolFlag{Name: "pinned-only", Usage: "Only pinned entries"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.List(rt.p, ops.ListInput{
				Limit:      c.Int("limit"),
				Offset:     c.Int("offset"),
				Type:       c.String("type"),
				Tag:        c.String("tag"),
				Query:      c.String("query"),
				PinnedOnly: c.Bool("pinned-only"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// pinCmd creates the pin and unpin commands.
func pinCmd(rt *runtime, name string, pinned bool) *cli.Command {
	usage := "Pin an entry so it survives eviction"
	if !pinned {
		usage = "Unpin an entry"
	}
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			if err := rt.requireOwner(); err != nil {
				return outputError(err)
			}

			output, err := ops.Pin(c.Context, rt.p, ops.PinInput{ID: c.Args().First(), Pinned: pinned})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a history entry",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			if err := rt.requireOwner(); err != nil {
				return outputError(err)
			}

			output, err := ops.Delete(c.Context, rt.p, ops.DeleteInput{ID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// clearCmd creates the clear command.
func clearCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "Remove history entries",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "keep-pinned", Usage: "Keep pinned entries"},
		},
		Action: func(c *cli.Context) error {
			if err := rt.requireOwner(); err != nil {
				return outputError(err)
			}

			output, err := ops.Clear(c.Context, rt.p, ops.ClearInput{KeepPinned: c.Bool("keep-pinned")})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// restoreCmd creates the restore command.
func restoreCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "restore",
		Usage:     "Write an entry (or literal text) back to the clipboard",
		ArgsUsage: "[id]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "text", Aliases: []string{"t"}, Usage: "Literal text to restore instead of an entry"},
		},
		Action: func(c *cli.Context) error {
			if err := rt.requireOwner(); err != nil {
				return outputError(err)
			}

			input := ops.RestoreInput{ID: c.Args().First()}
			if c.IsSet("text") {
				text := c.String("text")
				input.Text = &text
			}

			output, err := ops.Restore(c.Context, rt.p, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// settingsCmd creates the settings command. Without flags it prints the
// current settings.
func settingsCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "Show or change capture settings",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "history-limit", Usage: "Maximum non-pinned entries (> 0)"},
			&cli.IntFlag{Name: "min-length", Usage: "Minimum plain-text length in characters"},
			&cli.IntFlag{Name: "dedup-window", Usage: "Insert-time dedup window in minutes"},
			&cli.BoolFlag{Name: "monitoring", Usage: "Enable clipboard monitoring"},
			&cli.BoolFlag{Name: "persistence", Usage: "Enable history persistence"},
		},
		Action: func(c *cli.Context) error {
			var input ops.UpdateSettingsInput
			if c.IsSet("history-limit") {
				input.HistoryLimit = intPtr(c.Int("history-limit"))
			}
			if c.IsSet("min-length") {
				input.MinTextLength = intPtr(c.Int("min-length"))
			}
			if c.IsSet("dedup-window") {
				input.DedupWindowMinutes = intPtr(c.Int("dedup-window"))
			}
			if c.IsSet("monitoring") {
				input.MonitoringEnabled = boolPtr(c.Bool("monitoring"))
			}
			if c.IsSet("persistence") {
				input.PersistenceEnabled = boolPtr(c.Bool("persistence"))
			}

			if input == (ops.UpdateSettingsInput{}) {
				return outputJSON(ops.GetSettings(rt.p))
			}

			if err := rt.preferOwner(); err != nil {
				return outputError(err)
			}
			output, err := ops.UpdateSettings(c.Context, rt.p, rt.baseDir, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// rulesCmd creates the rules command.
func rulesCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "rules",
		Usage: "Replace capture rules (reads a JSON array from stdin)",
		Action: func(c *cli.Context) error {
			if !stdinHasData() {
				return outputError(errors.NewInvalidRequest("rules must be piped via stdin as a JSON array"))
			}

			data, err := readStdin(MaxStdinBytes)
			if err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}
			list, err := parseRules(data)
			if err != nil {
				return outputError(err)
			}

			if err := rt.preferOwner(); err != nil {
				return outputError(err)
			}
			output, err := ops.SetRules(rt.p, rt.baseDir, ops.SetRulesInput{Rules: list})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export history to JSONL, Markdown or HTML",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Export file path (default: ~/.clipnest/exports/history-<timestamp>.<ext>)"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: string(ops.ExportJSONL), Usage: "Format: jsonl|markdown|html"},
			&cli.BoolFlag{Name: "pinned-only", Usage: "Only export pinned entries"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Export(c.Context, rt.p, rt.baseDir, ops.ExportInput{
				Path:       c.String("path"),
				Format:     ops.ExportFormat(c.String("format")),
				PinnedOnly: c.Bool("pinned-only"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// importCmd creates the import command.
func importCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import history from a JSONL export",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true, Usage: "Import file path"},
		},
		Action: func(c *cli.Context) error {
			if err := rt.requireOwner(); err != nil {
				return outputError(err)
			}

			output, err := ops.Import(c.Context, rt.p, ops.ImportInput{Path: c.String("path")})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var clipErr *errors.ClipError
	if stderrors.As(err, &clipErr) {
		msg := strings.Replace(err.Error(), clipErr.Error(), clipErr.Message, 1)
		return cli.Exit(fmt.Sprintf("[%s] %s", clipErr.Code, msg), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads at most limit bytes from stdin.
func readStdin(limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, limit+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("stdin exceeds %d bytes", limit)
	}
	return strings.TrimSpace(string(data)), nil
}

// parseRules decodes a rule list. Comments and trailing commas are allowed,
// as in config.json.
func parseRules(data string) ([]rules.Rule, error) {
	std, err := hujson.Standardize([]byte(data))
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid rules JSON: %v", err))
	}
	var list []rules.Rule
	if err := json.Unmarshal(std, &list); err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid rules JSON: %v", err))
	}
	if list == nil {
		list = []rules.Rule{}
	}
	return list, nil
}

func intPtr(v int) *int { return &v }

func boolPtr(v bool) *bool { return &v }
