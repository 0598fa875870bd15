// canforge - CAN identifier composition and DBC export
//
// Composes CAN identifiers from bit fields, expands batch fields into one
// message per combination, and writes or publishes the result as a DBC file.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"canforge/api"
	"canforge/batch"
	"canforge/config"
	"canforge/engine"
	"canforge/logging"
	"canforge/web"
)

// Version is set at build time via -ldflags
var Version = "dev"

// preprocessLogDebugFlag handles --log-debug without a value by injecting "all" as the default.
func preprocessLogDebugFlag() {
	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--log-debug" || arg == "-log-debug" {
			// No value when this is the last arg or the next one is a flag
			if i+1 >= len(args) || (len(args[i+1]) > 0 && args[i+1][0] == '-') {
				os.Args = append(os.Args[:i+2], append([]string{"all"}, os.Args[i+2:]...)...)
			}
			return
		}
		if strings.HasPrefix(arg, "--log-debug=") || strings.HasPrefix(arg, "-log-debug=") {
			return
		}
	}
}

// Command line flags
var (
	configPath  = flag.String("config", config.DefaultPath(), "Path to project file")
	showVersion = flag.Bool("version", false, "Show version and exit")
	presetName  = flag.String("preset", "", "Replace the field layout with a preset (saved to project)")
	importXLSX  = flag.String("import-xlsx", "", "Import message templates from an xlsx sheet (saved to project)")
	exportXLSX  = flag.String("export-xlsx", "", "Write message templates to an xlsx sheet")
	validate    = flag.Bool("validate", false, "Validate the layout, naming patterns and templates")
	preview     = flag.Bool("preview", false, "Show each template's identifier at default values")
	generate    = flag.Bool("generate", false, "Generate one message per batch combination and template")
	exportPath  = flag.String("export", "", "Write the DBC export to this path")
	assumeYes   = flag.Bool("y", false, "Confirm large generation runs without prompting")
	publish     = flag.Bool("publish", false, "Publish the DBC export to the enabled sinks")
	serve       = flag.Bool("serve", false, "Serve the REST API until interrupted")
	namespace   = flag.String("namespace", "", "Set namespace (saved to project)")
	httpPort    = flag.Int("p", 0, "HTTP listen port (overrides project)")
	httpHost    = flag.String("host", "", "HTTP bind address (overrides project)")
	adminUser   = flag.String("admin-user", "", "Create/update API admin user (saves to project)")
	adminPass   = flag.String("admin-pass", "", "Password for the API admin user")
	logFile     = flag.String("log", "", "Path to log file (optional)")
	logDebug    = flag.String("log-debug", "", "Enable debug logging to debug.log (optional category filter: "+strings.Join(logging.KnownCategories(), ",")+")")
)

func main() {
	preprocessLogDebugFlag()
	flag.Parse()

	if *showVersion {
		fmt.Printf("canforge %s\n", Version)
		os.Exit(0)
	}

	closeDebug := setupDebugLog(*logDebug)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading project: %v\n", err)
		closeDebug()
		os.Exit(1)
	}

	if *namespace != "" {
		if !config.IsValidNamespace(*namespace) {
			fmt.Fprintf(os.Stderr, "Error: invalid namespace '%s' (use alphanumeric, hyphen, underscore, dot)\n", *namespace)
			closeDebug()
			os.Exit(1)
		}
		cfg.Namespace = *namespace
		if err := cfg.Save(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving project: %v\n", err)
			closeDebug()
			os.Exit(1)
		}
		fmt.Printf("Namespace set to '%s' and saved to project\n", *namespace)
	}

	// Override web config from flags (in memory only)
	if *httpPort != 0 {
		cfg.Web.Port = *httpPort
	}
	if *httpHost != "" {
		cfg.Web.Host = *httpHost
	}

	if *adminUser != "" && *adminPass != "" {
		hash, err := api.HashPassword(*adminPass)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error hashing password: %v\n", err)
			closeDebug()
			os.Exit(1)
		}
		cfg.SetWebUser(config.WebUser{Username: *adminUser, PasswordHash: hash, Role: config.RoleAdmin})
		if err := cfg.Save(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving project: %v\n", err)
			closeDebug()
			os.Exit(1)
		}
		fmt.Printf("Admin user '%s' configured for the REST API\n", *adminUser)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Project error: %v\n", err)
		closeDebug()
		os.Exit(1)
	}

	code := run(cfg)
	closeDebug()
	os.Exit(code)
}

// setupDebugLog installs the global debug logger when filter is set.
func setupDebugLog(filter string) func() {
	if filter == "" {
		return func() {}
	}
	dl, err := logging.NewDebugLogger("debug.log")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to open debug log: %v\n", err)
		return func() {}
	}
	if filter == "all" || filter == "true" || filter == "1" {
		filter = ""
	}
	dl.SetFilter(filter)
	logging.SetGlobalDebugLogger(dl)
	return func() {
		logging.SetGlobalDebugLogger(nil)
		dl.Close()
	}
}

// run performs the requested actions in order and returns the exit code.
func run(cfg *config.Config) int {
	console := logging.NewWriterLogger(os.Stdout)
	var fileLogger *logging.FileLogger
	if *logFile != "" {
		var err error
		fileLogger, err = logging.NewFileLogger(*logFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		} else {
			defer fileLogger.Close()
		}
	}

	eng := engine.New(engine.Config{
		AppConfig:  cfg,
		ConfigPath: *configPath,
		LogFunc:    logging.Tee(console, fileLogger),
	})

	acted := false
	code := 0

	if *presetName != "" {
		acted = true
		if err := eng.LoadPreset(*presetName); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}

	if *importXLSX != "" {
		acted = true
		if _, err := eng.ImportMessages(*importXLSX); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}

	if *exportXLSX != "" {
		acted = true
		if err := eng.ExportMessages(*exportXLSX); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Printf("Wrote %d message template(s) to %s\n", len(eng.ListMessages()), *exportXLSX)
	}

	if *validate {
		acted = true
		report := eng.Validate()
		printValidation(os.Stdout, report)
		if !report.Valid {
			return 2
		}
	}

	if *preview {
		acted = true
		previews, err := eng.Preview("")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		printPreviews(os.Stdout, previews)
	}

	if *generate {
		acted = true
		if err := runGenerate(eng, os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}

	if *exportPath != "" {
		acted = true
		if _, err := eng.ExportTo(*exportPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}

	if *publish || *serve {
		eng.Start()
		defer eng.Stop()
	}

	if *publish {
		acted = true
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		report, err := eng.Publish(ctx)
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		printPublish(os.Stdout, report)
		if report.Failed() > 0 {
			code = 3
		}
	}

	if *serve {
		acted = true
		if err := runServer(cfg, eng); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}

	if !acted {
		printProject(os.Stdout, cfg, eng.Summary())
		fmt.Println("\nNothing to do. Use -validate, -preview, -generate, -export, -publish or -serve (see -h).")
	}
	return code
}

// runGenerate runs a generation, asking on in for confirmation when the run
// is above the project's threshold and -y was not given.
func runGenerate(eng *engine.Engine, in io.Reader, out io.Writer) error {
	_, err := eng.Generate(engine.GenerateRequest{Confirm: *assumeYes})
	var warn *batch.SizeWarning
	if !errors.As(err, &warn) {
		return err
	}

	fmt.Fprintf(out, "This run generates %d messages (%d combinations x %d templates), above the threshold of %d.\n",
		warn.Total, warn.Combinations, warn.Templates, warn.Threshold)
	fmt.Fprint(out, "Continue? [y/N]: ")
	answer, _ := bufio.NewReader(in).ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	if answer != "y" && answer != "yes" {
		return errors.New("generation cancelled")
	}
	_, err = eng.Generate(engine.GenerateRequest{Confirm: true})
	return err
}

// runServer serves the REST API until SIGINT or SIGTERM.
func runServer(cfg *config.Config, eng *engine.Engine) error {
	ws := web.NewServer(&cfg.Web, eng)
	if err := ws.Start(); err != nil {
		return fmt.Errorf("start web server on port %d: %w", cfg.Web.Port, err)
	}
	fmt.Printf("REST API at %s/api/\n", ws.Address())
	if len(cfg.Web.Users) == 0 {
		fmt.Println("  No API users configured: mutation endpoints are open (see -admin-user).")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down...")
	return ws.Stop()
}

func printProject(w io.Writer, cfg *config.Config, sum batch.Summary) {
	fmt.Fprintf(w, "Project %s (%s frame, %d bits)\n", cfg.ProjectName(), cfg.Frame, cfg.Frame.Width())
	fmt.Fprintf(w, "  %d field(s), %d message template(s)\n", len(cfg.Fields), len(cfg.Messages))
	fmt.Fprintf(w, "  %d batch field(s): %d combination(s) x %d template(s) = %d message(s)\n",
		sum.BatchFields, sum.Combinations, sum.Templates, sum.Total)
}

func printValidation(w io.Writer, r engine.ValidationReport) {
	status := "valid"
	if !r.Valid {
		status = "INVALID"
	}
	fmt.Fprintf(w, "Layout: %s (%d of %d bits used, %s frame)\n", status, r.UsedBits, r.Width, r.Frame)
	for _, v := range r.Violations {
		fmt.Fprintf(w, "  [%s] %s\n", v.Kind, v.Message)
	}

	names := make([]string, 0, len(r.Patterns))
	for name := range r.Patterns {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p := r.Patterns[name]
		for _, e := range p.Errors {
			fmt.Fprintf(w, "  %s: pattern error: %s\n", name, e)
		}
		for _, warn := range p.Warnings {
			fmt.Fprintf(w, "  %s: pattern warning: %s\n", name, warn)
		}
		for _, is := range r.Messages[name] {
			fmt.Fprintf(w, "  %s: %s\n", name, is.Message)
		}
	}

	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warn)
	}

	s := r.Summary
	fmt.Fprintf(w, "Generation: %d combination(s) x %d template(s) = %d message(s)", s.Combinations, s.Templates, s.Total)
	if s.NeedsConfirmation {
		fmt.Fprintf(w, " (above threshold %d, needs -y)", s.Threshold)
	}
	fmt.Fprintln(w)
}

func printPreviews(w io.Writer, previews []engine.MessagePreview) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, p := range previews {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Message, p.Hex, p.Binary)
		for _, f := range p.Fields {
			fmt.Fprintf(tw, "  %s\t%d\t\n", f.Abbreviation, f.Value)
		}
		fmt.Fprintf(tw, "  names\t%s\t\n", strings.Join(p.Examples, ", "))
		if p.Warning != "" {
			fmt.Fprintf(tw, "  warning\t%s\t\n", p.Warning)
		}
	}
	tw.Flush()
}

func printPublish(w io.Writer, r *engine.PublishReport) {
	fmt.Fprintf(w, "Published %s (%d bytes)\n", r.Project, r.Bytes)
	for _, res := range r.Results {
		if res.Error != "" {
			fmt.Fprintf(w, "  %s/%s: FAILED: %s\n", res.Kind, res.Name, res.Error)
		} else {
			fmt.Fprintf(w, "  %s/%s: ok\n", res.Kind, res.Name)
		}
	}
}
