// Package main is the Valkiria document core CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/cli"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/config"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/generate"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/models"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/server"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/signing"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/variables"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/watcher"
	"github.com/hectronix2005/Valkiria-ECM-sub002/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/valkiria/config.yaml"

// loadConfig loads config from path. When path is the default and config.yaml exists in
// the current directory, that file is used instead.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				cfg, err := config.Load(fallback)
				if err != nil {
					return nil, "", err
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	args := argsReorder(os.Args[2:])
	switch command {
	case "server":
		runServer(args)
	case "import":
		runImport(args)
	case "templates":
		runTemplates(args)
	case "configure":
		runConfigure(args)
	case "activate", "archive":
		runTemplateStatus(command, args)
	case "validate":
		runValidate(args)
	case "generate":
		runGenerate(args)
	case "show":
		runShow(args)
	case "sign":
		runSign(args)
	case "cancel":
		runCancel(args)
	case "render":
		runRender(args)
	case "stamp":
		runStamp(args)
	case "register-signature":
		runRegisterSignature(args)
	case "version", "--version", "-v":
		fmt.Printf("valkiria version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// argsReorder moves flags that follow positional arguments to the front so that
// "valkiria sign doc-1 --signer u-1" parses the same as "valkiria sign --signer u-1 doc-1".
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// app is the state shared by one-shot commands.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	components *Components
	format     cli.OutputFormat
}

// commonFlags registers --config, --debug and --output on fs.
func commonFlags(fs *flag.FlagSet) (configPath *string, debug *bool, output *string) {
	configPath = fs.String("config", defaultConfigPath, "config file path")
	debug = fs.Bool("debug", false, "enable debug logging")
	output = fs.String("output", "text", "output format: text or json")
	return
}

func setup(configPath string, debug bool, output string) *app {
	format, err := cli.ParseOutputFormat(output)
	if err != nil {
		fatalf("%v", err)
	}
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))
	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		fatalf("Failed to initialize: %v", err)
	}
	return &app{cfg: cfg, logger: logger, components: components, format: format}
}

func (a *app) Close() {
	a.components.Close()
	_ = a.logger.Sync()
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// requireArg returns the single positional argument or exits with usage.
func requireArg(fs *flag.FlagSet, what string) string {
	if fs.NArg() != 1 {
		fatalf("Usage: valkiria %s [flags] <%s>", fs.Name(), what)
	}
	return fs.Arg(0)
}

func runServer(args []string) {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath, debug, _ := commonFlags(fs)
	_ = fs.Parse(args)

	a := setup(*configPath, *debug, "text")
	defer a.Close()
	cfg, logger := a.cfg, a.logger

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if dirs := cfg.Templates.Directories; len(dirs) > 0 {
		for _, dir := range dirs {
			n, err := a.components.Generator.ImportDirectory(ctx, dir, cfg.Templates.Extensions)
			if err != nil {
				logger.Warn("template directory sync failed", zap.String("dir", dir), zap.Error(err))
			}
			logger.Info("template directory synced", zap.String("dir", dir), zap.Int("imported", n))
		}
		w := watcher.New(dirs, cfg.Templates.Extensions, cfg.Templates.RecursiveOrDefault(), a.components.Generator,
			watcher.WithLogger(logger))
		if err := w.Start(ctx); err != nil {
			logger.Fatal("Failed to start template watcher", zap.Error(err))
		}
		defer w.Stop()
	}

	srv := server.NewServer(a.components.Generator, a.components.Workflow, a.components.Storage, a.components.Blobs, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

func runImport(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath, debug, output := commonFlags(fs)
	_ = fs.Parse(args)
	path := requireArg(fs, "file-or-directory")

	a := setup(*configPath, *debug, *output)
	defer a.Close()
	ctx := context.Background()
	exts := a.cfg.Templates.Extensions

	info, err := os.Stat(path)
	if err != nil {
		fatalf("Import failed: %v", err)
	}
	if info.IsDir() {
		n, err := a.components.Generator.ImportDirectory(ctx, path, exts)
		if err != nil {
			fatalf("Import failed after %d template(s): %v", n, err)
		}
		fmt.Printf("Imported %d template(s) from %s\n", n, path)
		return
	}
	tmpl, changed, err := a.components.Generator.ImportFile(ctx, path, exts)
	if err != nil {
		fatalf("Import failed: %v", err)
	}
	if !changed && a.format == cli.OutputText {
		fmt.Println("Template unchanged.")
	}
	if err := cli.WriteTemplate(os.Stdout, tmpl, a.format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runTemplates(args []string) {
	fs := flag.NewFlagSet("templates", flag.ExitOnError)
	configPath, debug, output := commonFlags(fs)
	limit := fs.Int("limit", 50, "number of templates")
	_ = fs.Parse(args)

	a := setup(*configPath, *debug, *output)
	defer a.Close()
	list, err := a.components.Storage.ListTemplates(context.Background(), 0, *limit)
	if err != nil {
		fatalf("List failed: %v", err)
	}
	if err := cli.WriteTemplates(os.Stdout, list, a.format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runConfigure(args []string) {
	fs := flag.NewFlagSet("configure", flag.ExitOnError)
	configPath, debug, output := commonFlags(fs)
	settingsPath := fs.String("settings", "", "YAML file with field_map, signatories and sequential_signing")
	_ = fs.Parse(args)
	id := requireArg(fs, "template-id")
	if *settingsPath == "" {
		fatalf("--settings is required")
	}
	var settings generate.TemplateSettings
	if err := readYAML(*settingsPath, &settings); err != nil {
		fatalf("Failed to read settings: %v", err)
	}

	a := setup(*configPath, *debug, *output)
	defer a.Close()
	tmpl, err := a.components.Generator.ConfigureTemplate(context.Background(), id, settings)
	if err != nil {
		fatalf("Configure failed: %v", err)
	}
	if err := cli.WriteTemplate(os.Stdout, tmpl, a.format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runTemplateStatus(command string, args []string) {
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	configPath, debug, output := commonFlags(fs)
	_ = fs.Parse(args)
	id := requireArg(fs, "template-id")

	a := setup(*configPath, *debug, *output)
	defer a.Close()
	ctx := context.Background()
	var tmpl *models.Template
	var err error
	if command == "activate" {
		tmpl, err = a.components.Generator.Activate(ctx, id)
	} else {
		tmpl, err = a.components.Generator.Archive(ctx, id)
	}
	if err != nil {
		fatalf("%s failed: %v", command, err)
	}
	if err := cli.WriteTemplate(os.Stdout, tmpl, a.format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

// readYAML decodes the YAML file at path into v.
func readYAML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, v)
}

// loadContext reads a context bundle file. The kind key is checked against the known
// record kinds.
func loadContext(path string) (variables.Context, error) {
	var bundle variables.Context
	if err := readYAML(path, &bundle); err != nil {
		return variables.Context{}, fmt.Errorf("failed to read context: %w", err)
	}
	if bundle.Kind != "" {
		kind, err := variables.ParseKind(string(bundle.Kind))
		if err != nil {
			return variables.Context{}, err
		}
		bundle.Kind = kind
	}
	return bundle, nil
}

func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configPath, debug, output := commonFlags(fs)
	contextPath := fs.String("context", "", "YAML context bundle")
	_ = fs.Parse(args)
	id := requireArg(fs, "template-id")
	bundle, err := loadContext(*contextPath)
	if err != nil {
		fatalf("%v", err)
	}

	a := setup(*configPath, *debug, *output)
	defer a.Close()
	report, err := a.components.Generator.Validate(context.Background(), id, bundle)
	if err != nil {
		fatalf("Validate failed: %v", err)
	}
	if err := cli.WriteReport(os.Stdout, report, a.format); err != nil {
		fatalf("Output failed: %v", err)
	}
	if !report.OK() {
		os.Exit(2)
	}
}

func runGenerate(args []string) {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	configPath, debug, output := commonFlags(fs)
	contextPath := fs.String("context", "", "YAML context bundle")
	_ = fs.Parse(args)
	id := requireArg(fs, "template-id")
	bundle, err := loadContext(*contextPath)
	if err != nil {
		fatalf("%v", err)
	}

	a := setup(*configPath, *debug, *output)
	defer a.Close()
	doc, err := a.components.Generator.Generate(context.Background(), id, bundle)
	var verr *generate.ValidationError
	if errors.As(err, &verr) {
		_ = cli.WriteReport(os.Stderr, verr.Report, a.format)
		os.Exit(2)
	}
	if err != nil {
		fatalf("Generate failed: %v", err)
	}
	a.writeDocument(doc)
}

func (a *app) writeDocument(doc *models.DocumentRecord) {
	if err := cli.WriteDocument(os.Stdout, doc, a.format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runShow(args []string) {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	configPath, debug, output := commonFlags(fs)
	_ = fs.Parse(args)
	id := requireArg(fs, "document-id")

	a := setup(*configPath, *debug, *output)
	defer a.Close()
	doc, err := a.components.Storage.GetDocument(context.Background(), id)
	if err != nil {
		fatalf("Show failed: %v", err)
	}
	a.writeDocument(doc)
}

// parseRoles splits a comma-separated role list, dropping empty entries.
func parseRoles(s string) []string {
	var roles []string
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}

// parseGeometry reads "page,x,y,width,height".
func parseGeometry(s string) (*models.Geometry, error) {
	if s == "" {
		return nil, nil
	}
	var g models.Geometry
	if _, err := fmt.Sscanf(s, "%d,%g,%g,%g,%g", &g.Page, &g.X, &g.Y, &g.Width, &g.Height); err != nil {
		return nil, fmt.Errorf("invalid geometry %q (want page,x,y,width,height): %w", s, err)
	}
	return &g, nil
}

func runSign(args []string) {
	fs := flag.NewFlagSet("sign", flag.ExitOnError)
	configPath, debug, output := commonFlags(fs)
	signerID := fs.String("signer", "", "signer identity")
	name := fs.String("name", "", "signer display name")
	roles := fs.String("roles", "", "comma-separated roles held by the signer")
	role := fs.String("role", "", "slot role to sign when several are eligible")
	signatureFile := fs.String("signature", "", "signature image (PNG or JPEG); default: registered signature")
	geometry := fs.String("geometry", "", "override placement: page,x,y,width,height")
	_ = fs.Parse(args)
	id := requireArg(fs, "document-id")
	if *signerID == "" {
		fatalf("--signer is required")
	}
	geom, err := parseGeometry(*geometry)
	if err != nil {
		fatalf("%v", err)
	}

	a := setup(*configPath, *debug, *output)
	defer a.Close()
	ctx := context.Background()
	var ref string
	if *signatureFile != "" {
		img, err := os.ReadFile(*signatureFile)
		if err != nil {
			fatalf("Failed to read signature: %v", err)
		}
		if ref, err = a.components.Blobs.Put(ctx, img); err != nil {
			fatalf("Failed to store signature: %v", err)
		}
	}
	doc, err := a.components.Workflow.Sign(ctx, signing.SignRequest{
		DocumentID:   id,
		Signer:       signing.Signer{ID: *signerID, Name: *name, Roles: parseRoles(*roles)},
		SignatureRef: ref,
		Geometry:     geom,
		Role:         *role,
	})
	if err != nil {
		fatalf("Sign failed: %v", err)
	}
	a.writeDocument(doc)
}

func runCancel(args []string) {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	configPath, debug, output := commonFlags(fs)
	_ = fs.Parse(args)
	id := requireArg(fs, "document-id")

	a := setup(*configPath, *debug, *output)
	defer a.Close()
	doc, err := a.components.Workflow.Cancel(context.Background(), id)
	if err != nil {
		fatalf("Cancel failed: %v", err)
	}
	a.writeDocument(doc)
}

func runRender(args []string) {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	configPath, debug, output := commonFlags(fs)
	pdfPath := fs.String("pdf", "", "attach an externally rendered PDF instead of running the converters")
	_ = fs.Parse(args)
	id := requireArg(fs, "document-id")

	a := setup(*configPath, *debug, *output)
	defer a.Close()
	ctx := context.Background()
	var doc *models.DocumentRecord
	var err error
	if *pdfPath != "" {
		pdf, readErr := os.ReadFile(*pdfPath)
		if readErr != nil {
			fatalf("Failed to read PDF: %v", readErr)
		}
		doc, err = a.components.Generator.AttachRender(ctx, id, pdf)
	} else {
		doc, err = a.components.Generator.Rerender(ctx, id)
	}
	if err != nil {
		fatalf("Render failed: %v", err)
	}
	a.writeDocument(doc)
}

func runStamp(args []string) {
	fs := flag.NewFlagSet("stamp", flag.ExitOnError)
	configPath, debug, output := commonFlags(fs)
	_ = fs.Parse(args)
	id := requireArg(fs, "document-id")

	a := setup(*configPath, *debug, *output)
	defer a.Close()
	doc, err := a.components.Workflow.RetryStamp(context.Background(), id)
	if err != nil {
		fatalf("Stamp failed: %v", err)
	}
	a.writeDocument(doc)
}

func runRegisterSignature(args []string) {
	fs := flag.NewFlagSet("register-signature", flag.ExitOnError)
	configPath, debug, _ := commonFlags(fs)
	signerID := fs.String("signer", "", "signer identity")
	_ = fs.Parse(args)
	path := requireArg(fs, "image-file")
	if *signerID == "" {
		fatalf("--signer is required")
	}
	img, err := os.ReadFile(path)
	if err != nil {
		fatalf("Failed to read signature: %v", err)
	}

	a := setup(*configPath, *debug, "text")
	defer a.Close()
	ctx := context.Background()
	ref, err := a.components.Blobs.Put(ctx, img)
	if err != nil {
		fatalf("Failed to store signature: %v", err)
	}
	if err := a.components.Storage.SetDefaultSignature(ctx, *signerID, ref); err != nil {
		fatalf("Failed to register signature: %v", err)
	}
	fmt.Printf("Signature registered for %s: %s\n", *signerID, ref)
}

func printUsage() {
	fmt.Println(`valkiria - Template fill, render and e-signature core

Usage:
  valkiria server [flags]                          Start the HTTP server and template watcher
  valkiria import [flags] <file|dir>               Import .docx templates
  valkiria templates [flags]                       List templates
  valkiria configure --settings f.yaml <tpl-id>    Set field map, signatories and ordering
  valkiria activate <tpl-id>                       Make a template available for generation
  valkiria archive <tpl-id>                        Retire a template
  valkiria validate --context ctx.yaml <tpl-id>    Report fields a context cannot fill
  valkiria generate --context ctx.yaml <tpl-id>    Generate a document
  valkiria show <doc-id>                           Show a document and its signatures
  valkiria sign --signer <id> [flags] <doc-id>     Sign a document
  valkiria cancel <doc-id>                         Cancel a document
  valkiria render [--pdf file] <doc-id>            Retry or attach the render of a pending document
  valkiria stamp <doc-id>                          Retry stamping a completed document
  valkiria register-signature --signer <id> <img>  Register a default signature image
  valkiria version                                 Show version
  valkiria help                                    Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/valkiria/config.yaml)
  --debug            Enable debug logging
  --output string    Output format: text or json (default: text)

Sign Flags:
  --name string        Signer display name
  --roles string       Comma-separated roles held by the signer (for claimable slots)
  --role string        Slot role to sign when several are eligible
  --signature string   Signature image file; default: the signer's registered signature
  --geometry string    Override placement: page,x,y,width,height (PDF points)

Examples:
  valkiria import ./plantillas
  valkiria validate --context ana.yaml tpl-3f2a9c
  valkiria generate --context ana.yaml --output json tpl-3f2a9c
  valkiria sign --signer u-17 --roles hr doc-8d1e`)
}
