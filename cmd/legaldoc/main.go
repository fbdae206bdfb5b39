// Command legaldoc renders document templates against a context file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"text/tabwriter"

	jinja "github.com/AlexanderGrooff/legaldoc-jinja"
	"github.com/AlexanderGrooff/legaldoc-jinja/internal/config"
	"github.com/AlexanderGrooff/legaldoc-jinja/internal/contextfile"
	"github.com/AlexanderGrooff/legaldoc-jinja/internal/export"
	"github.com/AlexanderGrooff/legaldoc-jinja/internal/prompt"
	"github.com/AlexanderGrooff/legaldoc-jinja/internal/watch"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, nil)
	stop()
	os.Exit(code)
}

// errUsage makes run exit with status 2 after the command help was shown.
var errUsage = errors.New("usage")

// cli carries what every command needs.
type cli struct {
	ctx    context.Context
	stdout io.Writer
	stderr io.Writer
	cfg    *config.Config
	driver prompt.Driver
	create func(name string) (io.WriteCloser, error) // opens the -o file
}

// run executes the command in args and returns the process exit status. A
// nil driver prompts on the terminal.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, driver prompt.Driver) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, commandsHelp["legaldoc"])
		return 2
	}
	name := args[0]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "legaldoc %s: unknown command\nRun 'legaldoc help' for usage.\n", name)
		return 2
	}
	if driver == nil {
		driver = prompt.NewSurveyDriver()
	}
	c := &cli{
		ctx:    ctx,
		stdout: stdout,
		stderr: stderr,
		cfg:    config.FromEnvironment(),
		driver: driver,
		create: createFile,
	}
	err := cmd(c, args[1:])
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		return 2
	}
	fmt.Fprintf(stderr, "legaldoc %s: %v\n", name, err)
	return 1
}

// commandsHelp maps a command name to its usage text.
var commandsHelp = map[string]string{
	"legaldoc": `legaldoc renders document templates.

Usage:

	legaldoc <command> [arguments]

The commands are:

	render      render a template
	vars        list the context fields a template uses
	fill        ask for missing context fields, then render
	watch       render again whenever the template or context changes
	version     print the legaldoc version

Use "legaldoc help <command>" for more information about a command.

Environment: LEGALDOC_LOG_LEVEL, LEGALDOC_STRICT, LEGALDOC_FORMAT and
LEGALDOC_MAX_DEPTH set defaults that flags override.
`,
	"render": `usage: legaldoc render [-context file] [-o file] [-format text|html] [-strict] template

Render writes the template rendered against the context file (JSON or
YAML) to standard output or to the -o file. With -format html the
result is read as Markdown and written as a sanitised HTML page.
`,
	"vars": `usage: legaldoc vars template

Vars lists every context path the template reads and whether it is used
as a value, a condition or a sequence to iterate. It also reports any
syntax error anywhere in the template.
`,
	"fill": `usage: legaldoc fill [-context file] [-save file] [-o file] [-format text|html] [-strict] template

Fill asks for every context field the template needs but the context
file does not provide, optionally saves the completed context as YAML
with -save, and renders the template.
`,
	"watch": `usage: legaldoc watch [-context file] -o file [-format text|html] [-strict] template

Watch renders the template to the -o file and renders it again every
time the template or the context file changes, until interrupted.
`,
	"version": `usage: legaldoc version
`,
	"help": `usage: legaldoc help [command]
`,
}

// commands maps a command name to the function that executes it.
var commands = map[string]func(c *cli, args []string) error{
	"render":  (*cli).render,
	"vars":    (*cli).vars,
	"fill":    (*cli).fill,
	"watch":   (*cli).watch,
	"version": (*cli).version,
	"help":    (*cli).help,
}

// renderFlags are shared by render, fill and watch.
type renderFlags struct {
	context  string
	output   string
	format   string
	strict   bool
	maxDepth int
}

func (c *cli) flagSet(name string, rf *renderFlags) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	fs.Usage = func() { fmt.Fprint(c.stderr, commandsHelp[name]) }
	if rf != nil {
		fs.StringVar(&rf.context, "context", "", "JSON or YAML file with the context")
		fs.StringVar(&rf.output, "o", "", "write the result to this file instead of standard output")
		fs.StringVar(&rf.format, "format", c.cfg.Format, "output format: text or html")
		fs.BoolVar(&rf.strict, "strict", c.cfg.Strict, "fail on missing variables")
		fs.IntVar(&rf.maxDepth, "max-depth", c.cfg.MaxDepth, "maximum nesting of template blocks")
	}
	return fs
}

// parse parses args and returns the single template argument.
func (c *cli) parse(fs *flag.FlagSet, args []string, rf *renderFlags) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return "", errUsage
	}
	if rf != nil {
		c.cfg.Format = rf.format
		c.cfg.Strict = rf.strict
		c.cfg.MaxDepth = rf.maxDepth
	}
	if err := c.cfg.Validate(); err != nil {
		return "", err
	}
	return fs.Arg(0), nil
}

func (c *cli) logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(c.stderr, &slog.HandlerOptions{Level: c.cfg.SlogLevel()}))
}

func (c *cli) engine() *jinja.Engine {
	return jinja.New(c.cfg.EngineOptions(c.logger())...)
}

func createFile(name string) (io.WriteCloser, error) {
	return os.Create(name)
}

func loadContext(path string) (jinja.Value, error) {
	if path == "" {
		return jinja.Map(), nil
	}
	return contextfile.Load(path)
}

// output writes rendered in the configured format to the -o file or to
// standard output.
func (c *cli) output(rf *renderFlags, template, rendered string) error {
	if rf.output == "" {
		return c.write(c.stdout, template, rendered)
	}
	f, err := c.create(rf.output)
	if err != nil {
		return err
	}
	if err := c.write(f, template, rendered); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (c *cli) write(w io.Writer, template, rendered string) error {
	if c.cfg.Format == config.FormatHTML {
		title := strings.TrimSuffix(filepath.Base(template), filepath.Ext(template))
		return export.Page(w, title, "", []byte(rendered))
	}
	_, err := io.WriteString(w, rendered)
	return err
}

func (c *cli) render(args []string) error {
	var rf renderFlags
	fs := c.flagSet("render", &rf)
	template, err := c.parse(fs, args, &rf)
	if err != nil {
		return err
	}
	data, err := loadContext(rf.context)
	if err != nil {
		return err
	}
	out, err := c.engine().RenderFile(template, data)
	if err != nil {
		return err
	}
	return c.output(&rf, template, out)
}

func (c *cli) vars(args []string) error {
	fs := c.flagSet("vars", nil)
	path, err := c.parse(fs, args, nil)
	if err != nil {
		return err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	vars, err := jinja.Variables(string(src))
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	for _, v := range vars {
		fmt.Fprintf(tw, "%s\t%s\n", v.Path, v.Usage)
	}
	return tw.Flush()
}

func (c *cli) fill(args []string) error {
	var rf renderFlags
	fs := c.flagSet("fill", &rf)
	save := fs.String("save", "", "write the completed context to this YAML file")
	path, err := c.parse(fs, args, &rf)
	if err != nil {
		return err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	data, err := loadContext(rf.context)
	if err != nil {
		return err
	}
	filler := &prompt.Filler{Driver: c.driver, Logger: c.logger()}
	data, asked, err := filler.Fill(c.ctx, string(src), data)
	if err != nil {
		return err
	}
	if *save != "" && len(asked) > 0 {
		if err := contextfile.Save(*save, data); err != nil {
			return err
		}
	}
	out, err := c.engine().Render(string(src), data)
	if err != nil {
		return err
	}
	return c.output(&rf, path, out)
}

func (c *cli) watch(args []string) error {
	var rf renderFlags
	fs := c.flagSet("watch", &rf)
	template, err := c.parse(fs, args, &rf)
	if err != nil {
		return err
	}
	if rf.output == "" {
		fs.Usage()
		return errUsage
	}
	files := []string{template}
	if rf.context != "" {
		files = append(files, rf.context)
	}
	logger := c.logger()
	w, err := watch.New(files, 0, logger)
	if err != nil {
		return err
	}
	defer w.Close()

	engine := c.engine()
	return w.Run(c.ctx, func() error {
		data, err := loadContext(rf.context)
		if err != nil {
			return err
		}
		out, err := engine.RenderFile(template, data)
		if err != nil {
			return err
		}
		return c.output(&rf, template, out)
	})
}

func (c *cli) version(args []string) error {
	fs := c.flagSet("version", nil)
	if err := fs.Parse(args); err != nil {
		return err
	}
	_, err := fmt.Fprintf(c.stdout, "legaldoc %s\n", version)
	return err
}

func (c *cli) help(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(c.stdout, commandsHelp["legaldoc"])
		return nil
	}
	text, ok := commandsHelp[args[0]]
	if !ok {
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	fmt.Fprint(c.stdout, text)
	return nil
}
