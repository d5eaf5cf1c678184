package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"
	"github.com/jaxxstorm/gitver"
	"github.com/jaxxstorm/gitver/internal/logger"
	"go.uber.org/zap"
)

// Version will be set by build process
var Version = "dev"

type CLI struct {
	Commitish    string `arg:"" optional:"" help:"Git commitish to analyze (default: HEAD)"`
	Repo         string `short:"r" help:"Repository path (default: current directory)"`
	Branch       string `short:"b" help:"Branch name to version as, e.g. on a detached HEAD in CI"`
	Config       string `short:"c" help:"Configuration file (default: gitver.yml in the working directory or repository root)"`
	TagPrefix    string `help:"Regex matched against the start of version tags (default: [vV])"`
	ShowVariable string `short:"s" help:"Print a single variable, e.g. FullSemVer"`
	JSON         bool   `short:"j" help:"Output all variables as JSON"`
	ShowConfig   bool   `help:"Print the effective configuration and exit"`
	CreateTag    bool   `help:"Tag the analyzed commit with the calculated version"`
	Verbose      bool   `short:"v" help:"Enable debug logging"`
	ShowVersion  bool   `help:"Show version information" name:"version"`
}

func main() {
	var cli CLI

	kong.Parse(&cli,
		kong.Name("gitver"),
		kong.Description("Calculate semantic versions from Git branches, tags and merge history"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": Version,
		},
	)

	err := cli.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (c *CLI) Run() error {
	return c.run(os.Stdout, os.Stderr)
}

// run writes the version to out and status messages to errOut.
func (c *CLI) run(out, errOut io.Writer) error {
	if c.ShowVersion {
		return c.showVersion(out)
	}

	level := "warn"
	if c.Verbose {
		level = "debug"
	}
	log, err := logger.New(level, true)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	return c.calculateVersion(out, errOut, log)
}

func (c *CLI) showVersion(out io.Writer) error {
	versionInfo := map[string]string{
		"version": Version,
		"name":    "gitver",
	}

	if c.JSON {
		return json.NewEncoder(out).Encode(versionInfo)
	}

	fmt.Fprintf(out, "gitver version %s\n", Version)
	return nil
}

func (c *CLI) repoPath() (string, error) {
	if c.Repo != "" {
		return c.Repo, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	return wd, nil
}

func (c *CLI) loadConfig(repoRoot string, log *zap.Logger) (*gitver.Config, error) {
	var cfg *gitver.Config
	if c.Config != "" {
		loaded, err := gitver.LoadConfigFile(c.Config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting current directory: %w", err)
		}
		loaded, path, err := gitver.LoadConfig(wd, repoRoot)
		if err != nil {
			return nil, err
		}
		if path != "" {
			log.Debug("loaded configuration", zap.String("path", path))
		}
		cfg = loaded
	}

	if c.TagPrefix != "" {
		cfg.TagPrefix = gitver.Point(c.TagPrefix)
	}
	return cfg, nil
}

func (c *CLI) calculateVersion(out, errOut io.Writer, log *zap.Logger) error {
	repoPath, err := c.repoPath()
	if err != nil {
		return err
	}

	repo, err := gitver.OpenRepository(repoPath)
	if err != nil {
		return fmt.Errorf("opening repository %s: %w", repoPath, err)
	}

	repoRoot := repoPath
	if wt, err := repo.Worktree(); err == nil {
		repoRoot = wt.Filesystem.Root()
	}

	cfg, err := c.loadConfig(repoRoot, log)
	if err != nil {
		return err
	}

	if c.ShowConfig {
		resolved, err := gitver.ResolveConfig(cfg)
		if err != nil {
			return err
		}
		return gitver.WriteConfig(out, resolved)
	}

	gitRepo := gitver.NewRepository(repo, c.Commitish)
	vars, err := gitver.Calculate(gitver.Options{
		Repository: gitRepo,
		Config:     cfg,
		Branch:     c.Branch,
		Logger:     log,
	})
	if err != nil {
		return fmt.Errorf("calculating version: %w", err)
	}

	if c.CreateTag {
		name := "v" + vars.SemVer
		if err := gitRepo.Tag(name); err != nil {
			return err
		}
		log.Debug("created tag", zap.String("tag", name), zap.String("commit", vars.ShortSha))
		fmt.Fprintf(errOut, "created tag %s\n", name)
	}

	return writeOutput(out, vars, c.JSON, c.ShowVariable)
}

func writeOutput(out io.Writer, vars *gitver.VersionVariables, asJSON bool, variable string) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(vars)
	}

	if variable != "" {
		value, ok := vars.Lookup(variable)
		if !ok {
			return fmt.Errorf("unknown variable %q", variable)
		}
		fmt.Fprintln(out, value)
		return nil
	}

	fmt.Fprintln(out, vars.SemVer)
	return nil
}
