// Command newslens fetches news on a topic from multiple RSS sources and
// produces an LLM-written comparative analysis.
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v2"

	"newslens/internal/catalog"
	"newslens/internal/config"
	"newslens/internal/fetch"
	"newslens/internal/llm"
	"newslens/internal/logging"
	"newslens/internal/model"
	"newslens/internal/pipeline"
	"newslens/internal/report"
	"newslens/internal/store"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	faintStyle   = lipgloss.NewStyle().Faint(true)
	sectionStyle = lipgloss.NewStyle().Bold(true)
)

func main() {
	app := &cli.App{
		Name:  "newslens",
		Usage: "multi-source news analysis with LLM synthesis",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "echo log output to stderr",
			},
		},
		Commands: []*cli.Command{
			analyzeCommand(),
			listSourcesCommand(),
			historyCommand(),
			showCommand(),
			configCommand(),
			testCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

// setup loads configuration and initializes logging. Every command goes
// through here first.
func setup(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := logging.Init(cfg.LogDir, c.Bool("verbose")); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	cat := catalog.New()
	if cfg.SourcesFile != "" {
		if err := cat.LoadFile(cfg.SourcesFile); err != nil {
			return nil, err
		}
	}
	return cat, nil
}

func analyzeCommand() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "fetch articles on a topic and synthesize a comparison",
		ArgsUsage: "<topic>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "category",
				Aliases: []string{"c"},
				Value:   "default",
				Usage:   "source category to fetch from (see list-sources)",
			},
			&cli.StringSliceFlag{
				Name:    "source",
				Aliases: []string{"s"},
				Usage:   "feed URL to fetch, repeatable; replaces the category unless --category is also given",
			},
			&cli.StringFlag{
				Name:    "provider",
				Aliases: []string{"p"},
				Usage:   "provider tried first: anthropic, openai, gemini",
			},
			&cli.IntFlag{
				Name:    "max-articles",
				Aliases: []string{"n"},
				Usage:   "cap on articles kept per source",
			},
			&cli.BoolFlag{
				Name:  "no-storage",
				Usage: "skip JSON persistence",
			},
			&cli.BoolFlag{
				Name:  "no-output",
				Usage: "skip the markdown report",
			},
		},
		Action: runAnalyze,
	}
}

func runAnalyze(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("a topic is required: newslens analyze <topic>", 1)
	}
	topic := strings.Join(c.Args().Slice(), " ")

	cfg, err := setup(c)
	if err != nil {
		return err
	}
	defer logging.Close()

	if problems := cfg.Validate(); len(problems) > 0 {
		for _, p := range problems {
			fmt.Fprintln(os.Stderr, errStyle.Render("config: ")+p)
		}
		return cli.Exit("configuration is not usable", 1)
	}

	cat, err := loadCatalog(cfg)
	if err != nil {
		return err
	}
	sources := resolveSources(c, cat)

	maxArticles := cfg.MaxArticlesPerSource
	if c.IsSet("max-articles") {
		maxArticles = c.Int("max-articles")
	}

	preferred := []string{cfg.DefaultProvider}
	if c.IsSet("provider") {
		preferred = []string{c.String("provider")}
	}

	providers := llm.ResolveOrder(llm.CreateProviders(cfg), preferred)
	synthesizer := llm.NewSynthesizer(providers, cfg.MaxTokens, cfg.LLMMaxRetries, cfg.LLMBackoff)
	fetcher := fetch.New(maxArticles, cfg.FetchTimeout)

	st, err := store.New(cfg.DataDir)
	if err != nil {
		return err
	}
	renderer := report.New(cfg.OutputDir)

	p := pipeline.New(fetcher, synthesizer, st, renderer, cfg.LogDir, cfg.RunTimeout)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fmt.Println(titleStyle.Render("Analyzing: ") + topic)
	fmt.Println(faintStyle.Render(fmt.Sprintf("%d source(s), category %q", len(sources), c.String("category"))))

	result := p.Run(ctx, pipeline.Request{
		Topic:   topic,
		Sources: sources,
		Options: pipeline.Options{
			SkipStorage: c.Bool("no-storage"),
			SkipOutput:  c.Bool("no-output"),
		},
	})

	printResult(result)

	if result.Status == pipeline.Aborted {
		return cli.Exit("", 1)
	}
	return nil
}

// resolveSources combines the category selection with ad-hoc --source URLs.
// Explicit URLs alone replace the category; together with an explicit
// --category they extend it.
func resolveSources(c *cli.Context, cat *catalog.Catalog) []model.Source {
	var sources []model.Source
	if c.IsSet("category") || !c.IsSet("source") {
		sources = cat.ByCategory(c.String("category"))
	}
	for _, u := range c.StringSlice("source") {
		name := u
		if parsed, err := url.Parse(u); err == nil && parsed.Host != "" {
			name = parsed.Host
		}
		sources = append(sources, model.Source{Name: name, URL: u, Category: "custom"})
	}
	return sources
}

func printResult(result pipeline.Result) {
	for _, se := range result.SourceErrors {
		fmt.Println(warnStyle.Render("  source failed: ") + se.Error())
	}

	if result.Status == pipeline.Aborted {
		fmt.Println(errStyle.Render("Aborted: ") + result.Err.Error())
		return
	}

	s := result.Synthesis
	fmt.Println()
	fmt.Println(sectionStyle.Render("Common Themes"))
	for _, t := range s.CommonThemes {
		fmt.Println("  - " + t)
	}
	fmt.Println()
	fmt.Println(sectionStyle.Render("Summary"))
	fmt.Println("  " + s.Summary)
	fmt.Println()
	fmt.Println(sectionStyle.Render("Key Takeaways"))
	for _, t := range s.Takeaways {
		fmt.Println("  - " + t)
	}
	fmt.Println()

	fmt.Println(okStyle.Render("Provider: ") + s.ProviderUsed)
	if result.Metrics != nil {
		fmt.Println(okStyle.Render("Cost: ") + fmt.Sprintf("$%.4f (%d tokens)",
			result.Metrics.TotalCostUSD, result.Metrics.TotalTokens))
		elapsed := result.Metrics.FinishedAt.Sub(result.Metrics.StartedAt)
		fmt.Println(okStyle.Render("Elapsed: ") + elapsed.Round(time.Millisecond).String())
	}
	if result.StorageID != "" {
		fmt.Println(okStyle.Render("Saved: ") + result.StorageID)
	}
	if result.OutputPath != "" {
		fmt.Println(okStyle.Render("Report: ") + result.OutputPath)
	}
	for _, note := range result.Notes {
		fmt.Println(warnStyle.Render("Warning: ") + note)
	}
}

func listSourcesCommand() *cli.Command {
	return &cli.Command{
		Name:  "list-sources",
		Usage: "list the configured source categories and feeds",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "category",
				Aliases: []string{"c"},
				Usage:   "show one category only",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := setup(c)
			if err != nil {
				return err
			}
			defer logging.Close()

			cat, err := loadCatalog(cfg)
			if err != nil {
				return err
			}

			categories := cat.Categories()
			if c.IsSet("category") {
				categories = []string{c.String("category")}
			}
			for _, category := range categories {
				if category == "all" {
					continue
				}
				fmt.Println(titleStyle.Render(category))
				for _, src := range cat.ByCategory(category) {
					fmt.Printf("  %-16s %s\n", src.Name, faintStyle.Render(src.URL))
				}
			}
			return nil
		},
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "list stored analyses, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Value:   10,
				Usage:   "number of entries to show",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := setup(c)
			if err != nil {
				return err
			}
			defer logging.Close()

			st, err := store.New(cfg.DataDir)
			if err != nil {
				return err
			}
			entries, err := st.List()
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println(faintStyle.Render("no stored analyses"))
				return nil
			}

			limit := c.Int("limit")
			for i := len(entries) - 1; i >= 0 && len(entries)-i <= limit; i-- {
				e := entries[i]
				fmt.Printf("%s  %s  %s\n",
					faintStyle.Render(e.Timestamp.Format("2006-01-02 15:04")),
					titleStyle.Render(e.Identifier),
					fmt.Sprintf("%d articles from %d source(s)", e.ArticleCount, len(e.Sources)))
			}
			return nil
		},
	}
}

func showCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "print one stored analysis",
		ArgsUsage: "<identifier>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("an identifier is required: newslens show <identifier>", 1)
			}

			cfg, err := setup(c)
			if err != nil {
				return err
			}
			defer logging.Close()

			st, err := store.New(cfg.DataDir)
			if err != nil {
				return err
			}
			rec, articles, err := st.Load(c.Args().First())
			if err != nil {
				return err
			}

			fmt.Println(titleStyle.Render("Topic: ") + rec.Synthesis.Topic)
			fmt.Println(faintStyle.Render(rec.Timestamp.Format("2006-01-02 15:04:05")))
			fmt.Println()
			printResult(pipeline.Result{
				Status:    pipeline.Completed,
				Synthesis: &rec.Synthesis,
			})
			if len(articles) > 0 {
				fmt.Println()
				fmt.Println(sectionStyle.Render(fmt.Sprintf("Articles (%d)", len(articles))))
				for _, a := range articles {
					fmt.Printf("  [%s] %s\n", a.SourceName, a.Title)
				}
			}
			return nil
		},
	}
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "print the resolved configuration",
		Action: func(c *cli.Context) error {
			cfg, err := setup(c)
			if err != nil {
				return err
			}
			defer logging.Close()

			fmt.Println(titleStyle.Render("Providers"))
			for _, name := range []string{"anthropic", "openai", "gemini"} {
				status := errStyle.Render("no key")
				if cfg.APIKey(name) != "" {
					status = okStyle.Render("configured")
				}
				marker := " "
				if name == cfg.DefaultProvider {
					marker = "*"
				}
				fmt.Printf("  %s %-10s %s\n", marker, name, status)
			}

			fmt.Println(titleStyle.Render("Settings"))
			fmt.Printf("  max_tokens               %d\n", cfg.MaxTokens)
			fmt.Printf("  max_articles_per_source  %d\n", cfg.MaxArticlesPerSource)
			fmt.Printf("  fetch_timeout            %s\n", cfg.FetchTimeout)
			fmt.Printf("  run_timeout              %s\n", cfg.RunTimeout)
			fmt.Printf("  data_dir                 %s\n", cfg.DataDir)
			fmt.Printf("  output_dir               %s\n", cfg.OutputDir)
			fmt.Printf("  log_dir                  %s\n", cfg.LogDir)

			if problems := cfg.Validate(); len(problems) > 0 {
				fmt.Println(titleStyle.Render("Problems"))
				for _, p := range problems {
					fmt.Println("  " + errStyle.Render(p))
				}
			}
			return nil
		},
	}
}

func testCommand() *cli.Command {
	return &cli.Command{
		Name:  "test",
		Usage: "send a minimal request to each configured provider",
		Action: func(c *cli.Context) error {
			cfg, err := setup(c)
			if err != nil {
				return err
			}
			defer logging.Close()

			providers := llm.CreateProviders(cfg)
			tested := 0
			for _, p := range providers {
				if !p.Available() {
					fmt.Printf("  %-10s %s\n", p.Name(), faintStyle.Render("skipped, no key"))
					continue
				}
				tested++
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				start := time.Now()
				_, err := p.Call(ctx, "Reply with the single word OK.", 16)
				cancel()
				if err != nil {
					fmt.Printf("  %-10s %s %v\n", p.Name(), errStyle.Render("failed"), err)
					continue
				}
				fmt.Printf("  %-10s %s (%s, %s)\n", p.Name(), okStyle.Render("ok"),
					p.Model(), time.Since(start).Round(time.Millisecond))
			}
			if tested == 0 {
				return cli.Exit("no provider has a configured credential", 1)
			}
			return nil
		},
	}
}
