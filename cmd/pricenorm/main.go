package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"pricenorm/internal"
	"pricenorm/internal/config"
	"pricenorm/internal/logging"
	"pricenorm/internal/pipeline"
	"pricenorm/internal/registry"
	"pricenorm/internal/storage"
	"pricenorm/internal/util"
	"pricenorm/internal/workbook"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	must(err)

	app := &cli.App{
		Name:    "pricenorm",
		Usage:   "Normalize public-works price spreadsheets into service records",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   cfg.LogLevel,
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   cfg.LogFormat,
				Usage:   "Log format (text, json)",
				EnvVars: []string{"LOG_FORMAT"},
			},
			&cli.StringFlag{
				Name:    "profiles",
				Value:   cfg.ProfilesPath,
				Usage:   "YAML profile table replacing the built-in one",
				EnvVars: []string{"PROFILES_PATH"},
			},
		},
		Before: func(c *cli.Context) error {
			cfg.LogLevel = c.String("log-level")
			cfg.LogFormat = c.String("log-format")
			cfg.ProfilesPath = c.String("profiles")
			if err := cfg.Validate(); err != nil {
				return err
			}
			logging.Setup(cfg.LogLevel, cfg.LogFormat)
			return nil
		},
		Commands: []*cli.Command{
			ingestCommand(&cfg),
			matchCommand(&cfg),
			profilesCommand(&cfg),
		},
	}

	must(app.Run(os.Args))
}

func ingestCommand(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "ingest",
		Usage:     "Extract, validate and optionally store the records of one or more workbooks",
		ArgsUsage: "[file or directory...]",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "input",
				Aliases: []string{"i"},
				Usage:   "Workbook file or directory (repeatable)",
			},
			&cli.StringFlag{
				Name:    "reference",
				Aliases: []string{"r"},
				Usage:   "Reference period YYYY-MM (defaults to the current month)",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write a review workbook to this xlsx path",
			},
			&cli.BoolFlag{
				Name:  "export",
				Usage: "Write the review workbook under OUTPUT_DIR",
			},
			&cli.BoolFlag{
				Name:  "persist",
				Usage: "Store accepted records in the SQLite database",
			},
			&cli.BoolFlag{
				Name:  "skip-processed",
				Usage: "With --persist, skip files already processed with identical content",
			},
			&cli.IntFlag{
				Name:  "workers",
				Value: cfg.IngestWorkers,
				Usage: "Workbooks processed concurrently",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: cfg.IngestFileTimeout,
				Usage: "Processing time budget per workbook",
			},
		},
		Action: func(c *cli.Context) error {
			paths, err := collectInputs(append(c.StringSlice("input"), c.Args().Slice()...))
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return errors.New("no input workbooks; pass --input or file arguments")
			}

			reference := util.MonthStart(time.Now())
			if raw := strings.TrimSpace(c.String("reference")); raw != "" {
				t, ok := util.ParsePeriod(raw)
				if !ok {
					return fmt.Errorf("invalid --reference %q, expected YYYY-MM", raw)
				}
				reference = t
			}

			reg, err := loadRegistry(cfg.ProfilesPath)
			if err != nil {
				return err
			}

			var db *storage.DB
			if c.Bool("persist") {
				db, err = storage.Open(cfg.DBPath)
				if err != nil {
					return err
				}
				defer db.Close()
			}

			inputs, skipped, err := readInputs(db, paths, reference, c.Bool("skip-processed"))
			if err != nil {
				return err
			}
			for _, p := range skipped {
				fmt.Printf("skipped %s (unchanged since last run)\n", p)
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			engine := pipeline.NewEngine(reg, pipeline.Options{
				HeaderScanRows: cfg.HeaderScanRows,
				SampleRows:     cfg.MatchSampleRows,
				MinConfidence:  cfg.MatchMinConfidence,
				FileTimeout:    c.Duration("timeout"),
				Workers:        c.Int("workers"),
			})
			batch := engine.RunBatch(ctx, inputs)
			printBatch(batch)

			output := c.String("output")
			if output == "" && c.Bool("export") {
				output = filepath.Join(cfg.OutputDir, "pricenorm-"+batch.ID+".xlsx")
			}
			if output != "" {
				if err := pipeline.ExportBatchToXLSX(batch, output); err != nil {
					return fmt.Errorf("export review workbook: %w", err)
				}
				fmt.Printf("review workbook written to %s\n", output)
			}

			if db != nil {
				if err := persistBatch(db, batch, inputs); err != nil {
					return err
				}
			}

			if n := batch.Count(internal.StatusFailed) + batch.Count(internal.StatusCancelled); n > 0 {
				return cli.Exit(fmt.Sprintf("%d of %d workbooks were not processed", n, len(batch.Workbooks)), 2)
			}
			return nil
		},
	}
}

func matchCommand(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "match",
		Usage:     "Show which authority layout each workbook is recognized as",
		ArgsUsage: "<file...>",
		Action: func(c *cli.Context) error {
			paths, err := collectInputs(c.Args().Slice())
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return errors.New("no input workbooks")
			}
			reg, err := loadRegistry(cfg.ProfilesPath)
			if err != nil {
				return err
			}
			matcher := pipeline.NewMatcher(reg, cfg.MatchMinConfidence, cfg.HeaderScanRows)

			for _, path := range paths {
				data, err := os.ReadFile(path)
				if err != nil {
					fmt.Printf("%s: %v\n", path, err)
					continue
				}
				wb, err := workbook.Read(path, data)
				if err != nil {
					fmt.Printf("%s: %v\n", path, err)
					continue
				}
				res := matcher.Match(pipeline.Signature(wb, cfg.MatchSampleRows))
				fallback := ""
				if res.Fallback {
					fallback = " (fallback)"
				}
				fmt.Printf("%s: %s confidence=%.2f sheet=%q%s\n", path, res.Authority, res.Confidence, res.Sheet, fallback)
				for _, cand := range res.Candidates {
					fmt.Printf("  %-8s score=%.3f fields=%d\n", cand.Authority, cand.Score, cand.Fields)
				}
			}
			return nil
		},
	}
}

func profilesCommand(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "profiles",
		Usage: "List the registered authority profiles",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "header",
				Usage: "Show which profiles claim a column header",
			},
		},
		Action: func(c *cli.Context) error {
			reg, err := loadRegistry(cfg.ProfilesPath)
			if err != nil {
				return err
			}

			if header := c.String("header"); header != "" {
				refs := reg.Index().Owners(header)
				if len(refs) == 0 {
					fmt.Printf("no profile claims %q\n", header)
					return nil
				}
				for _, ref := range refs {
					target := string(ref.Field)
					if ref.Aux != "" {
						target = "aux:" + ref.Aux
					}
					fmt.Printf("%-8s %s\n", ref.Authority, target)
				}
				return nil
			}

			for _, p := range reg.All() {
				line := fmt.Sprintf("%-8s %-8s", p.ID, p.Name)
				if p.MultiSheet() {
					var sheets []string
					for _, s := range p.Sheets {
						sheets = append(sheets, fmt.Sprintf("%s[%s,%d]", s.Pattern, s.Role, s.Priority))
					}
					line += " sheets=" + strings.Join(sheets, " ")
				}
				if p.CodePattern != nil {
					line += " code=" + p.CodePattern.String()
				}
				if p.OverheadEnabled {
					line += " overhead=" + p.OverheadRate.String()
				}
				if p.IsFallback() {
					line += " (fallback)"
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}

func loadRegistry(path string) (*registry.Registry, error) {
	if path == "" {
		return registry.Default()
	}
	return registry.LoadFile(path)
}

func printBatch(batch pipeline.BatchResult) {
	for _, wb := range batch.Workbooks {
		switch wb.Status {
		case internal.StatusProcessed:
			s := wb.Summary
			fmt.Printf("%s: %s accepted=%d rejected=%d join_dropped=%d duplicates=%d\n",
				wb.Path, wb.Match.Authority, s.Accepted, s.Rejected, s.JoinDropped, s.Duplicates)
		default:
			reason := ""
			if pipeline.IsTimeout(wb.Err) {
				reason = " (time budget exceeded)"
			}
			fmt.Printf("%s: %s: %v%s\n", wb.Path, wb.Status, wb.Err, reason)
		}
	}
	fmt.Printf("batch %s: processed=%d failed=%d cancelled=%d accepted=%d in %s\n",
		batch.ID,
		batch.Count(internal.StatusProcessed),
		batch.Count(internal.StatusFailed),
		batch.Count(internal.StatusCancelled),
		len(batch.Accepted()),
		batch.Duration.Round(time.Millisecond),
	)
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
