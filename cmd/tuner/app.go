package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/andresuchdata/autopo-servicelevel/internal/cache"
	"github.com/andresuchdata/autopo-servicelevel/internal/config"
	"github.com/andresuchdata/autopo-servicelevel/internal/repository"
	"github.com/andresuchdata/autopo-servicelevel/internal/repository/memory"
	"github.com/andresuchdata/autopo-servicelevel/internal/repository/postgres"
	"github.com/andresuchdata/autopo-servicelevel/internal/service"
	"github.com/andresuchdata/autopo-servicelevel/internal/storage"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

type ctxKey int

const (
	storeKey ctxKey = iota
	dbKey
)

func newApp(cfg *config.Config, out io.Writer) *cli.App {
	return &cli.App{
		Name:   "tuner",
		Usage:  "Classify demand variability and tune target service levels",
		Writer: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db-url",
				Usage:   "Database connection string",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:  "fixture",
				Usage: "YAML fixture to run against instead of a database",
			},
		},
		Before: openStore,
		After:  closeStore,
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "Create the service level tables",
				Action: func(c *cli.Context) error {
					db, ok := c.Context.Value(dbKey).(*postgres.DB)
					if !ok {
						return fmt.Errorf("migrate needs --db-url")
					}
					return postgres.Migrate(c.Context, db)
				},
			},
			{
				Name:  "seed",
				Usage: "Load a YAML dataset into the database",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "from",
						Usage:    "YAML dataset with skus, sales, transactions, kpi_daily and settings",
						Required: true,
						EnvVars:  []string{"SEED_DATA_FILE"},
					},
				},
				Action: func(c *cli.Context) error {
					db, ok := c.Context.Value(dbKey).(*postgres.DB)
					if !ok {
						return fmt.Errorf("seed needs --db-url")
					}
					data, err := memory.LoadData(c.String("from"))
					if err != nil {
						return err
					}
					if err := postgres.Migrate(c.Context, db); err != nil {
						return err
					}
					return postgres.Seed(c.Context, db, data)
				},
			},
			{
				Name:  "settings",
				Usage: "Print the normalized service level settings",
				Action: func(c *cli.Context) error {
					settings, err := newService(c, cfg).Settings(c.Context)
					if err != nil {
						return err
					}
					return writeJSON(c.App.Writer, settings)
				},
			},
			{
				Name:  "resolve",
				Usage: "Explain the effective target CSL of a SKU",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "sku", Usage: "SKU identifier", Required: true},
				},
				Action: func(c *cli.Context) error {
					res, err := newService(c, cfg).ResolveTarget(c.Context, c.String("sku"))
					if err != nil {
						return err
					}
					return writeJSON(c.App.Writer, res)
				},
			},
			{
				Name:  "classify",
				Usage: "Classify demand variability from sales history",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "apply", Usage: "Write changed labels back to SKUs"},
				},
				Action: func(c *cli.Context) error {
					result, err := newService(c, cfg).Classify(c.Context, c.Bool("apply"))
					if err != nil {
						return err
					}
					return writeJSON(c.App.Writer, result)
				},
			},
			{
				Name:  "closed-loop",
				Usage: "Review target CSLs against outcome KPIs",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "as-of", Usage: "Review date (YYYY-MM-DD), defaults to today"},
					&cli.BoolFlag{Name: "archive", Usage: "Upload the report to object storage"},
				},
				Action: func(c *cli.Context) error {
					asOf, err := parseAsOf(c.String("as-of"))
					if err != nil {
						return err
					}
					svc := newService(c, cfg)
					if c.Bool("archive") {
						client, err := storage.NewMinioClient(storage.MinioConfigFrom(cfg.Storage))
						if err != nil {
							return err
						}
						svc = newServiceWith(c, cfg, client)
					}
					report, err := svc.RunClosedLoop(c.Context, asOf)
					if err != nil {
						return err
					}
					return writeJSON(c.App.Writer, report)
				},
			},
		},
	}
}

func openStore(c *cli.Context) error {
	if path := c.String("fixture"); path != "" {
		store, err := memory.LoadFixture(path)
		if err != nil {
			return err
		}
		c.Context = context.WithValue(c.Context, storeKey, repository.Store(store))
		return nil
	}

	url := c.String("db-url")
	if url == "" {
		return fmt.Errorf("either --fixture or --db-url is required")
	}
	conn, err := sqlx.Open("pgx", url)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := conn.PingContext(c.Context); err != nil {
		conn.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	db := postgres.Wrap(conn)
	c.Context = context.WithValue(c.Context, dbKey, db)
	c.Context = context.WithValue(c.Context, storeKey, postgres.NewStore(db))
	return nil
}

func closeStore(c *cli.Context) error {
	if db, ok := c.Context.Value(dbKey).(*postgres.DB); ok && db != nil {
		return db.Close()
	}
	return nil
}

func newService(c *cli.Context, cfg *config.Config) *service.ServiceLevelService {
	return newServiceWith(c, cfg, nil)
}

func newServiceWith(c *cli.Context, cfg *config.Config, archive storage.ObjectStorage) *service.ServiceLevelService {
	store, _ := c.Context.Value(storeKey).(repository.Store)

	reportCache, err := cache.NewReportCache(cfg.Cache)
	if err != nil {
		log.Warn().Err(err).Msg("tuner: report cache unavailable, continuing without it")
		reportCache = cache.NewNoopReportCache()
	}

	opts := service.Options{
		Cache:       reportCache,
		Classifier:  service.ClassifierParams(cfg.Tuner),
		Concurrency: cfg.Tuner.Concurrency,
		AuditUser:   cfg.Tuner.AuditUser,
	}
	if archive != nil {
		opts.Archive = archive
		opts.ArchivePrefix = cfg.Storage.Prefix
	}
	return service.NewServiceLevelService(store, opts)
}

func parseAsOf(raw string) (time.Time, error) {
	if raw == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	asOf, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --as-of %q: %w", raw, err)
	}
	return asOf, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
