// Command migrate applies the PostGIS schema read by the postgres stop and
// trail sources.
//
//	migrate up      apply pending migrations
//	migrate status  list applied and pending migrations
//	migrate down    drop every explorer table
package main

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Hogigo/Bus2Hike/internal/pkg/config"
	"github.com/Hogigo/Bus2Hike/internal/pkg/logging"
)

//go:embed migrations/*.sql
var migrations embed.FS

const downFile = "down.sql"

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate <up|status|down>")
	}

	cfg, err := config.Load("bus2hike-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, "text")

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		name       TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		log.Fatalf("schema_migrations: %v", err)
	}

	switch os.Args[1] {
	case "up":
		err = up(ctx, pool)
	case "status":
		err = status(ctx, pool)
	case "down":
		err = down(ctx, pool)
	default:
		err = fmt.Errorf("unknown command %q", os.Args[1])
	}
	if err != nil {
		log.Fatal(err)
	}
}

// forward returns the forward migrations in name order.
func forward() ([]string, error) {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	out := names[:0]
	for _, n := range names {
		if path.Base(n) != downFile {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out, nil
}

func applied(ctx context.Context, pool *pgxpool.Pool) (map[string]bool, error) {
	rows, err := pool.Query(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(names))
	for _, n := range names {
		done[n] = true
	}
	return done, nil
}

func up(ctx context.Context, pool *pgxpool.Pool) error {
	files, err := forward()
	if err != nil {
		return err
	}
	done, err := applied(ctx, pool)
	if err != nil {
		return err
	}

	for _, f := range files {
		name := path.Base(f)
		if done[name] {
			continue
		}
		sql, err := migrations.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(sql)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name)
			return err
		})
		if err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
		slog.Info("migration applied", "name", name)
	}
	slog.Info("schema up to date")
	return nil
}

func status(ctx context.Context, pool *pgxpool.Pool) error {
	files, err := forward()
	if err != nil {
		return err
	}
	done, err := applied(ctx, pool)
	if err != nil {
		return err
	}
	for _, f := range files {
		state := "pending"
		if done[path.Base(f)] {
			state = "applied"
		}
		fmt.Printf("%-8s %s\n", state, strings.TrimSuffix(path.Base(f), ".sql"))
	}
	return nil
}

func down(ctx context.Context, pool *pgxpool.Pool) error {
	sql, err := migrations.ReadFile("migrations/" + downFile)
	if err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply %s: %w", downFile, err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM schema_migrations`); err != nil {
			return err
		}
		slog.Info("schema dropped")
		return nil
	})
}
