package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/robfig/cron/v3"

	"ekklesia.org/internal/retention"
)

func main() {
	log.SetFlags(0)
	var (
		dsn       = flag.String("dsn", os.Getenv("EKKLESIA_PG_DSN"), "PostgreSQL DSN")
		schedule  = flag.String("schedule", "0 3 * * *", "cron schedule for the sweep")
		retainFor = flag.Duration("retention", retention.DefaultRetention, "how long tombstones and expired tokens are kept")
		once      = flag.Bool("once", false, "run a single sweep and exit")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or EKKLESIA_PG_DSN")
	}
	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	sw := retention.NewSweeper(db, retention.WithRetention(*retainFor))

	run := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		res, err := sw.Sweep(ctx)
		if err != nil {
			log.Printf("sweep failed: %v", err)
			return
		}
		log.Printf("sweep done: users=%d roles=%d permissions=%d access_tokens=%d refresh_tokens=%d",
			res.Users, res.Roles, res.Permissions, res.AccessTokens, res.RefreshTokens)
	}

	if *once {
		run()
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(*schedule, run); err != nil {
		log.Fatalf("invalid schedule %q: %v", *schedule, err)
	}
	c.Start()
	log.Printf("sweeper scheduled: %q, retention %s", *schedule, *retainFor)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx := c.Stop()
	<-ctx.Done()
	log.Println("Stopped")
}
