/**
 * @description
 * Operator command-line tool for ledger maintenance tasks that never go
 * through the HTTP surface: manual support credits, system bonuses, the
 * orphaned-payment scan, and the capital-share lock-in migration.
 *
 * Usage:
 *   ops manual-deposit  -user <uuid> -amount <n> [-remarks <text>]
 *   ops grant-reward    -user <uuid> -amount <n> -type <reward type> [-source <text>]
 *   ops scan-orphaned   [-limit <n>] [-dry-run]
 *   ops migrate-lockin
 *
 * @dependencies
 * - flag, log, os: Standard Go libraries.
 * - github.com/jackc/pgx/v5, github.com/jackc/pgx-shopspring-decimal: database access.
 * - internal/app, internal/config, internal/store, pkg/paymongo, pkg/rabbitmq.
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/damayan/ledger-service/internal/app"
	"github.com/damayan/ledger-service/internal/config"
	"github.com/damayan/ledger-service/internal/store"
	"github.com/damayan/ledger-service/pkg/paymongo"
	rmrabbit "github.com/damayan/ledger-service/pkg/rabbitmq"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=ops msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		log.Fatalf("level=fatal component=ops msg=\"database url must be configured\" env=DATABASE_URL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	dbpool := mustConnect(ctx, cfg.DatabaseURL)
	defer dbpool.Close()

	repository := store.NewPostgresRepository(dbpool)
	service := app.NewService(repository, &rmrabbit.EventProducerFallback{}, cfg.RewardSweepStrict)

	switch os.Args[1] {
	case "manual-deposit":
		runManualDeposit(ctx, service, os.Args[2:])
	case "grant-reward":
		runGrantReward(ctx, service, os.Args[2:])
	case "scan-orphaned":
		runScanOrphaned(ctx, service, cfg, os.Args[2:])
	case "migrate-lockin":
		runMigrateLockIn(ctx, service)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: ops <manual-deposit|grant-reward|scan-orphaned|migrate-lockin> [flags]")
}

func mustConnect(ctx context.Context, databaseURL string) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=ops msg=\"database url parse failed\" err=%v", err)
	}
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}
	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=ops msg=\"database connection failed\" err=%v", err)
	}
	return dbpool
}

func runManualDeposit(ctx context.Context, service *app.Service, args []string) {
	fs := flag.NewFlagSet("manual-deposit", flag.ExitOnError)
	userFlag := fs.String("user", "", "target user id (uuid)")
	amountFlag := fs.String("amount", "", "gross deposit amount in PHP")
	remarksFlag := fs.String("remarks", "Manual deposit by operator", "review remarks")
	fs.Parse(args)

	userID := mustParseUUID(*userFlag, "user")
	amount := mustParseAmount(*amountFlag)

	deposit, err := service.ManualDeposit(ctx, userID, amount, *remarksFlag)
	if err != nil {
		log.Fatalf("level=fatal component=ops op=manual_deposit err=%v", err)
	}
	fmt.Printf("deposit %s approved: user=%s gross=%s net=%s\n",
		deposit.ID, deposit.UserID, deposit.Amount.StringFixed(2), deposit.NetAmount.StringFixed(2))
}

func runGrantReward(ctx context.Context, service *app.Service, args []string) {
	fs := flag.NewFlagSet("grant-reward", flag.ExitOnError)
	userFlag := fs.String("user", "", "target user id (uuid)")
	amountFlag := fs.String("amount", "", "reward amount in PHP")
	typeFlag := fs.String("type", "System Bonus", "reward type label")
	sourceFlag := fs.String("source", "operator", "reward source label")
	fs.Parse(args)

	userID := mustParseUUID(*userFlag, "user")
	amount := mustParseAmount(*amountFlag)

	entry, err := service.GrantReward(ctx, userID, amount, *sourceFlag, *typeFlag)
	if err != nil {
		log.Fatalf("level=fatal component=ops op=grant_reward err=%v", err)
	}
	fmt.Printf("reward %s granted: user=%s amount=%s type=%s\n",
		entry.ID, entry.UserID, entry.Amount.StringFixed(2), entry.Type)
}

func runScanOrphaned(ctx context.Context, service *app.Service, cfg config.Config, args []string) {
	fs := flag.NewFlagSet("scan-orphaned", flag.ExitOnError)
	limitFlag := fs.Int("limit", 0, "maximum orphans to repair this run (0 uses the default)")
	dryRunFlag := fs.Bool("dry-run", false, "skip gateway verification and repair nothing")
	fs.Parse(args)

	if *dryRunFlag {
		// No gateway calls, no writes; just report how many orphans exist.
		summary, err := service.ReconcileOrphanedPayments(ctx, alwaysUnpaidVerifier{}, *limitFlag)
		if err != nil {
			log.Fatalf("level=fatal component=ops op=scan_orphaned err=%v", err)
		}
		fmt.Printf("dry run: %d orphaned payment(s) found\n", summary.Scanned)
		return
	}

	if strings.TrimSpace(cfg.PayMongoAPIKey) == "" {
		log.Fatalf("level=fatal component=ops msg=\"paymongo api key must be configured\" env=PAYMONGO_API_KEY")
	}
	verifier := paymongo.NewClient(cfg.PayMongoBaseURL, cfg.PayMongoAPIKey)

	summary, err := service.ReconcileOrphanedPayments(ctx, verifier, *limitFlag)
	if err != nil {
		log.Fatalf("level=fatal component=ops op=scan_orphaned err=%v", err)
	}
	fmt.Printf("scanned=%d repaired=%d skipped=%d failed=%d\n",
		summary.Scanned, summary.Repaired, summary.Skipped, len(summary.Failed))
	for _, checkoutID := range summary.Failed {
		fmt.Printf("failed: %s\n", checkoutID)
	}
}

func runMigrateLockIn(ctx context.Context, service *app.Service) {
	summary, err := service.MigrateCapitalShareLockIn(ctx)
	if err != nil {
		if summary != nil {
			log.Printf("level=error component=ops op=migrate_lockin scanned=%d updated=%d", summary.Scanned, summary.Updated)
		}
		log.Fatalf("level=fatal component=ops op=migrate_lockin err=%v", err)
	}
	fmt.Printf("scanned=%d updated=%d\n", summary.Scanned, summary.Updated)
}

// alwaysUnpaidVerifier reports every session as unpaid so a dry run counts
// orphans without repairing any.
type alwaysUnpaidVerifier struct{}

func (alwaysUnpaidVerifier) GetCheckoutSession(ctx context.Context, checkoutID string) (*paymongo.CheckoutSession, error) {
	return &paymongo.CheckoutSession{}, nil
}

func mustParseUUID(raw, name string) uuid.UUID {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		log.Fatalf("level=fatal component=ops msg=\"invalid %s id\" value=%q err=%v", name, raw, err)
	}
	return id
}

func mustParseAmount(raw string) decimal.Decimal {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		log.Fatalf("level=fatal component=ops msg=\"invalid amount\" value=%q err=%v", raw, err)
	}
	return amount
}
