package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/corvusHold/certify/internal/config"
	tokrepo "github.com/corvusHold/certify/internal/tokens/repository"
	"github.com/corvusHold/certify/internal/version"
	"github.com/corvusHold/certify/migrations"
)

const (
	exitOK      = 0
	exitUsage   = 2
	exitConfig  = 3
	exitMigrate = 4
	exitCredit  = 5
)

var (
	migrateRunner = realMigrateRunner
	creditRunner  = realCreditRunner
	osExit        = os.Exit
)

func handleCLICommand(args []string) bool {
	if len(args) == 0 {
		return false
	}
	switch args[0] {
	case "migrate":
		code := runMigrate(args[1:])
		osExit(code)
		return true
	case "token":
		osExit(runToken(args[1:]))
		return true
	case "credit":
		osExit(runCredit(args[1:]))
		return true
	case "version", "--version":
		fmt.Println(version.String())
		osExit(exitOK)
		return true
	case "help", "-h", "--help":
		printHelp()
		osExit(exitOK)
		return true
	default:
		return false
	}
}

func runMigrate(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "missing migrate subcommand (up|down|status)")
		return exitUsage
	}
	subcmd := args[0]
	switch subcmd {
	case "up", "down", "redo", "status", "version":
	default:
		fmt.Fprintf(os.Stderr, "unknown migrate subcommand: %s\n", subcmd)
		return exitUsage
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return exitConfig
	}

	if migrateRunner == nil {
		migrateRunner = realMigrateRunner
	}

	if err := migrateRunner(subcmd, cfg.DatabaseURL); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s failed: %v\n", subcmd, err)
		return exitMigrate
	}

	return exitOK
}

func realMigrateRunner(subcmd, databaseURL string) error {
	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close()
	}()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	const migrationsDir = "."

	switch subcmd {
	case "up":
		return goose.Up(db, migrationsDir)
	case "down":
		return goose.Down(db, migrationsDir)
	case "redo":
		return goose.Redo(db, migrationsDir)
	case "status":
		return goose.Status(db, migrationsDir)
	case "version":
		return goose.Version(db, migrationsDir)
	default:
		return fmt.Errorf("unsupported migrate subcommand %q", subcmd)
	}
}

// runToken mints a session token for a local user. The account service issues
// these in production; this exists for development and smoke tests.
func runToken(args []string) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	roles := fs.String("roles", "", "comma-separated roles, e.g. admin")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: certify token [-ttl 1h] [-roles admin] <user-id>")
		return exitUsage
	}
	userID, err := uuid.Parse(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid user id: %v\n", err)
		return exitUsage
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return exitConfig
	}
	if strings.EqualFold(cfg.AppEnv, "production") {
		fmt.Fprintln(os.Stderr, "refusing to mint tokens with APP_ENV=production")
		return exitConfig
	}

	tok, err := mintSessionToken(cfg, userID, splitRoles(*roles), *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mint token: %v\n", err)
		return exitConfig
	}
	fmt.Println(tok)
	return exitOK
}

func mintSessionToken(cfg config.Config, userID uuid.UUID, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userID.String(),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if len(roles) > 0 {
		claims["roles"] = roles
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSigningKey))
}

func splitRoles(s string) []string {
	var out []string
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

// runCredit adds tokens to a creator's balance directly in the database.
func runCredit(args []string) int {
	fs := flag.NewFlagSet("credit", flag.ContinueOnError)
	reason := fs.String("reason", "operator credit", "ledger reason")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "usage: certify credit [-reason text] <user-id> <amount>")
		return exitUsage
	}
	userID, err := uuid.Parse(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid user id: %v\n", err)
		return exitUsage
	}
	amount, err := strconv.Atoi(fs.Arg(1))
	if err != nil || amount <= 0 {
		fmt.Fprintf(os.Stderr, "amount must be a positive integer, got %q\n", fs.Arg(1))
		return exitUsage
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return exitConfig
	}
	if creditRunner == nil {
		creditRunner = realCreditRunner
	}
	balance, err := creditRunner(cfg.DatabaseURL, userID, amount, *reason)
	if err != nil {
		fmt.Fprintf(os.Stderr, "credit failed: %v\n", err)
		return exitCredit
	}
	fmt.Printf("balance: %d\n", balance)
	return exitOK
}

func realCreditRunner(databaseURL string, userID uuid.UUID, amount int, reason string) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return 0, err
	}
	defer pool.Close()
	return tokrepo.New(pool).Credit(ctx, userID, amount, reason)
}

func printHelp() {
	fmt.Println("Certify API")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  certify                          Start API server")
	fmt.Println("  certify migrate up               Apply all pending migrations")
	fmt.Println("  certify migrate down             Roll back one migration")
	fmt.Println("  certify migrate redo             Roll back and re-apply the latest migration")
	fmt.Println("  certify migrate status           Show migration status")
	fmt.Println("  certify migrate version          Print the current schema version")
	fmt.Println("  certify token <user-id>          Mint a development session token")
	fmt.Println("  certify credit <user-id> <n>     Add n tokens to a creator's balance")
	fmt.Println("  certify version                  Print the build version")
}
