package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ragbot/internal/config"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your ragbot installation",
		Long: `Verifies that ragbot's configuration, tokens, save directory, and
knowledge database are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("ragbot Doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config: file if present, environment otherwise.
			var cfg *config.Config
			if _, err := os.Stat(cfgPath); err != nil {
				printWarn("Config file", fmt.Sprintf("not found at %s, using environment", cfgPath))
				warned++
				cfg, err = config.FromEnv()
				if err != nil {
					printFail("Config validation", err.Error())
					failed++
				}
			} else {
				printPass("Config file", cfgPath)
				passed++
				var err error
				cfg, err = config.Load(cfgPath)
				if err != nil {
					printFail("Config validation", err.Error())
					failed++
				} else {
					printPass("Config validation", "valid")
					passed++
				}
			}

			if cfg == nil {
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return fmt.Errorf("%d check(s) failed", failed)
			}

			// 2. Slack tokens present.
			if cfg.Slack.BotToken == "" || cfg.Slack.AppToken == "" {
				printFail("Slack tokens", "SLACK_BOT_TOKEN and SLACK_APP_TOKEN are required to serve")
				failed++
			} else {
				printPass("Slack tokens", "present")
				passed++
			}

			// 3. GitHub settings: missing ones only degrade issue filing.
			if cfg.GitHub.Token == "" || cfg.GitHub.Owner == "" || cfg.GitHub.Repo == "" {
				printWarn("GitHub settings", "incomplete; the issue command will report a configuration error")
				warned++
			} else {
				printPass("GitHub settings", cfg.GitHub.Owner+"/"+cfg.GitHub.Repo)
				passed++
			}

			// 4. Save directory writable.
			if err := checkWritableDir(cfg.General.SaveDir); err != nil {
				printFail("Save directory", err.Error())
				failed++
			} else {
				printPass("Save directory", cfg.General.SaveDir)
				passed++
			}

			// 5. Knowledge database writable.
			if err := checkDatabase(cfg.Knowledge.DBPath); err != nil {
				printFail("Knowledge DB", err.Error())
				failed++
			} else {
				printPass("Knowledge DB", cfg.Knowledge.DBPath)
				passed++
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running ragbot.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nragbot should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! ragbot is ready to run.\n")
			}
			return nil
		},
	}
}

func checkWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create: %w", err)
	}
	probe := filepath.Join(dir, ".doctor_probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	os.Remove(probe)
	return nil
}

func checkDatabase(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}

	// Try a write.
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")

	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
