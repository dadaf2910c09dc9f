package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"pv-go/internal/app"
	"pv-go/internal/config"
	"pv-go/internal/database"
	"pv-go/internal/pv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a PVApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "FilterContent", "UpsertRule").
func newApp(operation string) (*app.PVApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewPVApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// readPassphrase prompts on stderr and reads without echo.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(pw), nil
}

var rootCmd = &cobra.Command{
	Use:   "pv",
	Short: "Privacy classification and redaction engine",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		hostID := uuid.New().String()
		cfg := config.NewConfig(hostID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Host ID: %s\n", hostID)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Host ID:  %s\n", cfg.HostID)
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:  %s\n", cfg.LogDir)
		fmt.Printf("Database: %s\n", cfg.Database.Type)
		fmt.Printf("Archive:  %s\n", cfg.Archive.Vault.Type)
		return nil
	},
}

// migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Bring the decision store schema up to date",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("getting defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("reading config: %w", err)
		}

		if cfg.Database.Type != "sqlite" {
			return fmt.Errorf("migrate only applies to sqlite databases")
		}
		if err := os.MkdirAll(cfg.Database.DataDir, 0700); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}

		store, err := database.NewSQLiteStore(filepath.Join(cfg.Database.DataDir, cfg.HostID+".db"))
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer store.Close()

		if err := store.MigrateUp(); err != nil {
			return fmt.Errorf("migrating: %w", err)
		}

		fmt.Println("Database schema is up to date.")
		return nil
	},
}

// filter command
var filterCmd = &cobra.Command{
	Use:   "filter PATH",
	Short: "Filter a file's content through the privacy engine",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		contentFile, _ := cmd.Flags().GetString("file")

		var (
			content []byte
			err     error
		)
		switch contentFile {
		case "", "-":
			content, err = io.ReadAll(os.Stdin)
		default:
			content, err = os.ReadFile(contentFile)
		}
		if err != nil {
			return fmt.Errorf("reading content: %w", err)
		}

		a, err := newApp("FilterContent")
		if err != nil {
			return err
		}
		defer a.Close()

		result := a.FilterContent(args[0], string(content))

		fmt.Printf("Owner:    %s\n", result.Owner)
		fmt.Printf("Level:    %s (base %s)\n",
			pv.PrivacyLevel(result.AppliedLevel), pv.PrivacyLevel(result.OriginalLevel))
		fmt.Printf("Modified: %v\n", result.Modified)
		if len(result.Categories) > 0 {
			categories := make([]string, 0, len(result.Categories))
			for c := range result.Categories {
				categories = append(categories, c)
			}
			sort.Strings(categories)
			fmt.Printf("Detected: %v\n", categories)
		}
		if result.Blocked {
			fmt.Println("\n[blocked - no content available]")
			return nil
		}
		fmt.Printf("\n%s\n", result.Content)
		return nil
	},
}

// rule command
var ruleCmd = &cobra.Command{
	Use:   "rule",
	Short: "Manage privacy rules",
}

var ruleSetCmd = &cobra.Command{
	Use:   "set NAME PATTERN LEVEL",
	Short: "Create or update a path rule",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")

		a, err := newApp("UpsertRule")
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.UpsertRule(args[0], args[1], args[2], owner)
		if err != nil {
			return fmt.Errorf("setting rule: %w", err)
		}

		fmt.Printf("Rule %s: %s\n", args[0], id)
		return nil
	},
}

var ruleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List privacy rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ListRules")
		if err != nil {
			return err
		}
		defer a.Close()

		rules, err := a.ListRules()
		if err != nil {
			return err
		}

		if len(rules) == 0 {
			fmt.Println("No rules configured.")
			return nil
		}

		for _, r := range rules {
			enabled := " "
			if r.Enabled {
				enabled = "*"
			}
			fmt.Printf("%s %-20s  %-12s  %s\n", enabled, r.Name, pv.PrivacyLevel(r.TargetLevel), r.Pattern)
		}
		return nil
	},
}

// override command
var overrideCmd = &cobra.Command{
	Use:   "override",
	Short: "Manage file overrides",
}

var overrideSetCmd = &cobra.Command{
	Use:   "set PATH LEVEL",
	Short: "Pin the privacy level for an exact path",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")
		reason, _ := cmd.Flags().GetString("reason")

		a, err := newApp("SetFileOverride")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.SetFileOverride(args[0], owner, args[1], reason); err != nil {
			return fmt.Errorf("setting override: %w", err)
		}

		fmt.Printf("Override set: %s -> %s\n", args[0], args[1])
		return nil
	},
}

var overrideGetCmd = &cobra.Command{
	Use:   "get PATH",
	Short: "Show the override for a path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("GetFileOverride")
		if err != nil {
			return err
		}
		defer a.Close()

		override, err := a.GetFileOverride(args[0])
		if err != nil {
			return err
		}
		if override == nil {
			fmt.Println("No override set.")
			return nil
		}

		fmt.Printf("Path:   %s\n", override.FilePath)
		fmt.Printf("Owner:  %s\n", override.Owner)
		fmt.Printf("Level:  %s\n", pv.PrivacyLevel(override.Level))
		if override.Reason != "" {
			fmt.Printf("Reason: %s\n", override.Reason)
		}
		return nil
	},
}

// pref command
var prefCmd = &cobra.Command{
	Use:   "pref",
	Short: "Manage user preferences",
}

var prefGetCmd = &cobra.Command{
	Use:   "get USERNAME",
	Short: "Show a user's filtering defaults",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("GetUserPreference")
		if err != nil {
			return err
		}
		defer a.Close()

		pref, err := a.GetUserPreference(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Username:         %s\n", pref.Username)
		fmt.Printf("Default level:    %s\n", pv.PrivacyLevel(pref.DefaultLevel))
		fmt.Printf("Auto redact:      %v\n", pref.AutoRedact)
		fmt.Printf("Notify on access: %v\n", pref.NotifyOnAccess)
		return nil
	},
}

var prefSetCmd = &cobra.Command{
	Use:   "set USERNAME LEVEL",
	Short: "Set a user's filtering defaults",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		autoRedact, _ := cmd.Flags().GetBool("auto-redact")
		notify, _ := cmd.Flags().GetBool("notify")

		a, err := newApp("SetUserPreference")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.SetUserPreference(args[0], args[1], autoRedact, notify); err != nil {
			return fmt.Errorf("setting preference: %w", err)
		}

		fmt.Printf("Preference set: %s -> %s\n", args[0], args[1])
		return nil
	},
}

// stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show audit statistics for a time window",
	RunE: func(cmd *cobra.Command, args []string) error {
		hours, _ := cmd.Flags().GetInt("hours")

		a, err := newApp("GetAuditWindowStats")
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.GetAuditWindowStats(hours)
		if err != nil {
			return err
		}

		fmt.Printf("Last %d hour(s):\n", hours)
		fmt.Printf("  Files:      %d\n", stats.TotalFiles)
		fmt.Printf("  Redactions: %d\n", stats.TotalRedactions)
		printCounts("By level", stats.ByLevel)
		printCounts("By owner", stats.ByOwner)
		printCounts("By category", stats.ByCategory)
		return nil
	},
}

func printCounts(title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Printf("  %s:\n", title)
	for _, k := range keys {
		fmt.Printf("    %-15s %d\n", k, counts[k])
	}
}

// cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the decision cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every cached decision",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ClearCache")
		if err != nil {
			return err
		}
		defer a.Close()

		a.ClearCache()
		fmt.Println("Cache cleared.")
		return nil
	},
}

// archive command
var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Manage encrypted audit archives",
}

var archiveInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the archive encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("SetupArchiveKeys")
		if err != nil {
			return err
		}
		defer a.Close()

		passphrase, err := readPassphrase("Passphrase for archive key: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if passphrase != confirm {
			return fmt.Errorf("passphrases do not match")
		}

		if err := a.SetupArchiveKeys(passphrase); err != nil {
			return fmt.Errorf("setting up archive keys: %w", err)
		}

		fmt.Println("Archive key pair generated.")
		return nil
	},
}

var archiveRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Export and prune old audit records",
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("older-than-days")

		a, err := newApp("ArchiveAudit")
		if err != nil {
			return err
		}
		defer a.Close()

		archiveID, count, err := a.ArchiveAudit(days)
		if err != nil {
			return fmt.Errorf("archiving: %w", err)
		}
		if count == 0 {
			fmt.Println("No audit records old enough to archive.")
			return nil
		}

		fmt.Printf("Archived %d record(s) to %s\n", count, archiveID)
		return nil
	},
}

var archiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored audit archives",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ListArchives")
		if err != nil {
			return err
		}
		defer a.Close()

		ids, err := a.ListArchives()
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Println("No archives stored.")
			return nil
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	},
}

var archiveRestoreCmd = &cobra.Command{
	Use:   "restore ARCHIVE_ID",
	Short: "Decrypt an audit archive to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("RestoreArchive")
		if err != nil {
			return err
		}
		defer a.Close()

		passphrase, err := readPassphrase("Passphrase for archive key: ")
		if err != nil {
			return err
		}

		if err := a.RestoreArchive(args[0], passphrase, os.Stdout); err != nil {
			return fmt.Errorf("restoring archive: %w", err)
		}
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// rule subcommands
	ruleCmd.AddCommand(ruleSetCmd)
	ruleCmd.AddCommand(ruleListCmd)
	ruleSetCmd.Flags().String("owner", "", "Owner the rule attributes matches to")

	// override subcommands
	overrideCmd.AddCommand(overrideSetCmd)
	overrideCmd.AddCommand(overrideGetCmd)
	overrideSetCmd.Flags().String("owner", "", "Owner recorded on the override")
	overrideSetCmd.Flags().String("reason", "", "Why the override exists")

	// pref subcommands
	prefCmd.AddCommand(prefGetCmd)
	prefCmd.AddCommand(prefSetCmd)
	prefSetCmd.Flags().Bool("auto-redact", true, "Redact automatically at the default level")
	prefSetCmd.Flags().Bool("notify", false, "Notify the user when their files are accessed")

	// cache subcommands
	cacheCmd.AddCommand(cacheClearCmd)

	// archive subcommands
	archiveCmd.AddCommand(archiveInitCmd)
	archiveCmd.AddCommand(archiveRunCmd)
	archiveCmd.AddCommand(archiveListCmd)
	archiveCmd.AddCommand(archiveRestoreCmd)
	archiveRunCmd.Flags().IntP("older-than-days", "d", 30, "Archive records older than this many days")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(filterCmd)
	filterCmd.Flags().StringP("file", "f", "", "Read content from this file instead of stdin")
	rootCmd.AddCommand(ruleCmd)
	rootCmd.AddCommand(overrideCmd)
	rootCmd.AddCommand(prefCmd)
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().IntP("hours", "n", 24, "Window size in hours")
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(archiveCmd)
}
