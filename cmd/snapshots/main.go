package main

import (
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/tradeguard/internal/backup"
	"github.com/yourusername/tradeguard/internal/config"
	"github.com/yourusername/tradeguard/internal/logger"
)

var (
	configFile string
	appLog     *logrus.Logger
	cfg        *config.Config
	store      *backup.Store
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "./config/config.yaml", "Path to configuration file")
	rootCmd.AddCommand(listCmd, createCmd, restoreCmd, latestCmd)
}

var rootCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "Inspect and manage artifact snapshots",
	Long:  `Lists, creates and restores versioned snapshots of the live parameter and model artifact directory.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadWithDefaults(configFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		appLog = logger.NewLogger("warn")
		store, err = backup.NewStore(backup.Config{
			RootDir:      cfg.Backup.RootDir,
			MaxSnapshots: cfg.Backup.MaxSnapshots,
		}, appLog)
		if err != nil {
			return fmt.Errorf("failed to open artifact store: %w", err)
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List retained snapshots, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		manifests, err := store.List()
		if err != nil {
			return err
		}
		if len(manifests) == 0 {
			fmt.Println("No snapshots retained.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SNAPSHOT\tCREATED\tFILES")
		for _, m := range manifests {
			fmt.Fprintf(w, "%s\t%s\t%d\n", m.SnapshotID, m.CreatedAt.Format("2006-01-02 15:04:05"), len(m.Files))
		}
		return w.Flush()
	},
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Snapshot the current live artifacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := store.Snapshot()
		if err != nil {
			return err
		}
		fmt.Printf("Created snapshot %s\n", id)
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <snapshot-id>",
	Short: "Replace the live artifacts with a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := store.Restore(args[0]); err != nil {
			return err
		}
		fmt.Printf("Restored snapshot %s into %s\n", args[0], store.LiveDir())
		return nil
	},
}

var latestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Show the most recent snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := store.Latest()
		if err != nil {
			return err
		}
		fmt.Printf("Snapshot %s created %s\n", m.SnapshotID, m.CreatedAt.Format("2006-01-02 15:04:05"))
		for _, f := range m.Files {
			fmt.Printf("  %s (%d bytes, sha256 %s)\n", f.Path, f.Size, f.SHA256)
		}
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}
