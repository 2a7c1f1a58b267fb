// Package main is the entrypoint for the quill client CLI.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/quillbooks/quillbooks/internal/config"
	"github.com/quillbooks/quillbooks/internal/localstore"
	"github.com/quillbooks/quillbooks/internal/models"
	"github.com/quillbooks/quillbooks/internal/syncclient"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "quill",
		Short: "Quillbooks sync client",
		Long: `Quill is the local-first client for Quillbooks. Records are written to a
local snapshot immediately and synchronized with the server in the background.

Run 'quill init' to point the client at a server.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newInitCmd(),
		newLoginCmd(),
		newLogoutCmd(),
		newStatusCmd(),
		newAddCmd(),
		newUpdateCmd(),
		newDeleteCmd(),
		newSyncCmd(),
		newRunCmd(),
		newResyncCmd(),
		newPurgeCmd(),
	)
	return rootCmd
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if os.Getenv("QUILL_DEBUG") != "" {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("quill %s (commit %s, built %s)\n", Version, Commit, BuildDate)
		},
	}
}

func newInitCmd() *cobra.Command {
	var serverURL, tenantID, email string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the client configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := uuid.Parse(tenantID); err != nil {
				return fmt.Errorf("invalid tenant id: %w", err)
			}
			path, err := config.DefaultConfigPath()
			if err != nil {
				return err
			}
			cfg := &config.ClientConfig{
				ServerURL: strings.TrimRight(serverURL, "/"),
				TenantID:  tenantID,
				Email:     email,
			}
			if err := config.SaveClient(path, cfg); err != nil {
				return err
			}
			fmt.Printf("Configuration written to %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "", "Server URL (required)")
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID (required)")
	cmd.Flags().StringVar(&email, "email", "", "Login email")
	cmd.MarkFlagRequired("server")
	cmd.MarkFlagRequired("tenant")
	return cmd
}

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authenticate against the server and store the session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, dir, err := loadConfig()
			if err != nil {
				return err
			}
			email := cfg.Email
			if email == "" {
				fmt.Print("Email: ")
				reader := bufio.NewReader(os.Stdin)
				line, err := reader.ReadString('\n')
				if err != nil {
					return err
				}
				email = strings.TrimSpace(line)
			}
			fmt.Print("Password: ")
			reader := bufio.NewReader(os.Stdin)
			line, err := reader.ReadString('\n')
			if err != nil {
				return err
			}
			password := strings.TrimRight(line, "\r\n")

			tenantID, err := uuid.Parse(cfg.TenantID)
			if err != nil {
				return fmt.Errorf("invalid tenant id in config: %w", err)
			}
			client := syncclient.NewAPIClient(cfg.ServerURL, tenantID)
			resp, err := client.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			if err := saveToken(dir, resp.Token); err != nil {
				return err
			}
			fmt.Printf("Logged in as %s (role %s)\n", email, resp.Role)
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session, discarding queued mutations",
		Long: `Logout clears the outbound mutation queue and marks the local snapshot
stale. Records already applied locally are kept; the next login pulls a fresh
snapshot from the server.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.syncer.Logout(cmd.Context()); err != nil {
				return err
			}
			if err := os.Remove(filepath.Join(s.dir, "token")); err != nil && !os.IsNotExist(err) {
				return err
			}
			fmt.Println("Logged out.")
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show local snapshot, queue, and disk status",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.Close()

			pending, err := s.queue.PendingCount(cmd.Context(), s.tenantID)
			if err != nil {
				return err
			}

			fmt.Printf("Tenant:        %s\n", s.tenantID)
			fmt.Printf("Server:        %s\n", s.cfg.ServerURL)
			fmt.Printf("Snapshot:      loaded=%v stale=%v server_seq=%d\n",
				s.store.Loaded(), s.syncer.IsStale(), s.store.ServerSeq())
			fmt.Printf("Queue:         %d pending\n", pending)
			for _, table := range models.AllTables() {
				if n := s.store.RowCount(table); n > 0 {
					fmt.Printf("  %-20s %d rows\n", table, n)
				}
			}
			if stats, err := localstore.DiskUsage(s.dir); err == nil {
				fmt.Printf("Disk:          %.1f%% used, %d MiB free\n",
					stats.UsedPercent, stats.FreeBytes/(1024*1024))
			}
			return nil
		},
	}
}

func newAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <table> <json>",
		Short: "Create a record locally and queue it for sync",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return applyMutation(cmd.Context(), args[0], models.OpCreate, uuid.New(), args[1])
		},
	}
}

func newUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update <table> <record-id> <json>",
		Short: "Update a record locally and queue it for sync",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[1])
			if err != nil {
				return fmt.Errorf("invalid record id: %w", err)
			}
			return applyMutation(cmd.Context(), args[0], models.OpUpdate, id, args[2])
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <table> <record-id>",
		Short: "Delete a record locally and queue it for sync",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[1])
			if err != nil {
				return fmt.Errorf("invalid record id: %w", err)
			}
			return applyMutation(cmd.Context(), args[0], models.OpDelete, id, "")
		},
	}
}

func applyMutation(ctx context.Context, tableName string, op models.MutationOp, recordID uuid.UUID, payload string) error {
	table, err := models.ParseRecordTable(tableName)
	if err != nil {
		return err
	}
	if payload != "" && !json.Valid([]byte(payload)) {
		return fmt.Errorf("payload is not valid JSON")
	}

	s, err := openSession(ctx, true)
	if err != nil {
		return err
	}
	defer s.Close()

	mut := &models.Mutation{
		Table:    table,
		Op:       op,
		RecordID: recordID,
	}
	if payload != "" {
		mut.Payload = json.RawMessage(payload)
	}
	if err := s.dispatcher.Apply(ctx, mut); err != nil {
		return err
	}
	fmt.Printf("%s %s %s queued (seq %d)\n", op, table, recordID, mut.Seq)
	return nil
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle: pull if needed, then push queued mutations",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer s.Close()

			if s.syncer.IsStale() {
				if err := s.syncer.PullFull(cmd.Context()); err != nil {
					return err
				}
				fmt.Printf("Pulled snapshot (server_seq %d)\n", s.store.ServerSeq())
			}
			if err := s.syncer.PushQueued(cmd.Context()); err != nil {
				return err
			}
			pending, _ := s.queue.PendingCount(cmd.Context(), s.tenantID)
			fmt.Printf("Sync complete, %d pending\n", pending)
			return nil
		},
	}
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the sync client in the foreground until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.syncer.Start(cmd.Context()); err != nil {
				return err
			}
			defer s.syncer.Stop()

			fmt.Println("Sync client running. Press Ctrl+C to stop.")
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			<-sigChan
			fmt.Println("Stopping.")
			return nil
		},
	}
}

func newResyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resync",
		Short: "Discard queued mutations and pull a fresh snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.syncer.Resync(cmd.Context()); err != nil {
				return err
			}
			fmt.Printf("Resynced (server_seq %d)\n", s.store.ServerSeq())
			return nil
		},
	}
}

func newPurgeCmd() *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Permanently delete all transactional data for this tenant",
		Long: `Purge removes every transaction, invoice, bill, contract, agreement,
return, pay statement, and scheduled template from the server and resets all
account balances to zero. Master records (accounts, contacts, categories,
organizational units, settings) are kept. This cannot be undone.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				fmt.Print("This permanently deletes all transactional data. Type the word PURGE to continue: ")
				reader := bufio.NewReader(os.Stdin)
				line, err := reader.ReadString('\n')
				if err != nil {
					return err
				}
				if strings.TrimSpace(line) != "PURGE" {
					fmt.Println("Aborted.")
					return nil
				}
			}

			s, err := openSession(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer s.Close()

			resp, err := s.api.PurgeTransactionalData(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Server purge complete: %d records deleted, %d accounts reset\n",
				resp.Details.RecordsDeleted, resp.Details.AccountsReset)

			// Mirror the purge locally, then pull the authoritative state.
			if s.store.Loaded() {
				if err := s.store.ClearTables(cmd.Context(), models.TransactionalTables()); err != nil {
					return err
				}
			}
			if err := s.syncer.Resync(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Local snapshot refreshed.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&confirm, "yes", false, "Skip the confirmation prompt")
	return cmd
}
