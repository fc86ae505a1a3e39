package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/yanqian/shim-server/internal/infra/accountrepo"
	"github.com/yanqian/shim-server/internal/infra/archive"
	"github.com/yanqian/shim-server/internal/infra/config"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "shimctl",
		Short: "Operator tooling for the shim server",
	}

	rootCmd.AddCommand(hashSecretCmd())
	rootCmd.AddCommand(genKeyCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(accountsCmd())
	rootCmd.AddCommand(archiveCmd(openArchive))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func hashSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash-secret",
		Short: "Print the bcrypt hash of an API client secret for auth.clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, _ := cmd.Flags().GetString("secret")
			hash, err := hashSecret(secret)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	cmd.Flags().String("secret", "", "Client secret to hash")
	return cmd
}

func genKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gen-key",
		Short: "Generate a 32 byte accounts.tokenEncryptionKey",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := generateKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the shim_accounts table",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, closeFn, err := openRepository(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			if err := repo.EnsureSchema(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "shim_accounts schema is up to date")
			return nil
		},
	}
}

func accountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Inspect stored vendor accounts",
	}
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored accounts without tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, closeFn, err := openRepository(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			accounts, err := repo.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, a := range accounts {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", a.ShimKey, a.Username, a.Scheme, a.UpdatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.AddCommand(listCmd)
	return cmd
}

func openRepository(ctx context.Context) (*accountrepo.PostgresRepository, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Accounts.Postgres.DSN == "" {
		return nil, nil, fmt.Errorf("accounts.postgres.dsn is not configured")
	}
	pool, err := pgxpool.New(ctx, cfg.Accounts.Postgres.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	return accountrepo.NewPostgresRepository(pool), pool.Close, nil
}

type archiveReader interface {
	List(ctx context.Context, prefix string) ([]string, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

func archiveCmd(open func() (archiveReader, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Read raw vendor responses from the object archive",
	}
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List archived response keys, e.g. --prefix withings/step_count/",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix, _ := cmd.Flags().GetString("prefix")
			store, err := open()
			if err != nil {
				return err
			}
			keys, err := store.List(cmd.Context(), prefix)
			if err != nil {
				return fmt.Errorf("list archive: %w", err)
			}
			for _, key := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), key)
			}
			return nil
		},
	}
	listCmd.Flags().String("prefix", "", "Only list keys starting with this prefix")

	getCmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print one archived response body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			body, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get %s: %w", args[0], err)
			}
			_, err = cmd.OutOrStdout().Write(append(body, '\n'))
			return err
		},
	}
	cmd.AddCommand(listCmd, getCmd)
	return cmd
}

func openArchive() (archiveReader, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if !cfg.Archive.Enabled {
		return nil, fmt.Errorf("archive.enabled is false")
	}
	store, err := archive.NewObjectArchive(cfg.Archive.Endpoint, cfg.Archive.AccessKey, cfg.Archive.SecretKey, cfg.Archive.Bucket, cfg.Archive.Region, nil)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func hashSecret(secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("--secret is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(hash), nil
}

// generateKey returns 16 random bytes hex encoded, which is 32 bytes of key material.
func generateKey() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
