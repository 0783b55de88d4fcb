package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Jeffreasy/KoruFormsService/internal/app"
	"github.com/Jeffreasy/KoruFormsService/internal/auth"
	"github.com/Jeffreasy/KoruFormsService/internal/config"
	"github.com/Jeffreasy/KoruFormsService/internal/crypto"
	"github.com/Jeffreasy/KoruFormsService/internal/domain"
	"github.com/Jeffreasy/KoruFormsService/internal/storage"
	"github.com/Jeffreasy/KoruFormsService/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_FILE")

	root := &cobra.Command{
		Use:           "control",
		Short:         "Operator tasks for the Koru forms service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", configPath, "YAML config file (env CONFIG_FILE)")

	loadConfig := func() (*config.Config, error) {
		return config.Load(configPath)
	}

	root.AddCommand(
		reconcileCmd(loadConfig),
		createUserCmd(loadConfig),
		listFormsCmd(loadConfig),
		hashPasswordCmd(),
		keygenCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type configLoader func() (*config.Config, error)

func reconcileCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run website reconciliation once and print the summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			log := logger.Setup(cfg.App.Env, cfg.App.LogLevel)
			flush := app.InitSentry(os.Getenv("SENTRY_DSN"), cfg.App.Env, log)
			defer flush()

			a, err := app.New(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.Scheduler == nil {
				return errors.New("reconciliation needs BROKER_URL, BROKER_APP_ID and BROKER_APP_SECRET")
			}

			sum, ran, err := a.Scheduler.Trigger(cmd.Context())
			if err != nil {
				return err
			}
			if !ran {
				return errors.New("another reconciliation holds the lock")
			}
			return printJSON(sum)
		},
	}
}

func createUserCmd(load configLoader) *cobra.Command {
	var (
		email, name, password, role string
		websites                    []string
	)
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create or update a local dashboard user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" || password == "" {
				return errors.New("--email and --password are required")
			}
			if role != domain.RoleAdmin && role != domain.RoleEditor {
				return fmt.Errorf("--role must be %q or %q", domain.RoleAdmin, domain.RoleEditor)
			}
			hash, err := auth.NewBcryptHasher(auth.DefaultBcryptCost).Hash(password)
			if err != nil {
				return err
			}
			return withPool(cmd.Context(), load, func(pool *pgxpool.Pool) error {
				u := &domain.User{
					Email:        strings.TrimSpace(email),
					Name:         name,
					PasswordHash: hash,
					Role:         role,
					Websites:     websites,
				}
				if err := storage.NewUserStore(pool).Upsert(cmd.Context(), u); err != nil {
					return err
				}
				fmt.Printf("user %s (%s) saved with role %s\n", u.Email, u.ID, u.Role)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&password, "password", "", "plain password, hashed with bcrypt before storage")
	cmd.Flags().StringVar(&role, "role", domain.RoleEditor, "admin or editor")
	cmd.Flags().StringSliceVar(&websites, "website", nil, "website id the user may manage (repeatable)")
	return cmd
}

func listFormsCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "list-forms",
		Short: "List every form with its binding and activation state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(cmd.Context(), load, func(pool *pgxpool.Pool) error {
				forms, err := storage.NewFormStore(pool).List(cmd.Context(), nil)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "FORM ID\tNAME\tWEBSITE\tSTATUS\tACTIVE\tUPDATED")
				for _, f := range forms {
					website := "-"
					if f.WebsiteID != nil {
						website = *f.WebsiteID
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n",
						f.FormID, f.Name, website, f.Status, f.IsActive, f.UpdatedAt.Format(time.RFC3339))
				}
				return tw.Flush()
			})
		},
	}
}

func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print the bcrypt hash of a password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.NewBcryptHasher(auth.DefaultBcryptCost).Hash(args[0])
			if err != nil {
				return err
			}
			fmt.Println(hash)
			return nil
		},
	}
}

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "keygen rsa|aes",
		Short:     "Generate a JWT signing key (rsa) or a token encryption key (aes)",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"rsa", "aes"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == "aes" {
				key, err := crypto.GenerateKey()
				if err != nil {
					return err
				}
				fmt.Printf("TOKEN_ENCRYPTION_KEY=%s\n", key)
				return nil
			}

			privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
			if err != nil {
				return fmt.Errorf("generate key: %w", err)
			}
			privPEM := pem.EncodeToMemory(&pem.Block{
				Type:  "RSA PRIVATE KEY",
				Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
			})
			fmt.Println("--- COPY BELOW TO .env.local ---")
			fmt.Printf("JWT_PRIVATE_KEY=\"%s\"\n", string(privPEM))
			fmt.Println("--------------------------------")
			return nil
		},
	}
}

func withPool(ctx context.Context, load configLoader, fn func(*pgxpool.Pool) error) error {
	cfg, err := load()
	if err != nil {
		return err
	}
	pool, err := storage.NewPostgres(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer pool.Close()
	return fn(pool)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
