package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"chat-realtime/internal/auth"
	"chat-realtime/internal/config"
	"chat-realtime/internal/db"
	grpcserver "chat-realtime/internal/grpc"
	"chat-realtime/internal/jobs"
	"chat-realtime/internal/repositories"
	"chat-realtime/internal/storage"
)

func main() {
	if err := NewChatdCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func NewChatdCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "chatd",
		Short:        "Realtime chat backend",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	load := func() (*config.Config, error) {
		return config.Load(configPath)
	}

	cmd.AddCommand(
		newServeCommand(load),
		newMigrateCommand(load),
		newTokenCommand(load),
		newCleanupCommand(load),
		newPresenceCommand(load),
	)
	return cmd
}

type configLoader func() (*config.Config, error)

func newMigrateCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			database, err := db.Open(ctx, cfg.DBDriver, cfg.DBDSN)
			if err != nil {
				return err
			}
			defer database.Close()

			if err := db.Migrate(ctx, database); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.Printf("migrations applied driver=%s", cfg.DBDriver)
			return nil
		},
	}
}

func newTokenCommand(load configLoader) *cobra.Command {
	var (
		userID   int
		username string
		create   string
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed token for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			if create != "" {
				database, err := db.Connect(cmd.Context(), cfg.DBDriver, cfg.DBDSN)
				if err != nil {
					return err
				}
				defer database.Close()

				user, err := repositories.NewUserRepo(database).CreateUser(cmd.Context(), create, "")
				if err != nil {
					return fmt.Errorf("create user %q: %w", create, err)
				}
				userID, username = user.ID, user.Username
				log.Printf("created user id=%d username=%s", user.ID, user.Username)
			}
			if userID <= 0 {
				return fmt.Errorf("token: --user-id or --create is required")
			}

			token, err := auth.NewJWT(cfg.JWTSecret).Sign(auth.Identity{UserID: userID, Username: username}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().IntVar(&userID, "user-id", 0, "existing user id")
	cmd.Flags().StringVar(&username, "username", "", "username embedded in the token")
	cmd.Flags().StringVar(&create, "create", "", "create a user with this username first")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func newCleanupCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired statuses once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			database, err := db.Connect(cmd.Context(), cfg.DBDriver, cfg.DBDSN)
			if err != nil {
				return err
			}
			defer database.Close()

			expiry := jobs.NewStatusExpiry(repositories.NewStoryRepo(database), storage.NewLocalStore(cfg.UploadDir, "/uploads/"))
			n, err := expiry.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired statuses\n", n)
			return nil
		},
	}
}

func newPresenceCommand(load configLoader) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "presence <user-id>...",
		Short: "Ask a running server which users are online",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int, 0, len(args))
			for _, a := range args {
				id, err := strconv.Atoi(a)
				if err != nil || id <= 0 {
					return fmt.Errorf("invalid user id %q", a)
				}
				ids = append(ids, id)
			}

			if addr == "" {
				cfg, err := load()
				if err != nil {
					return err
				}
				addr = "localhost:" + cfg.GRPCPort
			}

			conn, err := grpc.NewClient(addr,
				grpc.WithTransportCredentials(insecure.NewCredentials()),
				grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
			)
			if err != nil {
				return fmt.Errorf("dial %s: %w", addr, err)
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			online, err := grpcserver.NewPresenceClient(conn).CheckOnlineStatus(ctx, ids)
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%t\n", id, online[id])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "gRPC address (defaults to localhost:GRPC_PORT)")
	return cmd
}
