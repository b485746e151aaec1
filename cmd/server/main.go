package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"medchat/internal/config"
	"medchat/internal/domain"
	"medchat/internal/logging"
	"medchat/internal/security"
	"medchat/internal/store"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "medchat",
		Short:        "Doctor-patient chat server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the real-time gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg)
		},
	}
}

func openStore(ctx context.Context, cfg *config.Config) (*store.Repositories, error) {
	repos, err := store.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := repos.Migrate(ctx); err != nil {
		repos.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return repos, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := logging.New(cfg.LogLevel, cfg.Env)
			repos, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer repos.Close()
			logger.Info().Str("driver", cfg.DatabaseDriver).Msg("schema is up to date")
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a demo doctor, patient and active connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			repos, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer repos.Close()

			doctorFirst, _ := cmd.Flags().GetString("doctor-first")
			doctorLast, _ := cmd.Flags().GetString("doctor-last")
			patientFirst, _ := cmd.Flags().GetString("patient-first")
			patientLast, _ := cmd.Flags().GetString("patient-last")

			pair, err := store.SeedPair(cmd.Context(), repos.Provisioner,
				store.Person{FirstName: doctorFirst, LastName: doctorLast},
				store.Person{FirstName: patientFirst, LastName: patientLast},
				time.Now().UTC().Truncate(time.Microsecond))
			if err != nil {
				return err
			}

			tokens := security.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL())
			doctorToken, err := tokens.CreateForUser(pair.DoctorUserID, domain.RoleDoctor)
			if err != nil {
				return err
			}
			patientToken, err := tokens.CreateForUser(pair.PatientUserID, domain.RolePatient)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "connection: %s\n", pair.ConnectionID)
			fmt.Fprintf(out, "doctor:     %s\n  token: %s\n", pair.DoctorUserID, doctorToken)
			fmt.Fprintf(out, "patient:    %s\n  token: %s\n", pair.PatientUserID, patientToken)
			return nil
		},
	}
	cmd.Flags().String("doctor-first", "Gregory", "doctor first name")
	cmd.Flags().String("doctor-last", "House", "doctor last name")
	cmd.Flags().String("patient-first", "Jane", "patient first name")
	cmd.Flags().String("patient-last", "Doe", "patient last name")
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a bearer token for a user (development only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cfg.IsDev() {
				return fmt.Errorf("token is only available when ENV=development")
			}

			role, _ := cmd.Flags().GetString("role")
			r := domain.Role(role)
			switch r {
			case domain.RoleDoctor, domain.RolePatient, domain.RoleAdmin:
			default:
				return fmt.Errorf("unknown role %q", role)
			}
			ttl, _ := cmd.Flags().GetDuration("ttl")

			token, err := security.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL()).CreateWithTTL(args[0], r, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("role", string(domain.RolePatient), "DOCTOR, PATIENT or ADMIN")
	cmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	return cmd
}
