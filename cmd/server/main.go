package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"fieldservice-invoicing-backend/internal/config"
	"fieldservice-invoicing-backend/internal/logger"
	"fieldservice-invoicing-backend/internal/models"
	"fieldservice-invoicing-backend/internal/routes"
	"fieldservice-invoicing-backend/internal/services/invoicing"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var skipMigrate bool

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the invoicing API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(!skipMigrate)
		},
	}
	serve.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not auto-migrate the schema on startup")

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := bootstrap()
			if err != nil {
				return err
			}
			db, err := config.InitDB(cfg)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			if err := models.AutoMigrate(db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.Info().Msg("schema up to date")
			return nil
		},
	}

	root := &cobra.Command{
		Use:           "invoicing",
		Short:         "Field-service invoicing backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	root.Flags().AddFlagSet(serve.Flags())
	root.AddCommand(serve, migrate)
	return root
}

func bootstrap() (*config.Config, error) {
	// Load .env
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file found, relying on system env")
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := logger.Setup(cfg.GetLoggerConfig()); err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}
	return cfg, nil
}

func runServer(migrate bool) error {
	cfg, err := bootstrap()
	if err != nil {
		return err
	}

	db, err := config.InitDB(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	if migrate {
		if err := models.AutoMigrate(db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	r := gin.New()
	r.Use(gin.Recovery())
	// CORS config
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSAllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Idempotency-Key", "X-User-ID", "X-Request-Id"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-Id", "Idempotent-Replayed"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, db, routes.Options{
		Invoicing: invoicing.Config{
			DueDays:                    cfg.InvoiceDueDays,
			DefaultTerms:               cfg.InvoiceDefaultTerms,
			LenientPaymentApplications: cfg.InvoiceLenientPaymentApplications,
			ValidationConcurrency:      cfg.ValidationConcurrency,
		},
		IdempotencyPendingTTL: cfg.IdempotencyPendingTTL,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info().Str("addr", srv.Addr).Msg("invoicing API listening")
	return srv.ListenAndServe()
}
