package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/soulart-temple/backend/internal/catalog"
	"github.com/soulart-temple/backend/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:           "dbtool",
	Short:         "Operational tooling for the SoulArt Temple backend",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	// Load environment variables
	_ = godotenv.Load(
		"../.env",
		"../.dev.vars",
		".env",
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	viper.SetDefault("log_level", "info")
	viper.SetDefault("stripe_product_app", "soulart_temple")
	viper.SetDefault("guide_daily_limit", catalog.DefaultGuideDailyLimit)
	viper.SetDefault("decoder_lifetime_limit", catalog.DefaultDecoderLifetimeLimit)
	_ = viper.BindEnv("database_url", "DATABASE_URL")
	_ = viper.BindEnv("session_secret", "SESSION_SECRET")
	_ = viper.BindEnv("stripe_secret_key", "STRIPE_SECRET_KEY")
	_ = viper.BindEnv("stripe_product_app", "STRIPE_PRODUCT_APP")
	_ = viper.BindEnv("log_level", "LOG_LEVEL")
	_ = viper.BindEnv("guide_daily_limit", "GUIDE_DAILY_LIMIT")
	_ = viper.BindEnv("decoder_lifetime_limit", "DECODER_LIFETIME_LIMIT")

	rootCmd.PersistentFlags().String("database-url", "", "Postgres DSN (default $DATABASE_URL)")
	_ = viper.BindPFlag("database_url", rootCmd.PersistentFlags().Lookup("database-url"))

	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newFixCmd())
	rootCmd.AddCommand(newForceCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newCreateMemberCmd())
	rootCmd.AddCommand(newGrantCmd())
	rootCmd.AddCommand(newRevokeCmd())
	rootCmd.AddCommand(newShowCmd())
	rootCmd.AddCommand(newSessionCmd())
	rootCmd.AddCommand(newSeedProductsCmd())
}

func newLogger() *logger.Logger {
	return logger.New(logger.Config{Level: viper.GetString("log_level"), Format: "console", Output: os.Stderr})
}

// newCatalog builds the tier catalog with the same limits the server reads.
func newCatalog() *catalog.Catalog {
	opts := catalog.DefaultOptions()
	opts.GuideDailyLimit = viper.GetInt("guide_daily_limit")
	opts.DecoderLifetimeLimit = viper.GetInt("decoder_lifetime_limit")
	return catalog.New(opts)
}

// openDB opens and pings the configured database.
func openDB(ctx context.Context) (*sql.DB, error) {
	dsn := viper.GetString("database_url")
	if dsn == "" {
		return nil, fmt.Errorf("database url is required (--database-url or DATABASE_URL)")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}
