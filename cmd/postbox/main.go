package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sujalbistaa/postbox/internal/console"
	"github.com/sujalbistaa/postbox/internal/db"
	routes "github.com/sujalbistaa/postbox/internal/http"
	"github.com/sujalbistaa/postbox/internal/store"
	"github.com/sujalbistaa/postbox/internal/ws"
)

var (
	flagHost string
	flagPort int
)

var rootCmd = &cobra.Command{
	Use:   "postbox",
	Short: "Anonymous message drop: API server plus interactive admin console",
	Long: `postbox serves the anonymous contact API and simultaneously opens an
interactive terminal menu for local administration. Both front ends
share the same message store.

Set CONTACT_ADMIN_PASSWORD to enable the admin API and the console.`,
	RunE: run,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.Flags().StringVar(&flagHost, "host", "0.0.0.0", "API server host")
	rootCmd.Flags().IntVar(&flagPort, "port", 8000, "API server port")
}

func run(cmd *cobra.Command, args []string) error {
	// Load .env first so everything below sees the variables. Missing
	// file is fine: production sets env vars directly.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	adminPassword := os.Getenv("CONTACT_ADMIN_PASSWORD")

	database, err := db.Init()
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	st := store.New(database)
	log.Println("Running database migrations...")
	if err := st.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Println("Migrations complete.")

	hub := ws.NewHub()
	go hub.Run()

	router := gin.New()
	routes.SetupRoutes(router, st, hub, adminPassword)

	addr := fmt.Sprintf("%s:%d", flagHost, flagPort)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	if adminPassword != "" {
		log.Println("Admin authentication enabled")
	} else {
		log.Println("Admin password not set - admin features disabled")
	}

	// The console runs alongside the server. A clean quit from the menu
	// stops the whole process; a failed password gate only disables the
	// console and the server keeps serving until a signal arrives.
	consoleDone := make(chan struct{})
	go func() {
		err := console.New(st, hub, adminPassword).Run()
		if err == nil {
			close(consoleDone)
			return
		}
		if errors.Is(err, console.ErrAdminDisabled) || errors.Is(err, console.ErrBadPassword) {
			log.Println("Console unavailable; server keeps running. Ctrl+C to stop.")
			return
		}
		log.Printf("Console exited: %v", err)
	}()

	select {
	case <-quit:
	case <-consoleDone:
	}

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("Server exiting")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
