package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/fixit/internal/api"
	"github.com/joescharf/fixit/internal/daemon"
	"github.com/joescharf/fixit/internal/identity"
	"github.com/joescharf/fixit/internal/output"
)

const (
	shutdownTimeout = 10 * time.Second

	// startupGrace is how long serve start watches the child before reporting success.
	startupGrace = 500 * time.Millisecond
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start the REST API in the foreground. Requests authenticate with a
bearer token minted by 'fixit token'. By default it listens on port 8080.

Use 'fixit serve start' to run it in the background.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun(cmd.Context())
	},
}

var serveStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the REST API server in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStartRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background REST API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the background REST API server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

func init() {
	serveCmd.PersistentFlags().IntP("port", "p", 8080, "port to listen on")
	_ = viper.BindPFlag("port", serveCmd.PersistentFlags().Lookup("port"))

	serveCmd.AddCommand(serveStartCmd)
	serveCmd.AddCommand(serveStopCmd)
	serveCmd.AddCommand(serveStatusCmd)
	rootCmd.AddCommand(serveCmd)
}

func pidFile() *daemon.PIDFile {
	return daemon.NewPIDFile(filepath.Join(viper.GetString("state_dir"), "fixit-serve.pid"))
}

func serveLogPath() string {
	return filepath.Join(viper.GetString("state_dir"), "fixit-serve.log")
}

func jwtSecret() (string, error) {
	secret := viper.GetString("auth.jwt_secret")
	if secret == "" {
		return "", fmt.Errorf("auth.jwt_secret is not set (set FIXIT_AUTH_JWT_SECRET or edit the config file)")
	}
	return secret, nil
}

// newAPIHandler wires the REST API over the shared store.
func newAPIHandler(logger *slog.Logger) (http.Handler, error) {
	secret, err := jwtSecret()
	if err != nil {
		return nil, err
	}

	issues, workflow, err := newTracker()
	if err != nil {
		return nil, err
	}
	workflow.SetLogger(logger)

	s, err := getStore()
	if err != nil {
		return nil, err
	}
	srv := api.NewServer(issues, workflow, identity.NewResolver(secret, s), logger)
	return srv.Router(), nil
}

func serveRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	handler, err := newAPIHandler(logger)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(viper.GetString("state_dir"), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	pf := pidFile()
	if err := pf.Acquire(); err != nil {
		return fmt.Errorf("server %w", err)
	}
	defer pf.Release()

	addr := fmt.Sprintf(":%d", viper.GetInt("port"))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, shutdownSignals()...)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	ui.Info("Serving API at http://localhost%s", addr)
	logger.Info("server started", "addr", addr, "version", buildVersion)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func serveStartRun() error {
	pf := pidFile()
	if pid, running := pf.IsRunning(); running {
		return fmt.Errorf("server already running (pid %d)", pid)
	}
	if _, err := jwtSecret(); err != nil {
		return err
	}

	if err := os.MkdirAll(viper.GetString("state_dir"), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}

	logFile, err := os.OpenFile(serveLogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = logFile.Close() }()

	args := []string{"serve", "--port", strconv.Itoa(viper.GetInt("port"))}
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}

	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	setDaemonAttrs(child)

	if dryRun {
		ui.DryRunMsg("Would start: %s %v", exe, args)
		return nil
	}

	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	if err := pf.WritePID(child.Process.Pid); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}

	// A child that fails at startup (bad port, unreadable db) exits quickly.
	exited := make(chan error, 1)
	go func() { exited <- child.Wait() }()
	select {
	case err := <-exited:
		_ = pf.Remove()
		return fmt.Errorf("server exited during startup (%v); see %s", err, serveLogPath())
	case <-time.After(startupGrace):
	}

	ui.Success("Server started (pid %d) on port %d", child.Process.Pid, viper.GetInt("port"))
	ui.Info("Logs: %s", serveLogPath())
	return nil
}

func serveStopRun() error {
	pid, err := pidFile().Stop(sigTERM(), sigKILL(), 5*time.Second)
	if errors.Is(err, daemon.ErrNotRunning) {
		return fmt.Errorf("server is not running")
	}
	if err != nil {
		return err
	}
	ui.Success("Server stopped (pid %d)", pid)
	return nil
}

func serveStatusRun() error {
	pid, running := pidFile().IsRunning()
	if !running {
		ui.Info("Server: %s", output.Yellow("not running"))
		return nil
	}
	ui.Info("Server: %s (pid %d, port %d)", output.Green("running"), pid, viper.GetInt("port"))
	return nil
}
