package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/folio/internal/client/authstate"
	"github.com/spec-kit/folio/internal/client/console"
)

func loginCmd() *cobra.Command {
	var (
		email    string
		password string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Long: `Sign in against the API and keep the session on disk, so later
"folioctl status" and "folioctl logout" runs see it. For a session that ends
with the process, sign in through "folioctl console" without "remember me".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" || password == "" {
				return errors.New("--email and --password are required")
			}
			app, err := newClientApp()
			if err != nil {
				return err
			}
			defer app.Close()

			// Each folioctl run is its own process; only the on-disk tier outlives it.
			res, err := app.orch.Login(cmd.Context(), email, password, true)
			if err != nil {
				return errors.New(authstate.Message(err))
			}
			mode := "server"
			if res.DemoMode {
				mode = "demo"
			}
			fmt.Printf("Signed in as %s (%s, %s session)\n", res.User.Email, res.User.Role, mode)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password")

	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newClientApp()
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.orch.Initialize(cmd.Context()); err != nil {
				return err
			}
			if err := app.orch.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Signed out")
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the restored session and backend status",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newClientApp()
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.orch.Initialize(cmd.Context()); err != nil {
				return err
			}
			app.orch.Wait()

			st := app.orch.State()
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"state":           st,
				"isAuthenticated": st.IsAuthenticated(),
				"isDemoMode":      st.IsDemoMode(),
			})
		},
	}
}

func probeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check whether the API is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newClientApp()
			if err != nil {
				return err
			}
			defer app.Close()

			res := app.monitor.Probe(cmd.Context())
			fmt.Printf("%s: %s (%s, %s)\n", app.cfg.Client.APIURL, res.Status(), res.Detail, res.Latency.Round(time.Millisecond))
			if !res.Reachable {
				return errors.New("api unreachable")
			}
			return nil
		},
	}
}

func consoleCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "console",
		Short: "Serve the local admin console",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newClientApp()
			if err != nil {
				return err
			}
			defer app.Close()
			if addr == "" {
				addr = app.cfg.Client.ConsoleAddr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := &http.Server{
				Addr:              addr,
				Handler:           console.New(app.orch, app.logger),
				ReadHeaderTimeout: 5 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				app.logger.Info("console listening", zap.String("addr", addr))
				errCh <- srv.ListenAndServe()
			}()

			// The guard shows a placeholder until this settles.
			if err := app.orch.Initialize(ctx); err != nil && !errors.Is(err, authstate.ErrSuperseded) {
				app.logger.Warn("initialize", zap.Error(err))
			}

			select {
			case <-ctx.Done():
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default FOLIO_CONSOLE_ADDR)")

	return cmd
}

func versionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			if short {
				fmt.Println(version)
				return
			}
			fmt.Printf("folioctl %s (commit %s, %s, %s/%s)\n", version, commit, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only version number")

	return cmd
}
