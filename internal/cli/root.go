// Package cli provides the command-line interface for wg-tunnel.
package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/wg-tunnel/internal/backend"
	"github.com/user/wg-tunnel/internal/config"
	"github.com/user/wg-tunnel/internal/core"
	"github.com/user/wg-tunnel/internal/keys"
	"github.com/user/wg-tunnel/internal/logger"
	"github.com/user/wg-tunnel/internal/permission"
	"github.com/user/wg-tunnel/internal/protocols/wireguard"
	"github.com/user/wg-tunnel/internal/tunnelcfg"
)

// NewRootCommand creates the root cobra command.
func NewRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "wg-tunnel",
		Short:         "Bring up a WireGuard tunnel from a config file",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.GetConfigPath(), "path to config.yaml")

	root.AddCommand(newUpCmd(&configPath))
	root.AddCommand(newValidateCmd(&configPath))
	root.AddCommand(newKeygenCmd())
	root.AddCommand(newPubkeyCmd())
	root.AddCommand(newLogsCmd(&configPath))
	return root
}

func loadConfig(path string) (*config.Manager, error) {
	mgr := config.NewManager(path)
	if err := mgr.Load(); err != nil {
		return nil, err
	}
	return mgr, nil
}

func newUpCmd(configPath *string) *cobra.Command {
	var (
		checkURL      string
		statsInterval time.Duration
		verbose       bool
		captureStderr bool
	)

	up := &cobra.Command{
		Use:   "up",
		Short: "Bring the tunnel up and keep it up until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			cfg := mgr.Get()

			if err := logger.Init(cfg.Log.Path); err != nil {
				return fmt.Errorf("failed to open log file: %w", err)
			}
			defer logger.Close()
			if verbose {
				errOut := cmd.ErrOrStderr()
				defer logger.AddListener(func(line string) { fmt.Fprintln(errOut, line) })()
			}
			if captureStderr {
				logger.CaptureStderr()
			}
			logger.Info("wg-tunnel starting, config %s", mgr.Path())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			t := newTunnel(cfg.Backend, cmd.InOrStdin(), cmd.ErrOrStderr(), logger.Info)
			defer t.ctrl.Close()

			out := cmd.OutOrStdout()
			t.ctrl.SetStatusListener(func(s core.StatusPayload) {
				logger.Connection("%s %s", s.TunnelState, s.Error)
				printJSON(out, s)
			})

			if err := t.ctrl.Initialize(ctx); err != nil {
				return err
			}
			if _, err := t.ctrl.RequestVPNPermission(ctx); err != nil {
				return err
			}
			if err := t.ctrl.Connect(ctx, mgr.Tunnel()); err != nil {
				logger.Error("connect: %v", err)
				return err
			}

			if checkURL != "" {
				if err := t.check(ctx, out, checkURL); err != nil {
					logger.Warning("check failed: %v", err)
					fmt.Fprintf(cmd.ErrOrStderr(), "check failed: %v\n", err)
				}
			}

			var ticks <-chan time.Time
			if statsInterval > 0 {
				ticker := time.NewTicker(statsInterval)
				defer ticker.Stop()
				ticks = ticker.C
			}

			for {
				select {
				case <-ctx.Done():
					logger.Info("shutting down")
					if err := t.ctrl.Disconnect(context.Background()); err != nil {
						return err
					}
					return nil
				case <-ticks:
					t.logStats(out)
				}
			}
		},
	}
	up.Flags().StringVar(&checkURL, "check", "", "after connecting, fetch this URL through the tunnel (userspace mode)")
	up.Flags().DurationVar(&statsInterval, "stats", 0, "print peer statistics at this interval")
	up.Flags().BoolVarP(&verbose, "verbose", "v", false, "copy log lines to stderr")
	up.Flags().BoolVar(&captureStderr, "capture-stderr", false, "send stderr, including panics, to the log file (for running as a service)")
	return up
}

// tunnel is the object graph `up` drives.
type tunnel struct {
	ctrl *core.Controller
	wg   *wireguard.Backend
}

func newTunnel(bc config.Backend, in io.Reader, out io.Writer, logf logger.Logf) *tunnel {
	t := &tunnel{}

	mode := wireguard.Mode(bc.Mode)
	platform := permission.NewElevationPlatform(mode == wireguard.ModeKernel, in, out)
	gate := permission.NewGate(platform, logf)
	platform.Bind(gate)

	factory := func() (backend.Backend, error) {
		wg, err := wireguard.New(wireguard.Options{Mode: mode, LogLevel: bc.LogLevel, Logf: logf})
		if err != nil {
			return nil, err
		}
		t.wg = wg
		return wg, nil
	}
	session := backend.NewSession(bc.Interface, factory, gate, logf)
	t.ctrl = core.New(session, gate, logf)
	return t
}

func (t *tunnel) check(ctx context.Context, out io.Writer, url string) error {
	if t.wg == nil || t.wg.Net() == nil {
		return fmt.Errorf("checking a URL needs userspace mode")
	}
	client := &http.Client{
		Transport: &http.Transport{DialContext: t.wg.Net().DialContext},
		Timeout:   15 * time.Second,
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	n, _ := io.Copy(io.Discard, resp.Body)
	fmt.Fprintf(out, "check %s: %s (%d bytes)\n", url, resp.Status, n)
	return nil
}

func (t *tunnel) logStats(out io.Writer) {
	if t.wg == nil {
		return
	}
	st, err := t.wg.Stats()
	if err != nil {
		logger.Warning("stats: %v", err)
		return
	}
	handshake := "never"
	if !st.LastHandshake.IsZero() {
		handshake = time.Since(st.LastHandshake).Round(time.Second).String() + " ago"
	}
	line := fmt.Sprintf("peer %s endpoint=%s tx=%d rx=%d handshake=%s",
		st.PublicKey, st.Endpoint, st.BytesSent, st.BytesReceived, handshake)
	logger.Debug("%s", line)
	fmt.Fprintln(out, line)
}

func newValidateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config file and its tunnel section",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			cfg, err := tunnelcfg.Validate(mgr.Tunnel())
			if err != nil {
				return fmt.Errorf("tunnel config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %s (mode %s, interface %s)\n", cfg.String(), mgr.Get().Backend.Mode, mgr.Get().Backend.Interface)
			return nil
		},
	}
}

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a key pair and print it as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kp, err := keys.Generate()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), kp)
		},
	}
}

func newPubkeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pubkey",
		Short: "Read a private key from stdin and print its public key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && err != io.EOF {
				return err
			}
			pub, err := keys.PublicKey(strings.TrimSpace(line))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), pub)
			return nil
		},
	}
}

func newLogsCmd(configPath *string) *cobra.Command {
	var clear bool

	logs := &cobra.Command{
		Use:   "logs",
		Short: "Print or clear the log file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			path := mgr.Get().Log.Path
			if clear {
				return logger.ClearLogs(path)
			}
			data, err := logger.ReadLogs(path)
			if os.IsNotExist(err) {
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), data)
			return nil
		},
	}
	logs.Flags().BoolVar(&clear, "clear", false, "truncate the log file instead of printing it")
	return logs
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	return enc.Encode(v)
}
