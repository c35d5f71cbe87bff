package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/delciotorres/pyroute2/config"
	"github.com/delciotorres/pyroute2/ipset"
	"github.com/delciotorres/pyroute2/log"
	"github.com/delciotorres/pyroute2/reconcile"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func configFile(file string) (string, error) {
	if file == "" && settings != nil {
		file = settings.Config
	}
	if file == "" {
		return "", errors.New("no configuration file, use -f or IPSET_CONFIG")
	}
	return file, nil
}

func applyConfig(w io.Writer, cfg *config.Config, mode reconcile.Mode) error {
	return withClient(func(c *ipset.Client) error {
		results, err := reconcile.Apply(c, cfg, mode)
		for _, r := range results {
			fmt.Fprintln(w, r)
		}
		return err
	})
}

func newApplyCmd() *cobra.Command {
	var (
		file    string
		replace bool
	)
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Bring the sets in line with a configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := configFile(file)
			if err != nil {
				return err
			}
			cfg, err := config.Load(file)
			if err != nil {
				return err
			}
			mode := reconcile.Sync
			if replace {
				mode = reconcile.Replace
			}
			return applyConfig(cmd.OutOrStdout(), cfg, mode)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Configuration file (JSON or YAML).")
	cmd.Flags().BoolVar(&replace, "replace", false, "Swap in freshly built sets instead of editing them.")
	return cmd
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Info("serving metrics on %s", addr)
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error("metrics server: %s", err)
		}
	}()
}

func newWatchCmd() *cobra.Command {
	var (
		file        string
		mode        string
		metricsAddr string
	)
	if settings != nil {
		metricsAddr = settings.MetricsAddr
	}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Apply a configuration file and reapply it whenever it changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := reconcile.ParseMode(mode)
			if err != nil {
				return err
			}
			file, err := configFile(file)
			if err != nil {
				return err
			}
			if metricsAddr != "" {
				serveMetrics(metricsAddr)
			}

			watcher, err := config.NewWatcher(file)
			if err != nil {
				return err
			}
			defer watcher.Stop()
			cfg, err := watcher.Start()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if err := applyConfig(w, cfg, m); err != nil {
				log.Error("applying %s: %s", file, err)
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
			for {
				select {
				case sig := <-sigChan:
					log.Raw("\n")
					log.Important("Got signal: %v", sig)
					return nil
				case cfg, ok := <-watcher.ReloadConfChan:
					if !ok {
						return errors.New("configuration watcher stopped")
					}
					if err := applyConfig(w, cfg, m); err != nil {
						log.Error("applying %s: %s", file, err)
					}
				}
			}
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Configuration file (JSON or YAML).")
	cmd.Flags().StringVar(&mode, "mode", "sync", "Reconcile mode: sync or replace.")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", metricsAddr, "Serve prometheus metrics on this address.")
	return cmd
}
