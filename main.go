// ipsetctl manages ipset sets through the kernel netlink interface.
package main

import (
	"fmt"
	"io/ioutil"
	golog "log"
	"os"
	"time"

	"github.com/delciotorres/pyroute2/config"
	"github.com/delciotorres/pyroute2/ipset"
	"github.com/delciotorres/pyroute2/log"
	"github.com/delciotorres/pyroute2/netlink"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	settings = (*config.Settings)(nil)

	netnsName   = ""
	logFile     = ""
	logLevel    = "info"
	recvTimeout = 5 * time.Second
	recvBuffer  = 0
	debug       = false
	logFormat   = "text"
	logUTC      = true
	logMicro    = false
)

func setupLogging() error {
	golog.SetOutput(ioutil.Discard)

	level, err := log.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	if debug {
		level = log.DEBUG
	}
	log.SetLogLevel(level)
	log.SetLogUTC(logUTC)
	log.SetLogMicro(logMicro)
	if err := log.SetFormat(logFormat); err != nil {
		return err
	}

	if logFile != "" {
		if err := log.OpenFile(logFile); err != nil {
			return errors.Wrapf(err, "opening log file %s", logFile)
		}
	}
	return nil
}

// openClient dials the kernel in the selected namespace.
func openClient() (*ipset.Client, error) {
	opts := []netlink.DialOpt{netlink.OptReceiveTimeout(recvTimeout)}
	if recvBuffer > 0 {
		opts = append(opts, netlink.OptBufferSize(recvBuffer))
	}
	if netnsName != "" {
		opts = append(opts, netlink.OptNetns(netnsName))
	}
	return ipset.Open(opts...)
}

// withClient runs fn with a fresh client and closes it afterwards.
func withClient(fn func(c *ipset.Client) error) error {
	c, err := openClient()
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ipsetctl",
		Short:         "Manage ipset sets over netlink",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			log.Close()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&netnsName, "netns", netnsName, "Network namespace, by name or path.")
	flags.StringVar(&logFile, "log-file", logFile, "Write logs to this file instead of the standard output.")
	flags.StringVar(&logLevel, "log-level", logLevel, "Minimum log level (debug, info, important, warning, error).")
	flags.DurationVar(&recvTimeout, "recv-timeout", recvTimeout, "Kernel reply timeout.")
	flags.IntVar(&recvBuffer, "recv-buffer", recvBuffer, "Receive buffer size in bytes (0 keeps the default).")
	flags.StringVar(&logFormat, "log-format", logFormat, "Log line format (text, json).")
	flags.BoolVar(&logUTC, "log-utc", logUTC, "Log timestamps in UTC.")
	flags.BoolVar(&logMicro, "log-micro", logMicro, "Log timestamps with microseconds.")
	flags.BoolVar(&debug, "debug", debug, "Enable debug logs.")

	root.AddCommand(
		newCreateCmd(),
		newDestroyCmd(),
		newFlushCmd(),
		newRenameCmd(),
		newSwapCmd(),
		newAddCmd(),
		newDelCmd(),
		newTestCmd(),
		newListCmd(),
		newProtocolCmd(),
		newApplyCmd(),
		newWatchCmd(),
	)
	return root
}

func main() {
	var err error
	if settings, err = config.LoadSettings(); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(2)
	}
	netnsName = settings.Netns
	logFile = settings.LogFile
	logLevel = settings.LogLevel
	recvTimeout = settings.RecvTimeout
	recvBuffer = settings.RecvBuffer
	logFormat = settings.LogFormat

	if err := newRootCmd().Execute(); err != nil {
		log.Error("%s", err)
		os.Exit(1)
	}
}
