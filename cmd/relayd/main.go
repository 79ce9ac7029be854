// Command relayd is the mesh daemon entry point: a single cobra root
// command with no subcommands, since relayd has exactly one long-running
// action instead of a constellation of RPC-driven subcommands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/relaymesh/relayd/internal/daemon"
	"github.com/relaymesh/relayd/internal/dlog"
	"github.com/relaymesh/relayd/internal/fdloop"
	"github.com/relaymesh/relayd/internal/hooks"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cmd, opts := newRootCommand()
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return start(cmd.Context(), opts)
	}
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "relayd: %v\n", err)
		return exitCodeFor(err)
	}
	return 0
}

// options collects the command-line flags.
type options struct {
	kill        string
	killSet     bool
	configDir   string
	netName     string
	debugLevel  string
	noDetach    bool
	mlock       bool
	logfile     string
	pidfile     string
	showVersion bool
}

func newRootCommand() (*cobra.Command, *options) {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "relayd",
		Short:         "relayd is a peer-to-peer encrypted overlay network daemon",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.pidfile, "pidfile", defaultPidfile, "path to the pidfile")
	flags.StringVar(&opts.configDir, "config", defaultConfigDir, "configuration directory")
	flags.StringVar(&opts.netName, "net", "", "network name (defaults to the Name key in tinc.conf)")
	flags.StringVar(&opts.logfile, "logfile", "", "log file path (default: stderr)")
	flags.Lookup("logfile").NoOptDefVal = defaultLogfile
	flags.StringVar(&opts.debugLevel, "debug", "", "debug level (trace|debug|info|warn|error)")
	flags.Lookup("debug").NoOptDefVal = "debug"
	flags.StringVar(&opts.kill, "kill", "", "send a signal to the running daemon and exit")
	flags.Lookup("kill").NoOptDefVal = "TERM"
	flags.BoolVar(&opts.noDetach, "no-detach", false, "do not detach from the controlling terminal")
	flags.BoolVar(&opts.mlock, "mlock", false, "lock process memory to prevent secrets from being swapped out")
	flags.BoolVar(&opts.showVersion, "version", false, "print the version and exit")

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		opts.killSet = cmd.Flags().Changed("kill")
		if opts.showVersion {
			fmt.Println("relayd", version)
			os.Exit(0)
		}
		return nil
	}
	return cmd, opts
}

const (
	defaultConfigDir = "/etc/relayd"
	defaultPidfile   = "/var/run/relayd.pid"
	defaultLogfile   = "/var/log/relayd.log"
)

// start loads configuration, builds the Daemon, and runs it until a
// terminating signal arrives (or --kill was given, in which case it
// signals an already-running daemon and returns immediately instead).
func start(ctx context.Context, opts *options) error {
	if opts.killSet {
		return killRunning(opts.pidfile, opts.kill)
	}

	logOut, closeLog, err := openLogOutput(opts.logfile)
	if err != nil {
		return err
	}
	defer closeLog()
	ctx = dlog.WithLogger(ctx, logrusEntry(logOut, opts.debugLevel))

	if opts.mlock {
		if err := lockMemory(); err != nil {
			dlog.Warnf(ctx, "relayd: --mlock requested but failed: %v", err)
		}
	}

	if err := writePidfile(opts.pidfile); err != nil {
		return fmt.Errorf("writing pidfile: %w", err)
	}
	defer os.Remove(opts.pidfile)

	cfg, hostsByName, err := daemon.Load(opts.configDir, opts.netName)
	if err != nil {
		return err
	}
	netName := opts.netName
	if netName == "" {
		netName = cfg.Name
	}

	d, err := daemon.New(netName, cfg, hostsByName, daemon.Options{
		Hooks: hooks.ExecRunner{},
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	loop, err := fdloop.New()
	if err != nil {
		return fmt.Errorf("starting event loop: %w", err)
	}
	defer loop.Close()

	return d.Run(ctx, loop)
}

func logrusEntry(out *os.File, levelName string) *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(out)
	if levelName != "" {
		if lvl, err := logrus.ParseLevel(levelName); err == nil {
			logger.SetLevel(lvl)
		}
	}
	return logrus.NewEntry(logger)
}

func exitCodeFor(err error) int {
	// 0 on success, 1 on configuration/startup failure, non-zero
	// on signal as conventional. Every error start() returns maps to 1,
	// including an error that ends the event loop itself.
	return 1
}

func writePidfile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

func killRunning(pidfile, sig string) error {
	raw, err := os.ReadFile(pidfile)
	if err != nil {
		return fmt.Errorf("reading pidfile %s: %w", pidfile, err)
	}
	pid, err := strconv.Atoi(string(trimNewline(raw)))
	if err != nil {
		return fmt.Errorf("pidfile %s does not contain a pid: %w", pidfile, err)
	}
	s, err := signalByName(sig)
	if err != nil {
		return err
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(s)
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

func signalByName(name string) (os.Signal, error) {
	switch name {
	case "TERM", "":
		return syscall.SIGTERM, nil
	case "HUP":
		return syscall.SIGHUP, nil
	case "INT":
		return syscall.SIGINT, nil
	case "KILL":
		return syscall.SIGKILL, nil
	case "USR1":
		return syscall.SIGUSR1, nil
	case "USR2":
		return syscall.SIGUSR2, nil
	default:
		return nil, fmt.Errorf("unsupported signal %q", name)
	}
}

func openLogOutput(path string) (*os.File, func(), error) {
	if path == "" {
		return os.Stderr, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening logfile %s: %w", path, err)
	}
	return f, func() { f.Close() }, nil
}
