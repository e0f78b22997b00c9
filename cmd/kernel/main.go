// Command kernel boots the process/file-descriptor subsystem as an
// ordinary Go program: load configuration, stand up the open-file table,
// process table, and syscall surface, install an init process with the
// three console descriptors every other process inherits, and run until
// interrupted. The boot sequence (synch primitives -> OFT -> PT -> kernel
// process -> syscall bootstrap) mirrors Biscuit's own main() in
// biscuit/src/kernel/main.go: a flat list of init calls followed by
// exec-ing the first userland program and sleeping forever.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/justanotherdot/kernel161/internal/config"
	"github.com/justanotherdot/kernel161/internal/klog"
	"github.com/justanotherdot/kernel161/internal/metrics"
	"github.com/justanotherdot/kernel161/internal/proc"
	ksys "github.com/justanotherdot/kernel161/internal/syscall"
	"github.com/justanotherdot/kernel161/internal/vfs"
)

var (
	cfgFile     string
	logLevel    string
	logFormat   string
	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:   "kernel",
	Short: "Run the process/file-descriptor subsystem as a standalone program",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

// limitFlags is the subset of Limits exposed on the command line, bound
// into Viper in run() so a flag, if given, wins over both the config file
// and the KERNEL_* environment (pflag.FlagSet's own precedence once
// handed to viper.BindPFlags). Flag names match Limits' mapstructure tags
// exactly (underscored, not dashed) so BindPFlags's key lines up with what
// config.Load's Unmarshal looks for.
var limitFlags *pflag.FlagSet

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a kernel.yaml config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "off|error|warning|info|debug|trace")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "text|json")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", ":9161", "address to serve /metrics on")

	limitFlags = pflag.NewFlagSet("limits", pflag.ContinueOnError)
	def := config.Default()
	limitFlags.Int32("pid_min", def.PIDMin, "lowest assignable PID")
	limitFlags.Int32("pid_max", def.PIDMax, "highest assignable PID")
	limitFlags.Uint32("proc_max", def.ProcMax, "maximum simultaneously live processes")
	limitFlags.Int("open_max", def.OpenMax, "maximum open descriptors per process")
	limitFlags.Uint64("open_file_max", def.OpenFileMax, "maximum open files system-wide")
	rootCmd.PersistentFlags().AddFlagSet(limitFlags)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parseLevel(s string) klog.Level {
	switch s {
	case "off":
		return klog.OFF
	case "error":
		return klog.ERROR
	case "warning":
		return klog.WARNING
	case "debug":
		return klog.DEBUG
	case "trace":
		return klog.TRACE
	default:
		return klog.INFO
	}
}

func run(ctx context.Context) error {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("kernel")
		v.AddConfigPath(".")
	}
	if err := v.BindPFlags(limitFlags); err != nil {
		return fmt.Errorf("binding limit flags: %w", err)
	}
	limits, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	format := klog.Text
	if logFormat == "json" {
		format = klog.JSON
	}
	logger := klog.New(os.Stderr, format, parseLevel(logLevel))
	logger.Info("booting kernel", "pid_min", limits.PIDMin, "pid_max", limits.PIDMax, "proc_max", limits.ProcMax)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	fs := vfs.NewMemFS()
	fs.WriteFile("bin/init", []byte("init"))

	k := ksys.New(limits, fs, m)

	g, gctx := errgroup.WithContext(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: metricsAddr, Handler: mux}
	g.Go(func() error {
		logger.Info("metrics server listening", "addr", metricsAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	initProc := bootInit(k, logger)

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	<-gctx.Done()
	logger.Info("shutting down", "init_pid", initProc.PID)
	return g.Wait()
}

// bootInit installs the init process: a PID, an address space, and the
// three console descriptors every process expects already open (0
// read-only, 1 and 2 write-only, all on the console device). It then
// runs execv against bin/init on a goroutine, the stand-in for Biscuit's
// own exec(bin/init, nil) boot step, and logs the outcome rather than
// panicking, since there's no real ELF payload behind bin/init here.
func bootInit(k *ksys.Kernel, logger *klog.Logger) *proc.Process {
	p := proc.NewProcess("init", k.OFT)
	if err := k.PT.SetPID(p); err != nil {
		panic(fmt.Sprintf("kernel: could not allocate PID for init: %v", err))
	}

	for _, flags := range []vfs.OpenFlags{vfs.ORDONLY, vfs.OWRONLY, vfs.OWRONLY} {
		if _, err := k.Open(p, "con:", flags); err != nil {
			panic(fmt.Sprintf("kernel: could not open console descriptor for init: %v", err))
		}
	}
	p.AddThread()

	go func() {
		if _, err := k.Execv(p, "bin/init", []string{"init"}); err != nil {
			logger.Error("init exec failed", "err", err)
			return
		}
		logger.Info("init running", "pid", p.PID)
	}()

	return p
}
