package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	zaplogfmt "github.com/sykesm/zap-logfmt"
	"github.com/thecodeteam/goodbye"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/simplesurance/upkeeper/internal/cfg"
	"github.com/simplesurance/upkeeper/internal/gitcmd"
	"github.com/simplesurance/upkeeper/internal/githubclt"
	"github.com/simplesurance/upkeeper/internal/logfields"
	"github.com/simplesurance/upkeeper/internal/pipeline"
	"github.com/simplesurance/upkeeper/internal/probe"
	"github.com/simplesurance/upkeeper/internal/updater"
)

const appName = "upkeeper"

var logger *zap.Logger

// Version is set via a ldflag on compilation
var Version = "unknown"

const statusEndpoint = "/status/"
const metricsEndpoint = "/metrics"

func exitOnErr(msg string, err error) {
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, "ERROR:", msg+", error:", err.Error())
	os.Exit(1)
}

func panicHandler() {
	if r := recover(); r != nil {
		logger.Info(
			"panic caught, terminating gracefully",
			zap.String("panic", fmt.Sprintf("%v", r)),
			zap.StackSkip("stacktrace", 1),
		)

		ctx, cancelFn := context.WithTimeout(context.Background(), time.Minute)
		defer cancelFn()

		goodbye.Exit(ctx, 1)
	}
}

func startHTTPServer(listenAddr string, mux *http.ServeMux) {
	httpServer := http.Server{
		Addr:    listenAddr,
		Handler: mux,
	}

	goodbye.Register(func(context.Context, os.Signal) {
		const shutdownTimeout = 30 * time.Second
		ctx, cancelFn := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelFn()

		logger.Debug(
			"terminating http server",
			logfields.Event("http_server_terminating"),
			zap.Duration("shutdown_timeout", shutdownTimeout),
		)

		err := httpServer.Shutdown(ctx)
		if err != nil {
			logger.Warn(
				"shutting down http server failed",
				logfields.Event("http_server_termination_failed"),
				zap.Error(err),
			)
		}
	})

	go func() {
		defer panicHandler()

		logger.Info(
			"http server started",
			logfields.Event("http_server_started"),
			zap.String("listenAddr", listenAddr),
		)

		err := httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("http server terminated", logfields.Event("http_server_terminated"))
			return
		}

		logger.Fatal(
			"http server terminated unexpectedly",
			logfields.Event("http_server_terminated_unexpectedly"),
			zap.Error(err),
		)
	}()
}

type arguments struct {
	Verbose     *bool
	ConfigFile  *string
	ShowVersion *bool
	OneShot     *bool
	DryRun      *bool
	BuildNumber *int64
}

var args arguments

const defConfigFile = "/etc/upkeeper/config.toml"

func mustParseCommandlineParams() {
	args = arguments{
		Verbose: pflag.BoolP(
			"verbose",
			"v",
			false,
			"enable verbose logging",
		),
		ConfigFile: pflag.StringP(
			"cfg-file",
			"c",
			defConfigFile,
			"path to the upkeeper configuration file",
		),
		ShowVersion: pflag.Bool(
			"version",
			false,
			"print the version and exit",
		),
		OneShot: pflag.Bool(
			"oneshot",
			false,
			"run a single maintenance run and exit, instead of running periodically",
		),
		DryRun: pflag.Bool(
			"dry-run",
			false,
			"detect and apply changes locally but do not commit, push or open a pull request",
		),
		BuildNumber: pflag.Int64("build-number",
			1,
			"externally supplied build number, used in branch names, the commit message and the pull request text",
		),
	}

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTION]\nDetect outdated dependencies, unformatted code and stale documentation, fix them and open a pull request.\n", appName)
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		pflag.PrintDefaults()
	}

	pflag.Parse()
}

func mustParseCfg() *cfg.Config {
	// we use exitOnErr in this function instead of logger.Fatal() because
	// the logger is not initialized yet

	file, err := os.Open(*args.ConfigFile)
	exitOnErr("could not open configuration file", err)
	defer file.Close()

	config, err := cfg.Load(file)
	if err != nil {
		exitOnErr(fmt.Sprintf("could not load configuration file: %s", *args.ConfigFile), err)
	}

	exitOnErr(fmt.Sprintf("invalid configuration file: %s", *args.ConfigFile), config.Validate())

	return config
}

func initLogFmtLogger(config *cfg.Config, logLevel zapcore.Level) *zap.Logger {
	cfg := zapEncoderConfig(config)

	logger := zap.New(zapcore.NewCore(
		zaplogfmt.NewEncoder(cfg),
		os.Stdout,
		logLevel),
	)

	return logger
}

func zapEncoderConfig(config *cfg.Config) zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()

	cfg.LevelKey = "loglevel"
	cfg.TimeKey = config.LogTimeKey
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.StringDurationEncoder

	return cfg
}

func mustInitZapFormatLogger(config *cfg.Config, logLevel zapcore.Level) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Sampling = nil
	cfg.EncoderConfig = zapEncoderConfig(config)
	cfg.OutputPaths = []string{"stdout"}
	cfg.Encoding = config.LogFormat
	cfg.Level = zap.NewAtomicLevelAt(logLevel)

	logger, err := cfg.Build()
	exitOnErr("could not initialize logger", err)

	return logger
}

func mustInitLogger(config *cfg.Config) {
	var logLevel zapcore.Level
	if *args.Verbose {
		logLevel = zapcore.DebugLevel
	} else {
		if err := (&logLevel).Set(config.LogLevel); err != nil {
			fmt.Fprintf(os.Stderr, "can not set log level to %q: %s \n", config.LogLevel, err)
			os.Exit(2)
		}
	}

	switch config.LogFormat {
	case "logfmt":
		logger = initLogFmtLogger(config, logLevel)
	case "console", "json":
		logger = mustInitZapFormatLogger(config, logLevel)
	default:
		fmt.Fprintf(os.Stderr, "unsupported log-format argument: %q\n", config.LogFormat)
		os.Exit(2)
	}

	logger = logger.Named("main")
	zap.ReplaceGlobals(logger)

	goodbye.Register(func(context.Context, os.Signal) {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "flushing logs failed: %s\n", err)
		}
	})
}

func hide(in string) string {
	if in == "" {
		return in
	}

	return "**hidden**"
}

func mustAssembleDetector(config *cfg.Config) *probe.Detector {
	var probes []probe.Probe

	if len(config.Probes.Dependencies.Command) > 0 {
		p, err := probe.NewCommandProbe(
			"dependencies",
			config.RepositoryDir,
			config.Probes.Dependencies.Command,
			config.Probes.Dependencies.OutputQuery,
		)
		exitOnErr("could not create dependency probe", err)
		probes = append(probes, p)
	}

	if len(config.Probes.Formatting.Command) > 0 {
		p, err := probe.NewCommandProbe(
			"formatting",
			config.RepositoryDir,
			config.Probes.Formatting.Command,
			config.Probes.Formatting.OutputQuery,
		)
		exitOnErr("could not create formatting probe", err)
		probes = append(probes, p)
	}

	if config.Probes.Documentation.ArtifactFile != "" {
		p, err := probe.NewDocStaleProbe(
			"documentation",
			config.RepositoryDir,
			config.Probes.Documentation.ArtifactFile,
			config.Probes.Documentation.SourceGlobs,
		)
		exitOnErr("could not create documentation probe", err)
		probes = append(probes, p)
	}

	if len(probes) == 0 {
		exitOnErr("assembling probes", errors.New("configuration file does not define any probes, nothing to do"))
	}

	return probe.NewDetector(probes...)
}

// assembleUpdater creates the update steps. Steps without a configured
// command are kept, they show up as skipped in the run report.
func assembleUpdater(config *cfg.Config) *updater.Updater {
	return updater.New(
		updater.NewCommandStep("dependencies", config.RepositoryDir, config.Updates.DependencyCommand),
		updater.NewCommandStep("formatting", config.RepositoryDir, config.Updates.FormatCommand),
		updater.NewCommandStep("documentation", config.RepositoryDir, config.Updates.DocsCommand),
		updater.NewChangelogStep(config.RepositoryDir, config.ChangelogFile),
	)
}

func main() {
	defer panicHandler()

	defer goodbye.Exit(context.Background(), 1)
	goodbye.Notify(context.Background())

	mustParseCommandlineParams()

	if *args.ShowVersion {
		fmt.Printf("%s %s\n", appName, Version)
		os.Exit(0) // nolint:gocritic // defer functions won't run
	}

	config := mustParseCfg()

	mustInitLogger(config)

	logger.Info(
		"loaded cfg file",
		logfields.Event("cfg_loaded"),
		zap.String("cfg_file", *args.ConfigFile),
		zap.String("repository_dir", config.RepositoryDir),
		zap.String("github_owner", config.GithubOwner),
		zap.String("github_repository", config.GithubRepository),
		zap.String("base_branch", config.BaseBranch),
		zap.String("branch_conflict_policy", config.BranchConflictPolicy),
		zap.String("github_api_token", hide(config.GithubAPIToken)),
		zap.String("git_user", config.GitUser),
		zap.String("git_password", hide(config.GitPassword)),
		zap.String("http_server_listen_addr", config.HTTPListenAddr),
		zap.String("run_interval", config.RunInterval),
		zap.String("log_format", config.LogFormat),
		zap.String("log_time_key", config.LogTimeKey),
		zap.String("log_level", config.LogLevel),
	)

	goodbye.Register(func(_ context.Context, sig os.Signal) {
		logger.Info(fmt.Sprintf("terminating, received signal %s", sig.String()))
	})

	githubClient := githubclt.New(config.GithubAPIToken)
	gitClient := gitcmd.New(config.RepositoryDir, config.RemoteName)
	detector := mustAssembleDetector(config)
	upd := assembleUpdater(config)

	retryer := pipeline.NewRetryer()
	goodbye.Register(func(context.Context, os.Signal) {
		retryer.Stop()
	})

	newPipeline := func(buildNumber int64) *pipeline.Pipeline {
		return pipeline.New(pipeline.Params{
			Detector:    detector,
			Updater:     upd,
			Git:         gitClient,
			GH:          githubClient,
			Retryer:     retryer,
			Owner:       config.GithubOwner,
			Repo:        config.GithubRepository,
			BaseBranch:  config.BaseBranch,
			BuildNumber: buildNumber,
			BotName:     config.BotName,
			BotEmail:    config.BotEmail,
			GitCredentials: gitcmd.Credentials{
				User:     config.GitUser,
				Password: config.GitPassword,
			},
			ConflictPolicy: pipeline.ConflictPolicy(config.BranchConflictPolicy),
			DryRun:         *args.DryRun,
		})
	}

	interval, err := config.RunIntervalDuration()
	exitOnErr("invalid run_interval", err)

	if *args.OneShot || interval == 0 {
		_, err := newPipeline(*args.BuildNumber).Run(context.Background())
		if err != nil {
			goodbye.Exit(context.Background(), 1)
		}

		goodbye.Exit(context.Background(), 0)
		return
	}

	daemon := pipeline.NewDaemon(
		func(ctx context.Context, buildNumber int64) (*pipeline.Report, error) {
			return newPipeline(buildNumber).Run(ctx)
		},
		interval,
		*args.BuildNumber,
	)

	goodbye.Register(func(context.Context, os.Signal) {
		logger.Debug("stopping daemon", logfields.Event("daemon_stopping"))
		daemon.Stop()
	})

	if config.HTTPListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle(metricsEndpoint, promhttp.Handler())
		pipeline.NewHTTPService(daemon).RegisterHandlers(mux, statusEndpoint)

		logger.Info(
			"registered http endpoints",
			logfields.Event("http_handlers_registered"),
			zap.String("status_endpoint", statusEndpoint),
			zap.String("metrics_endpoint", metricsEndpoint),
		)

		startHTTPServer(config.HTTPListenAddr, mux)
	}

	daemon.Start()
}
