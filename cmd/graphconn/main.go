// Copyright 2021 FerretDB Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command graphconn connects to a database and runs simple operations against it.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	_ "golang.org/x/crypto/x509roots/fallback" // register root TLS certificates for production Docker image

	"github.com/FerretDB/graphconn"
	"github.com/FerretDB/graphconn/build/version"
	"github.com/FerretDB/graphconn/internal/util/debug"
	"github.com/FerretDB/graphconn/internal/util/debugbuild"
	"github.com/FerretDB/graphconn/internal/util/logging"
	"github.com/FerretDB/graphconn/internal/util/must"
	"github.com/FerretDB/graphconn/internal/util/observability"
)

// The cliFlags struct represents all command-line commands, fields and flags.
// It's used for parsing the user input.
//
//nolint:lll // some tags are long
type cliFlags struct {
	Host     string            `default:"${default_host}" help:"Database host."`
	Port     int               `default:"${default_port}" help:"Database port."`
	Username string            `default:""                help:"Username."`
	Password string            `default:""                help:"Password."`
	Database string            `default:""                help:"Default database name."`
	Option   map[string]string `                          help:"Database open option; can be repeated." placeholder:"KEY=VALUE"`
	Driver   string            `default:"mongodb"         help:"${help_driver}"                         enum:"${enum_driver}"`
	Timeout  time.Duration     `default:"10s"             help:"Operation timeout."`

	OtelEndpoint string `default:"" help:"OTLP/HTTP traces endpoint (host:port); disabled if empty."`
	DebugAddr    string `default:"" help:"Listen address for HTTP handlers for metrics, pprof, etc."`

	Log struct {
		Level  string `default:"${default_log_level}" help:"${help_log_level}"`
		Format string `default:"console"              help:"${help_log_format}" enum:"${enum_log_format}"`
	} `embed:"" prefix:"log-"`

	Ping        struct{} `cmd:"" help:"Ping the server."`
	Databases   struct{} `cmd:"" help:"List databases."`
	Collections struct{} `cmd:"" help:"List collections of the default database."`

	CreateCollection struct {
		Name   string `arg:""          help:"Collection name."`
		Capped bool   `default:"false" help:"Create capped collection."`
		Size   int64  `default:"0"     help:"Capped collection size in bytes."`
		Max    int64  `default:"0"     help:"Capped collection maximum number of documents."`
	} `cmd:"" help:"Create a collection in the default database."`

	Command struct {
		Document string `arg:"" help:"Command document in MongoDB Extended JSON."`
	} `cmd:"" help:"Run a command against the default database."`

	Version struct{} `cmd:"" help:"Print version to stdout and exit."`
}

// cli represents parsed command-line flags.
var cli cliFlags

// Additional variables for the kong parsers.
var (
	logLevels = []string{
		zap.DebugLevel.String(),
		zap.InfoLevel.String(),
		zap.WarnLevel.String(),
		zap.ErrorLevel.String(),
	}

	drivers = []string{"mongodb", "memory"}

	kongOptions = []kong.Option{
		kong.Vars{
			"default_host":      graphconn.DefaultHost,
			"default_port":      strconv.Itoa(graphconn.DefaultPort),
			"default_log_level": defaultLogLevel().String(),

			"enum_driver":     strings.Join(drivers, ","),
			"enum_log_format": strings.Join(logging.Formats, ","),

			"help_driver":     fmt.Sprintf("Driver: '%s'.", strings.Join(drivers, "', '")),
			"help_log_format": fmt.Sprintf("Log format: '%s'.", strings.Join(logging.Formats, "', '")),
			"help_log_level":  fmt.Sprintf("Log level: '%s'.", strings.Join(logLevels, "', '")),
		},
		kong.DefaultEnvars("GRAPHCONN"),
	}
)

func main() {
	kctx := kong.Parse(&cli, kongOptions...)

	if err := run(kctx.Command()); err != nil {
		os.Exit(1)
	}
}

// defaultLogLevel returns the default log level.
func defaultLogLevel() zapcore.Level {
	if debugbuild.Enabled {
		return zap.DebugLevel
	}

	return zap.InfoLevel
}

// setupLogger setups zap logger.
func setupLogger(levelFlag, format string) *zap.Logger {
	info := version.Get()

	level, err := zapcore.ParseLevel(levelFlag)
	if err != nil {
		log.Fatal(err)
	}

	logging.Setup(level, format)
	l := zap.L()

	l.Debug(
		"Starting graphconn "+info.Version+"...",
		zap.String("version", info.Version),
		zap.String("commit", info.Commit),
		zap.Bool("dirty", info.Dirty),
		zap.Bool("debugBuild", info.DebugBuild),
		zap.Any("buildEnvironment", info.BuildEnvironment),
	)

	if debugbuild.Enabled {
		l.Debug("This is debug build. The performance will be affected.")
	}

	return l
}

// printVersion prints version information.
func printVersion(w io.Writer) {
	info := version.Get()

	fmt.Fprintln(w, "version:", info.Version)
	fmt.Fprintln(w, "commit:", info.Commit)
	fmt.Fprintln(w, "dirty:", info.Dirty)
	fmt.Fprintln(w, "debugBuild:", info.DebugBuild)
}

// dumpMetrics dumps all Prometheus metrics to stderr.
func dumpMetrics() {
	mfs := must.NotFail(prometheus.DefaultGatherer.Gather())

	for _, mf := range mfs {
		must.NotFail(expfmt.MetricFamilyToText(os.Stderr, mf))
	}
}

// run sets up environment based on provided flags and runs the given command.
func run(command string) error {
	// to increase a chance of resource finalizers to spot problems
	if debugbuild.Enabled {
		defer func() {
			runtime.GC()
			runtime.GC()
		}()
	}

	if command == "version" {
		printVersion(os.Stdout)
		return nil
	}

	logger := setupLogger(cli.Log.Level, cli.Log.Format)

	if _, err := maxprocs.Set(maxprocs.Logger(logger.Sugar().Debugf)); err != nil {
		logger.Sugar().Warnf("Failed to set GOMAXPROCS: %s.", err)
	}

	shutdown, err := observability.SetupOtel("graphconn", cli.OtelEndpoint)
	if err != nil {
		logger.Sugar().Errorf("Failed to set up OpenTelemetry: %s.", err)
		return err
	}

	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Sugar().Warnf("Failed to shut down OpenTelemetry: %s.", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	debugCtx, debugCancel := context.WithCancel(ctx)
	defer debugCancel()

	// https://github.com/alecthomas/kong/issues/389
	if cli.DebugAddr != "" && cli.DebugAddr != "-" {
		h, err := debug.Listen(&debug.ListenOpts{
			TCPAddr: cli.DebugAddr,
			L:       logger.Named("debug"),
			R:       prometheus.DefaultRegisterer,
			G:       prometheus.DefaultGatherer,
		})
		if err != nil {
			logger.Sugar().Errorf("Failed to create debug handler: %s.", err)
			return err
		}

		wg.Add(1)

		go func() {
			defer wg.Done()
			h.Serve(debugCtx)
		}()
	}

	if debugbuild.Enabled {
		defer dumpMetrics()
	}

	err = execute(ctx, &executeParams{
		command: command,
		flags:   &cli,
		out:     os.Stdout,
		l:       logger,
		r:       prometheus.DefaultRegisterer,
	})
	if err != nil {
		logger.Error("Command failed", zap.String("command", command), zap.Error(err))
	}

	return err
}
