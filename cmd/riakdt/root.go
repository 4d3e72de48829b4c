package main

import (
	"encoding/json"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"riakdt/backend"
	"riakdt/config"
	"riakdt/core"
	"riakdt/crdt"
)

// app holds the state shared by every command of one invocation.
type app struct {
	configPath string
	envFiles   []string
	servers    string
	logLevel   string
	returnBody bool

	cfg    *config.Config
	logger *zap.Logger
	client *crdt.Client
	stack  *config.Stack
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "riakdt",
		Short:         "Read and update Riak counters, sets and maps",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "YAML config file")
	flags.StringSliceVar(&a.envFiles, "env", nil, "env files to load (default .env when present)")
	flags.StringVar(&a.servers, "servers", "", "comma separated store nodes, overrides the config")
	flags.StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error")
	flags.BoolVar(&a.returnBody, "return-body", false, "ask the store to return map values on save")

	root.AddCommand(
		newCounterCmd(a),
		newSetCmd(a),
		newMapCmd(a),
		newPingCmd(a),
		newDevServerCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath, a.envFiles...)
	if err != nil {
		return err
	}
	if a.servers != "" {
		cfg.Servers = backend.ParseServers(a.servers)
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if cmd.Flags().Changed("return-body") {
		cfg.ReturnBody = a.returnBody
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Log to stderr so command output stays parseable.
	logger, err := core.ConfigureLogger(cfg.Log.Development, cfg.Log.Level, "stderr")
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// crdtClient builds the client on first use; devserver never needs one.
func (a *app) crdtClient() (*crdt.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	client, stack, err := a.cfg.Client(a.logger.Named("crdt"), prometheus.NewRegistry())
	if err != nil {
		return nil, err
	}
	a.client, a.stack = client, stack
	return client, nil
}

func (a *app) close() error {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	if a.stack == nil {
		return nil
	}
	return a.stack.Close()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
