package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vk/flowgrid/internal/app"
	"github.com/vk/flowgrid/internal/config"
)

// flagBindings maps persistent flags onto configuration keys.
var flagBindings = map[string]string{
	"log-level":    "log.level",
	"log-format":   "log.format",
	"store-driver": "store.driver",
	"store-path":   "store.path",
	"store-dsn":    "store.dsn",
	"chat-url":     "capabilities.chat.url",
}

// root carries state shared by all subcommands.
type root struct {
	v          *viper.Viper
	configFile string
	appOpts    []app.Option
}

// NewRootCommand builds the flowgrid command tree. opts are passed to every
// app.New call, which lets tests inject capabilities.
func NewRootCommand(opts ...app.Option) *cobra.Command {
	r := &root{v: config.NewViper(), appOpts: opts}

	cmd := &cobra.Command{
		Use:   "flowgrid",
		Short: "flowgrid - a workflow automation engine.",
		Long: `flowgrid runs workflows: directed graphs of typed nodes (triggers,
actions, logic and data steps) wired port to port.

Workflows are stored in the configured store and can be authored as HCL
files and imported, or built through the HTTP API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&r.configFile, "config", "", "Path to a YAML config file (default ./flowgrid.yaml if present).")
	pf.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	pf.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	pf.String("store-driver", config.DriverFile, "Workflow store. Options: 'memory', 'file', 'postgres'.")
	pf.String("store-path", ".flowgrid", "Directory of the file store.")
	pf.String("store-dsn", "", "Connection string of the postgres store.")
	pf.String("chat-url", "", "Socket.IO server URL for action-message nodes.")
	for flag, key := range flagBindings {
		if err := r.v.BindPFlag(key, pf.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	cmd.AddCommand(
		r.newRunCommand(),
		r.newServeCommand(),
		r.newImportCommand(),
		r.newValidateCommand(),
		r.newListCommand(),
	)
	return cmd
}

// openApp loads the configuration and builds the application. Logs and
// notifications go to the command's error stream.
func (r *root) openApp(cmd *cobra.Command, extra ...app.Option) (*app.App, error) {
	cfg, err := config.Load(r.v, r.configFile)
	if err != nil {
		return nil, usageError("%v", err)
	}
	opts := append([]app.Option{app.WithOutput(cmd.ErrOrStderr())}, r.appOpts...)
	opts = append(opts, extra...)
	return app.New(cmd.Context(), cfg, opts...)
}

// Execute runs the command tree with args, writing results to outW.
func Execute(ctx context.Context, outW, errW io.Writer, args []string, opts ...app.Option) error {
	cmd := NewRootCommand(opts...)
	cmd.SetArgs(args)
	cmd.SetOut(outW)
	cmd.SetErr(errW)
	return cmd.ExecuteContext(ctx)
}
