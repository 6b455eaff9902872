package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	logger "github.com/Easy-Infra-Ltd/easy-logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/text/transform"

	"github.com/Easy-Infra-Ltd/easy-html-gateway/src/config"
	"github.com/Easy-Infra-Ltd/easy-html-gateway/src/gateway"
	"github.com/Easy-Infra-Ltd/easy-html-gateway/src/scrubber"
	"github.com/Easy-Infra-Ltd/easy-html-gateway/src/transport"
)

const envPrefix = "EASY_HTML_GATEWAY"

func main() {
	log := logger.CreateLoggerFromEnv(nil, "blue").With("process", "easyhtmlgateway")

	if err := newRootCmd(log).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(log *slog.Logger) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	serve := newServeCmd(log, v)

	root := &cobra.Command{
		Use:   "easy-html-gateway",
		Short: "HTTP gateway that strips newlines from HTML responses",
		Long: `easy-html-gateway proxies requests to downstream origins and, for
locations with noNewlines enabled, removes '\r' and '\n' from text/html
responses outside <pre> blocks while they stream to the client.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          serve.RunE,
	}
	root.Flags().AddFlagSet(serve.Flags())

	root.AddCommand(serve, newScrubCmd(), newVersionCmd())
	return root
}

func newServeCmd(log *slog.Logger, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath := v.GetString("config")

			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}

			gw := gateway.New(cfg, log)
			if v.GetBool("watch") {
				gw.WatchConfig(cfgPath)
			}
			if err := gw.Run(context.Background()); err != nil {
				return fmt.Errorf("gateway: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringP("config", "c", "config.json", "path to the JSON config file (env "+envPrefix+"_CONFIG)")
	cmd.Flags().Bool("watch", true, "reload the config file when it changes (env "+envPrefix+"_WATCH)")
	_ = v.BindPFlag("config", cmd.Flags().Lookup("config"))
	_ = v.BindPFlag("watch", cmd.Flags().Lookup("watch"))
	return cmd
}

func newScrubCmd() *cobra.Command {
	var prefixTags bool
	cmd := &cobra.Command{
		Use:   "scrub [file...]",
		Short: "Strip newlines outside <pre> from HTML files (or stdin) to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				return scrubTo(out, cmd.InOrStdin(), prefixTags)
			}
			for _, name := range args {
				if err := scrubFile(out, name, prefixTags); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&prefixTags, "prefix-tags", false, "treat any <pre... tag as preformatted")
	return cmd
}

func scrubFile(w io.Writer, name string, prefixTags bool) error {
	f, err := os.Open(name)
	if err != nil {
		return fmt.Errorf("opening %s: %w", name, err)
	}
	defer f.Close()
	if err := scrubTo(w, f, prefixTags); err != nil {
		return fmt.Errorf("scrubbing %s: %w", name, err)
	}
	return nil
}

// scrubTo streams r to w through a fresh scrubber; each input is its own
// response, so state never carries across files.
func scrubTo(w io.Writer, r io.Reader, prefixTags bool) error {
	t := scrubber.NewTransformer(scrubber.Options{PrefixTags: prefixTags})
	_, err := io.Copy(w, transform.NewReader(r, t))
	return err
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), transport.Version)
		},
	}
}
