package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/shopcache/config"
	"github.com/unkn0wn-root/shopcache/internal/app"
)

type cli struct {
	envFile string
	output  string
	app     *app.App
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "shopctl",
		Short:         "Browse and edit the shop catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if c.output != "json" && c.output != "yaml" {
				return fmt.Errorf("--output must be json or yaml, got %q", c.output)
			}
			cfg, err := config.LoadFromEnv(c.envFile)
			if err != nil {
				return err
			}
			c.app, err = app.Build(cmd.Context(), cfg, cmd.ErrOrStderr())
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if c.app == nil {
				return nil
			}
			return c.app.Close(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "dotenv file read before SHOP_* variables")
	root.PersistentFlags().StringVarP(&c.output, "output", "o", "yaml", "output format: json or yaml")

	root.AddCommand(c.productsCmd(), c.authCmd())
	return root
}

func (c *cli) print(w io.Writer, v any) error {
	if c.output == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
