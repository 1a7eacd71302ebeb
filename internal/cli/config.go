package cli

import (
	"net/url"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tendant/nd3-capture-pipeline/internal/config"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(redacted(*cfg))
		},
	}
}

// redacted hides passwords in connection strings
func redacted(cfg config.Config) config.Config {
	cfg.DBOSDatabaseURL = redactURL(cfg.DBOSDatabaseURL)
	cfg.StoreDSN = redactURL(cfg.StoreDSN)
	cfg.MQTTBroker = redactURL(cfg.MQTTBroker)
	return cfg
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
