package commands

import (
	"context"
	"fmt"
	"log"
	"os"

	"wikisnap/lib/configutil"
	"wikisnap/lib/snapshot"
	"wikisnap/lib/telemetry"
	"wikisnap/lib/wiki"
	"wikisnap/lib/wikidot"

	"github.com/spf13/cobra"
)

type Config struct {
	// site name or url, e.g. "lafundacionscp" or
	// "http://lafundacionscp.wikidot.com"
	Site     string `json:"site"`
	Username string `json:"username"`
	Password string `json:"password"`

	Telemetry telemetry.Config `json:"telemetry"`
}

var config Config

var dbFlag *string

var rootCmd = &cobra.Command{
	Use:   "wikisnap",
	Short: "wikisnap reads wikidot sites, live or from a snapshot, and builds snapshots.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var err error
		config, err = configutil.ReadConfig[Config]("wikisnap.json5")
		if err != nil {
			log.Fatal("failed to read config: ", err)
		}
		if config.Site == "" {
			log.Fatal("config is missing a site")
		}
		_, err = telemetry.Setup(cmd.Context(), "wikisnap", config.Telemetry)
		if err != nil {
			log.Fatal("failed to set up telemetry: ", err)
		}
	},
}

func init() {
	dbFlag = rootCmd.PersistentFlags().String(
		"db", "",
		"Read from this snapshot file instead of the live site.")
}

// openSite picks the backend: a snapshot when --db is given, the live
// site otherwise. Credentials are only used live.
func openSite(ctx context.Context) (*wiki.Site, error) {
	if *dbFlag != "" {
		return snapshot.NewWiki(config.Site, *dbFlag)
	}
	site, err := wikidot.NewWiki(config.Site)
	if err != nil {
		return nil, err
	}
	if config.Username != "" {
		client := site.Backend().(*wikidot.Client)
		if err := client.Auth(ctx, config.Username, config.Password); err != nil {
			return nil, err
		}
	}
	return site, nil
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
