package commands

import (
	"log"
	"log/slog"
	"time"

	"wikisnap/lib/snapshot"
	"wikisnap/lib/wikidot"

	"github.com/spf13/cobra"
)

var (
	snapshotOut     *string
	snapshotWorkers *int
	snapshotForums  *bool
	snapshotImages  *bool
)

func init() {
	snapshotOut = snapshotCmd.Flags().String(
		"out", "snapshot.db", "The database file to write the snapshot to.")
	snapshotWorkers = snapshotCmd.Flags().Int(
		"workers", 0, "Concurrent page fetches, 0 means the default.")
	snapshotForums = snapshotCmd.Flags().Bool(
		"forums", false, "Also capture the standalone forum categories.")
	snapshotImages = snapshotCmd.Flags().Bool(
		"images", false, "Also capture redistributable images from the review hub.")
	rootCmd.AddCommand(snapshotCmd)
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot [--out <path/to/output.db>] [--forums] [--images]",
	Short: "Captures the whole live site into a fresh sqlite snapshot.",
	Run: func(cmd *cobra.Command, args []string) {
		site, err := wikidot.NewWiki(config.Site)
		if err != nil {
			log.Fatal("failed to create client: ", err)
		}
		if config.Username != "" {
			client := site.Backend().(*wikidot.Client)
			if err := client.Auth(cmd.Context(), config.Username, config.Password); err != nil {
				log.Fatal("failed to log in: ", err)
			}
		}

		builder := &snapshot.Builder{
			Site:    site,
			Workers: *snapshotWorkers,
			Forums:  *snapshotForums,
			Images:  *snapshotImages,
		}

		t1 := time.Now()
		if err := builder.Build(cmd.Context(), *snapshotOut); err != nil {
			log.Fatal("snapshot failed: ", err)
		}
		t2 := time.Now()

		slog.Info("snapshot complete", "out", *snapshotOut, "seconds", t2.Sub(t1).Seconds())
	},
}
