package commands

import (
	"fmt"
	"log"

	"wikisnap/lib/wiki"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(attributionCmd)
}

var attributionCmd = &cobra.Command{
	Use:   "attribution <page>...",
	Short: "Prints the credit line for the given pages.",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		site, err := openSite(cmd.Context())
		if err != nil {
			log.Fatal("failed to open site: ", err)
		}

		for _, name := range args {
			page := site.Page(name)
			line, err := page.BuildAttributionString(cmd.Context(), wiki.AttributionOptions{})
			if err != nil {
				log.Fatal("failed to build attribution for ", name, ": ", err)
			}
			fmt.Printf("%s: %s\n", page.Name(), line)
		}
	},
}
