package commands

import (
	"log"
	"os"

	"wikisnap/lib/wiki"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	listAuthor  *string
	listTag     *string
	listRating  *string
	listCreated *string
	listLimit   *int
)

func init() {
	listAuthor = listCmd.Flags().String("author", "", "Only pages credited to this user.")
	listTag = listCmd.Flags().String("tag", "", "Only pages carrying this tag.")
	listRating = listCmd.Flags().String("rating", "", "Rating filter, e.g. '>20' or '=0'.")
	listCreated = listCmd.Flags().String("created", "", "Creation date filter, e.g. '>2015' or '=2015-06'.")
	listLimit = listCmd.Flags().Int("limit", 0, "Maximum number of pages, 0 means all.")
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list [--author <user>] [--tag <tag>] [--rating <cmp>] [--created <cmp>]",
	Short: "Lists the pages matching the given filters.",
	Run: func(cmd *cobra.Command, args []string) {
		site, err := openSite(cmd.Context())
		if err != nil {
			log.Fatal("failed to open site: ", err)
		}

		pages, err := site.ListPages(cmd.Context(), wiki.ListOptions{
			Author:  *listAuthor,
			Tag:     *listTag,
			Rating:  *listRating,
			Created: *listCreated,
			Limit:   *listLimit,
		})
		if err != nil {
			log.Fatal("listing failed: ", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"URL", "Rating", "Created"})
		for _, page := range pages {
			rating, err := page.Rating(cmd.Context())
			if err != nil {
				log.Fatal("failed to resolve rating: ", err)
			}
			created, err := page.Created(cmd.Context())
			if err != nil {
				log.Fatal("failed to resolve creation date: ", err)
			}
			t.AppendRow(table.Row{page.URL, rating, created})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
