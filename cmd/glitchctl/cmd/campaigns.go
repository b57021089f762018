package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/glitch.report/internal/db"
)

var campaignsCmd = &cobra.Command{
	Use:   "campaigns",
	Short: "List stored campaigns",
	Args:  cobra.NoArgs,
	RunE:  runCampaigns,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <campaign-id>",
	Short: "Delete a stored campaign and its trials",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	rootCmd.AddCommand(campaignsCmd)
	campaignsCmd.AddCommand(deleteCmd)
}

func runCampaigns(cmd *cobra.Command, args []string) error {
	store, err := db.NewDB(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	list, err := store.ListCampaigns()
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No campaigns recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tSTARTED\tTRIALS\tSUCCESSES\tAXES")
	for _, c := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%d\t%v\n",
			c.ID, c.Status, c.StartedAt.Local().Format(time.DateTime), c.Recorded, c.Total, c.Successes, c.Axes)
	}
	return tw.Flush()
}

func runDelete(cmd *cobra.Command, args []string) error {
	store, err := db.NewDB(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.DeleteCampaign(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
	return nil
}
