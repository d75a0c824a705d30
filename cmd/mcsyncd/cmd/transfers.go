package cmd

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/materials-commons/mcsync/pkg/syncdb/model"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var transfersCmd = &cobra.Command{
	Use:   "transfers",
	Short: "Inspect and clear transfer records",
}

var transfersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List transfers",
	RunE: func(cmd *cobra.Command, args []string) error {
		which, _ := cmd.Flags().GetString("status")
		transferStor := newStors(settings).TransferStor

		var (
			transfers []model.Transfer
			err       error
		)

		switch which {
		case "all":
			transfers, err = transferStor.GetAllTransfers()
		case "pending":
			transfers, err = transferStor.GetCurrentAndPendingTransfers()
		case "failed":
			transfers, err = transferStor.GetFailedTransfers()
		case "finished":
			transfers, err = transferStor.GetFinishedTransfers()
		default:
			return fmt.Errorf("unknown status %q, use all, pending, failed or finished", which)
		}

		if err != nil {
			return err
		}

		printTransfers(transfers)
		return nil
	},
}

var transfersClearFailedCmd = &cobra.Command{
	Use:   "clear-failed",
	Short: "Delete finished transfers that did not upload",
	RunE: func(cmd *cobra.Command, args []string) error {
		return newStors(settings).TransferStor.ClearFailedTransfers()
	},
}

var transfersClearSuccessfulCmd = &cobra.Command{
	Use:   "clear-successful",
	Short: "Delete transfers that uploaded",
	RunE: func(cmd *cobra.Command, args []string) error {
		return newStors(settings).TransferStor.ClearSuccessfulTransfers()
	},
}

func init() {
	transfersListCmd.Flags().String("status", "all", "all, pending, failed or finished")
	transfersCmd.AddCommand(transfersListCmd, transfersClearFailedCmd, transfersClearSuccessfulCmd)
	rootCmd.AddCommand(transfersCmd)
}

func printTransfers(transfers []model.Transfer) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header([]string{"ID", "Account", "Remote Path", "Status", "Result", "Finished"})

	for _, t := range transfers {
		result, finished := "", ""
		if t.LastResult != nil {
			result = t.LastResult.String()
		}

		if t.TransferEndTimestamp != nil {
			finished = time.UnixMilli(*t.TransferEndTimestamp).Format(time.RFC3339)
		}

		row := []string{strconv.Itoa(t.ID), t.AccountName, t.RemotePath, t.Status.String(), result, finished}
		_ = table.Append(row)
	}

	_ = table.Render()
}
