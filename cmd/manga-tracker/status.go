package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"manga-tracker/internal/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tracked manga and their last known chapters",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		snap, err := e.repo.Load(cmd.Context())
		if err != nil {
			return err
		}
		if len(snap.Manga) == 0 {
			fmt.Println("No manga tracked yet. Use 'manga-tracker add <title> <url>'.")
			return nil
		}

		renderStatus(snap)
		return nil
	},
}

func renderStatus(snap *storage.Snapshot) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"#", "Title", "Last chapter", "URL"})
	for i, title := range snap.Titles() {
		entry := snap.Manga[title]
		t.AppendRow(table.Row{i + 1, title, entry.LastChapter.String(), entry.URL})
	}

	lastCheck := snap.LastCheckDate
	if lastCheck == "" {
		lastCheck = "never"
	}
	t.AppendFooter(table.Row{"", "Last check", lastCheck, ""})

	t.Render()
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
