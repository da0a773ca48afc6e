package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"manga-tracker/internal/normalize"
	"manga-tracker/internal/storage"
)

var addCmd = &cobra.Command{
	Use:   "add <title> <url>",
	Short: "Start tracking a manga",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		title := strings.TrimSpace(args[0])
		if title == "" {
			return errors.New("title is empty")
		}
		url := normalize.NormalizeURL(args[1])
		if err := normalize.ValidateURL(url); err != nil {
			return err
		}

		e, err := setup(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.repo.AddManga(cmd.Context(), title, url); err != nil {
			if errors.Is(err, storage.ErrExists) {
				return fmt.Errorf("%q is already tracked", title)
			}
			return err
		}

		fmt.Printf("✓ Added: %s\n  %s\n", title, url)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(addCmd)
}
