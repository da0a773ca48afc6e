package main

import (
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:   "remove <query>",
	Short: "Stop tracking a manga (search by part of the title)",
	Args:  cobra.ExactArgs(1),
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

		matches := matchTitles(snap.Titles(), args[0])
		if len(matches) == 0 {
			return fmt.Errorf("nothing found for %q", args[0])
		}

		title := matches[0]
		if len(matches) > 1 {
			prompt := promptui.Select{
				Label: "Select manga",
				Items: matches,
			}
			idx, _, err := prompt.Run()
			if err != nil {
				return fmt.Errorf("selection cancelled")
			}
			title = matches[idx]
		}

		confirm := promptui.Prompt{
			Label:     fmt.Sprintf("Remove %q", title),
			IsConfirm: true,
		}
		if _, err := confirm.Run(); err != nil {
			fmt.Println("Cancelled.")
			return nil
		}

		if err := e.repo.RemoveManga(cmd.Context(), title); err != nil {
			return err
		}
		fmt.Println("✓ Removed:", title)
		return nil
	},
}

// matchTitles ищет названия по подстроке без учёта регистра
func matchTitles(titles []string, query string) []string {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	var out []string
	for _, t := range titles {
		if strings.Contains(strings.ToLower(t), query) {
			out = append(out, t)
		}
	}
	return out
}

func init() {
	rootCmd.AddCommand(removeCmd)
}
