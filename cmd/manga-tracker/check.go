package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"manga-tracker/internal/app"
	"manga-tracker/internal/chapter"
)

var flagForce bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check all tracked manga once",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		ctx, cancel := app.GracefulShutdown(e.logger)
		defer cancel()

		snap, err := e.repo.Load(ctx)
		if err != nil {
			return err
		}

		p := mpb.New(
			mpb.WithWidth(52),
			mpb.WithOutput(os.Stdout),
			mpb.WithRefreshRate(120*time.Millisecond),
		)
		bar := p.New(int64(len(snap.Manga)),
			mpb.BarStyle().Rbound("]"),
			mpb.PrependDecorators(decor.Name("checking  ")),
			mpb.AppendDecorators(
				decor.CountersNoUnit("%d/%d titles", decor.WCSyncWidth),
				decor.Elapsed(decor.ET_STYLE_GO, decor.WCSyncSpace),
			),
		)

		stats, err := e.orchestrator().RunOnce(ctx, flagForce, func(string, chapter.Indicator) {
			bar.Increment()
		})
		// при пропуске или ошибке бар не дойдёт до конца сам
		bar.SetTotal(-1, true)
		p.Wait()
		if err != nil {
			return err
		}

		if stats.Skipped {
			fmt.Println("Already checked today. Use --force to check again.")
			return nil
		}
		fmt.Println(stats.Report.Text)
		return nil
	},
}

func init() {
	checkCmd.Flags().BoolVar(&flagForce, "force", false, "check even if already checked today")
	rootCmd.AddCommand(checkCmd)
}
