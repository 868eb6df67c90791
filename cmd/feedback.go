package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/xerrors/Yuxi-Know/pkg/chat"
	"github.com/xerrors/Yuxi-Know/pkg/config"
)

var (
	feedbackMessage string
	feedbackRating  string
	feedbackReason  string
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Rate an agent message, or show its rating",
	Long: `Rate an agent message with --rating like or dislike. Without --rating
the existing feedback is shown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if feedbackMessage == "" {
			return errors.New("--message is required")
		}
		c := newClient(config.Get())
		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		id := chat.MessageID(feedbackMessage)

		if feedbackRating == "" {
			fb, err := c.GetFeedback(ctx, id)
			if err != nil {
				return err
			}
			if fb == nil {
				fmt.Fprintln(out, "no feedback")
				return nil
			}
			fmt.Fprintln(out, formatFeedback(*fb))
			return nil
		}

		fb, err := c.SubmitFeedback(ctx, id, feedbackRating, feedbackReason)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, formatFeedback(fb))
		return nil
	},
}

func formatFeedback(fb chat.Feedback) string {
	if fb.Reason == "" {
		return fb.Rating
	}
	return fmt.Sprintf("%s: %s", fb.Rating, fb.Reason)
}

func init() {
	feedbackCmd.Flags().StringVarP(&feedbackMessage, "message", "m", "", "message id")
	feedbackCmd.Flags().StringVarP(&feedbackRating, "rating", "r", "", "like or dislike")
	feedbackCmd.Flags().StringVar(&feedbackReason, "reason", "", "optional reason")
	rootCmd.AddCommand(feedbackCmd)
}
