package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var simulateText string

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "用原始价格文本模拟一次告警流程",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateText == "" {
			return errors.New("--text 不能为空")
		}

		return getApp().SimulateAlert(cmd.Context(), simulateText)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateText, "text", "", `原始价格文本，例如 "$100,533.13 \n -1452.14 [-1.42%]"`)
}
