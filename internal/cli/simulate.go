package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	simulateToken     string
	simulateEmail     string
	simulateBid       float64
	simulateAsk       float64
	simulateThreshold float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次点差告警并测试邮件投递",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateToken == "" || simulateEmail == "" {
			return errors.New("--token 与 --email 必须提供")
		}
		if simulateBid <= 0 || simulateAsk <= 0 {
			return errors.New("--bid 与 --ask 必须大于 0")
		}

		bid := decimal.NewFromFloat(simulateBid)
		ask := decimal.NewFromFloat(simulateAsk)
		threshold := decimal.NewFromFloat(simulateThreshold)
		return getApp().SimulateAlert(cmd.Context(), simulateToken, simulateEmail, bid, ask, threshold)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateToken, "token", "", "Token symbol, e.g. USDY")
	simulateCmd.Flags().StringVar(&simulateEmail, "email", "", "Recipient email address")
	simulateCmd.Flags().Float64Var(&simulateBid, "bid", 0, "模拟买一价")
	simulateCmd.Flags().Float64Var(&simulateAsk, "ask", 0, "模拟卖一价")
	simulateCmd.Flags().Float64Var(&simulateThreshold, "threshold-pct", 0.5, "告警阈值（百分比）")
}
