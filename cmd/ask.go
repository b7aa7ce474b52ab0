package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ellmo/internal/models"
)

var (
	askModel       string
	askTemperature float64
	askMaxTokens   int
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one question and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askModel, "model", "m", "", "model id or alias (defaults to the first configured model)")
	askCmd.Flags().Float64Var(&askTemperature, "temperature", 0, "sampling temperature")
	askCmd.Flags().IntVar(&askMaxTokens, "max-tokens", 0, "maximum completion tokens")
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return errors.New("question must not be empty")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	orch, registry, err := newOrchestrator(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	model := askModel
	if model == "" {
		if model, err = registry.DefaultModel(); err != nil {
			return err
		}
	}

	req := models.UnifiedChatRequest{
		Model:    model,
		Messages: []models.Message{{Role: models.RoleUser, Content: question}},
	}
	if cmd.Flags().Changed("temperature") {
		t := askTemperature
		req.Temperature = &t
	}
	if askMaxTokens > 0 {
		n := askMaxTokens
		req.MaxTokens = &n
	}

	resp, err := orch.Execute(cmd.Context(), req)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), resp.Message.Content)
	return nil
}
