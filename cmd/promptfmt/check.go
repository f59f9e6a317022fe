package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/davidbz/promptfmt/internal/domain"
)

// checkCmd probes the completion endpoint once.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check connectivity to the completion endpoint",
	Long: `Send a minimal completion request with the configured credentials and
report whether the endpoint answered. Exits with status 1 on failure.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		container, err := buildContainer()
		if err != nil {
			return err
		}

		return container.Invoke(func(service *domain.PromptService, provider domain.Provider, logger *zap.Logger) error {
			defer closeService(service, logger)

			return runCheck(cmd, service, provider)
		})
	},
}

func runCheck(cmd *cobra.Command, service *domain.PromptService, provider domain.Provider) error {
	out := cmd.OutOrStdout()

	if err := service.CheckConnectionDetail(cmd.Context()); err != nil {
		fmt.Fprintf(out, "FAIL  %s (%s): %v\n", provider.Name(), provider.Model(), err)
		return errors.New("connection check failed")
	}

	fmt.Fprintf(out, "OK    %s (%s)\n", provider.Name(), provider.Model())
	return nil
}
