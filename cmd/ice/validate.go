package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/cubeice/ice/internal/settings"
)

var validateCommand = &cli.Command{
	Name:  "validate",
	Usage: "Validate a settings file",
	Arguments: []cli.Argument{
		&cli.StringArg{
			Name:      "settings",
			UsageText: "The settings file to validate (default: --config)",
		},
	},
	Action: func(ctx context.Context, command *cli.Command) error {
		logger := getLogger(ctx)

		filename := command.StringArg("settings")
		if filename == "" {
			filename = command.String("config")
		}
		if filename == "" {
			return fmt.Errorf("no settings file provided")
		}

		data, err := afero.ReadFile(afero.NewOsFs(), filename)
		if err != nil {
			return fmt.Errorf("failed to read settings file '%s': %w", filename, err)
		}

		logger.Debug("validating settings file", zap.String("settings_filename", filename))

		cfg, err := settings.Parse(data)
		if err != nil {
			fmt.Println(formatValidationError(err))
			return fmt.Errorf("settings file '%s' is invalid", filename)
		}
		if _, err := settings.BuildFilter(logger, cfg.Filter); err != nil {
			return fmt.Errorf("settings file '%s' has an invalid filter: %w", filename, err)
		}

		fmt.Printf("✓ Settings file '%s' is valid\n", filename)
		return nil
	},
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("settings have %d validation error(s):", len(validationErrs)))
		for _, fe := range validationErrs {
			sb.WriteString(fmt.Sprintf("\n  • %s: failed '%s' validation", fe.Namespace(), fe.Tag()))
			if fe.Param() != "" {
				sb.WriteString(fmt.Sprintf(" (param: %s)", fe.Param()))
			}
		}
		return errors.New(sb.String())
	}
	return err
}
