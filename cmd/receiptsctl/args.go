package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"receipts/internal/core"
)

func requireExactlyArgs(count int, message string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != count {
			return errors.New(message)
		}
		return nil
	}
}

func requireAtLeastArgs(min int, message string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) < min {
			return errors.New(message)
		}
		return nil
	}
}

func parsePeriodArgs(yearArg, monthArg string) (core.Period, error) {
	year, err := strconv.Atoi(yearArg)
	if err != nil {
		return core.Period{}, fmt.Errorf("invalid year %q", yearArg)
	}
	month, err := strconv.Atoi(monthArg)
	if err != nil {
		return core.Period{}, fmt.Errorf("invalid month %q", monthArg)
	}
	return core.NewPeriod(year, month)
}

func parseYearArg(yearArg string) (int, error) {
	year, err := strconv.Atoi(yearArg)
	if err != nil {
		return 0, fmt.Errorf("invalid year %q", yearArg)
	}
	if err := (core.Period{Year: year, Month: 1}).Validate(); err != nil {
		return 0, err
	}
	return year, nil
}
