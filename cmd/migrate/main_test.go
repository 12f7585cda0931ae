package main

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/starford/relayout/internal/apperr"
)

func TestUnknownFlagExitsWithValidationCode(t *testing.T) {
	cmd := newCommand()
	cmd.Writer = io.Discard
	cmd.ErrWriter = io.Discard

	err := cmd.Run(context.Background(), []string{"migrate", "--no-such-flag"})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if got := apperr.ExitCode(err); got != apperr.ExitValidation {
		t.Errorf("exit code = %d, want %d", got, apperr.ExitValidation)
	}
}
