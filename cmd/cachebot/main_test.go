package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFail_ServerErrorCarriesExitCode(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	err := &ServerError{
		Op:       "NewServer",
		Err:      errors.New("secret access denied"),
		ExitCode: ExitSecretsError,
	}

	assert.Equal(t, ExitSecretsError, fail(logger, "failed to create server", err))
}

func TestFail_WrappedServerErrorStillFound(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	inner := &ServerError{
		Op:       "Start",
		Err:      errors.New("listen tcp :8080: address already in use"),
		ExitCode: ExitHTTPServerError,
	}
	err := fmt.Errorf("startup: %w", inner)

	assert.Equal(t, ExitHTTPServerError, fail(logger, "server error", err))
}

func TestFail_PlainErrorDefaultsToConfigCode(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	assert.Equal(t, ExitConfigError, fail(logger, "server error", errors.New("boom")))
}
