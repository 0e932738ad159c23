package main

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"recipe-ingest/internal/core/audit"
	"recipe-ingest/internal/core/pipeline"
	"recipe-ingest/internal/pkg/common"

	"github.com/stretchr/testify/assert"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitItemErrors, exitCode(errItemsFailed))
	assert.Equal(t, exitItemErrors, exitCode(common.NewValidationError("lot invalide", "recettes est vide")))
	assert.Equal(t, exitConfigError, exitCode(common.NewConfigurationError("OPENROUTER_API_KEY is required")))
	assert.Equal(t, exitConfigError, exitCode(fmt.Errorf("startup: %w", common.NewConfigurationError("unknown driver"))))
	assert.Equal(t, exitItemErrors, exitCode(errors.New("boom")))
}

func TestPrintReport(t *testing.T) {
	r := &pipeline.Report{
		BatchName: "lot",
		DryRun:    true,
		Summary:   pipeline.Summary{Total: 3, Validated: 1, Skipped: 1, Errors: 1},
		Validated: []pipeline.ValidatedItem{{Name: "Ratatouille"}},
		Skipped:   []pipeline.SkippedItem{{Name: "Tarte", Reason: "existe"}},
		Errors: []pipeline.ErrorItem{{
			Description: "Soupe",
			Error:       "all models failed",
			Code:        common.ErrCodeGenerationFailure,
			Stage:       pipeline.StageNameGeneration,
		}},
		Audit: &audit.Summary{Counts: audit.Counts{"recipe": {"validated": 1, "error": 1}}},
	}

	var buf bytes.Buffer
	printReport(&buf, r, true)
	out := buf.String()
	assert.Contains(t, out, "batch lot (dry-run)")
	assert.Contains(t, out, "~ Ratatouille")
	assert.Contains(t, out, "= Tarte: existe")
	assert.Contains(t, out, "! Soupe [name_generation/GENERATION_FAILURE]")
	assert.Contains(t, out, "recipe.error=1\n  recipe.validated=1")

	buf.Reset()
	printReport(&buf, r, false)
	assert.NotContains(t, buf.String(), "audit:")
}

func TestRootCommandRequiresInputFile(t *testing.T) {
	rootCmd.SetArgs([]string{})
	rootCmd.SetOut(&bytes.Buffer{})
	err := rootCmd.Execute()
	assert.Error(t, err)
}
