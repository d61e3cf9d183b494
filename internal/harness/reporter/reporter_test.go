package reporter

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwm2m-harness/lwm2m-go/internal/harness/engine"
	"github.com/lwm2m-harness/lwm2m-go/internal/harness/loader"
)

func sampleSuite() *engine.SuiteResult {
	readStep := &loader.Step{Action: "send_request", Description: "read device object"}
	pass := &engine.TestResult{
		Scenario: &loader.Scenario{ID: "TC-REG-001", Name: "Register"},
		Passed:   true,
		Duration: 120 * time.Millisecond,
		StepResults: []*engine.StepResult{{
			Step:     readStep,
			Passed:   true,
			Duration: 10 * time.Millisecond,
			ExpectResults: map[string]*engine.ExpectResult{
				"code": {Key: "code", Expected: "2.05", Actual: "2.05", Passed: true, Message: "code is 2.05"},
			},
			Output: map[string]any{"payload": []byte("hello")},
		}},
	}
	fail := &engine.TestResult{
		Scenario: &loader.Scenario{ID: "TC-OBS-002"},
		Error:    errors.New("step 2 (expect_notification): timeout"),
		Duration: 2 * time.Second,
		StepResults: []*engine.StepResult{{
			Step:      &loader.Step{Action: "expect_notification"},
			StepIndex: 1,
			Error:     errors.New("timeout & <retry>"),
		}},
	}
	skip := &engine.TestResult{
		Scenario:   &loader.Scenario{ID: "TC-FW-003", Name: "Firmware"},
		Skipped:    true,
		SkipReason: "needs firmware image",
	}
	return &engine.SuiteResult{
		SuiteName: "LwM2M Scenarios",
		Results:   []*engine.TestResult{pass, fail, skip},
		PassCount: 1,
		FailCount: 1,
		SkipCount: 1,
		Duration:  3 * time.Second,
	}
}

func TestTextReporter(t *testing.T) {
	var buf bytes.Buffer
	NewTextReporter(&buf, true).ReportSuite(sampleSuite())
	out := buf.String()

	assert.Contains(t, out, "[PASS] TC-REG-001 - Register (120ms)")
	assert.Contains(t, out, "[FAIL] TC-OBS-002 (2s)")
	assert.Contains(t, out, "Error: step 2 (expect_notification): timeout")
	assert.Contains(t, out, "[SKIP] TC-FW-003 - Firmware")
	assert.Contains(t, out, "Skip reason: needs firmware image")
	assert.Contains(t, out, "[PASS] Step 1: send_request")
	assert.Contains(t, out, "read device object")
	assert.Contains(t, out, "[OK] code: code is 2.05")
	assert.Contains(t, out, "Pass Rate: 50.0%")
	assert.Contains(t, out, "Skipped: 1")
	assert.Contains(t, out, "Failures:\n  TC-OBS-002\n")
}

func TestTextReporterQuiet(t *testing.T) {
	var buf bytes.Buffer
	NewTextReporter(&buf, false).ReportSuite(sampleSuite())
	assert.NotContains(t, buf.String(), "Step 1")
}

func TestJSONReporter(t *testing.T) {
	var buf bytes.Buffer
	NewJSONReporter(&buf, true).ReportSuite(sampleSuite())

	var got JSONSuiteResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 3, got.Total)
	assert.Equal(t, 1, got.Failed)
	assert.InDelta(t, 50.0, got.PassRate, 0.001)
	require.Len(t, got.Tests, 3)
	assert.Equal(t, "passed", got.Tests[0].Status)
	assert.Equal(t, "hello", got.Tests[0].Steps[0].Outputs["payload"])
	assert.True(t, got.Tests[0].Steps[0].Expects["code"].Passed)
	assert.Equal(t, "failed", got.Tests[1].Status)
	assert.Equal(t, "timeout & <retry>", got.Tests[1].Steps[0].Error)
	assert.Equal(t, "skipped", got.Tests[2].Status)
	assert.Equal(t, "needs firmware image", got.Tests[2].SkipReason)
}

func TestJSONReporterSummaryOmitsTests(t *testing.T) {
	var buf bytes.Buffer
	NewJSONReporter(&buf, false).ReportSummary(sampleSuite())
	assert.NotContains(t, buf.String(), "tests")
	assert.Contains(t, buf.String(), `"passed":1`)
}

func TestJUnitReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewJUnitReporter(&buf)
	r.ReportTest(sampleSuite().Results[0])
	assert.Zero(t, buf.Len())
	r.ReportSuite(sampleSuite())

	var got junitSuite
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "LwM2M Scenarios", got.Name)
	assert.Equal(t, 3, got.Tests)
	assert.Equal(t, 1, got.Failures)
	require.Len(t, got.Cases, 3)
	assert.Equal(t, "Register", got.Cases[0].Name)
	assert.Nil(t, got.Cases[0].Failure)
	assert.Equal(t, "TC-OBS-002", got.Cases[1].Name)
	require.NotNil(t, got.Cases[1].Failure)
	assert.Contains(t, got.Cases[1].Failure.Detail, "Step 2 (expect_notification): timeout & <retry>")
	require.NotNil(t, got.Cases[2].Skipped)
	assert.Equal(t, "needs firmware image", got.Cases[2].Skipped.Message)
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	for _, f := range []string{"", "text", "json", "junit"} {
		r, err := New(f, &buf, false)
		require.NoError(t, err, f)
		assert.NotNil(t, r)
	}
	_, err := New("yaml", &buf, false)
	assert.Error(t, err)
}
