// Package reporter writes harness results as text, JSON or JUnit XML.
package reporter

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/lwm2m-harness/lwm2m-go/internal/harness/engine"
)

// Reporter formats and outputs results.
type Reporter interface {
	// ReportTest reports one scenario as it completes.
	ReportTest(result *engine.TestResult)

	// ReportSummary reports totals after a suite; scenarios were already
	// streamed through ReportTest.
	ReportSummary(result *engine.SuiteResult)

	// ReportSuite reports every scenario and the totals.
	ReportSuite(result *engine.SuiteResult)
}

// New returns the reporter for format ("text", "json" or "junit").
func New(format string, w io.Writer, verbose bool) (Reporter, error) {
	switch format {
	case "", "text":
		return NewTextReporter(w, verbose), nil
	case "json":
		return NewJSONReporter(w, true), nil
	case "junit":
		return NewJUnitReporter(w), nil
	}
	return nil, fmt.Errorf("unknown report format %q", format)
}

func status(r *engine.TestResult) string {
	switch {
	case r.Skipped:
		return "skipped"
	case r.Passed:
		return "passed"
	}
	return "failed"
}

func passRate(s *engine.SuiteResult) float64 {
	ran := s.PassCount + s.FailCount
	if ran == 0 {
		return 0
	}
	return float64(s.PassCount) / float64(ran) * 100
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// TextReporter writes human-readable reports.
type TextReporter struct {
	w       io.Writer
	verbose bool
}

// NewTextReporter creates a text reporter. Verbose adds per-step detail.
func NewTextReporter(w io.Writer, verbose bool) *TextReporter {
	return &TextReporter{w: w, verbose: verbose}
}

// ReportTest implements Reporter.
func (r *TextReporter) ReportTest(result *engine.TestResult) {
	sc := result.Scenario
	labels := map[string]string{"passed": "PASS", "failed": "FAIL", "skipped": "SKIP"}
	fmt.Fprintf(r.w, "[%s] %s", labels[status(result)], sc.ID)
	if sc.Name != "" {
		fmt.Fprintf(r.w, " - %s", sc.Name)
	}
	fmt.Fprintf(r.w, " (%s)\n", result.Duration.Round(time.Millisecond))

	if result.Skipped && result.SkipReason != "" {
		fmt.Fprintf(r.w, "       Skip reason: %s\n", result.SkipReason)
	}
	if !result.Passed && result.Error != nil {
		fmt.Fprintf(r.w, "       Error: %v\n", result.Error)
	}
	if !r.verbose {
		return
	}
	for _, sr := range result.StepResults {
		st := "PASS"
		if !sr.Passed {
			st = "FAIL"
		}
		fmt.Fprintf(r.w, "    [%s] Step %d: %s (%s)\n", st, sr.StepIndex+1, sr.Step.Action, sr.Duration.Round(time.Millisecond))
		if sr.Step.Description != "" {
			fmt.Fprintf(r.w, "           %s\n", sr.Step.Description)
		}
		for _, key := range sortedKeys(sr.ExpectResults) {
			er := sr.ExpectResults[key]
			mark := "OK"
			if !er.Passed {
				mark = "FAILED"
			}
			fmt.Fprintf(r.w, "           [%s] %s: %s\n", mark, key, er.Message)
		}
	}
}

// ReportSummary implements Reporter.
func (r *TextReporter) ReportSummary(result *engine.SuiteResult) {
	fmt.Fprintf(r.w, "\n--- %s ---\n", result.SuiteName)
	fmt.Fprintf(r.w, "Total:   %d\n", len(result.Results))
	fmt.Fprintf(r.w, "Passed:  %d\n", result.PassCount)
	fmt.Fprintf(r.w, "Failed:  %d\n", result.FailCount)
	fmt.Fprintf(r.w, "Skipped: %d\n", result.SkipCount)
	if result.PassCount+result.FailCount > 0 {
		fmt.Fprintf(r.w, "Pass Rate: %.1f%%\n", passRate(result))
	}
	fmt.Fprintf(r.w, "Duration: %s\n", result.Duration.Round(time.Millisecond))
	if failed := result.Failed(); len(failed) > 0 {
		fmt.Fprintln(r.w, "Failures:")
		for _, tr := range failed {
			fmt.Fprintf(r.w, "  %s\n", tr.Scenario.ID)
		}
	}
}

// ReportSuite implements Reporter.
func (r *TextReporter) ReportSuite(result *engine.SuiteResult) {
	for _, tr := range result.Results {
		r.ReportTest(tr)
	}
	r.ReportSummary(result)
}

// JSONReporter writes JSON reports.
type JSONReporter struct {
	w      io.Writer
	pretty bool
}

// NewJSONReporter creates a JSON reporter.
func NewJSONReporter(w io.Writer, pretty bool) *JSONReporter {
	return &JSONReporter{w: w, pretty: pretty}
}

// JSONSuiteResult is the JSON form of a suite result.
type JSONSuiteResult struct {
	SuiteName string           `json:"suite_name"`
	Duration  string           `json:"duration"`
	Total     int              `json:"total"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Skipped   int              `json:"skipped"`
	PassRate  float64          `json:"pass_rate"`
	Tests     []JSONTestResult `json:"tests,omitempty"`
}

// JSONTestResult is the JSON form of a scenario result.
type JSONTestResult struct {
	ID         string           `json:"id"`
	Name       string           `json:"name,omitempty"`
	Status     string           `json:"status"`
	Duration   string           `json:"duration"`
	Error      string           `json:"error,omitempty"`
	SkipReason string           `json:"skip_reason,omitempty"`
	Steps      []JSONStepResult `json:"steps,omitempty"`
}

// JSONStepResult is the JSON form of a step result.
type JSONStepResult struct {
	Index    int                   `json:"index"`
	Action   string                `json:"action"`
	Status   string                `json:"status"`
	Duration string                `json:"duration"`
	Error    string                `json:"error,omitempty"`
	Expects  map[string]JSONExpect `json:"expects,omitempty"`
	Outputs  map[string]any        `json:"outputs,omitempty"`
}

// JSONExpect is the JSON form of an expectation result.
type JSONExpect struct {
	Passed   bool   `json:"passed"`
	Expected any    `json:"expected"`
	Actual   any    `json:"actual"`
	Message  string `json:"message"`
}

func (r *JSONReporter) summary(result *engine.SuiteResult) JSONSuiteResult {
	return JSONSuiteResult{
		SuiteName: result.SuiteName,
		Duration:  result.Duration.Round(time.Millisecond).String(),
		Total:     len(result.Results),
		Passed:    result.PassCount,
		Failed:    result.FailCount,
		Skipped:   result.SkipCount,
		PassRate:  passRate(result),
	}
}

// ReportSuite implements Reporter.
func (r *JSONReporter) ReportSuite(result *engine.SuiteResult) {
	js := r.summary(result)
	for _, tr := range result.Results {
		js.Tests = append(js.Tests, testToJSON(tr))
	}
	r.write(js)
}

// ReportSummary implements Reporter.
func (r *JSONReporter) ReportSummary(result *engine.SuiteResult) {
	r.write(r.summary(result))
}

// ReportTest implements Reporter.
func (r *JSONReporter) ReportTest(result *engine.TestResult) {
	r.write(testToJSON(result))
}

func testToJSON(result *engine.TestResult) JSONTestResult {
	jt := JSONTestResult{
		ID:         result.Scenario.ID,
		Name:       result.Scenario.Name,
		Status:     status(result),
		Duration:   result.Duration.Round(time.Millisecond).String(),
		SkipReason: result.SkipReason,
	}
	if result.Error != nil {
		jt.Error = result.Error.Error()
	}
	for _, sr := range result.StepResults {
		js := JSONStepResult{
			Index:    sr.StepIndex,
			Action:   sr.Step.Action,
			Status:   "passed",
			Duration: sr.Duration.Round(time.Millisecond).String(),
			Outputs:  jsonSafe(sr.Output),
		}
		if !sr.Passed {
			js.Status = "failed"
		}
		if sr.Error != nil {
			js.Error = sr.Error.Error()
		}
		if len(sr.ExpectResults) > 0 {
			js.Expects = make(map[string]JSONExpect, len(sr.ExpectResults))
			for k, er := range sr.ExpectResults {
				js.Expects[k] = JSONExpect{Passed: er.Passed, Expected: er.Expected, Actual: er.Actual, Message: er.Message}
			}
		}
		jt.Steps = append(jt.Steps, js)
	}
	return jt
}

// jsonSafe renders byte slices as text so payloads stay readable.
func jsonSafe(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		out[k] = v
	}
	return out
}

func (r *JSONReporter) write(v any) {
	enc := json.NewEncoder(r.w)
	if r.pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(r.w, "{\"error\": %q}\n", err.Error())
	}
}

// JUnitReporter writes JUnit XML for CI systems.
type JUnitReporter struct {
	w io.Writer
}

// NewJUnitReporter creates a JUnit reporter.
func NewJUnitReporter(w io.Writer) *JUnitReporter {
	return &JUnitReporter{w: w}
}

type junitSuite struct {
	XMLName  xml.Name    `xml:"testsuite"`
	Name     string      `xml:"name,attr"`
	Tests    int         `xml:"tests,attr"`
	Failures int         `xml:"failures,attr"`
	Skipped  int         `xml:"skipped,attr"`
	Time     string      `xml:"time,attr"`
	Cases    []junitCase `xml:"testcase"`
}

type junitCase struct {
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Skipped   *junitMessage `xml:"skipped,omitempty"`
	Failure   *junitFailure `xml:"failure,omitempty"`
}

type junitMessage struct {
	Message string `xml:"message,attr"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Detail  string `xml:",cdata"`
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}

// ReportSuite implements Reporter.
func (r *JUnitReporter) ReportSuite(result *engine.SuiteResult) {
	suite := junitSuite{
		Name:     result.SuiteName,
		Tests:    len(result.Results),
		Failures: result.FailCount,
		Skipped:  result.SkipCount,
		Time:     seconds(result.Duration),
	}
	for _, tr := range result.Results {
		name := tr.Scenario.Name
		if name == "" {
			name = tr.Scenario.ID
		}
		c := junitCase{Name: name, ClassName: tr.Scenario.ID, Time: seconds(tr.Duration)}
		switch {
		case tr.Skipped:
			c.Skipped = &junitMessage{Message: tr.SkipReason}
		case !tr.Passed && tr.Error != nil:
			f := &junitFailure{Message: tr.Error.Error()}
			for _, sr := range tr.StepResults {
				if !sr.Passed {
					f.Detail += fmt.Sprintf("Step %d (%s): %v\n", sr.StepIndex+1, sr.Step.Action, sr.Error)
				}
			}
			c.Failure = f
		}
		suite.Cases = append(suite.Cases, c)
	}

	fmt.Fprint(r.w, xml.Header)
	enc := xml.NewEncoder(r.w)
	enc.Indent("", "  ")
	if err := enc.Encode(suite); err != nil {
		fmt.Fprintf(r.w, "<!-- %v -->\n", err)
		return
	}
	fmt.Fprintln(r.w)
}

// ReportSummary implements Reporter. JUnit output is one document, so
// the whole suite is written here.
func (r *JUnitReporter) ReportSummary(result *engine.SuiteResult) {
	r.ReportSuite(result)
}

// ReportTest implements Reporter. Scenarios are only written as part of
// the suite document.
func (r *JUnitReporter) ReportTest(*engine.TestResult) {}
