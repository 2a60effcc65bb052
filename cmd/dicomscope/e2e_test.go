package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"

	"github.com/cucumber/godog"

	"github.com/mrsinham/dicomscope/internal/dicom/dicomtest"
)

// binaryPath holds the path to the compiled binary (set once in TestMain)
var binaryPath string

// testContext holds state for a single scenario
type testContext struct {
	tmpDir   string
	exitCode int
	output   string
	studies  int
}

// buildBinary compiles the dicomscope binary once
func buildBinary() (string, error) {
	tmpFile, err := os.CreateTemp("", "dicomscope-test-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpFile.Close()

	_, thisFile, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(thisFile), "..", "..")

	cmd := exec.Command("go", "build", "-o", tmpFile.Name(), "./cmd/dicomscope")
	cmd.Dir = projectRoot
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("build failed: %w\n%s", err, stderr.String())
	}

	return tmpFile.Name(), nil
}

// TestMain compiles the binary once before running all tests
func TestMain(m *testing.M) {
	var err error
	binaryPath, err = buildBinary()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build binary: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()
	os.Remove(binaryPath)
	os.Exit(code)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

func InitializeScenario(sc *godog.ScenarioContext) {
	tc := &testContext{}

	sc.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tmpDir, err := os.MkdirTemp("", "dicomscope-e2e-*")
		if err != nil {
			return ctx, err
		}
		tc.tmpDir = tmpDir
		tc.studies = 0
		return ctx, nil
	})

	sc.After(func(ctx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		if tc.tmpDir != "" {
			os.RemoveAll(tc.tmpDir)
		}
		return ctx, nil
	})

	sc.Step(`^dicomscope is built$`, tc.dicomscopeIsBuilt)
	sc.Step(`^"([^"]*)" contains (\d+) DICOM files for patient "([^"]*)"$`, tc.containsDICOMFiles)
	sc.Step(`^"([^"]*)" contains a text file "([^"]*)"$`, tc.containsTextFile)
	sc.Step(`^I run dicomscope with "([^"]*)"$`, tc.iRunDicomscopeWith)
	sc.Step(`^the exit code should be (\d+)$`, tc.theExitCodeShouldBe)
	sc.Step(`^the output should contain "([^"]*)"$`, tc.theOutputShouldContain)
	sc.Step(`^the output should not contain "([^"]*)"$`, tc.theOutputShouldNotContain)
	sc.Step(`^the output should list "([^"]*)" before "([^"]*)"$`, tc.theOutputShouldListBefore)
	sc.Step(`^the output should be JSON with (\d+) subjects?$`, tc.theOutputShouldBeJSONWithSubjects)
	sc.Step(`^"([^"]*)" should exist$`, tc.shouldExist)
	sc.Step(`^"([^"]*)" should be a (\d+)x(\d+) PNG$`, tc.shouldBePNG)
}

func (tc *testContext) expand(s string) string {
	return strings.ReplaceAll(s, "{tmpdir}", tc.tmpDir)
}

func (tc *testContext) dicomscopeIsBuilt() error {
	if binaryPath == "" {
		return fmt.Errorf("binary not built")
	}
	if _, err := os.Stat(binaryPath); os.IsNotExist(err) {
		return fmt.Errorf("binary does not exist at %s", binaryPath)
	}
	return nil
}

// containsDICOMFiles writes count instances of one series, numbered so that
// discovery order is the reverse of instance order.
func (tc *testContext) containsDICOMFiles(dir string, count int, patient string) error {
	dir = tc.expand(dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tc.studies++
	for i := range count {
		opts := dicomtest.Sample()
		opts.PatientID = patient
		opts.PatientName = "DOE^" + patient
		opts.StudyInstanceUID = "1.2.826.0.1.3680043.8.498." + strconv.Itoa(tc.studies)
		opts.SeriesInstanceUID = opts.StudyInstanceUID + ".1"
		opts.InstanceNumber = strconv.Itoa(count - i)
		opts.Rows, opts.Cols = 16, 16

		data, err := dicomtest.Build(opts)
		if err != nil {
			return fmt.Errorf("build DICOM file: %w", err)
		}
		name := filepath.Join(dir, fmt.Sprintf("IM%06d", i))
		if err := os.WriteFile(name, data, 0644); err != nil {
			return err
		}
	}
	return nil
}

func (tc *testContext) containsTextFile(dir, name string) error {
	dir = tc.expand(dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name), []byte("This disc contains DICOM images.\n"), 0644)
}

func (tc *testContext) iRunDicomscopeWith(args string) error {
	argList := splitArgs(tc.expand(args))

	cmd := exec.Command(binaryPath, argList...)
	cmd.Dir = tc.tmpDir
	cmd.Env = append(os.Environ(), "DICOMSCOPE_LOG_LEVEL=error")
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	err := cmd.Run()
	tc.output = output.String()

	if exitErr, ok := err.(*exec.ExitError); ok {
		tc.exitCode = exitErr.ExitCode()
	} else if err != nil {
		return fmt.Errorf("failed to run command: %w", err)
	} else {
		tc.exitCode = 0
	}

	return nil
}

func (tc *testContext) theExitCodeShouldBe(expected int) error {
	if tc.exitCode != expected {
		return fmt.Errorf("expected exit code %d, got %d\nOutput:\n%s", expected, tc.exitCode, tc.output)
	}
	return nil
}

func (tc *testContext) theOutputShouldContain(expected string) error {
	if !strings.Contains(tc.output, tc.expand(expected)) {
		return fmt.Errorf("output does not contain %q\nOutput:\n%s", expected, tc.output)
	}
	return nil
}

func (tc *testContext) theOutputShouldNotContain(unexpected string) error {
	if strings.Contains(tc.output, unexpected) {
		return fmt.Errorf("output contains %q\nOutput:\n%s", unexpected, tc.output)
	}
	return nil
}

func (tc *testContext) theOutputShouldListBefore(first, second string) error {
	i := strings.Index(tc.output, first)
	j := strings.Index(tc.output, second)
	if i < 0 || j < 0 {
		return fmt.Errorf("output does not contain both %q and %q\nOutput:\n%s", first, second, tc.output)
	}
	if i > j {
		return fmt.Errorf("%q is listed after %q\nOutput:\n%s", first, second, tc.output)
	}
	return nil
}

func (tc *testContext) theOutputShouldBeJSONWithSubjects(count int) error {
	var report struct {
		Subjects []json.RawMessage `json:"subjects"`
	}
	if err := json.Unmarshal([]byte(tc.output), &report); err != nil {
		return fmt.Errorf("output is not JSON: %w\nOutput:\n%s", err, tc.output)
	}
	if len(report.Subjects) != count {
		return fmt.Errorf("expected %d subjects, got %d", count, len(report.Subjects))
	}
	return nil
}

func (tc *testContext) shouldExist(path string) error {
	path = tc.expand(path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("path does not exist: %s", path)
	}
	return nil
}

func (tc *testContext) shouldBePNG(path string, width, height int) error {
	f, err := os.Open(tc.expand(path))
	if err != nil {
		return err
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return fmt.Errorf("decode PNG: %w", err)
	}
	if b := img.Bounds(); b.Dx() != width || b.Dy() != height {
		return fmt.Errorf("expected %dx%d, got %dx%d", width, height, b.Dx(), b.Dy())
	}
	return nil
}

// splitArgs splits a command line string into arguments
func splitArgs(s string) []string {
	var args []string
	var current strings.Builder
	inQuote := false

	for _, r := range s {
		switch {
		case r == '\'':
			inQuote = !inQuote
		case r == ' ' && !inQuote:
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		args = append(args, current.String())
	}
	return args
}
