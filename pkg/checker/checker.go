// Package checker runs named preflight checks before the scan starts,
// with optional remediations per check. Checks are registered by
// function and looked up by name, so a checklist can live in data.
package checker

import (
	"fmt"
	"reflect"
	"runtime"
	"sort"
	"strings"

	logger "github.com/z46-dev/go-logger"
)

var log = logger.NewLogger().SetPrefix("[CHCK]", logger.BoldGreen)

// CheckArgs parameterizes a check, e.g. the directory to probe.
type CheckArgs map[string]string

// CheckFun is a single verification step. A nil error means pass.
type CheckFun func(args CheckArgs) error

const (
	ResultOK    = "OK"
	ResultError = "ERROR"
)

// Check names a registered function to run, with remediations tried
// when it fails. StopOnFailure skips remediations and aborts the list.
type Check struct {
	Description   string
	CheckFunName  string
	CheckFunArgs  CheckArgs
	Remediations  []Check
	StopOnFailure bool
}

// CheckResult is the outcome of one Check, remediation outcomes included.
type CheckResult struct {
	Description        string
	CheckFunName       string
	CheckFunArgs       CheckArgs
	Result             string
	Error              string
	RemediationResults []CheckResult
	StoppedOnFailure   bool
}

var registered = map[string]CheckFun{}

// registerCheckFun indexes f under its bare function name.
func registerCheckFun(f CheckFun) {
	name := runtime.FuncForPC(reflect.ValueOf(f).Pointer()).Name()
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}
	registered[name] = f
}

// ListRegistered returns the sorted names of all registered checks.
func ListRegistered() []string {
	names := make([]string, 0, len(registered))
	for name := range registered {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes the check and, on failure, its remediations.
func (c Check) Run() CheckResult {
	result := CheckResult{
		Description:  c.Description,
		CheckFunName: c.CheckFunName,
		CheckFunArgs: c.CheckFunArgs,
		Result:       ResultOK,
	}
	fun, ok := registered[c.CheckFunName]
	if !ok {
		result.Result = ResultError
		result.Error = fmt.Sprintf("no check registered as %q", c.CheckFunName)
		return result
	}
	err := fun(c.CheckFunArgs)
	if err == nil {
		return result
	}
	result.Result = ResultError
	result.Error = err.Error()
	if c.StopOnFailure {
		result.StoppedOnFailure = true
		return result
	}
	for _, rem := range c.Remediations {
		result.RemediationResults = append(result.RemediationResults, rem.Run())
	}
	return result
}

// Run walks the checklist in order and counts failures. A check that
// stopped on failure ends the walk early.
func Run(checklist []Check) ([]CheckResult, int) {
	var results []CheckResult
	numErrors := 0
	for _, check := range checklist {
		result := check.Run()
		results = append(results, result)
		if result.Result == ResultError {
			numErrors++
			log.Warningf("%s: %s\n", check.CheckFunName, result.Error)
			if result.StoppedOnFailure {
				break
			}
		}
	}
	return results, numErrors
}
