// Package incident defines the security incident domain: closed
// enumerations, the log and history records the pipelines consume, and the
// state schemas the workflow graphs are typed against.
package incident

import (
	"errors"
	"strings"

	"github.com/KEPSOAR/DER-SecAgent/internal/core/graph"
)

// ErrUnknownValue is wrapped by every Parse function for values outside the
// closed set.
var ErrUnknownValue = errors.New("unknown enumeration value")

// AttackType classifies the detected attack.
type AttackType string

const (
	AttackDoS        AttackType = "DoS"
	AttackProbe      AttackType = "Probe"
	AttackR2L        AttackType = "R2L"
	AttackU2R        AttackType = "U2R"
	AttackMITM       AttackType = "MITM"
	AttackBruteForce AttackType = "BruteForce"
)

// AttackTypes lists every attack type.
var AttackTypes = []AttackType{AttackDoS, AttackProbe, AttackR2L, AttackU2R, AttackMITM, AttackBruteForce}

// ParseAttackType matches s exactly against the known attack types.
func ParseAttackType(s string) (AttackType, error) {
	for _, a := range AttackTypes {
		if string(a) == s {
			return a, nil
		}
	}
	return "", graph.Configurationf("%w: attack type %q", ErrUnknownValue, s)
}

func (a AttackType) Validate() error {
	_, err := ParseAttackType(string(a))
	return err
}

func (a AttackType) String() string { return string(a) }

// OperationMode selects the pipeline an execution runs.
type OperationMode string

const (
	ModeScript OperationMode = "script"
	ModeReport OperationMode = "report"
)

// ParseOperationMode accepts "script" or "report", case-insensitively.
func ParseOperationMode(s string) (OperationMode, error) {
	switch m := OperationMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeScript, ModeReport:
		return m, nil
	}
	return "", graph.Configurationf("%w: operation mode %q", ErrUnknownValue, s)
}

func (m OperationMode) Validate() error {
	switch m {
	case ModeScript, ModeReport:
		return nil
	}
	return graph.Configurationf("%w: operation mode %q", ErrUnknownValue, string(m))
}

func (m OperationMode) String() string { return string(m) }

// ScriptEngineering is the prompting strategy used to generate a script.
type ScriptEngineering string

const (
	ZeroShot       ScriptEngineering = "zero"
	FewShot        ScriptEngineering = "few"
	ChainOfThought ScriptEngineering = "cot"
	TreeOfThought  ScriptEngineering = "tot"
)

// ParseScriptEngineering parses a strategy selector. The empty string
// selects ZeroShot; any other unknown value is an error.
func ParseScriptEngineering(s string) (ScriptEngineering, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ZeroShot, nil
	}
	switch e := ScriptEngineering(s); e {
	case ZeroShot, FewShot, ChainOfThought, TreeOfThought:
		return e, nil
	}
	return "", graph.Configurationf("%w: script engineering %q", ErrUnknownValue, s)
}

func (e ScriptEngineering) Validate() error {
	switch e {
	case ZeroShot, FewShot, ChainOfThought, TreeOfThought:
		return nil
	}
	return graph.Configurationf("%w: script engineering %q", ErrUnknownValue, string(e))
}

// UsesHistory reports whether the strategy consults prior responses.
func (e ScriptEngineering) UsesHistory() bool {
	return e == FewShot || e == ChainOfThought || e == TreeOfThought
}

func (e ScriptEngineering) String() string { return string(e) }

// RiskLevel is the severity assigned by the detection system.
type RiskLevel string

const (
	RiskLow     RiskLevel = "Low"
	RiskMedium  RiskLevel = "Medium"
	RiskHigh    RiskLevel = "High"
	RiskExtreme RiskLevel = "Extreme"
)

// ParseRiskLevel matches s exactly against the known risk levels.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch r := RiskLevel(s); r {
	case RiskLow, RiskMedium, RiskHigh, RiskExtreme:
		return r, nil
	}
	return "", graph.Configurationf("%w: risk level %q", ErrUnknownValue, s)
}

func (r RiskLevel) Validate() error {
	_, err := ParseRiskLevel(string(r))
	return err
}

// VerificationKind tags the artifact a verification node checks.
type VerificationKind string

const (
	VerifyScript VerificationKind = "script"
	VerifyReport VerificationKind = "report"
)

// ParseVerificationKind accepts "script" or "report".
func ParseVerificationKind(s string) (VerificationKind, error) {
	switch k := VerificationKind(s); k {
	case VerifyScript, VerifyReport:
		return k, nil
	}
	return "", graph.Configurationf("%w: verification kind %q", ErrUnknownValue, s)
}

func (k VerificationKind) Validate() error {
	_, err := ParseVerificationKind(string(k))
	return err
}

func (k VerificationKind) String() string { return string(k) }

// ArtifactField is the state field holding the verified artifact.
func (k VerificationKind) ArtifactField() string { return string(k) }

// AttemptsField is the state field counting verification passes.
func (k VerificationKind) AttemptsField() string { return string(k) + "_verify_attempts" }

// VerifiedField is the state field holding the last verdict.
func (k VerificationKind) VerifiedField() string { return string(k) + "_verified" }

// FeedbackField is the state field holding the last verifier critique.
func (k VerificationKind) FeedbackField() string { return string(k) + "_verifier_feedback" }
