package incident

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KEPSOAR/DER-SecAgent/internal/core/graph"
	"github.com/KEPSOAR/DER-SecAgent/internal/core/state"
)

func sampleRecord() Record {
	return Record{
		ID:                    42,
		EventTime:             time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		DeviceIP:              "10.0.0.1",
		DeviceName:            "der-gw-01",
		SourceInstitutionCode: "EXT",
		SourceIP:              "203.0.113.7",
		SourcePort:            51515,
		SourceAssetName:       "unknown",
		SourceCountry:         "KR",
		SourceMAC:             "00:11:22:33:44:55",
		DestInstitutionCode:   "KEP",
		DestIP:                "10.0.0.1",
		DestPort:              502,
		DestAssetName:         "inverter",
		DestCountry:           "KR",
		DestMAC:               "66:77:88:99:aa:bb",
		Protocol:              "TCP",
		AttackType:            AttackDoS,
		Account:               "root",
	}
}

func TestParseEnums(t *testing.T) {
	tests := []struct {
		name    string
		parse   func(string) (any, error)
		input   string
		want    any
		wantErr bool
	}{
		{"attack type", func(s string) (any, error) { return ParseAttackType(s) }, "BruteForce", AttackBruteForce, false},
		{"attack type is case sensitive", func(s string) (any, error) { return ParseAttackType(s) }, "dos", nil, true},
		{"unknown attack type", func(s string) (any, error) { return ParseAttackType(s) }, "Phishing", nil, true},
		{"mode", func(s string) (any, error) { return ParseOperationMode(s) }, "Report", ModeReport, false},
		{"unknown mode", func(s string) (any, error) { return ParseOperationMode(s) }, "audit", nil, true},
		{"engineering", func(s string) (any, error) { return ParseScriptEngineering(s) }, "tot", TreeOfThought, false},
		{"empty engineering defaults to zero-shot", func(s string) (any, error) { return ParseScriptEngineering(s) }, "", ZeroShot, false},
		{"unknown engineering", func(s string) (any, error) { return ParseScriptEngineering(s) }, "react", nil, true},
		{"risk level", func(s string) (any, error) { return ParseRiskLevel(s) }, "Extreme", RiskExtreme, false},
		{"unknown risk level", func(s string) (any, error) { return ParseRiskLevel(s) }, "Severe", nil, true},
		{"verification kind", func(s string) (any, error) { return ParseVerificationKind(s) }, "report", VerifyReport, false},
		{"unknown verification kind", func(s string) (any, error) { return ParseVerificationKind(s) }, "caution", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.parse(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrUnknownValue)
				assert.ErrorIs(t, err, graph.ErrConfiguration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVerificationKind_Fields(t *testing.T) {
	assert.Equal(t, "script_verify_attempts", VerifyScript.AttemptsField())
	assert.Equal(t, "report_verified", VerifyReport.VerifiedField())
	assert.Equal(t, "report_verifier_feedback", VerifyReport.FeedbackField())
	assert.Equal(t, "script", VerifyScript.ArtifactField())
}

func TestScriptEngineering_UsesHistory(t *testing.T) {
	assert.False(t, ZeroShot.UsesHistory())
	assert.True(t, FewShot.UsesHistory())
	assert.True(t, ChainOfThought.UsesHistory())
	assert.True(t, TreeOfThought.UsesHistory())
}

func TestRecord_ToState(t *testing.T) {
	st := sampleRecord().ToState(Options{Mode: ModeScript})

	require.NoError(t, InputSchema.Validate(st))
	assert.Equal(t, ZeroShot, state.LookupOr(st, FieldScriptEngineering, ScriptEngineering("")))
	assert.Equal(t, "", state.LookupOr(st, FieldScript, "x"))
	assert.False(t, st.Has(FieldCautionLevel))
	assert.False(t, st.Has(VerifyScript.AttemptsField()), "retry bookkeeping starts absent")
}

func TestHistoryRecord_ToState(t *testing.T) {
	h := HistoryRecord{
		Record:         sampleRecord(),
		GivenScript:    "iptables -A INPUT -s 203.0.113.7 -j DROP",
		ExecutedScript: "iptables -A INPUT -s 203.0.113.7 -p tcp --dport 502 -j DROP",
		CautionLevel:   true,
	}
	st := h.ToState(Options{Mode: ModeReport, Engineering: FewShot, IsScriptChanged: true})

	require.NoError(t, InputSchema.Validate(st))
	assert.Equal(t, h.ExecutedScript, state.LookupOr(st, FieldScript, ""))
	assert.True(t, state.LookupOr(st, FieldCautionLevel, false))
	assert.True(t, state.LookupOr(st, FieldIsScriptChanged, false))
	assert.Equal(t, ModeReport, state.LookupOr(st, FieldMode, OperationMode("")))
}

func TestInputSchema_RejectsOpenValues(t *testing.T) {
	base := sampleRecord().ToState(Options{Mode: ModeScript})

	tests := []struct {
		name  string
		delta state.Delta
	}{
		{"attack type outside enum", state.Delta{FieldAttackType: AttackType("Phishing")}},
		{"attack type as plain string", state.Delta{FieldAttackType: "DoS"}},
		{"mode outside enum", state.Delta{FieldMode: OperationMode("audit")}},
		{"negative attempts", state.Delta{VerifyScript.AttemptsField(): -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := InputSchema.Validate(base.Merge(tt.delta))
			assert.ErrorIs(t, err, state.ErrInvalidValue)
		})
	}
}

func TestSchemaLattice(t *testing.T) {
	assert.False(t, CautionSchema.Has(FieldChainOfThought))
	assert.False(t, CautionSchema.Has(FieldMode))
	assert.True(t, CautionSchema.Has(FieldCaution))

	assert.False(t, ReportSchema.Has(FieldCaution))
	assert.True(t, ReportSchema.Has(FieldReport))
	assert.True(t, ReportSchema.Has(VerifyReport.AttemptsField()))

	for _, n := range IncidentFieldNames() {
		assert.True(t, InputSchema.Has(n), n)
		assert.True(t, CautionSchema.Has(n), n)
		assert.True(t, ReportSchema.Has(n), n)
		assert.True(t, ResultSchema.Has(n), n)
	}

	f, ok := ReportSchema.Field(VerifyReport.VerifiedField())
	require.True(t, ok)
	assert.True(t, f.Optional)
}
