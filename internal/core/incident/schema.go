package incident

import (
	"fmt"
	"time"

	"github.com/KEPSOAR/DER-SecAgent/internal/core/state"
)

// State field names.
const (
	FieldID                    = "id"
	FieldEventTime             = "event_time"
	FieldDeviceIP              = "device_ip"
	FieldDeviceName            = "device_name"
	FieldSourceInstitutionCode = "source_institution_code"
	FieldSourceIP              = "source_ip"
	FieldSourcePort            = "source_port"
	FieldSourceAssetName       = "source_asset_name"
	FieldSourceCountry         = "source_country"
	FieldSourceMAC             = "source_mac"
	FieldDestInstitutionCode   = "dest_institution_code"
	FieldDestIP                = "dest_ip"
	FieldDestPort              = "dest_port"
	FieldDestAssetName         = "dest_asset_name"
	FieldDestCountry           = "dest_country"
	FieldDestMAC               = "dest_mac"
	FieldProtocol              = "protocol"
	FieldAttackType            = "attack_type"
	FieldAccount               = "account"

	FieldChainOfThought    = "chain_of_thought"
	FieldMode              = "mode"
	FieldIsScriptChanged   = "is_script_changed"
	FieldScript            = "script"
	FieldScriptEngineering = "script_engineering"
	FieldCautionLevel      = "caution_level"

	FieldCaution = "caution"
	FieldReport  = "report"
)

// incidentFields are the identity, network and asset fields every schema
// carries.
func incidentFields() []state.Field {
	return []state.Field{
		state.Of[int64](FieldID),
		state.Of[time.Time](FieldEventTime),
		state.Of[string](FieldDeviceIP),
		state.Of[string](FieldDeviceName),
		state.Of[string](FieldSourceInstitutionCode),
		state.Of[string](FieldSourceIP),
		state.Of[int](FieldSourcePort),
		state.Of[string](FieldSourceAssetName),
		state.Of[string](FieldSourceCountry),
		state.Of[string](FieldSourceMAC),
		state.Of[string](FieldDestInstitutionCode),
		state.Of[string](FieldDestIP),
		state.Of[int](FieldDestPort),
		state.Of[string](FieldDestAssetName),
		state.Of[string](FieldDestCountry),
		state.Of[string](FieldDestMAC),
		state.Of[string](FieldProtocol),
		state.Of[AttackType](FieldAttackType),
		state.Of[string](FieldAccount),
	}
}

// verifyFields declares the optional retry bookkeeping of kind k.
func verifyFields(k VerificationKind) []state.Field {
	return []state.Field{
		state.Optional(state.Field{Name: k.AttemptsField(), Check: nonNegative(k.AttemptsField())}),
		state.Optional(state.Of[bool](k.VerifiedField())),
		state.Optional(state.Of[string](k.FeedbackField())),
	}
}

func nonNegative(name string) func(any) error {
	typed := state.Of[int](name).Check
	return func(v any) error {
		if err := typed(v); err != nil {
			return err
		}
		if n := v.(int); n < 0 {
			return fmt.Errorf("%w: %s must be >= 0, got %d", state.ErrInvalidValue, name, n)
		}
		return nil
	}
}

// Schema lattice. Input is what an execution starts from, Caution is the
// script pipeline's narrowed result and Report the report pipeline's.
var (
	InputSchema   = inputSchema()
	CautionSchema = cautionSchema()
	ReportSchema  = reportSchema()

	// ResultSchema is what the mode dispatch graph exports: the fields both
	// pipelines guarantee plus everything either may add.
	ResultSchema = resultSchema()

	// WorkingSchema declares every field any pipeline node may write.
	WorkingSchema = InputSchema.Union("working", CautionSchema).Union("working", ReportSchema)
)

func inputSchema() state.Schema {
	s := state.NewSchema("input", incidentFields()...)
	s = s.Extend("input",
		state.Of[string](FieldChainOfThought),
		state.Of[OperationMode](FieldMode),
		state.Of[bool](FieldIsScriptChanged),
		state.Of[string](FieldScript),
		state.Of[ScriptEngineering](FieldScriptEngineering),
		state.Optional(state.Of[bool](FieldCautionLevel)),
	)
	return s.Extend("input", verifyFields(VerifyScript)...)
}

func cautionSchema() state.Schema {
	s := state.NewSchema("caution", incidentFields()...)
	s = s.Extend("caution", state.Of[string](FieldScript), state.Of[bool](FieldCaution))
	return s.Extend("caution", verifyFields(VerifyScript)...)
}

func reportSchema() state.Schema {
	s := cautionSchema().Without("report", FieldCaution)
	s = s.Extend("report", state.Of[string](FieldReport))
	return s.Extend("report", verifyFields(VerifyReport)...)
}

func resultSchema() state.Schema {
	s := state.NewSchema("result", incidentFields()...)
	s = s.Extend("result",
		state.Of[string](FieldScript),
		state.Optional(state.Of[bool](FieldCaution)),
		state.Optional(state.Of[string](FieldReport)),
	)
	s = s.Extend("result", verifyFields(VerifyScript)...)
	return s.Extend("result", verifyFields(VerifyReport)...)
}

// IncidentFieldNames lists the fields shared by all schemas, in declaration
// order.
func IncidentFieldNames() []string {
	fields := incidentFields()
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Name
	}
	return out
}
