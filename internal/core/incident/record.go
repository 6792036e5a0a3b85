package incident

import (
	"time"

	"github.com/KEPSOAR/DER-SecAgent/internal/core/state"
)

// Record is one detection log row.
type Record struct {
	ID                    int64      `json:"id" validate:"gte=0"`
	EventTime             time.Time  `json:"event_time" validate:"required"`
	DeviceIP              string     `json:"device_ip" validate:"required,ip"`
	DeviceName            string     `json:"device_name"`
	SourceInstitutionCode string     `json:"source_institution_code"`
	SourceIP              string     `json:"source_ip" validate:"required,ip"`
	SourcePort            int        `json:"source_port" validate:"gte=0,lte=65535"`
	SourceAssetName       string     `json:"source_asset_name"`
	SourceCountry         string     `json:"source_country"`
	SourceMAC             string     `json:"source_mac" validate:"omitempty,mac"`
	DestInstitutionCode   string     `json:"dest_institution_code"`
	DestIP                string     `json:"dest_ip" validate:"required,ip"`
	DestPort              int        `json:"dest_port" validate:"gte=0,lte=65535"`
	DestAssetName         string     `json:"dest_asset_name"`
	DestCountry           string     `json:"dest_country"`
	DestMAC               string     `json:"dest_mac" validate:"omitempty,mac"`
	Protocol              string     `json:"protocol"`
	Action                string     `json:"action,omitempty"`
	AttackType            AttackType `json:"attack_type" validate:"required,attack_type"`
	Account               string     `json:"account"`
	RiskLevel             RiskLevel  `json:"risk_level,omitempty" validate:"omitempty,risk_level"`
}

// HistoryRecord is a log row together with the operator-approved response.
type HistoryRecord struct {
	Record
	GivenScript    string `json:"given_script"`
	ExecutedScript string `json:"executed_script"`
	ChangedReason  string `json:"changed_reason,omitempty"`
	CautionLevel   bool   `json:"caution_level"`
}

// Options carries the per-execution selections that are not part of a
// stored record.
type Options struct {
	Mode            OperationMode
	Engineering     ScriptEngineering
	IsScriptChanged bool
}

// Fields returns the incident fields of r keyed by state field name.
func (r Record) Fields() map[string]any {
	return map[string]any{
		FieldID:                    r.ID,
		FieldEventTime:             r.EventTime,
		FieldDeviceIP:              r.DeviceIP,
		FieldDeviceName:            r.DeviceName,
		FieldSourceInstitutionCode: r.SourceInstitutionCode,
		FieldSourceIP:              r.SourceIP,
		FieldSourcePort:            r.SourcePort,
		FieldSourceAssetName:       r.SourceAssetName,
		FieldSourceCountry:         r.SourceCountry,
		FieldSourceMAC:             r.SourceMAC,
		FieldDestInstitutionCode:   r.DestInstitutionCode,
		FieldDestIP:                r.DestIP,
		FieldDestPort:              r.DestPort,
		FieldDestAssetName:         r.DestAssetName,
		FieldDestCountry:           r.DestCountry,
		FieldDestMAC:               r.DestMAC,
		FieldProtocol:              r.Protocol,
		FieldAttackType:            r.AttackType,
		FieldAccount:               r.Account,
	}
}

// ToState builds the initial execution state for a fresh log row. The
// script starts empty.
func (r Record) ToState(opts Options) state.State {
	return newInput(r.Fields(), "", opts)
}

// ToState builds the initial execution state from a history row: the
// executed script becomes the script under report and the recorded caution
// level is carried along.
func (h HistoryRecord) ToState(opts Options) state.State {
	fields := h.Record.Fields()
	fields[FieldCautionLevel] = h.CautionLevel
	return newInput(fields, h.ExecutedScript, opts)
}

func newInput(fields map[string]any, script string, opts Options) state.State {
	eng := opts.Engineering
	if eng == "" {
		eng = ZeroShot
	}
	fields[FieldScript] = script
	fields[FieldChainOfThought] = ""
	fields[FieldMode] = opts.Mode
	fields[FieldIsScriptChanged] = opts.IsScriptChanged
	fields[FieldScriptEngineering] = eng
	return state.New(fields)
}
