package usecases

import (
	"fmt"
	"strings"
	"time"

	"github.com/KEPSOAR/DER-SecAgent/internal/core/incident"
	"github.com/KEPSOAR/DER-SecAgent/internal/core/state"
)

const eventTimeLayout = "2006-01-02 15:04:05"

// logEntry renders the incident fields of s as the prompt's log block.
func logEntry(s state.State) string {
	var b strings.Builder
	b.WriteString("Log entry:\n")
	line := func(label, field string) {
		v, _ := s.Get(field)
		if t, ok := v.(time.Time); ok {
			v = t.Format(eventTimeLayout)
		}
		fmt.Fprintf(&b, "%s: %v\n", label, v)
	}
	line("Time", incident.FieldEventTime)
	line("Device IP", incident.FieldDeviceIP)
	line("Device Name", incident.FieldDeviceName)
	line("Source Institution Code", incident.FieldSourceInstitutionCode)
	line("Source IP", incident.FieldSourceIP)
	line("Source Port", incident.FieldSourcePort)
	line("Source Asset Name", incident.FieldSourceAssetName)
	line("Source Country", incident.FieldSourceCountry)
	line("Destination Institution Code", incident.FieldDestInstitutionCode)
	line("Destination IP", incident.FieldDestIP)
	line("Destination Port", incident.FieldDestPort)
	line("Destination Asset Name", incident.FieldDestAssetName)
	line("Destination Country", incident.FieldDestCountry)
	line("Attack Type", incident.FieldAttackType)
	return b.String()
}

// HistoryContext renders prior responses for the same attack type. No
// records yield an empty string.
func HistoryContext(records []incident.HistoryRecord) string {
	if len(records) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Response history for same attack type:\n")
	for i, h := range records {
		fmt.Fprintf(&b, "\nRelated Log %d:\n", i+1)
		fmt.Fprintf(&b, "ID: %d\n", h.ID)
		fmt.Fprintf(&b, "Event Time: %s\n", h.EventTime.Format(eventTimeLayout))
		fmt.Fprintf(&b, "Device IP: %s\n", h.DeviceIP)
		fmt.Fprintf(&b, "Device Name: %s\n", h.DeviceName)
		fmt.Fprintf(&b, "Source Institution Code: %s\n", h.SourceInstitutionCode)
		fmt.Fprintf(&b, "Source IP: %s\n", h.SourceIP)
		fmt.Fprintf(&b, "Source Port: %d\n", h.SourcePort)
		fmt.Fprintf(&b, "Source Asset Name: %s\n", h.SourceAssetName)
		fmt.Fprintf(&b, "Source Country: %s\n", h.SourceCountry)
		fmt.Fprintf(&b, "Source MAC: %s\n", h.SourceMAC)
		fmt.Fprintf(&b, "Destination Institution Code: %s\n", h.DestInstitutionCode)
		fmt.Fprintf(&b, "Destination IP: %s\n", h.DestIP)
		fmt.Fprintf(&b, "Destination Port: %d\n", h.DestPort)
		fmt.Fprintf(&b, "Destination Asset Name: %s\n", h.DestAssetName)
		fmt.Fprintf(&b, "Destination Country: %s\n", h.DestCountry)
		fmt.Fprintf(&b, "Destination MAC: %s\n", h.DestMAC)
		fmt.Fprintf(&b, "Protocol: %s\n", h.Protocol)
		fmt.Fprintf(&b, "Attack Type: %s\n", h.AttackType)
		fmt.Fprintf(&b, "Account: %s\n", h.Account)
		fmt.Fprintf(&b, "Risk Level: %s\n", h.RiskLevel)
		fmt.Fprintf(&b, "Given Script: %s\n", h.GivenScript)
		fmt.Fprintf(&b, "Executed Script: %s\n", h.ExecutedScript)
		fmt.Fprintf(&b, "Changed Reason: %s\n", h.ChangedReason)
		fmt.Fprintf(&b, "Caution: %t\n", h.CautionLevel)
	}
	return b.String()
}

const finalOutputRules = `OUTPUT REQUIREMENTS (FINAL):
- Output only the final iptables command(s), exactly as you would type them in a terminal.
- One command per line.
- No extra text, no explanations, no alternatives.`

type promptBuilder func(s state.State, history string) string

var scriptPrompts = map[incident.ScriptEngineering]promptBuilder{
	incident.ZeroShot:       zeroShotPrompt,
	incident.FewShot:        fewShotPrompt,
	incident.ChainOfThought: chainOfThoughtPrompt,
	incident.TreeOfThought:  treeOfThoughtPrompt,
}

// ScriptPrompt builds the generation prompt for the given strategy.
func ScriptPrompt(eng incident.ScriptEngineering, s state.State, history string) (string, error) {
	build, ok := scriptPrompts[eng]
	if !ok {
		return "", fmt.Errorf("%w: script engineering %q", incident.ErrUnknownValue, eng)
	}
	return strings.TrimRight(build(s, history), "\n "), nil
}

func zeroShotPrompt(s state.State, _ string) string {
	return `You are a security engineer specialized in iptables.
You are provided with a TCP log entry.
Based on these, generate a minimal set of valid, actual CLI commands.
Do not output multiple alternative solutions or any text other than the commands.
Output each command on a separate line exactly as you would type it in a terminal.

` + logEntry(s)
}

func fewShotPrompt(s state.State, history string) string {
	return `You are a security engineer specialized in iptables.
You are provided with a TCP log entry and a concise history of previously effective iptables commands.
Based on these, generate a minimal set of valid, actual CLI commands.
If a similar command exists in the history, reuse and adjust it.
Do not output multiple alternative solutions or any text other than the commands.
Output each command on a separate line exactly as you would type it in a terminal.

` + logEntry(s) + `
Previous Response History:
` + history
}

func chainOfThoughtPrompt(s state.State, history string) string {
	return `You are a senior security engineer specialized in iptables.

You are given a single TCP log entry and a concise history of previously effective iptables commands.
Your task is to produce the minimal set of valid, actual CLI commands.
If a similar command exists in the history, reuse it and adjust arguments.

Think step by step internally only. Never reveal your reasoning. Only output the final commands.

INTERNAL REASONING CHECKLIST (DO NOT OUTPUT):
1) Parse fields from the log: event time, device, source and destination addresses, ports and attack type.
2) Decide packet direction and chain:
   - if {dest_ip} == {device_ip} then chain=INPUT
   - else if {source_ip} == {device_ip} then chain=OUTPUT
   - else chain=FORWARD
3) Choose action: DROP for malicious traffic unless history clearly ACCEPTs the same pattern.
4) Reuse the closest history rule and only swap addresses and ports.
5) Compose: -p tcp, -s {source_ip}, -d {dest_ip}, --dport {dest_port}, -j DROP or -j ACCEPT.
6) Validate: no placeholders, no comments, one command per line.

INPUTS:

` + logEntry(s) + `
Previous Response History (FOR INTERNAL REASONING ONLY; DO NOT ECHO):
` + history + `

` + finalOutputRules
}

func treeOfThoughtPrompt(s state.State, history string) string {
	return `You are a senior security engineer specialized in iptables.

Task:
Given a single TCP log entry and a concise history of previously effective iptables commands, produce the minimal set of valid CLI commands. If a similar command exists in history, reuse and adjust it.

THINK IN A TREE (INTERNAL ONLY):
- Build up to 4 branches of candidate solutions (depth at most 2).
- Each branch proposes 1 to 3 iptables commands.
- Score each branch with the rubric below and select the best one. Do not output reasoning or scores.

BRANCHING STRATEGIES:
A) Reuse the closest history rule; adjust only IP/port.
B) Minimal fresh rule: -p tcp, -s, -d, --dport, -j DROP/ACCEPT.
C) Stateful variant if history uses it: -m conntrack --ctstate NEW.
D) Interface-anchored variant if history pins interfaces: -i/-o.

SCORING RUBRIC (0-10):
- Correct chain selection (INPUT/OUTPUT/FORWARD) [0-3]
- Policy minimality [0-3]
- Consistency with history style [0-2]
- Syntax validity and safety [0-2]

INPUTS:

` + logEntry(s) + `
Previous Response History (FOR INTERNAL REASONING ONLY; DO NOT ECHO):
` + history + `

` + finalOutputRules
}

// CautionPrompt asks whether script changes the server irreversibly.
func CautionPrompt(script string) string {
	return `You are a system safety engineer. Evaluate the following CLI script that is intended to be executed on a server.
Determine if executing this script will cause permanent or irreversible changes to the server.
Output only "true" if it will cause such changes or "false" if it will not.
Script:
` + script + "\n"
}

// ReportPrompt builds the incident report prompt from the running state.
func ReportPrompt(s state.State) string {
	get := func(field string) any {
		v, _ := s.Get(field)
		if t, ok := v.(time.Time); ok {
			return t.Format(eventTimeLayout)
		}
		return v
	}
	var b strings.Builder
	b.WriteString(`[System Instruction]
You are a cyber security expert and a professional report writer.
Based on attack time, type, and asset information, write a clear and structured security incident report.

[User Instruction]
Below is data extracted via rules for a security incident in a DER (Distributed Energy Resources) environment. Using this information, write a "DER Security Incident Report" in English that includes: attack overview, attacker information, asset information, response actions and timeline, impact/severity, and additional recommendations.

### Extracted Data
`)
	fmt.Fprintf(&b, "- Attack_Type: %v\n", get(incident.FieldAttackType))
	fmt.Fprintf(&b, "- Attack_Time: %v\n", get(incident.FieldEventTime))
	fmt.Fprintf(&b, "- Protocol: %v\n", get(incident.FieldProtocol))
	fmt.Fprintf(&b, "- DER_IP: %v\n", get(incident.FieldDestIP))
	fmt.Fprintf(&b, "- DER_Address: %v (%v)\n", get(incident.FieldDestAssetName), get(incident.FieldDestCountry))
	fmt.Fprintf(&b, "- Attacker_IP: %v\n", get(incident.FieldSourceIP))
	fmt.Fprintf(&b, "- Attacker_Address: %v (%v)\n", get(incident.FieldSourceAssetName), get(incident.FieldSourceCountry))
	fmt.Fprintf(&b, "- Response_Script:\n%v\n", get(incident.FieldScript))
	if c, ok := state.Lookup[bool](s, incident.FieldCaution); ok {
		fmt.Fprintf(&b, "- Irreversible_Change: %t\n", c)
	} else if c, ok := state.Lookup[bool](s, incident.FieldCautionLevel); ok {
		fmt.Fprintf(&b, "- Irreversible_Change: %t\n", c)
	}
	b.WriteString(`
### Output Requirements
1. Report title: "DER Security Incident Report"
2. Attack overview: time, attack type, presumed motivation
3. Attacker information: Attacker_IP, Attacker_Address
4. Asset information (DER): DER_IP, DER_Address
5. Response actions and time: detection and response completion timestamps
6. Impact/Severity: risk level and scope
7. Additional recommendations: 1-2 hardening actions

### Format
- Within one A4 page, English
- Natural and concise sentences
- Use subheadings or bullet points if helpful

[End of Instruction]
`)
	return b.String()
}

// withFeedback appends the last verifier critique so a regeneration can
// address it.
func withFeedback(prompt, previous, feedback string) string {
	if feedback == "" {
		return prompt
	}
	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\n[Reviewer Feedback]\nA previous attempt was rejected.\n")
	if previous != "" {
		b.WriteString("Previous attempt:\n")
		b.WriteString(previous)
		b.WriteString("\n")
	}
	b.WriteString("Feedback:\n")
	b.WriteString(feedback)
	b.WriteString("\nAddress the feedback in the new answer.\n")
	return b.String()
}

// VerifyPrompt asks the model for a JSON verdict on an artifact.
func VerifyPrompt(kind incident.VerificationKind, artifact string, s state.State) string {
	var criteria string
	switch kind {
	case incident.VerifyScript:
		criteria = `- Security policy violations (dangerous commands, overly destructive or overly broad rules, false positives)
- Syntax and executability of every command
- Suitability for the device and the traffic described in the log entry`
	default:
		criteria = `- Missing sections or claims not grounded in the incident data
- Consistency with the event information
- Compliance with the SOC report format`
	}
	return `You are a strict reviewer of automated security responses.
Review the following ` + string(kind) + ` produced for the incident below.

Check:
` + criteria + `

Respond with a single JSON object and nothing else:
{"verified": true|false, "feedback": "<what must change, empty when verified>", "fixed": "<corrected ` + string(kind) + `, or empty to keep it>"}

` + logEntry(s) + `
` + strings.ToUpper(string(kind)) + `:
` + artifact + "\n"
}
