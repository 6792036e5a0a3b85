package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/KEPSOAR/DER-SecAgent/internal/core/graph"
	"github.com/KEPSOAR/DER-SecAgent/internal/core/incident"
	"github.com/KEPSOAR/DER-SecAgent/internal/core/state"
	"github.com/KEPSOAR/DER-SecAgent/internal/ctxlog"
	imetrics "github.com/KEPSOAR/DER-SecAgent/internal/infrastructure/metrics"
)

// DefaultMaxVerifyRetries is the verification ceiling R.
const DefaultMaxVerifyRetries = 2

// Verification router labels.
const (
	LabelOK     = "ok"
	LabelRetry  = "retry"
	LabelGiveUp = "giveup"
)

// GiveUpFeedback is recorded when the verifier rejects the last allowed
// attempt without saying why.
const GiveUpFeedback = "rejected by verifier after the final attempt"

// ErrUnparsableVerdict is returned by ModelVerifier when the model answer
// holds no JSON verdict.
var ErrUnparsableVerdict = errors.New("model returned no parsable verdict")

// VerifyNode checks the artifact of kind. Every visit increments the attempt
// counter before the verdict is computed. When the verifier fails the node
// fails open: verified is true, feedback empty and the artifact unchanged.
// ceiling is only used to record a give-up in the feedback field.
func VerifyNode(kind incident.VerificationKind, verifier Verifier, ceiling int) graph.Node {
	provides := []string{kind.AttemptsField(), kind.VerifiedField(), kind.FeedbackField(), kind.ArtifactField()}
	if kind == incident.VerifyScript {
		provides = append(provides, incident.FieldIsScriptChanged)
	}
	contract := graph.Contract{
		Requires: []string{kind.ArtifactField()},
		Provides: provides,
	}
	return graph.NewNode(contract, func(ctx context.Context, s state.State) (state.Delta, error) {
		log := ctxlog.FromContext(ctx).With("kind", kind)
		attempts := state.LookupOr(s, kind.AttemptsField(), 0) + 1
		artifact := state.LookupOr(s, kind.ArtifactField(), "")
		imetrics.IncVerifyAttempt(string(kind))

		verdict, err := verifier.Verify(ctx, kind, artifact, s)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			imetrics.IncVerifyFailOpen(string(kind))
			log.Warn("verifier unavailable, accepting artifact", "attempt", attempts, "error", err)
			verdict = Verdict{Verified: true}
		}

		fixed := artifact
		if verdict.Fixed != "" {
			fixed = verdict.Fixed
		}
		feedback := verdict.Feedback
		if verdict.Verified {
			log.Info("artifact verified", "attempt", attempts, "fixed", fixed != artifact)
		} else if attempts >= ceiling {
			if feedback == "" {
				feedback = GiveUpFeedback
			}
			imetrics.IncVerifyGiveUp(string(kind))
			log.Warn("verification given up, continuing with last artifact", "attempt", attempts, "feedback", feedback)
		} else {
			log.Info("artifact rejected, regenerating", "attempt", attempts, "feedback", feedback)
		}

		delta := state.Delta{
			kind.AttemptsField():  attempts,
			kind.VerifiedField():  verdict.Verified,
			kind.FeedbackField():  feedback,
			kind.ArtifactField(): fixed,
		}
		if kind == incident.VerifyScript {
			changed := state.LookupOr(s, incident.FieldIsScriptChanged, false)
			delta[incident.FieldIsScriptChanged] = changed || fixed != artifact
		}
		return delta, nil
	})
}

// VerifyRouter routes after a verification node: ok when verified, retry
// while attempts stay below ceiling and giveup otherwise. Absent fields
// count as verified with no attempts.
func VerifyRouter(kind incident.VerificationKind, ceiling int) graph.Router {
	return graph.NewRouter([]string{LabelOK, LabelRetry, LabelGiveUp}, func(s state.State) string {
		if state.LookupOr(s, kind.VerifiedField(), true) {
			return LabelOK
		}
		if state.LookupOr(s, kind.AttemptsField(), 0) < ceiling {
			return LabelRetry
		}
		return LabelGiveUp
	})
}

// ModelVerifier asks the model for a JSON verdict.
type ModelVerifier struct {
	model ModelInvoker
}

// NewModelVerifier creates a verifier backed by model.
func NewModelVerifier(model ModelInvoker) *ModelVerifier {
	return &ModelVerifier{model: model}
}

// Verify implements Verifier. Transport errors and answers without a JSON
// object are returned as errors.
func (v *ModelVerifier) Verify(ctx context.Context, kind incident.VerificationKind, artifact string, s state.State) (Verdict, error) {
	out, err := v.model.Generate(ctx, VerifyPrompt(kind, artifact, s))
	if err != nil {
		return Verdict{}, fmt.Errorf("verify %s: %w", kind, err)
	}
	return ParseVerdict(out)
}

// ParseVerdict extracts the first JSON object from a model answer. Code
// fences and surrounding prose are ignored.
func ParseVerdict(out string) (Verdict, error) {
	start := strings.Index(out, "{")
	end := strings.LastIndex(out, "}")
	if start < 0 || end < start {
		return Verdict{}, ErrUnparsableVerdict
	}
	var raw struct {
		Verified *bool  `json:"verified"`
		Feedback string `json:"feedback"`
		Fixed    string `json:"fixed"`
	}
	if err := json.Unmarshal([]byte(out[start:end+1]), &raw); err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrUnparsableVerdict, err)
	}
	if raw.Verified == nil {
		return Verdict{}, fmt.Errorf("%w: missing verified field", ErrUnparsableVerdict)
	}
	return Verdict{
		Verified: *raw.Verified,
		Feedback: strings.TrimSpace(raw.Feedback),
		Fixed:    strings.TrimSpace(raw.Fixed),
	}, nil
}
