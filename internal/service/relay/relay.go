package relay

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/mbti-relay/backend/internal/analysis/mbti"
	"github.com/zhouzirui/mbti-relay/backend/internal/model/chat"
	"github.com/zhouzirui/mbti-relay/backend/internal/model/personality"
	"github.com/zhouzirui/mbti-relay/backend/internal/service/ai"
	"github.com/zhouzirui/mbti-relay/backend/internal/service/llm"
)

// ErrEmptyMessage is returned by Submit for blank input.
var ErrEmptyMessage = errors.New("message is empty")

// Completer produces the assistant reply for a transcript.
type Completer interface {
	Complete(ctx context.Context, turns []chat.Turn) (*schema.Message, error)
	Stream(ctx context.Context, turns []chat.Turn) (*schema.StreamReader[*schema.Message], error)
}

// Classifier produces the one-shot personality verdict.
type Classifier interface {
	Enabled() bool
	Threshold() int
	Classify(ctx context.Context, turns []chat.Turn) (string, error)
}

// Relay forwards session transcripts to the completion endpoint and records
// the results. It holds no per-session state; every operation is given the
// session it acts on.
type Relay struct {
	completer     Completer
	classifier    Classifier
	personalities personality.Store
	now           func() time.Time
}

// New builds a Relay. classifier and personalities may be nil.
func New(completer Completer, classifier Classifier, personalities personality.Store) *Relay {
	return &Relay{
		completer:     completer,
		classifier:    classifier,
		personalities: personalities,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Submit appends the user's message to the transcript.
func (r *Relay) Submit(sess *chat.Session, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	sess.Append(chat.Turn{Role: chat.RoleUser, Content: text, CreatedAt: r.now()})
	return nil
}

// CompleteTurn sends the whole transcript to the endpoint and appends the
// assistant turn. Failures become an assistant turn describing the error.
func (r *Relay) CompleteTurn(ctx context.Context, sess *chat.Session) chat.Turn {
	var content string
	response, err := r.complete(ctx, sess.Turns())
	if err != nil {
		log.Warn().Err(err).Str("component", "relay").Str("session", sess.ID).Msg("completion failed")
		content = ErrorContent(err)
	} else {
		content = response.Content
	}

	turn := chat.Turn{Role: chat.RoleAssistant, Content: content, CreatedAt: r.now()}
	sess.Append(turn)
	return turn
}

// CompleteTurnStream behaves like CompleteTurn but reports partial content
// through onDelta while the reply arrives.
func (r *Relay) CompleteTurnStream(ctx context.Context, sess *chat.Session, onDelta func(string)) chat.Turn {
	var content string
	response, err := r.stream(ctx, sess.Turns(), onDelta)
	if err != nil {
		log.Warn().Err(err).Str("component", "relay").Str("session", sess.ID).Msg("streamed completion failed")
		content = ErrorContent(err)
	} else {
		content = response.Content
	}

	turn := chat.Turn{Role: chat.RoleAssistant, Content: content, CreatedAt: r.now()}
	sess.Append(turn)
	return turn
}

// MaybeClassify requests the personality verdict once enough user turns have
// accumulated and none is recorded yet. It reports whether a verdict was set
// by this call. A failed request leaves the verdict unset so a later
// submission tries again.
func (r *Relay) MaybeClassify(ctx context.Context, sess *chat.Session) bool {
	if r.classifier == nil || !r.classifier.Enabled() {
		return false
	}
	if _, ok := sess.Verdict(); ok {
		return false
	}
	if sess.UserTurnCount() < r.classifier.Threshold() {
		return false
	}

	verdict, err := r.classifier.Classify(ctx, sess.Turns())
	if err != nil {
		log.Warn().Err(err).Str("component", "relay").Str("session", sess.ID).Msg("personality classification failed")
		return false
	}

	set := sess.SetVerdict(verdict)
	if set {
		log.Info().Str("component", "relay").Str("session", sess.ID).Msg("personality verdict recorded")
	}
	return set
}

// Exchange runs one full user submission: submit, classify when due, then
// complete the assistant turn.
func (r *Relay) Exchange(ctx context.Context, sess *chat.Session, text string) (chat.Turn, error) {
	if err := r.Submit(sess, text); err != nil {
		return chat.Turn{}, err
	}
	r.MaybeClassify(ctx, sess)
	return r.CompleteTurn(ctx, sess), nil
}

// ExchangeStream is Exchange with streamed assistant output.
func (r *Relay) ExchangeStream(ctx context.Context, sess *chat.Session, text string, onDelta func(string)) (chat.Turn, error) {
	if err := r.Submit(sess, text); err != nil {
		return chat.Turn{}, err
	}
	r.MaybeClassify(ctx, sess)
	return r.CompleteTurnStream(ctx, sess, onDelta), nil
}

func (r *Relay) complete(ctx context.Context, turns []chat.Turn) (*schema.Message, error) {
	if r.completer == nil {
		return nil, errors.New("completion service unavailable")
	}
	return r.completer.Complete(ctx, turns)
}

func (r *Relay) stream(ctx context.Context, turns []chat.Turn, onDelta func(string)) (*schema.Message, error) {
	if r.completer == nil {
		return nil, errors.New("completion service unavailable")
	}
	stream, err := r.completer.Stream(ctx, turns)
	if err != nil {
		return nil, err
	}
	return ai.ConcatStream(stream, onDelta)
}

// ErrorContent renders a failed call as the text of an assistant turn.
func ErrorContent(err error) string {
	var b strings.Builder
	b.WriteString("Error: ")
	b.WriteString(err.Error())

	if callErr, ok := llm.AsCallError(err); ok && callErr.Body != "" {
		b.WriteString("\n\nRaw response: ")
		b.WriteString(callErr.Body)
	}
	return b.String()
}

// Render returns the display form of the session. It has no side effects.
func (r *Relay) Render(sess *chat.Session) View {
	turns := sess.Turns()
	view := View{
		SessionID: sess.ID,
		Turns:     make([]DisplayTurn, 0, len(turns)),
	}
	for _, turn := range turns {
		if turn.Role == chat.RoleUser {
			view.UserTurns++
		}
		view.Turns = append(view.Turns, DisplayTurn{
			Role:      turn.Role,
			Label:     chat.RoleLabel(turn.Role),
			Content:   turn.Content,
			CreatedAt: turn.CreatedAt,
		})
	}

	if r.classifier != nil && r.classifier.Enabled() {
		view.VerdictThreshold = r.classifier.Threshold()
	}

	if raw, ok := sess.Verdict(); ok {
		verdict := &VerdictView{Raw: raw}
		if detection, found := mbti.Detect(raw); found {
			verdict.Code = detection.Code
			if r.personalities != nil {
				if info, ok := r.personalities.FindByCode(detection.Code); ok {
					verdict.Nickname = info.Nickname
					verdict.Description = info.Description
				}
			}
		}
		view.Verdict = verdict
	}
	return view
}
