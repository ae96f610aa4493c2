package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/mbti-relay/backend/internal/config"
	"github.com/zhouzirui/mbti-relay/backend/internal/model/chat"
	"github.com/zhouzirui/mbti-relay/backend/internal/model/personality"
	"github.com/zhouzirui/mbti-relay/backend/internal/service/ai"
	"github.com/zhouzirui/mbti-relay/backend/internal/service/classify"
	"github.com/zhouzirui/mbti-relay/backend/internal/service/relay"
)

func runChat(ctx context.Context, in io.Reader, out io.Writer) error {
	_ = godotenv.Load()
	if flagConfig != "" {
		if err := config.ApplyFile(flagConfig); err != nil {
			return err
		}
	}
	if flagVerbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if !cfg.AI.Enabled() {
		return fmt.Errorf("%s credentials or model not configured", cfg.AI.Provider)
	}

	chatModel, err := cfg.AI.NewChatModel(ctx)
	if err != nil {
		return err
	}
	var opts []ai.Option
	if cfg.AI.SystemPrompt != "" {
		opts = append(opts, ai.WithSystemPrompt(cfg.AI.SystemPrompt))
	}
	aiSvc, err := ai.NewService(chatModel, opts...)
	if err != nil {
		return err
	}
	classifier, err := classify.NewService(ctx, chatModel, classify.Config{
		Enabled:   cfg.Classify.Enabled,
		Threshold: cfg.Classify.Threshold,
	})
	if err != nil {
		return err
	}

	r := relay.New(aiSvc, classifier, personality.NewMemoryStore(personality.Seed()))
	return loop(ctx, r, in, out, flagStream)
}

// loop reads one message per line and runs an exchange for each.
func loop(ctx context.Context, r *relay.Relay, in io.Reader, out io.Writer, stream bool) error {
	sess := chat.NewSession(uuid.NewString(), time.Now())
	fmt.Fprintln(out, headerStyle.Render("Conversation Relay"))
	fmt.Fprintln(out, hintStyle.Render(countdown(r.Render(sess))))

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, promptStyle.Render("> "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		line := scanner.Text()
		switch strings.TrimSpace(line) {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/show":
			fmt.Fprintln(out, renderTranscript(r.Render(sess)))
			continue
		}

		hadVerdict := hasVerdict(sess)
		if stream {
			fmt.Fprint(out, labelStyle(chat.RoleAssistant).Render(chat.RoleLabel(chat.RoleAssistant)+":")+" ")
			streamed := false
			reply, err := r.ExchangeStream(ctx, sess, line, func(delta string) {
				streamed = true
				fmt.Fprint(out, delta)
			})
			if err != nil {
				return err
			}
			// Failed calls produce no deltas; their error turn is printed whole.
			if !streamed {
				fmt.Fprint(out, reply.Content)
			}
			fmt.Fprintln(out)
		} else {
			reply, err := r.Exchange(ctx, sess, line)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, renderTurn(reply.Role, reply.Content))
		}

		view := r.Render(sess)
		if !hadVerdict && view.Verdict != nil {
			fmt.Fprintln(out, renderVerdict(*view.Verdict))
		} else if view.Verdict == nil {
			fmt.Fprintln(out, hintStyle.Render(countdown(view)))
		}
	}
}

func hasVerdict(sess *chat.Session) bool {
	_, ok := sess.Verdict()
	return ok
}

func countdown(view relay.View) string {
	n := view.TurnsUntilVerdict()
	switch {
	case n == 0:
		return ""
	case n == 1:
		return "1 more message until your personality verdict."
	default:
		return fmt.Sprintf("%d more messages until your personality verdict.", n)
	}
}
