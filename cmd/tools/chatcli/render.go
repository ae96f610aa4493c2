package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/zhouzirui/mbti-relay/backend/internal/model/chat"
	"github.com/zhouzirui/mbti-relay/backend/internal/service/relay"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			MarginBottom(1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212"))

	userStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	assistantStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170"))

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	verdictStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)
)

func labelStyle(role chat.Role) lipgloss.Style {
	if role == chat.RoleUser {
		return userStyle
	}
	return assistantStyle
}

func renderTurn(role chat.Role, content string) string {
	return labelStyle(role).Render(chat.RoleLabel(role)+":") + " " + content
}

func renderTranscript(view relay.View) string {
	lines := make([]string, 0, len(view.Turns)+1)
	for _, turn := range view.Turns {
		lines = append(lines, renderTurn(turn.Role, turn.Content))
	}
	if view.Verdict != nil {
		lines = append(lines, renderVerdict(*view.Verdict))
	}
	return strings.Join(lines, "\n")
}

func renderVerdict(v relay.VerdictView) string {
	body := []string{headerStyle.UnsetMarginBottom().Render("Your MBTI type"), v.Raw}
	if v.Code != "" {
		detail := v.Code
		if v.Nickname != "" {
			detail += " (" + v.Nickname + ")"
		}
		if v.Description != "" {
			detail += ": " + v.Description
		}
		body = append(body, hintStyle.Render(detail))
	}
	return verdictStyle.Render(strings.Join(body, "\n"))
}
