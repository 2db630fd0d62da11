package standup

import (
	"fmt"
	"strings"
	"time"
)

// Message texts. Formatting beyond plain text is left to the transport.
const (
	PromptText      = "👋 Good morning! Time for your daily standup update.\nTap the button below to submit your update."
	PromptButton    = "📝 Submit Daily Update"
	AckText         = "✅ Your daily update has been submitted and posted to the notifications channel!"
	UnknownUserName = "Unknown User"
)

// RenderRoot is the text of a day's thread root.
func RenderRoot(dateKey string) string {
	d, err := time.Parse("2006-01-02", dateKey)
	if err != nil {
		return "Daily Standup Updates - " + dateKey
	}
	return fmt.Sprintf("Update, %s\nFind all reports for Update, %s in the thread. 🧵",
		d.Format("Jan 2"), d.Format("Jan 2, 2006"))
}

// RenderUpdate is the text of a thread reply for one submission.
func RenderUpdate(name string, u DailyUpdate) string {
	if strings.TrimSpace(name) == "" {
		name = UnknownUserName
	}
	var b strings.Builder
	b.WriteString(name)
	b.WriteString("\n\nYesterday:\n")
	b.WriteString(u.Yesterday)
	b.WriteString("\n\nToday:\n")
	b.WriteString(u.Today)
	b.WriteString("\n\nBlockers:\n")
	b.WriteString(u.Blockers)
	b.WriteString("\n\nSubmitted at ")
	b.WriteString(u.SubmittedAt.Format("Jan 2, 2006, 3:04 PM"))
	return b.String()
}
