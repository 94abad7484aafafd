package view

import (
	"time"

	"github.com/rickgao/market-stream/internal/chat"
	"github.com/rickgao/market-stream/internal/model"
)

// ChatTimeLayout formats transcript timestamps.
const ChatTimeLayout = "15:04"

// ChatLine is one rendered transcript entry.
type ChatLine struct {
	Kind   model.ChatEventKind `json:"kind"`
	Author string              `json:"author"`
	Body   string              `json:"body"`
	Time   string              `json:"time"`
	System bool                `json:"system"`
	Own    bool                `json:"own"`
	Failed bool                `json:"failed"`
}

// DetailView is the projected single-symbol view.
type DetailView struct {
	Symbol     string              `json:"symbol"`
	Kind       model.Kind          `json:"kind,omitempty"`
	Status     Chip                `json:"status"`
	ChatStatus Chip                `json:"chat_status"`
	Quote      *Card               `json:"quote,omitempty"`
	Chart      []model.SeriesPoint `json:"chart"`
	Transcript []ChatLine          `json:"transcript"`
	Viewer     string              `json:"viewer,omitempty"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// Detail projects a single-symbol view with the default formatter.
func Detail(st model.SymbolState, loc *time.Location) DetailView {
	return defaultFormatter.Detail(st, loc)
}

// Detail projects st. Transcript times are rendered in loc (UTC when nil).
// Quote stays nil until the series has at least one point.
func (f *Formatter) Detail(st model.SymbolState, loc *time.Location) DetailView {
	v := DetailView{
		Symbol:     st.Symbol,
		Kind:       st.Kind,
		Status:     ChipFor(st.Phase),
		ChatStatus: ChipFor(st.ChatPhase),
		Chart:      []model.SeriesPoint{},
		Transcript: Transcript(st.Transcript, loc),
		Viewer:     st.Identity.Nickname,
		UpdatedAt:  st.UpdatedAt,
	}
	if st.Series != nil && len(st.Series.Points) > 0 {
		c := f.Card(*st.Series)
		v.Quote = &c
		v.Chart = c.Points
	}
	return v
}

// Transcript renders events oldest first.
func Transcript(events []model.ChatEvent, loc *time.Location) []ChatLine {
	if loc == nil {
		loc = time.UTC
	}
	lines := make([]ChatLine, 0, len(events))
	for _, e := range events {
		lines = append(lines, ChatLine{
			Kind:   e.Kind,
			Author: authorOf(e),
			Body:   e.Body,
			Time:   e.SentAt.In(loc).Format(ChatTimeLayout),
			System: e.IsSystem() && !e.Failed,
			Own:    e.Own,
			Failed: e.Failed,
		})
	}
	return lines
}

func authorOf(e model.ChatEvent) string {
	switch {
	case e.Failed:
		return chat.LocalAuthor
	case e.IsSystem():
		return chat.SystemAuthor
	case e.AuthorName != "":
		return e.AuthorName
	default:
		return e.AuthorID
	}
}
