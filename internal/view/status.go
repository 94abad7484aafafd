package view

import "github.com/rickgao/market-stream/internal/model"

var statusByPhase = map[model.Phase]model.Status{
	model.PhaseIdle:                   model.StatusConnecting,
	model.PhaseConnectingAggregate:    model.StatusConnecting,
	model.PhaseAwaitingMarketSnapshot: model.StatusConnecting,
	model.PhaseClosingAggregate:       model.StatusConnecting,
	model.PhaseConnectingDetail:       model.StatusConnecting,
	model.PhaseDetailOpen:             model.StatusOpen,
	model.PhaseAggregateError:         model.StatusError,
	model.PhaseDetailError:            model.StatusError,
	model.PhaseAggregateClosed:        model.StatusClosed,
	model.PhaseDetailClosed:           model.StatusClosed,
	model.PhaseTornDown:               model.StatusClosed,
	model.PhaseNotFound:               model.StatusNotFound,

	model.PhaseChatIdle:       model.StatusConnecting,
	model.PhaseChatResolving:  model.StatusConnecting,
	model.PhaseChatConnecting: model.StatusConnecting,
	model.PhaseChatOpen:       model.StatusOpen,
	model.PhaseChatError:      model.StatusError,
	model.PhaseChatClosed:     model.StatusClosed,

	model.PhaseListConnecting:   model.StatusConnecting,
	model.PhaseListOpen:         model.StatusOpen,
	model.PhaseListError:        model.StatusError,
	model.PhaseListClosed:       model.StatusClosed,
	model.PhaseListReconnecting: model.StatusReconnecting,
}

var statusLabels = map[model.Status]string{
	model.StatusConnecting:   "Connecting...",
	model.StatusOpen:         "Connected",
	model.StatusError:        "Connection error",
	model.StatusClosed:       "Disconnected",
	model.StatusReconnecting: "Reconnecting...",
	model.StatusNotFound:     "Symbol not found",
}

// StatusFor collapses a manager phase into the viewer status enumeration.
// Unknown phases read as connecting.
func StatusFor(phase model.Phase) model.Status {
	if s, ok := statusByPhase[phase]; ok {
		return s
	}
	return model.StatusConnecting
}

// StatusLabel is the human-readable chip text for s.
func StatusLabel(s model.Status) string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// Chip is a projected connection status.
type Chip struct {
	Status model.Status `json:"status"`
	Label  string       `json:"label"`
}

// ChipFor projects phase into a Chip.
func ChipFor(phase model.Phase) Chip {
	s := StatusFor(phase)
	return Chip{Status: s, Label: StatusLabel(s)}
}
