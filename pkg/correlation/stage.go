package correlation

import "strings"

// Stage names one lifecycle event of a multi-slot call.
type Stage string

const (
	StageOpen           Stage = "open"
	StageClose          Stage = "close"
	StageStartPlayback  Stage = "start_playback"
	StageFinishPlayback Stage = "finish_playback"
	StageExit           Stage = "exit"
	// StageGoBack appears on the wire but no call registers it.
	StageGoBack Stage = "goback"
	// StageUnknown is what ParseStage returns for values outside the vocabulary.
	StageUnknown Stage = ""
)

// ViewStages are the stages of a promotional view.
var ViewStages = []Stage{StageOpen, StageClose, StageStartPlayback, StageFinishPlayback}

// ExitStages are the stages of the exit dialog.
var ExitStages = []Stage{StageOpen, StageClose, StageExit}

var wireStages = map[string]Stage{
	"OPEN":            StageOpen,
	"CLOSE":           StageClose,
	"START_PLAYBACK":  StageStartPlayback,
	"FINISH_PLAYBACK": StageFinishPlayback,
	"EXIT":            StageExit,
	"GOBACK":          StageGoBack,
}

// ParseStage maps a wire event type to a Stage, ignoring case.
func ParseStage(wire string) Stage {
	if s, ok := wireStages[strings.ToUpper(strings.TrimSpace(wire))]; ok {
		return s
	}
	return StageUnknown
}

// Wire returns the upper-case wire form of the stage.
func (s Stage) Wire() string {
	return strings.ToUpper(string(s))
}

func (s Stage) String() string {
	if s == StageUnknown {
		return "unknown"
	}
	return string(s)
}
