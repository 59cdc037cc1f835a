package game

type MessageType string

const (
	MsgGameState   MessageType = "GameState"
	MsgCountdown   MessageType = "Countdown"
	MsgNewRound    MessageType = "NewRound"
	MsgUpdateImage MessageType = "UpdateImage"
	MsgGuessResult MessageType = "GuessResult"
	MsgRoundOver   MessageType = "RoundOver"
	MsgGameOver    MessageType = "GameOver"
	MsgError       MessageType = "Error"
	MsgFeedTarget  MessageType = "FeedTarget"
)

// Message is the server -> client envelope. Only the fields matching Type are set.
type Message struct {
	Type        MessageType        `json:"type"`
	State       *Snapshot          `json:"state,omitempty"`
	Duration    int                `json:"duration,omitempty"`
	Target      *GameObject        `json:"target,omitempty"`
	ZoomLevel   *float64           `json:"zoom_level,omitempty"`
	Correct     *bool              `json:"correct,omitempty"`
	Scores      map[string]float64 `json:"scores,omitempty"`
	Leaderboard []Standing         `json:"leaderboard,omitempty"`
	Error       string             `json:"error,omitempty"`
}

type ClientMessageType string

const (
	ClientStartGame   ClientMessageType = "StartGame"
	ClientSubmitGuess ClientMessageType = "SubmitGuess"
)

// ClientMessage is the client -> server envelope.
type ClientMessage struct {
	Type     ClientMessageType `json:"type"`
	ImageB64 string            `json:"image_b64,omitempty"`
}

func stateMessage(s Snapshot) Message {
	return Message{Type: MsgGameState, State: &s}
}

func guessResultMessage(correct bool) Message {
	return Message{Type: MsgGuessResult, Correct: &correct}
}

func zoomMessage(level float64) Message {
	return Message{Type: MsgUpdateImage, ZoomLevel: &level}
}

func errorMessage(code string) Message {
	return Message{Type: MsgError, Error: code}
}

func FeedTargetMessage(target GameObject) Message {
	return Message{Type: MsgFeedTarget, Target: &target}
}
