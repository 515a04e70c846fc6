package services

import (
	"time"

	"github.com/ZAPHODh/ws-guess-server/internal/models"
)

// Event is one of the fixed set of messages the engine publishes. The wire
// name is EventType; the struct is the payload.
type Event interface {
	EventType() string
}

const (
	EventParticipantJoined = "participant_joined"
	EventParticipantLeft   = "participant_left"
	EventReadyChanged      = "ready_changed"
	EventSessionUpdated    = "session_updated"
	EventGameStarting      = "game_starting"
	EventGameStarted       = "game_started"
	EventRoundStarted      = "round_started"
	EventHintAvailable     = "hint_available"
	EventRoundEnded        = "round_ended"
	EventGameEnded         = "game_ended"
	EventSessionRestarted  = "session_restarted"
	EventHostChanged       = "host_changed"
	EventError             = "error"
	EventSessionJoined     = "session_joined"
	EventSessionFinished   = "session_finished"
	EventGuessSubmitted    = "guess_submitted"
	EventChatMessage       = "chat_message"
	EventReactionAdded     = "reaction_added"
)

type ItemRef struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	MediaURL    string `json:"media_url"`
	Description string `json:"description,omitempty"`
}

func itemRef(item *models.Item) ItemRef {
	if item == nil {
		return ItemRef{}
	}
	return ItemRef{ID: item.ID, Title: item.Title, MediaURL: item.MediaURL, Description: item.Description}
}

type GuessResult struct {
	ParticipantID string `json:"participant_id"`
	DisplayName   string `json:"display_name"`
	Value         int    `json:"value"`
	Points        int    `json:"points"`
	SpeedBonus    int    `json:"speed_bonus"`
	Accuracy      int    `json:"accuracy"`
	HintsUsed     int    `json:"hints_used"`
}

type ParticipantJoined struct {
	Participant models.Participant `json:"participant"`
}

type ParticipantLeft struct {
	ParticipantID string `json:"participant_id"`
	DisplayName   string `json:"display_name"`
	Reason        string `json:"reason"`
}

type ReadyChanged struct {
	ParticipantID string `json:"participant_id"`
	IsReady       bool   `json:"is_ready"`
}

type SessionUpdated struct {
	Settings Settings `json:"settings"`
	Status   string   `json:"status"`
}

type GameStarting struct {
	Countdown int `json:"countdown"`
}

type GameStarted struct {
	Mode        string `json:"mode"`
	TotalRounds int    `json:"total_rounds"`
	StartsIn    int    `json:"starts_in"`
}

type RoundStarted struct {
	RoundNumber  int       `json:"round_number"`
	Item         ItemRef   `json:"item"`
	TimeBudget   int       `json:"time_budget"`
	HintsEnabled bool      `json:"hints_enabled"`
	EndsAt       time.Time `json:"ends_at"`
}

type HintAvailable struct {
	RoundNumber int    `json:"round_number"`
	Hint        string `json:"hint"`
}

type RoundEnded struct {
	RoundNumber        int                `json:"round_number"`
	CorrectValue       int                `json:"correct_value"`
	Guesses            []GuessResult      `json:"guesses"`
	Leaderboard        []LeaderboardEntry `json:"leaderboard"`
	Eliminated         string             `json:"eliminated,omitempty"`
	NextRoundCountdown *int               `json:"next_round_countdown"`
}

type GameEnded struct {
	FinalLeaderboard []LeaderboardEntry `json:"final_leaderboard"`
	Winner           *LeaderboardEntry  `json:"winner,omitempty"`
}

type SessionRestarted struct {
	Session Snapshot `json:"session"`
}

type HostChanged struct {
	HostParticipantID string `json:"host_participant_id"`
	DisplayName       string `json:"display_name"`
}

type ErrorEvent struct {
	Message string `json:"message"`
	Code    Code   `json:"code,omitempty"`
}

type SessionJoined struct {
	ParticipantID string               `json:"participant_id"`
	Session       Snapshot             `json:"session"`
	Messages      []models.ChatMessage `json:"messages"`
}

type SessionFinished struct {
	Reason string `json:"reason"`
}

type GuessSubmitted struct {
	RoundNumber int `json:"round_number"`
	Value       int `json:"value"`
}

type ChatMessagePosted struct {
	Message models.ChatMessage `json:"message"`
}

type ReactionAdded struct {
	Reaction models.Reaction `json:"reaction"`
}

func (ParticipantJoined) EventType() string { return EventParticipantJoined }
func (ParticipantLeft) EventType() string   { return EventParticipantLeft }
func (ReadyChanged) EventType() string      { return EventReadyChanged }
func (SessionUpdated) EventType() string    { return EventSessionUpdated }
func (GameStarting) EventType() string      { return EventGameStarting }
func (GameStarted) EventType() string       { return EventGameStarted }
func (RoundStarted) EventType() string      { return EventRoundStarted }
func (HintAvailable) EventType() string     { return EventHintAvailable }
func (RoundEnded) EventType() string        { return EventRoundEnded }
func (GameEnded) EventType() string         { return EventGameEnded }
func (SessionRestarted) EventType() string  { return EventSessionRestarted }
func (HostChanged) EventType() string       { return EventHostChanged }
func (ErrorEvent) EventType() string        { return EventError }
func (SessionJoined) EventType() string     { return EventSessionJoined }
func (SessionFinished) EventType() string   { return EventSessionFinished }
func (GuessSubmitted) EventType() string    { return EventGuessSubmitted }
func (ChatMessagePosted) EventType() string { return EventChatMessage }
func (ReactionAdded) EventType() string     { return EventReactionAdded }

// Publisher delivers events to the connections attached to a session.
type Publisher interface {
	Publish(sessionID string, event Event)
	SendTo(sessionID, participantID string, event Event)
	Detach(sessionID, participantID string)
}

// ErrorEventFor builds the directed error notification for err.
func ErrorEventFor(err error) ErrorEvent {
	return ErrorEvent{Message: MessageOf(err), Code: CodeOf(err)}
}
