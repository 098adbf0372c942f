package poker

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Inbound message types.
const (
	TypeJoinRoom       = "join_room"
	TypeStartRound     = "start_round"
	TypeUserVoted      = "user_voted"
	TypeRevealVotes    = "reveal_votes"
	TypeNewRound       = "new_round"
	TypeUpdateSettings = "update_room_settings"
)

// Outbound message types.
const (
	TypeInitialState        = "initial_state"
	TypeUpdateParticipants  = "update_participants"
	TypeVotesRevealed       = "votes_revealed"
	TypeRoomSettings        = "room_settings"
	TypeRoomSettingsUpdated = "room_settings_updated"
	TypeRoundStarted        = "round_started"
	TypeNewRoundStarted     = "new_round_started"
	TypeRoomError           = "room_error"
	TypeNameError           = "name_error"
)

var ErrMalformed = errors.New("malformed message")

// Command is a decoded inbound envelope. Only the fields its Type uses are set.
type Command struct {
	Type          string    `json:"type"`
	Name          string    `json:"name,omitempty"`
	Vote          *Estimate `json:"vote,omitempty"`
	VotingPreset  Preset    `json:"votingPreset,omitempty"`
	TimerDuration int       `json:"timerDuration,omitempty"`
	AutoReveal    bool      `json:"autoReveal,omitempty"`
	OwnerName     string    `json:"ownerName,omitempty"`

	// set by the manager for timer-driven reveals, never decoded from clients
	dueAt *time.Time
}

// ParseCommand decodes one client message. Any error wraps ErrMalformed.
func ParseCommand(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch cmd.Type {
	case TypeJoinRoom:
		if strings.TrimSpace(cmd.Name) == "" {
			return Command{}, fmt.Errorf("%w: join_room without name", ErrMalformed)
		}
	case TypeUserVoted:
		if cmd.Name == "" {
			return Command{}, fmt.Errorf("%w: user_voted without name", ErrMalformed)
		}
	case TypeStartRound, TypeRevealVotes, TypeNewRound, TypeUpdateSettings:
	case "":
		return Command{}, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return Command{}, fmt.Errorf("%w: unknown type %q", ErrMalformed, cmd.Type)
	}
	return cmd, nil
}

// Message is an outbound envelope.
type Message map[string]any

func (m Message) Type() string {
	t, _ := m["type"].(string)
	return t
}

func initialStateMsg(r *Room) Message {
	return Message{"type": TypeInitialState, "settings": r.Settings(), "participants": r.ParticipantViews()}
}

func participantsMsg(r *Room) Message {
	return Message{"type": TypeUpdateParticipants, "participants": r.ParticipantViews()}
}

func votesRevealedMsg(r *Room) Message {
	return Message{"type": TypeVotesRevealed, "votes": r.RevealedVotes()}
}

func roomStateMsg(r *Room) Message {
	return Message{"type": TypeRoomSettings, "state": r.State}
}

func roundStartedMsg(r *Room) Message {
	m := Message{"type": TypeRoundStarted, "state": r.State}
	if r.TimerEnd != nil {
		m["timerEnd"] = *r.TimerEnd
	}
	return m
}

func newRoundStartedMsg(r *Room) Message {
	return Message{"type": TypeNewRoundStarted, "participants": r.ParticipantViews()}
}

func settingsUpdatedMsg(r *Room) Message {
	return Message{"type": TypeRoomSettingsUpdated, "settings": r.Settings()}
}

func roomErrorMsg() Message {
	return Message{"type": TypeRoomError, "error": "Room not found. It may have expired."}
}

func nameErrorMsg(name string) Message {
	return Message{"type": TypeNameError, "error": fmt.Sprintf("The name %q is already taken in this room. Please choose another.", name)}
}
