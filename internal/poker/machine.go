package poker

import (
	"time"
)

type Audience int

const (
	ToSender Audience = iota
	ToOthers
	ToRoom
)

type Effect struct {
	Audience Audience
	Message  Message
}

type Result string

const (
	ResultApplied  Result = "applied"
	ResultIgnored  Result = "ignored"
	ResultRejected Result = "rejected"
)

// Outcome is everything a command decided: the next document, whether it must
// be written, and the messages to deliver once the write succeeded.
type Outcome struct {
	Room    *Room
	Persist bool
	Result  Result
	Effects []Effect
}

func ignored(r *Room) Outcome {
	return Outcome{Room: r, Result: ResultIgnored}
}

func applied(r *Room, effects ...Effect) Outcome {
	return Outcome{Room: r, Persist: true, Result: ResultApplied, Effects: effects}
}

func toSender(m Message) Effect { return Effect{Audience: ToSender, Message: m} }
func toOthers(m Message) Effect { return Effect{Audience: ToOthers, Message: m} }
func toRoom(m Message) Effect   { return Effect{Audience: ToRoom, Message: m} }

// Apply runs one client command against the loaded room. r may be nil when
// the room does not exist. r itself is never modified.
func Apply(r *Room, cmd Command, connID string, now time.Time) Outcome {
	switch cmd.Type {
	case TypeJoinRoom:
		return Join(r, cmd.Name, connID)
	case TypeStartRound:
		return StartRound(r, now)
	case TypeUserVoted:
		return CastVote(r, cmd.Name, cmd.Vote)
	case TypeRevealVotes:
		if cmd.dueAt != nil {
			return ExpireTimer(r, *cmd.dueAt)
		}
		return RevealVotes(r)
	case TypeNewRound:
		return NewRound(r)
	case TypeUpdateSettings:
		return UpdateSettings(r, cmd.OwnerName, cmd.VotingPreset, cmd.TimerDuration, cmd.AutoReveal)
	}
	return ignored(r)
}

// Join binds a connection to a name: the owner's reserved slot, a
// reconnection to a dropped name, or a brand-new participant.
func Join(r *Room, name, connID string) Outcome {
	if r == nil {
		return Outcome{Result: ResultRejected, Effects: []Effect{toSender(roomErrorMsg())}}
	}
	next := r.Clone()
	p := next.participant(name)
	switch {
	case p != nil && p.Presence == PresenceReserved && name == next.Owner:
		p.bind(connID)
	case p != nil && p.Live():
		return Outcome{Room: r, Result: ResultRejected, Effects: []Effect{toSender(nameErrorMsg(name))}}
	case p != nil && p.Presence == PresenceDisconnected:
		p.bind(connID)
	default:
		if p == nil {
			next.Participants = append(next.Participants, Participant{Name: name, Presence: PresenceConnected, ConnectionID: connID})
			next.Votes = append(next.Votes, Vote{Name: name})
		}
	}
	// One connection holds at most one name.
	next.releaseConn(connID, name)
	effects := []Effect{toSender(initialStateMsg(next)), toOthers(participantsMsg(next))}
	if next.State == StateRevealed {
		effects = append(effects, toRoom(votesRevealedMsg(next)))
	}
	return applied(next, effects...)
}

// StartRound moves lobby to voting. Any other state ignores it.
func StartRound(r *Room, now time.Time) Outcome {
	if r == nil || r.State != StateLobby {
		return ignored(r)
	}
	next := r.Clone()
	next.State = StateVoting
	next.TimerEnd = nil
	if next.TimerDuration > 0 && ValidTimer(next.TimerDuration) {
		end := now.UTC().Add(time.Duration(next.TimerDuration) * time.Second)
		next.TimerEnd = &end
	}
	return applied(next, toRoom(roundStartedMsg(next)))
}

func CastVote(r *Room, name string, value *Estimate) Outcome {
	if r == nil || r.State != StateVoting {
		return ignored(r)
	}
	next := r.Clone()
	p := next.participant(name)
	if p == nil {
		return ignored(r)
	}
	p.HasVoted = true
	if v := next.vote(name); v != nil {
		v.Vote = value.clone()
	} else {
		next.Votes = append(next.Votes, Vote{Name: name, Vote: value.clone()})
	}
	return applied(next, toRoom(participantsMsg(next)))
}

func RevealVotes(r *Room) Outcome {
	if r == nil || r.State != StateVoting {
		return ignored(r)
	}
	next := r.Clone()
	next.State = StateRevealed
	next.TimerEnd = nil
	return applied(next, toRoom(votesRevealedMsg(next)), toRoom(roomStateMsg(next)))
}

// ExpireTimer reveals a round whose timer ran out. A timer from an earlier
// round no longer matches TimerEnd and does nothing.
func ExpireTimer(r *Room, due time.Time) Outcome {
	if r == nil || r.State != StateVoting || r.TimerEnd == nil || !r.TimerEnd.Equal(due) {
		return ignored(r)
	}
	return RevealVotes(r)
}

func NewRound(r *Room) Outcome {
	if r == nil || r.State != StateRevealed {
		return ignored(r)
	}
	next := r.Clone()
	next.State = StateLobby
	next.TimerEnd = nil
	for i := range next.Participants {
		next.Participants[i].HasVoted = false
	}
	for i := range next.Votes {
		next.Votes[i].Vote = nil
	}
	return applied(next, toRoom(newRoundStartedMsg(next)), toRoom(roomStateMsg(next)))
}

// UpdateSettings changes the rules between rounds. Non-owners, a running
// round and invalid values are all ignored without telling the caller.
func UpdateSettings(r *Room, requester string, preset Preset, timerDuration int, autoReveal bool) Outcome {
	if r == nil || requester != r.Owner || r.State == StateVoting {
		return ignored(r)
	}
	if !preset.Valid() || !ValidTimer(timerDuration) {
		return ignored(r)
	}
	next := r.Clone()
	next.VotingPreset = preset
	next.TimerDuration = timerDuration
	next.AutoReveal = autoReveal
	return applied(next, toRoom(settingsUpdatedMsg(next)))
}

// Disconnect frees the names held by connID. The participant rows stay so the
// same names can reconnect later.
func Disconnect(r *Room, connID string) Outcome {
	if r == nil {
		return ignored(r)
	}
	next := r.Clone()
	if !next.releaseConn(connID, "") {
		return ignored(r)
	}
	return applied(next, toRoom(participantsMsg(next)))
}
