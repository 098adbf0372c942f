package poker

import (
	"time"
)

type State string

const (
	StateLobby    State = "lobby"
	StateVoting   State = "voting"
	StateRevealed State = "revealed"
)

// Presence distinguishes an owner slot that has never been claimed from a
// participant that connected once and dropped.
type Presence string

const (
	PresenceReserved     Presence = "reserved"
	PresenceConnected    Presence = "connected"
	PresenceDisconnected Presence = "disconnected"
)

type Participant struct {
	Name         string   `json:"name"`
	HasVoted     bool     `json:"hasVoted"`
	Presence     Presence `json:"presence"`
	ConnectionID string   `json:"connectionId,omitempty"`
}

// Live reports whether a connection currently holds this name.
func (p *Participant) Live() bool {
	return p.Presence == PresenceConnected && p.ConnectionID != ""
}

func (p *Participant) bind(connID string) {
	p.Presence = PresenceConnected
	p.ConnectionID = connID
}

func (p *Participant) release() {
	p.Presence = PresenceDisconnected
	p.ConnectionID = ""
}

type Vote struct {
	Name string    `json:"name"`
	Vote *Estimate `json:"vote"`
}

// Room is the stored document. One room is the whole unit of consistency.
type Room struct {
	ID            string        `json:"id"`
	Owner         string        `json:"owner"`
	VotingPreset  Preset        `json:"votingPreset"`
	TimerDuration int           `json:"timerDuration"` // seconds, 0 = no timer
	AutoReveal    bool          `json:"autoReveal"`
	State         State         `json:"state"`
	Participants  []Participant `json:"participants"`
	Votes         []Vote        `json:"votes"`
	TimerEnd      *time.Time    `json:"timerEnd,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// Settings is the owner-controlled part of a room as clients see it.
type Settings struct {
	Owner         string     `json:"owner"`
	VotingPreset  Preset     `json:"votingPreset"`
	TimerDuration int        `json:"timerDuration"`
	AutoReveal    bool       `json:"autoReveal"`
	State         State      `json:"state"`
	TimerEnd      *time.Time `json:"timerEnd,omitempty"`
}

// ParticipantView is what clients receive; connection ids stay server-side.
type ParticipantView struct {
	Name     string `json:"name"`
	HasVoted bool   `json:"hasVoted"`
	Online   bool   `json:"online"`
}

type Summary struct {
	Owner            string `json:"owner"`
	ParticipantCount int    `json:"participantCount"`
}

// NewRoom builds the document a room starts with: the owner's slot is
// reserved until their first connection joins under that name.
func NewRoom(id, owner string, preset Preset, timerDuration int, autoReveal bool, now time.Time) *Room {
	return &Room{
		ID:            id,
		Owner:         owner,
		VotingPreset:  preset,
		TimerDuration: timerDuration,
		AutoReveal:    autoReveal,
		State:         StateLobby,
		Participants:  []Participant{{Name: owner, Presence: PresenceReserved}},
		Votes:         []Vote{{Name: owner}},
		CreatedAt:     now.UTC(),
	}
}

func (r *Room) Settings() Settings {
	return Settings{
		Owner:         r.Owner,
		VotingPreset:  r.VotingPreset,
		TimerDuration: r.TimerDuration,
		AutoReveal:    r.AutoReveal,
		State:         r.State,
		TimerEnd:      r.TimerEnd,
	}
}

func (r *Room) ParticipantViews() []ParticipantView {
	out := make([]ParticipantView, 0, len(r.Participants))
	for _, p := range r.Participants {
		out = append(out, ParticipantView{Name: p.Name, HasVoted: p.HasVoted, Online: p.Live()})
	}
	return out
}

// RevealedVotes returns only the votes that carry a value.
func (r *Room) RevealedVotes() []Vote {
	out := make([]Vote, 0, len(r.Votes))
	for _, v := range r.Votes {
		if v.Vote != nil {
			out = append(out, Vote{Name: v.Name, Vote: v.Vote})
		}
	}
	return out
}

func (r *Room) Summary() Summary {
	return Summary{Owner: r.Owner, ParticipantCount: len(r.Participants)}
}

func (r *Room) participant(name string) *Participant {
	for i := range r.Participants {
		if r.Participants[i].Name == name {
			return &r.Participants[i]
		}
	}
	return nil
}

// releaseConn frees every name held by connID other than keep and reports
// whether any row changed.
func (r *Room) releaseConn(connID, keep string) bool {
	if connID == "" {
		return false
	}
	changed := false
	for i := range r.Participants {
		p := &r.Participants[i]
		if p.Name != keep && p.Live() && p.ConnectionID == connID {
			p.release()
			changed = true
		}
	}
	return changed
}

func (r *Room) vote(name string) *Vote {
	for i := range r.Votes {
		if r.Votes[i].Name == name {
			return &r.Votes[i]
		}
	}
	return nil
}

// Clone returns a deep copy so commands never mutate the document they were handed.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	c := *r
	c.Participants = append([]Participant(nil), r.Participants...)
	c.Votes = make([]Vote, len(r.Votes))
	for i, v := range r.Votes {
		c.Votes[i] = Vote{Name: v.Name, Vote: v.Vote.clone()}
	}
	if r.TimerEnd != nil {
		end := *r.TimerEnd
		c.TimerEnd = &end
	}
	return &c
}
