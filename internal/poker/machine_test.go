package poker

import (
	"fmt"
	"testing"
	"time"
)

var t0 = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func newTestRoom() *Room {
	return NewRoom("ROOM42", "Alice", PresetFibonacci, 0, false, t0)
}

// mustJoin joins name on connID and fails the test unless the join was applied.
func mustJoin(t *testing.T, r *Room, name, connID string) *Room {
	t.Helper()
	out := Join(r, name, connID)
	if out.Result != ResultApplied {
		t.Fatalf("join %s: expected applied, got %s", name, out.Result)
	}
	return out.Room
}

func effectTypes(effects []Effect) []string {
	out := make([]string, 0, len(effects))
	for _, e := range effects {
		out = append(out, e.Message.Type())
	}
	return out
}

func participantViews(t *testing.T, m Message) []ParticipantView {
	t.Helper()
	ps, ok := m["participants"].([]ParticipantView)
	if !ok {
		t.Fatalf("message %s has no participants", m.Type())
	}
	return ps
}

func TestNewRoom(t *testing.T) {
	r := newTestRoom()
	if r.State != StateLobby {
		t.Fatalf("expected state %s, got %s", StateLobby, r.State)
	}
	if len(r.Participants) != 1 || len(r.Votes) != 1 {
		t.Fatalf("expected one participant and one vote, got %d/%d", len(r.Participants), len(r.Votes))
	}
	p := r.Participants[0]
	if p.Name != "Alice" || p.Presence != PresenceReserved || p.ConnectionID != "" {
		t.Fatalf("unexpected owner slot %+v", p)
	}
	if p.Live() {
		t.Fatal("reserved slot should not count as live")
	}
	if r.Votes[0].Name != "Alice" || r.Votes[0].Vote != nil {
		t.Fatalf("unexpected owner vote %+v", r.Votes[0])
	}
}

func TestJoin_RoomNotFound(t *testing.T) {
	out := Join(nil, "Bob", "c1")
	if out.Persist {
		t.Fatal("missing room must not be written")
	}
	if out.Result != ResultRejected {
		t.Fatalf("expected rejected, got %s", out.Result)
	}
	if len(out.Effects) != 1 || out.Effects[0].Audience != ToSender || out.Effects[0].Message.Type() != TypeRoomError {
		t.Fatalf("expected a room_error to the sender, got %v", effectTypes(out.Effects))
	}
}

func TestJoin_OwnerClaimsReservedSlot(t *testing.T) {
	out := Join(newTestRoom(), "Alice", "c-alice")
	if !out.Persist {
		t.Fatal("owner join should be persisted")
	}
	p := out.Room.participant("Alice")
	if p.Presence != PresenceConnected || p.ConnectionID != "c-alice" {
		t.Fatalf("owner slot not bound: %+v", p)
	}
	if len(out.Room.Participants) != 1 {
		t.Fatalf("owner join must not add rows, got %d", len(out.Room.Participants))
	}
	got := effectTypes(out.Effects)
	if len(got) != 2 || got[0] != TypeInitialState || got[1] != TypeUpdateParticipants {
		t.Fatalf("unexpected effects %v", got)
	}
	if out.Effects[0].Audience != ToSender || out.Effects[1].Audience != ToOthers {
		t.Fatal("initial_state goes to the sender, the participant list to everyone else")
	}
	settings, ok := out.Effects[0].Message["settings"].(Settings)
	if !ok {
		t.Fatal("initial_state should carry settings")
	}
	if settings.Owner != "Alice" || settings.VotingPreset != PresetFibonacci || settings.State != StateLobby {
		t.Fatalf("unexpected settings %+v", settings)
	}
}

func TestJoin_NewParticipant(t *testing.T) {
	r := mustJoin(t, newTestRoom(), "Alice", "c-alice")
	out := Join(r, "Bob", "c-bob")

	if len(out.Room.Participants) != 2 || len(out.Room.Votes) != 2 {
		t.Fatalf("expected 2 participants and 2 votes, got %d/%d", len(out.Room.Participants), len(out.Room.Votes))
	}
	bob := out.Room.participant("Bob")
	if bob == nil || bob.HasVoted || bob.ConnectionID != "c-bob" {
		t.Fatalf("unexpected Bob row %+v", bob)
	}
	if v := out.Room.vote("Bob"); v == nil || v.Vote != nil {
		t.Fatalf("Bob should have a null vote, got %+v", v)
	}
	views := participantViews(t, out.Effects[1].Message)
	if len(views) != 2 {
		t.Fatalf("broadcast should list 2 participants, got %d", len(views))
	}
	for _, v := range views {
		if v.HasVoted {
			t.Fatalf("%s should not have voted yet", v.Name)
		}
	}
}

func TestJoin_NameCollision(t *testing.T) {
	r := mustJoin(t, newTestRoom(), "Carol", "c1")
	out := Join(r, "Carol", "c2")

	if out.Persist {
		t.Fatal("collision must not be written")
	}
	if out.Result != ResultRejected {
		t.Fatalf("expected rejected, got %s", out.Result)
	}
	if len(out.Effects) != 1 || out.Effects[0].Message.Type() != TypeNameError || out.Effects[0].Audience != ToSender {
		t.Fatalf("expected name_error to the sender, got %v", effectTypes(out.Effects))
	}
	if p := out.Room.participant("Carol"); p.ConnectionID != "c1" {
		t.Fatalf("first connection lost its name: %+v", p)
	}
}

func TestJoin_NamesAreCaseSensitive(t *testing.T) {
	r := mustJoin(t, newTestRoom(), "carol", "c1")
	r = mustJoin(t, r, "Carol", "c2")
	if len(r.Participants) != 3 {
		t.Fatalf("expected carol and Carol to be distinct, got %d participants", len(r.Participants))
	}
}

func TestJoin_ReconnectReusesRow(t *testing.T) {
	r := mustJoin(t, newTestRoom(), "Bob", "c1")
	r = StartRound(r, t0).Room
	r = CastVote(r, "Bob", Number(8)).Room

	d := Disconnect(r, "c1")
	if !d.Persist {
		t.Fatal("disconnect of a bound connection should be written")
	}
	r = d.Room
	bob := r.participant("Bob")
	if bob == nil || bob.Presence != PresenceDisconnected || bob.ConnectionID != "" {
		t.Fatalf("disconnect should keep the row and clear the connection: %+v", bob)
	}

	r = mustJoin(t, r, "Bob", "c2")
	if len(r.Participants) != 2 || len(r.Votes) != 2 {
		t.Fatalf("reconnect must not duplicate rows, got %d/%d", len(r.Participants), len(r.Votes))
	}
	bob = r.participant("Bob")
	if bob.ConnectionID != "c2" || !bob.HasVoted {
		t.Fatalf("reconnect should bind the new connection and keep the vote: %+v", bob)
	}
	if r.vote("Bob").Vote.String() != "8" {
		t.Fatalf("vote lost on reconnect: %v", r.vote("Bob").Vote)
	}
}

func TestJoin_SecondNameFreesTheFirst(t *testing.T) {
	r := mustJoin(t, newTestRoom(), "Bob", "c1")
	r = mustJoin(t, r, "Dave", "c1")

	if bob := r.participant("Bob"); bob.Presence != PresenceDisconnected || bob.ConnectionID != "" {
		t.Fatalf("switching names should free the old one: %+v", bob)
	}
	if dave := r.participant("Dave"); !dave.Live() || dave.ConnectionID != "c1" {
		t.Fatalf("new name should be bound: %+v", dave)
	}

	r = Disconnect(r, "c1").Room
	for _, p := range r.Participants {
		if p.Live() {
			t.Fatalf("%s still bound after its connection dropped", p.Name)
		}
	}
	r = mustJoin(t, r, "Dave", "c2")
	r = mustJoin(t, r, "Bob", "c3")
	if len(r.Participants) != 3 {
		t.Fatalf("reconnects must not add rows, got %d", len(r.Participants))
	}
}

func TestDisconnect_ReleasesEveryRowOfTheConnection(t *testing.T) {
	r := mustJoin(t, newTestRoom(), "Bob", "c1")
	// a document written before a connection was limited to one name
	r.Participants = append(r.Participants, Participant{Name: "Dave", Presence: PresenceConnected, ConnectionID: "c1"})
	r.Votes = append(r.Votes, Vote{Name: "Dave"})

	out := Disconnect(r, "c1")
	if out.Result != ResultApplied {
		t.Fatalf("expected applied, got %s", out.Result)
	}
	for _, name := range []string{"Bob", "Dave"} {
		if p := out.Room.participant(name); p.Presence != PresenceDisconnected {
			t.Fatalf("%s should be disconnected: %+v", name, p)
		}
	}
	if j := Join(out.Room, "Dave", "c2"); j.Result != ResultApplied {
		t.Fatalf("Dave should be able to reconnect, got %s %v", j.Result, effectTypes(j.Effects))
	}
}

func TestStartRound_IgnoresOutOfRangeTimer(t *testing.T) {
	r := newTestRoom()
	r.TimerDuration = 10_000_000_000
	out := StartRound(r, t0)
	if out.Result != ResultApplied {
		t.Fatalf("expected applied, got %s", out.Result)
	}
	if out.Room.TimerEnd != nil {
		t.Fatalf("out-of-range timer must not produce an end time, got %v", out.Room.TimerEnd)
	}
}

func TestJoin_RevealedRoomBroadcastsVotes(t *testing.T) {
	r := mustJoin(t, newTestRoom(), "Bob", "c1")
	r = StartRound(r, t0).Room
	r = CastVote(r, "Bob", Number(3)).Room
	r = RevealVotes(r).Room

	out := Join(r, "Dave", "c2")
	got := effectTypes(out.Effects)
	if len(got) != 3 || got[2] != TypeVotesRevealed {
		t.Fatalf("expected votes to follow the join in a revealed room, got %v", got)
	}
	if out.Effects[2].Audience != ToRoom {
		t.Fatal("revealed votes go to the whole room")
	}
}

func TestJoin_DistinctNamesEachGetOneRow(t *testing.T) {
	r := newTestRoom()
	names := []string{"Alice", "Bob", "Carol", "Dave", "Eve", "Bob", "Carol"}
	for i, name := range names {
		r = Join(r, name, fmt.Sprintf("c%d", i)).Room
	}
	seen := map[string]int{}
	for _, p := range r.Participants {
		seen[p.Name]++
	}
	if len(seen) != 5 {
		t.Fatalf("expected 5 distinct participants, got %v", seen)
	}
	for name, n := range seen {
		if n != 1 {
			t.Fatalf("%s appears %d times", name, n)
		}
		if r.vote(name) == nil {
			t.Fatalf("%s has no vote row", name)
		}
	}
	if len(r.Votes) != len(r.Participants) {
		t.Fatalf("votes %d != participants %d", len(r.Votes), len(r.Participants))
	}
}

func TestStartRound_OnlyFromLobby(t *testing.T) {
	r := newTestRoom()
	first := StartRound(r, t0)
	if first.Result != ResultApplied || first.Room.State != StateVoting {
		t.Fatalf("expected voting, got %s (%s)", first.Room.State, first.Result)
	}
	if got := effectTypes(first.Effects); len(got) != 1 || got[0] != TypeRoundStarted {
		t.Fatalf("unexpected effects %v", got)
	}

	second := StartRound(first.Room, t0)
	if second.Persist || second.Result != ResultIgnored || len(second.Effects) != 0 {
		t.Fatal("second start_round should be a silent no-op")
	}
	if second.Room.State != StateVoting {
		t.Fatalf("state should remain voting, got %s", second.Room.State)
	}
}

func TestStartRound_SetsTimer(t *testing.T) {
	r := NewRoom("R", "Alice", PresetFibonacci, 30, true, t0)
	out := StartRound(r, t0)
	if out.Room.TimerEnd == nil || !out.Room.TimerEnd.Equal(t0.Add(30*time.Second)) {
		t.Fatalf("expected timer end 30s after start, got %v", out.Room.TimerEnd)
	}
	if _, ok := out.Effects[0].Message["timerEnd"]; !ok {
		t.Fatal("round_started should carry timerEnd")
	}

	if StartRound(newTestRoom(), t0).Room.TimerEnd != nil {
		t.Fatal("rooms without a timer should not get a timer end")
	}
}

func TestCastVote(t *testing.T) {
	r := mustJoin(t, newTestRoom(), "Bob", "c1")

	if out := CastVote(r, "Bob", Number(5)); out.Result != ResultIgnored {
		t.Fatal("votes in the lobby should be ignored")
	}

	r = StartRound(r, t0).Room
	if out := CastVote(r, "Mallory", Number(5)); out.Result != ResultIgnored {
		t.Fatal("votes for unknown names should be ignored")
	}

	out := CastVote(r, "Bob", Number(5))
	if out.Result != ResultApplied {
		t.Fatalf("expected applied, got %s", out.Result)
	}
	if !out.Room.participant("Bob").HasVoted {
		t.Fatal("Bob should be marked as voted")
	}
	if out.Effects[0].Audience != ToRoom || out.Effects[0].Message.Type() != TypeUpdateParticipants {
		t.Fatalf("unexpected effects %v", effectTypes(out.Effects))
	}
	for _, v := range participantViews(t, out.Effects[0].Message) {
		if v.Name == "Bob" && !v.HasVoted {
			t.Fatal("broadcast should show Bob as voted")
		}
		if v.Name == "Alice" && v.HasVoted {
			t.Fatal("Alice has not voted")
		}
	}
}

func TestRevealVotes_ExcludesNullVotes(t *testing.T) {
	r := mustJoin(t, newTestRoom(), "Bob", "c1")
	r = mustJoin(t, r, "Carol", "c2")
	r = StartRound(r, t0).Room
	r = CastVote(r, "Bob", Number(5)).Room
	r = CastVote(r, "Carol", Text("?")).Room

	out := RevealVotes(r)
	if out.Room.State != StateRevealed {
		t.Fatalf("expected revealed, got %s", out.Room.State)
	}
	got := effectTypes(out.Effects)
	if len(got) != 2 || got[0] != TypeVotesRevealed || got[1] != TypeRoomSettings {
		t.Fatalf("expected votes then state, got %v", got)
	}
	votes := out.Effects[0].Message["votes"].([]Vote)
	if len(votes) != 2 {
		t.Fatalf("expected 2 revealed votes, got %d", len(votes))
	}
	for _, v := range votes {
		if v.Name == "Alice" {
			t.Fatal("Alice never voted and must not be revealed")
		}
	}

	if again := RevealVotes(out.Room); again.Result != ResultIgnored {
		t.Fatal("revealing twice should be ignored")
	}
}

func TestNewRound_ResetsEveryVote(t *testing.T) {
	r := newTestRoom()
	for i, name := range []string{"Alice", "Bob", "Carol"} {
		r = mustJoin(t, r, name, fmt.Sprintf("c%d", i))
	}
	if out := NewRound(r); out.Result != ResultIgnored {
		t.Fatal("new_round from the lobby should be ignored")
	}
	r = StartRound(r, t0).Room
	r = CastVote(r, "Bob", Number(1)).Room
	r = CastVote(r, "Carol", Number(2)).Room
	r = RevealVotes(r).Room

	out := NewRound(r)
	if out.Room.State != StateLobby {
		t.Fatalf("expected lobby, got %s", out.Room.State)
	}
	for _, p := range out.Room.Participants {
		if p.HasVoted {
			t.Fatalf("%s still marked as voted", p.Name)
		}
	}
	for _, v := range out.Room.Votes {
		if v.Vote != nil {
			t.Fatalf("%s still has vote %v", v.Name, v.Vote)
		}
	}
	got := effectTypes(out.Effects)
	if len(got) != 2 || got[0] != TypeNewRoundStarted || got[1] != TypeRoomSettings {
		t.Fatalf("unexpected effects %v", got)
	}
}

func TestUpdateSettings(t *testing.T) {
	r := newTestRoom()

	if out := UpdateSettings(r, "Bob", PresetHours, 60, true); out.Result != ResultIgnored || out.Persist {
		t.Fatal("non-owner update should be ignored")
	}
	if out := UpdateSettings(r, "alice", PresetHours, 60, true); out.Result != ResultIgnored {
		t.Fatal("owner check is case-sensitive")
	}
	if out := UpdateSettings(r, "Alice", Preset("tshirt"), 60, true); out.Result != ResultIgnored {
		t.Fatal("unknown preset should be ignored")
	}
	if out := UpdateSettings(r, "Alice", PresetHours, -1, true); out.Result != ResultIgnored {
		t.Fatal("negative timer should be ignored")
	}
	if out := UpdateSettings(r, "Alice", PresetHours, MaxTimerDuration+1, true); out.Result != ResultIgnored {
		t.Fatal("timer above the cap should be ignored")
	}
	if out := UpdateSettings(r, "Alice", PresetHours, 10_000_000_000, true); out.Result != ResultIgnored {
		t.Fatal("overflowing timer should be ignored")
	}
	if out := UpdateSettings(r, "Alice", PresetHours, MaxTimerDuration, true); out.Result != ResultApplied {
		t.Fatal("timer at the cap should be accepted")
	}

	out := UpdateSettings(r, "Alice", PresetYesNo, 45, true)
	if out.Result != ResultApplied {
		t.Fatalf("expected applied, got %s", out.Result)
	}
	if out.Room.VotingPreset != PresetYesNo || out.Room.TimerDuration != 45 || !out.Room.AutoReveal {
		t.Fatalf("settings not applied: %+v", out.Room.Settings())
	}
	if out.Effects[0].Message.Type() != TypeRoomSettingsUpdated || out.Effects[0].Audience != ToRoom {
		t.Fatalf("unexpected effects %v", effectTypes(out.Effects))
	}

	voting := StartRound(out.Room, t0).Room
	if u := UpdateSettings(voting, "Alice", PresetDays, 0, false); u.Result != ResultIgnored {
		t.Fatal("settings must not change mid-round")
	}
	revealed := RevealVotes(voting).Room
	if u := UpdateSettings(revealed, "Alice", PresetDays, 0, false); u.Result != ResultApplied {
		t.Fatal("settings may change once votes are revealed")
	}
}

func TestDisconnect_UnknownConnectionIsNoop(t *testing.T) {
	if out := Disconnect(nil, "c1"); out.Result != ResultIgnored || out.Persist {
		t.Fatal("disconnect from a missing room should be a no-op")
	}
	r := mustJoin(t, newTestRoom(), "Bob", "c1")
	if out := Disconnect(r, "c9"); out.Result != ResultIgnored || out.Persist {
		t.Fatal("unknown connection should be a no-op")
	}
	// the reserved owner slot has no connection to match
	if out := Disconnect(newTestRoom(), ""); out.Result != ResultIgnored {
		t.Fatal("empty connection id must not match the reserved slot")
	}
}

func TestExpireTimer_StaleTimerIsIgnored(t *testing.T) {
	r := NewRoom("R", "Alice", PresetFibonacci, 10, true, t0)
	first := StartRound(r, t0).Room
	due := *first.TimerEnd

	if out := ExpireTimer(first, due.Add(time.Second)); out.Result != ResultIgnored {
		t.Fatal("a different timer end must not reveal")
	}
	out := ExpireTimer(first, due)
	if out.Result != ResultApplied || out.Room.State != StateRevealed {
		t.Fatal("a matching timer should reveal the round")
	}
	if out.Room.TimerEnd != nil {
		t.Fatal("reveal should clear the timer")
	}

	// next round started before the old timer fired
	next := StartRound(NewRound(out.Room).Room, t0.Add(time.Minute)).Room
	if stale := ExpireTimer(next, due); stale.Result != ResultIgnored {
		t.Fatal("timer of a previous round should not reveal the current one")
	}
}

func TestApply_LeavesInputUntouched(t *testing.T) {
	r := mustJoin(t, newTestRoom(), "Bob", "c1")
	r = StartRound(r, t0).Room

	_ = Apply(r, Command{Type: TypeUserVoted, Name: "Bob", Vote: Number(13)}, "c1", t0)
	if r.participant("Bob").HasVoted || r.vote("Bob").Vote != nil {
		t.Fatal("Apply modified the loaded document")
	}
	_ = Apply(r, Command{Type: TypeJoinRoom, Name: "Zed"}, "c2", t0)
	if len(r.Participants) != 2 {
		t.Fatal("Apply appended to the loaded document")
	}
}

func TestScenario_FullRound(t *testing.T) {
	r := mustJoin(t, newTestRoom(), "Alice", "c-alice")

	join := Join(r, "Bob", "c-bob")
	r = join.Room
	views := participantViews(t, join.Effects[1].Message)
	if len(views) != 2 || views[0].HasVoted || views[1].HasVoted {
		t.Fatalf("Alice should see two participants who have not voted, got %+v", views)
	}

	r = Apply(r, Command{Type: TypeStartRound}, "c-alice", t0).Room
	if r.State != StateVoting {
		t.Fatalf("expected voting, got %s", r.State)
	}

	vote := Apply(r, Command{Type: TypeUserVoted, Name: "Bob", Vote: Number(5)}, "c-bob", t0)
	r = vote.Room
	for _, v := range participantViews(t, vote.Effects[0].Message) {
		if v.Name == "Bob" && !v.HasVoted {
			t.Fatal("Bob's vote not reflected")
		}
	}

	reveal := Apply(r, Command{Type: TypeRevealVotes}, "c-alice", t0)
	r = reveal.Room
	votes := reveal.Effects[0].Message["votes"].([]Vote)
	if len(votes) != 1 || votes[0].Name != "Bob" || votes[0].Vote.String() != "5" {
		t.Fatalf("expected only Bob's 5, got %+v", votes)
	}

	r = Apply(r, Command{Type: TypeNewRound}, "c-alice", t0).Room
	if r.State != StateLobby {
		t.Fatalf("expected lobby, got %s", r.State)
	}
	if r.participant("Bob").HasVoted || r.vote("Bob").Vote != nil {
		t.Fatal("Bob should be reset")
	}
}
