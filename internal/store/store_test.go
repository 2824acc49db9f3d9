package store

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/pavelanni/casecoach/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func recordTestAttempt(t *testing.T, s *Store, learner, caseID, category string, score int, at time.Time) int64 {
	t.Helper()
	id, err := s.RecordAttempt(model.Attempt{
		LearnerID:      learner,
		CaseID:         caseID,
		Category:       category,
		Title:          "Title of " + caseID,
		Score:          score,
		ElapsedSeconds: 300,
		HintsUsed:      1,
		Milestones:     []string{"hasIdentifiedBreakEven"},
		CompletedAt:    at,
		Messages: []model.Message{
			{ID: "m1", Role: model.RoleInterviewer, Text: "What would you like to know?", CreatedAt: at},
			{ID: "m2", Role: model.RoleStudent, Text: "What is the target?", CreatedAt: at},
			{ID: "m3", Role: model.RoleInterviewer, Tag: model.TagInfo, Text: "Break even in a year.", CreatedAt: at},
		},
	})
	if err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}
	return id
}

func TestRecordAttempt(t *testing.T) {
	s := newTestStore(t)

	count, err := s.AttemptCount()
	if err != nil {
		t.Fatalf("AttemptCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 attempts, got %d", count)
	}

	id := recordTestAttempt(t, s, "alice", "all-purpose-tires", "Break-even", 75, baseTime)
	a, err := s.GetAttempt(id)
	if err != nil {
		t.Fatalf("GetAttempt: %v", err)
	}
	if a == nil {
		t.Fatal("expected attempt, got nil")
	}
	if a.Score != 75 || a.CaseID != "all-purpose-tires" || a.HintsUsed != 1 {
		t.Errorf("unexpected attempt: %+v", a)
	}
	if !slices.Equal(a.Milestones, []string{"hasIdentifiedBreakEven"}) {
		t.Errorf("Milestones = %v", a.Milestones)
	}
	if !a.CompletedAt.Equal(baseTime) {
		t.Errorf("CompletedAt = %v, want %v", a.CompletedAt, baseTime)
	}

	missing, err := s.GetAttempt(9999)
	if err != nil {
		t.Fatalf("GetAttempt(missing): %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing attempt")
	}
}

func TestRecordAttemptRejectsBadScore(t *testing.T) {
	s := newTestStore(t)
	for _, score := range []int{-1, 101} {
		if _, err := s.RecordAttempt(model.Attempt{LearnerID: "a", CaseID: "c", Score: score}); err == nil {
			t.Errorf("score %d: expected error", score)
		}
	}
}

func TestTranscript(t *testing.T) {
	s := newTestStore(t)
	id := recordTestAttempt(t, s, "alice", "all-purpose-tires", "Break-even", 50, baseTime)

	msgs, err := s.GetTranscript(id)
	if err != nil {
		t.Fatalf("GetTranscript: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[1].Role != model.RoleStudent || msgs[1].Text != "What is the target?" {
		t.Errorf("unexpected second message: %+v", msgs[1])
	}
	if msgs[2].Tag != model.TagInfo || msgs[2].ID != "m3" {
		t.Errorf("unexpected third message: %+v", msgs[2])
	}
}

func TestLatestScore(t *testing.T) {
	s := newTestStore(t)

	got, err := s.LatestScore("alice", "all-purpose-tires")
	if err != nil {
		t.Fatalf("LatestScore: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil before any attempt, got %+v", got)
	}

	recordTestAttempt(t, s, "alice", "all-purpose-tires", "Break-even", 50, baseTime)
	recordTestAttempt(t, s, "alice", "all-purpose-tires", "Break-even", 100, baseTime.Add(time.Hour))
	recordTestAttempt(t, s, "bob", "all-purpose-tires", "Break-even", 25, baseTime.Add(2*time.Hour))

	got, err = s.LatestScore("alice", "all-purpose-tires")
	if err != nil {
		t.Fatalf("LatestScore: %v", err)
	}
	if got == nil || got.Score != 100 {
		t.Errorf("LatestScore = %+v, want score 100", got)
	}

	all, err := s.ListAttempts("alice")
	if err != nil {
		t.Fatalf("ListAttempts: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected both attempts retained, got %d", len(all))
	}

	latest, err := s.LatestScores("alice")
	if err != nil {
		t.Fatalf("LatestScores: %v", err)
	}
	if latest["all-purpose-tires"].Score != 100 || len(latest) != 1 {
		t.Errorf("LatestScores = %+v", latest)
	}
}

func TestListAllAttempts(t *testing.T) {
	s := newTestStore(t)
	recordTestAttempt(t, s, "alice", "a", "X", 10, baseTime)
	recordTestAttempt(t, s, "bob", "b", "Y", 20, baseTime.Add(time.Minute))

	all, err := s.ListAllAttempts()
	if err != nil {
		t.Fatalf("ListAllAttempts: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(all))
	}
	if all[0].LearnerID != "bob" {
		t.Errorf("expected newest first, got %s", all[0].LearnerID)
	}
}

func TestLearnerStats(t *testing.T) {
	s := newTestStore(t)

	empty, err := s.LearnerStats("alice")
	if err != nil {
		t.Fatalf("LearnerStats: %v", err)
	}
	if empty.Attempts != 0 || empty.LastAttempt != nil {
		t.Errorf("expected empty stats, got %+v", empty)
	}

	recordTestAttempt(t, s, "alice", "all-purpose-tires", "Break-even", 50, baseTime)
	recordTestAttempt(t, s, "alice", "all-purpose-tires", "Break-even", 100, baseTime.Add(time.Hour))
	recordTestAttempt(t, s, "alice", "dairy-cow-feed", "Pricing", 60, baseTime.Add(2*time.Hour))
	recordTestAttempt(t, s, "bob", "dairy-cow-feed", "Pricing", 0, baseTime)

	st, err := s.LearnerStats("alice")
	if err != nil {
		t.Fatalf("LearnerStats: %v", err)
	}
	if st.Attempts != 3 || st.CasesTried != 2 || st.Best != 100 || st.HintsUsed != 3 {
		t.Errorf("unexpected stats: %+v", st)
	}
	if st.Average != 70 {
		t.Errorf("Average = %v, want 70", st.Average)
	}
	if st.LastAttempt == nil || !st.LastAttempt.Equal(baseTime.Add(2*time.Hour)) {
		t.Errorf("LastAttempt = %v", st.LastAttempt)
	}
	if len(st.ByCategory) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(st.ByCategory))
	}
	for _, c := range st.ByCategory {
		switch c.Category {
		case "Break-even":
			if c.Attempts != 2 || c.Average != 75 || c.Best != 100 {
				t.Errorf("Break-even stats = %+v", c)
			}
		case "Pricing":
			if c.Attempts != 1 || c.Average != 60 {
				t.Errorf("Pricing stats = %+v", c)
			}
		default:
			t.Errorf("unexpected category %q", c.Category)
		}
	}
}

func TestRateCase(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetRating("alice", "all-purpose-tires")
	if err != nil {
		t.Fatalf("GetRating: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no rating, got %+v", got)
	}

	stored, created, err := s.RateCase("alice", "all-purpose-tires", 4)
	if err != nil {
		t.Fatalf("RateCase: %v", err)
	}
	if stored != 4 || !created {
		t.Errorf("first RateCase = %d, %v; want 4, true", stored, created)
	}

	// A second rating does not overwrite the first.
	stored, created, err = s.RateCase("alice", "all-purpose-tires", 1)
	if err != nil {
		t.Fatalf("RateCase: %v", err)
	}
	if stored != 4 || created {
		t.Errorf("second RateCase = %d, %v; want 4, false", stored, created)
	}
	got, _ = s.GetRating("alice", "all-purpose-tires")
	if got == nil || got.Rating != 4 {
		t.Errorf("stored rating = %+v, want 4", got)
	}

	// Other learners rate independently.
	if stored, created, _ := s.RateCase("bob", "all-purpose-tires", 2); stored != 2 || !created {
		t.Errorf("bob RateCase = %d, %v; want 2, true", stored, created)
	}

	ratings, err := s.ListRatings("alice")
	if err != nil {
		t.Fatalf("ListRatings: %v", err)
	}
	if len(ratings) != 1 || ratings["all-purpose-tires"] != 4 {
		t.Errorf("ListRatings = %v", ratings)
	}
}

func TestRateCaseInvalid(t *testing.T) {
	s := newTestStore(t)
	for _, r := range []int{0, 6, -3} {
		if _, _, err := s.RateCase("alice", "c", r); !errors.Is(err, ErrInvalidRating) {
			t.Errorf("RateCase(%d) error = %v, want ErrInvalidRating", r, err)
		}
	}
}

func TestUsersAndAuth(t *testing.T) {
	s := newTestStore(t)

	if err := s.EnsureAdmin("admin", "secret"); err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}
	u, err := s.Authenticate("admin", "secret")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if u == nil || u.Role != model.UserRoleAdmin {
		t.Fatalf("Authenticate = %+v, want admin", u)
	}
	if bad, _ := s.Authenticate("admin", "wrong"); bad != nil {
		t.Error("wrong password accepted")
	}
	if none, _ := s.Authenticate("nobody", "secret"); none != nil {
		t.Error("unknown user accepted")
	}

	// Resetting the password keeps a single user.
	if err := s.EnsureAdmin("admin", "new-secret"); err != nil {
		t.Fatalf("EnsureAdmin reset: %v", err)
	}
	if n, _ := s.UserCount(); n != 1 {
		t.Errorf("UserCount = %d, want 1", n)
	}
	if u, _ := s.Authenticate("admin", "new-secret"); u == nil {
		t.Error("new password rejected")
	}

	now := time.Now()
	token, err := s.CreateAuthSession(u.ID, now)
	if err != nil {
		t.Fatalf("CreateAuthSession: %v", err)
	}
	sess, err := s.GetAuthSession(token, now)
	if err != nil || sess == nil || sess.UserID != u.ID {
		t.Fatalf("GetAuthSession = %+v, %v", sess, err)
	}
	if err := s.DeleteAuthSession(token); err != nil {
		t.Fatalf("DeleteAuthSession: %v", err)
	}
	if sess, _ := s.GetAuthSession(token, now); sess != nil {
		t.Error("session still valid after delete")
	}

	if err := s.ToggleUserActive(u.ID); err != nil {
		t.Fatalf("ToggleUserActive: %v", err)
	}
	if inactive, _ := s.Authenticate("admin", "new-secret"); inactive != nil {
		t.Error("inactive user authenticated")
	}
}

func TestAuthSessionExpiry(t *testing.T) {
	s := newTestStore(t)
	if err := s.EnsureAdmin("admin", "secret"); err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}
	u, _ := s.Authenticate("admin", "secret")
	issued := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	token, err := s.CreateAuthSession(u.ID, issued)
	if err != nil {
		t.Fatalf("CreateAuthSession: %v", err)
	}
	if sess, err := s.GetAuthSession(token, issued.Add(AuthSessionTTL-time.Minute)); err != nil || sess == nil {
		t.Fatalf("GetAuthSession before expiry = %v, %v", sess, err)
	}
	if sess, err := s.GetAuthSession(token, issued.Add(AuthSessionTTL)); err != nil || sess != nil {
		t.Fatalf("GetAuthSession at expiry = %v, %v; want nil, nil", sess, err)
	}
	// The expired token was removed on lookup.
	if n, err := s.PurgeExpiredAuthSessions(issued.Add(2 * AuthSessionTTL)); err != nil || n != 0 {
		t.Errorf("purge after lookup = %d, %v; want 0", n, err)
	}
}

func TestPurgeExpiredAuthSessions(t *testing.T) {
	s := newTestStore(t)
	if err := s.EnsureAdmin("admin", "secret"); err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}
	u, _ := s.Authenticate("admin", "secret")
	issued := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := range 3 {
		if _, err := s.CreateAuthSession(u.ID, issued.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatalf("CreateAuthSession: %v", err)
		}
	}
	tests := []struct {
		name string
		at   time.Time
		want int64
	}{
		{"none expired", issued.Add(time.Hour), 0},
		{"oldest expired", issued.Add(AuthSessionTTL + 30*time.Minute), 1},
		{"rest expired", issued.Add(AuthSessionTTL + 3*time.Hour), 2},
		{"nothing left", issued.Add(10 * AuthSessionTTL), 0},
	}
	for _, tt := range tests {
		n, err := s.PurgeExpiredAuthSessions(tt.at)
		if err != nil || n != tt.want {
			t.Errorf("%s: purged %d, %v; want %d", tt.name, n, err, tt.want)
		}
	}
}

func TestCaseScripts(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetCaseScript("custom")
	if err != nil || got != nil {
		t.Fatalf("GetCaseScript(missing) = %v, %v", got, err)
	}

	hash, err := s.SaveCaseScript("custom", []byte("id: custom\n"), nil)
	if err != nil {
		t.Fatalf("SaveCaseScript: %v", err)
	}
	if len(hash) != 64 {
		t.Errorf("hash = %q, want hex sha256", hash)
	}

	// Saving again replaces the source.
	hash2, err := s.SaveCaseScript("custom", []byte("id: custom\ntitle: Custom\n"), nil)
	if err != nil {
		t.Fatalf("SaveCaseScript: %v", err)
	}
	if hash2 == hash {
		t.Error("hash did not change with the source")
	}
	list, err := s.ListCaseScripts()
	if err != nil {
		t.Fatalf("ListCaseScripts: %v", err)
	}
	if len(list) != 1 || string(list[0].Source) != "id: custom\ntitle: Custom\n" {
		t.Errorf("ListCaseScripts = %+v", list)
	}

	if err := s.DeleteCaseScript("custom"); err != nil {
		t.Fatalf("DeleteCaseScript: %v", err)
	}
	if got, _ := s.GetCaseScript("custom"); got != nil {
		t.Error("case script still present after delete")
	}
}

func TestExportAll(t *testing.T) {
	s := newTestStore(t)
	recordTestAttempt(t, s, "alice", "all-purpose-tires", "Break-even", 50, baseTime)
	recordTestAttempt(t, s, "alice", "all-purpose-tires", "Break-even", 100, baseTime.Add(time.Hour))
	recordTestAttempt(t, s, "bob", "dairy-cow-feed", "Pricing", 60, baseTime.Add(30*time.Minute))
	if _, _, err := s.RateCase("alice", "all-purpose-tires", 5); err != nil {
		t.Fatalf("RateCase: %v", err)
	}

	exp, err := s.ExportAll()
	if err != nil {
		t.Fatalf("ExportAll: %v", err)
	}
	if exp.NumAttempts != 3 || len(exp.Results) != 3 {
		t.Fatalf("NumAttempts = %d, results = %d", exp.NumAttempts, len(exp.Results))
	}

	first := exp.Results[0]
	if first.LearnerID != "alice" || first.AttemptNumber != 1 || first.Score != 50 {
		t.Errorf("first result = %+v", first)
	}
	if first.Rating != 5 {
		t.Errorf("Rating = %d, want 5", first.Rating)
	}
	if len(first.Conversation) != 3 || first.Conversation[2].Tag != "info" {
		t.Errorf("Conversation = %+v", first.Conversation)
	}
	last := exp.Results[2]
	if last.AttemptNumber != 2 || last.Score != 100 {
		t.Errorf("last result = %+v, want alice's second attempt", last)
	}
	if exp.Results[1].LearnerID != "bob" || exp.Results[1].Rating != 0 {
		t.Errorf("middle result = %+v", exp.Results[1])
	}
}

func TestAttemptBySessionAndDebrief(t *testing.T) {
	s := newTestStore(t)

	id, err := s.RecordAttempt(model.Attempt{
		LearnerID: "alice",
		SessionID: "sess-1",
		CaseID:    "all-purpose-tires",
		Score:     100,
	})
	if err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}

	got, err := s.GetAttemptBySession("sess-1")
	if err != nil {
		t.Fatalf("GetAttemptBySession: %v", err)
	}
	if got == nil || got.ID != id {
		t.Fatalf("GetAttemptBySession = %+v, want attempt %d", got, id)
	}
	if got.Debrief != nil {
		t.Error("new attempt should have no debrief")
	}
	if missing, err := s.GetAttemptBySession("nope"); err != nil || missing != nil {
		t.Errorf("GetAttemptBySession(nope) = %v, %v", missing, err)
	}
	if empty, err := s.GetAttemptBySession(""); err != nil || empty != nil {
		t.Errorf("GetAttemptBySession(\"\") = %v, %v", empty, err)
	}

	// One attempt per session.
	if _, err := s.RecordAttempt(model.Attempt{LearnerID: "alice", SessionID: "sess-1", CaseID: "all-purpose-tires", Score: 50}); err == nil {
		t.Error("second attempt for the same session should fail")
	}
	// Attempts without a session are not constrained.
	recordTestAttempt(t, s, "alice", "x", "X", 10, baseTime)
	recordTestAttempt(t, s, "alice", "x", "X", 20, baseTime)

	d := model.Debrief{Summary: "Good.", Strengths: []string{"Structure"}, Improvements: []string{"Pace"}}
	if err := s.SetAttemptDebrief(id, d); err != nil {
		t.Fatalf("SetAttemptDebrief: %v", err)
	}
	got, _ = s.GetAttempt(id)
	if got.Debrief == nil || got.Debrief.Summary != "Good." || !slices.Equal(got.Debrief.Strengths, []string{"Structure"}) {
		t.Errorf("Debrief = %+v", got.Debrief)
	}
	if err := s.SetAttemptDebrief(9999, d); err == nil {
		t.Error("SetAttemptDebrief on a missing attempt should fail")
	}
}
