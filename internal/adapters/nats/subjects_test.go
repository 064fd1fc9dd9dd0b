package natsadapter

import "testing"

func TestSubject(t *testing.T) {
	tests := []struct {
		root, id, want string
	}{
		{SubjectChat, "g1", "huddle.chat.g1"},
		{SubjectMembership, "a.b", "huddle.membership.a_b"},
		{SubjectLocationUpdated, "u*>", "huddle.location.updated.u__"},
		{SubjectLocationReport, "with space", "huddle.location.report.with_space"},
	}
	for _, tt := range tests {
		if got := Subject(tt.root, tt.id); got != tt.want {
			t.Errorf("Subject(%q, %q) = %q, want %q", tt.root, tt.id, got, tt.want)
		}
	}
}

func TestStreamsCoverSubjects(t *testing.T) {
	covered := map[string]bool{}
	for _, s := range streams {
		for _, subj := range s.Subjects {
			covered[subj] = true
		}
	}
	for _, root := range []string{SubjectLocationReport, SubjectMembership, SubjectChat} {
		if !covered[root+".>"] {
			t.Errorf("no stream captures %s.>", root)
		}
	}
	if covered[SubjectLocationUpdated+".>"] {
		t.Errorf("location updates should not be persisted")
	}
}
