package domain

import (
	"testing"
	"time"
)

func testAdmin() *Admin {
	return &Admin{AdminID: 1, Username: "aleksa", DisplayName: "Aleksa"}
}

func testSeminar() *Seminar {
	return &Seminar{SeminarID: 2, Name: "Go Concurrency", Description: "patterns"}
}

func testInstitution() *EducationalInstitution {
	return &EducationalInstitution{InstitutionID: 3, Name: "FON", Address: "Jove Ilica 154"}
}

func testParticipant(id int64, first, last string) *Participant {
	return &Participant{ParticipantID: id, FirstName: first, LastName: last, Gender: GenderFemale,
		BirthDate: time.Date(1995, 4, 12, 0, 0, 0, 0, time.UTC)}
}

func validSchedule(t *testing.T) *SeminarSchedule {
	t.Helper()
	begins := time.Now().Add(24 * time.Hour)
	s, err := NewSeminarSchedule(begins, begins.Add(2*time.Hour), testAdmin(), testSeminar(), testInstitution())
	if err != nil {
		t.Fatalf("NewSeminarSchedule: %v", err)
	}
	return s
}

func TestSetPeriodRejectsEndBeforeBegin(t *testing.T) {
	s := validSchedule(t)
	prevBegins, prevEnds := s.Begins, s.Ends

	begins := time.Now().Add(48 * time.Hour)
	err := s.SetPeriod(begins, begins.Add(-time.Hour))
	if err == nil {
		t.Fatal("expected validation error for end before begin")
	}
	if _, ok := err.(*ValidationError); !ok {
		t.Errorf("SetPeriod error = %T, want *ValidationError", err)
	}
	if !s.Begins.Equal(prevBegins) || !s.Ends.Equal(prevEnds) {
		t.Error("rejected SetPeriod must leave the prior valid period intact")
	}
}

func TestSetPeriodRejectsPastBegin(t *testing.T) {
	s := validSchedule(t)
	past := time.Now().Add(-time.Hour)
	if err := s.SetPeriod(past, past.Add(2*time.Hour)); err == nil {
		t.Fatal("expected validation error for beginning in the past")
	}
}

func TestAddEnrollmentRejectsDuplicateParticipant(t *testing.T) {
	s := validSchedule(t)
	en, _ := NewSeminarEnrollment(testParticipant(10, "Mira", "Petrovic"))
	if err := s.AddEnrollment(en); err != nil {
		t.Fatalf("AddEnrollment: %v", err)
	}
	dup, _ := NewSeminarEnrollment(testParticipant(10, "Mira", "Petrovic"))
	if err := s.AddEnrollment(dup); err == nil {
		t.Fatal("expected validation error enrolling the same participant twice")
	}
}

func TestRemoveEnrollment(t *testing.T) {
	s := validSchedule(t)
	en, _ := NewSeminarEnrollment(testParticipant(10, "Mira", "Petrovic"))
	if err := s.AddEnrollment(en); err != nil {
		t.Fatalf("AddEnrollment: %v", err)
	}
	if err := s.RemoveEnrollment(10); err != nil {
		t.Fatalf("RemoveEnrollment: %v", err)
	}
	if len(s.Enrollments) != 0 {
		t.Errorf("enrollments after removal = %d, want 0", len(s.Enrollments))
	}
	if err := s.RemoveEnrollment(10); err == nil {
		t.Error("expected error removing an absent enrollment")
	}
}

func TestThreeTierEquality(t *testing.T) {
	a := validSchedule(t)
	a.ScheduleID = 42
	enA, _ := NewSeminarEnrollment(testParticipant(10, "Mira", "Petrovic"))
	if err := a.AddEnrollment(enA); err != nil {
		t.Fatalf("AddEnrollment: %v", err)
	}

	b := &SeminarSchedule{
		ScheduleID:  42,
		Begins:      a.Begins,
		Ends:        a.Ends,
		Seminar:     testSeminar(),
		Institution: testInstitution(),
	}
	enB, _ := NewSeminarEnrollment(testParticipant(10, "Mira", "Petrovic"))
	b.Enrollments = []*SeminarEnrollment{enB}

	if !a.SameIdentity(b) {
		t.Error("SameIdentity should hold for equal primary keys")
	}
	if !a.EqualScalars(b) {
		t.Error("EqualScalars should hold for identical scalar fields")
	}
	if !a.EqualAll(b) {
		t.Error("EqualAll should hold for identical aggregates")
	}

	// An enrollment edit breaks full equality but not scalar equality.
	if err := enB.SetGrade(9); err != nil {
		t.Fatalf("SetGrade: %v", err)
	}
	if a.EqualAll(b) {
		t.Error("EqualAll should fail after an enrollment edit")
	}
	if !a.EqualScalars(b) {
		t.Error("EqualScalars must ignore enrollment edits")
	}

	// A scalar edit breaks both, identity still matches.
	b.Ends = b.Ends.Add(time.Hour)
	if a.EqualScalars(b) {
		t.Error("EqualScalars should fail after a scalar edit")
	}
	if !a.SameIdentity(b) {
		t.Error("SameIdentity must ignore field edits")
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	s := validSchedule(t)
	en, _ := NewSeminarEnrollment(testParticipant(10, "Mira", "Petrovic"))
	if err := s.AddEnrollment(en); err != nil {
		t.Fatalf("AddEnrollment: %v", err)
	}
	s.SnapshotEnrollments()

	if err := en.SetGrade(10); err != nil {
		t.Fatalf("SetGrade: %v", err)
	}
	original := s.OriginalEnrollments()
	if len(original) != 1 {
		t.Fatalf("snapshot length = %d, want 1", len(original))
	}
	if original[0].Grade == 10 {
		t.Error("snapshot must not observe later mutations")
	}
}

func TestEnrollmentGradeValidation(t *testing.T) {
	en, errNew := NewSeminarEnrollment(testParticipant(10, "Mira", "Petrovic"))
	if errNew != nil {
		t.Fatalf("NewSeminarEnrollment: %v", errNew)
	}
	if err := en.SetGrade(4); err == nil {
		t.Error("expected validation error for grade below 5")
	}
	if err := en.SetGrade(11); err == nil {
		t.Error("expected validation error for grade above 10")
	}
	if err := en.SetGrade(0); err != nil {
		t.Errorf("clearing the grade should be allowed: %v", err)
	}
	if err := en.SetGrade(8); err != nil {
		t.Errorf("SetGrade(8): %v", err)
	}
}

func TestValidateWireSchedule(t *testing.T) {
	s := validSchedule(t)
	s.Tag = StateInserted
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate on a valid schedule: %v", err)
	}

	s.Seminar = nil
	if err := s.Validate(); err == nil {
		t.Error("expected validation error for missing seminar reference")
	}
}
