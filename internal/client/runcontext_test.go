package client

import (
	"testing"

	"backend-virtualrun/internal/snapshot"
)

func TestNewRunContextDerivesPartner(t *testing.T) {
	sess := activeSession()

	rc := NewRunContext(sess, "inviter-1")
	if rc.PartnerID != "invitee-1" {
		t.Fatalf("expected invitee as partner, got %s", rc.PartnerID)
	}

	rc = NewRunContext(sess, "invitee-1")
	if rc.PartnerID != "inviter-1" {
		t.Fatalf("expected inviter as partner, got %s", rc.PartnerID)
	}
}

func TestAcceptKeepsFreshestSequence(t *testing.T) {
	rc := NewRunContext(activeSession(), "inviter-1")

	if !rc.Accept("invitee-1", snapshot.Sample{Seq: 5, DistanceM: 500}) {
		t.Fatalf("first sample should be accepted")
	}
	if rc.Accept("invitee-1", snapshot.Sample{Seq: 5, DistanceM: 999}) {
		t.Fatalf("duplicate seq should be dropped")
	}
	if rc.Accept("invitee-1", snapshot.Sample{Seq: 3, DistanceM: 300}) {
		t.Fatalf("older seq should be dropped")
	}
	if !rc.Accept("invitee-1", snapshot.Sample{Seq: 6, DistanceM: 600}) {
		t.Fatalf("newer seq should be accepted")
	}

	got, ok := rc.Latest("invitee-1")
	if !ok || got.Seq != 6 || got.DistanceM != 600 {
		t.Fatalf("unexpected latest: %+v ok=%v", got, ok)
	}
}

func TestAcceptTracksParticipantsIndependently(t *testing.T) {
	rc := NewRunContext(activeSession(), "inviter-1")

	rc.Accept("inviter-1", snapshot.Sample{Seq: 10})
	if !rc.Accept("invitee-1", snapshot.Sample{Seq: 1}) {
		t.Fatalf("partner's first sample should not be filtered by own seq")
	}
}

func TestLatestMissingParticipant(t *testing.T) {
	rc := NewRunContext(activeSession(), "inviter-1")

	if _, ok := rc.Latest("invitee-1"); ok {
		t.Fatalf("expected no sample yet")
	}
}

func TestTeardownIsIdempotent(t *testing.T) {
	rc := NewRunContext(activeSession(), "inviter-1")

	rc.Teardown()
	rc.Teardown()

	select {
	case <-rc.Done():
	default:
		t.Fatalf("expected done to be closed")
	}
}

func TestSetStatus(t *testing.T) {
	rc := NewRunContext(activeSession(), "inviter-1")

	rc.SetStatus("cancelled")
	if rc.Status() != "cancelled" {
		t.Fatalf("expected cancelled, got %s", rc.Status())
	}
}
