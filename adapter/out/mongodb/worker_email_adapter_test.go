package mongodb

import (
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"leadestate_server/core/domain"
)

func TestOpenStatusFilterExcludesTerminal(t *testing.T) {
	oid := primitive.NewObjectID()
	filter := openStatusFilter(oid)

	if filter["_id"] != oid {
		t.Errorf("expected _id %v, got %v", oid, filter["_id"])
	}

	status, ok := filter["status"].(bson.M)
	if !ok {
		t.Fatalf("expected status condition, got %T", filter["status"])
	}
	excluded, ok := status["$nin"].(bson.A)
	if !ok {
		t.Fatalf("expected $nin list, got %T", status["$nin"])
	}

	got := make(map[domain.EmailStatus]bool)
	for _, v := range excluded {
		got[domain.EmailStatus(v.(string))] = true
	}
	for _, s := range []domain.EmailStatus{domain.EmailStatusNew, domain.EmailStatusReplied, domain.EmailStatusFailed} {
		if got[s] != s.IsTerminal() {
			t.Errorf("%q: expected excluded=%v, got %v", s, s.IsTerminal(), got[s])
		}
	}
}

func TestObjectIDRejectsMalformed(t *testing.T) {
	if _, err := objectID("not-hex"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	oid := primitive.NewObjectID()
	got, err := objectID(oid.Hex())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != oid {
		t.Errorf("expected %v, got %v", oid, got)
	}
}
