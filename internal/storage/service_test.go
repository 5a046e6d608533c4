package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
)

func TestSaveObject(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO storage_objects`).
		WithArgs(pgxmock.AnyArg(), "0xabc", pgxmock.AnyArg(), KindWalkPhoto).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	svc := NewService(mock)
	obj, err := svc.SaveObject(context.Background(), "0xabc", "IMG_01.JPG", "")
	if err != nil {
		t.Fatalf("save object: %v", err)
	}
	if obj.ID == "" || obj.Kind != KindWalkPhoto {
		t.Fatalf("unexpected object: %+v", obj)
	}
	if obj.Ref != baseURL+"0xabc/"+obj.ID+".jpg" {
		t.Fatalf("unexpected ref %q", obj.Ref)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSaveObjectError(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO storage_objects`).
		WithArgs(pgxmock.AnyArg(), "0xabc", pgxmock.AnyArg(), "avatar").
		WillReturnError(errSave)

	svc := NewService(mock)
	_, err = svc.SaveObject(context.Background(), "0xabc", "me.png", "avatar")
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestObjectRef(t *testing.T) {
	ref := ObjectRef("0xabc", "id-1", "noext")
	if !strings.HasSuffix(ref, "/0xabc/id-1") {
		t.Fatalf("unexpected ref %q", ref)
	}
}

var errSave = errors.New("save error")

func TestSaveObjectWithoutStore(t *testing.T) {
	if _, err := NewService(nil).SaveObject(context.Background(), "0xabc", "a.jpg", ""); err != errNoStore {
		t.Fatalf("expected errNoStore, got %v", err)
	}
}
