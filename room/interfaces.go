package room

import (
	"context"

	"github.com/wfunc/blackout/models"
)

// PropertyStore persists replicated member properties for the lifetime of a room.
type PropertyStore interface {
	SetProperty(ctx context.Context, roomID string, member models.MemberID, key string, value bool) error
	GetProperty(ctx context.Context, roomID string, member models.MemberID, key string) (value bool, ok bool, err error)
	DeleteMember(ctx context.Context, roomID string, member models.MemberID) error
	DeleteRoom(ctx context.Context, roomID string) error
}

// Recorder receives relay statistics. monitor.Monitor implements it.
type Recorder interface {
	MemberJoined()
	MemberLeft()
	MessageRelayed(msgID uint16)
}

type nopRecorder struct{}

func (nopRecorder) MemberJoined()         {}
func (nopRecorder) MemberLeft()           {}
func (nopRecorder) MessageRelayed(uint16) {}
