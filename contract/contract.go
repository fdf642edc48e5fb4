//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Peer is the outbound side of a connected session.
// Send must serialize concurrent callers so frames never interleave.
type Peer interface {
	Username() string
	Send(frame []byte) error
}

type IRegistry interface {
	TryRegister(username string, peer Peer) bool
	Unregister(username string)
	Lookup(username string) (Peer, bool)
	Roster() []string
	Peers() []Peer
	Count() int
}

type IRouter interface {
	Route(sender Peer, msg domain.Message)
	Joined(username string)
	Left(username string)
}
