// Package ident generates record ids. Ids are opaque: the prefix only keeps
// the source and message id spaces visibly disjoint.
package ident

import "github.com/google/uuid"

const (
	SourcePrefix  = "src_"
	MessagePrefix = "msg_"
)

func NewSourceID() string {
	return SourcePrefix + uuid.NewString()
}

func NewMessageID() string {
	return MessagePrefix + uuid.NewString()
}
