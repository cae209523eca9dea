package events

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oggyb/speeddate/internal/domain"
)

// Encode serializes e as a protobuf Struct so non-Go subscribers can
// decode it with any protobuf runtime.
func Encode(e Event) ([]byte, error) {
	users := make([]any, len(e.UserIDs))
	for i, u := range e.UserIDs {
		users[i] = u
	}

	fields := map[string]any{
		"kind":     string(e.Kind),
		"user_ids": users,
		"at_ms":    float64(e.At.UnixMilli()),
	}
	if e.PairID != "" {
		fields["pair_id"] = e.PairID
	}
	if e.Outcome != "" {
		fields["outcome"] = string(e.Outcome)
	}
	if e.Reason != "" {
		fields["reason"] = e.Reason
	}
	if !e.VoteExpiresAt.IsZero() {
		fields["vote_expires_at_ms"] = float64(e.VoteExpiresAt.UnixMilli())
	}

	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return proto.Marshal(s)
}

// Decode is the inverse of Encode.
func Decode(b []byte) (Event, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(b, &s); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	f := s.GetFields()

	e := Event{
		Kind:    Kind(f["kind"].GetStringValue()),
		PairID:  f["pair_id"].GetStringValue(),
		Outcome: domain.Outcome(f["outcome"].GetStringValue()),
		Reason:  f["reason"].GetStringValue(),
		At:      time.UnixMilli(int64(f["at_ms"].GetNumberValue())).UTC(),
	}
	for _, v := range f["user_ids"].GetListValue().GetValues() {
		e.UserIDs = append(e.UserIDs, v.GetStringValue())
	}
	if v, ok := f["vote_expires_at_ms"]; ok {
		e.VoteExpiresAt = time.UnixMilli(int64(v.GetNumberValue())).UTC()
	}
	if e.Kind == "" {
		return Event{}, fmt.Errorf("decode event: missing kind")
	}
	return e, nil
}
