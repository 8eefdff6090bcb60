package storage

import (
	"batepapo/domain"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// DiskMessage is the CBOR layout of a message value. Times are kept as
// nanoseconds so that nothing is lost on the round trip.
type DiskMessage struct {
	ID       string `cbor:"1,keyasint"`
	Sequence uint64 `cbor:"2,keyasint"`
	From     string `cbor:"3,keyasint"`
	To       string `cbor:"4,keyasint"`
	Text     string `cbor:"5,keyasint"`
	Type     string `cbor:"6,keyasint"`
	At       int64  `cbor:"7,keyasint"`
}

// DiskParticipant is the CBOR layout of a participant value.
type DiskParticipant struct {
	Name     string `cbor:"1,keyasint"`
	LastSeen int64  `cbor:"2,keyasint"`
}

func encodeMessage(message domain.Message, sequence uint64) ([]byte, error) {
	return cbor.Marshal(DiskMessage{
		ID:       message.ID.String(),
		Sequence: sequence,
		From:     message.From,
		To:       message.To,
		Text:     message.Text,
		Type:     string(message.Type),
		At:       message.CreatedAt.UnixNano(),
	})
}

// DecodeMessage turns a stored value back into a domain message.
func DecodeMessage(data []byte) (domain.Message, error) {
	var disk DiskMessage
	if err := cbor.Unmarshal(data, &disk); err != nil {
		return domain.Message{}, err
	}
	id, err := uuid.Parse(disk.ID)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:        id,
		From:      disk.From,
		To:        disk.To,
		Text:      disk.Text,
		Type:      domain.MessageType(disk.Type),
		CreatedAt: time.Unix(0, disk.At).UTC(),
	}, nil
}

func encodeParticipant(p domain.Participant) ([]byte, error) {
	return cbor.Marshal(DiskParticipant{Name: p.Name, LastSeen: p.LastSeen.UnixNano()})
}

func decodeParticipant(data []byte) (domain.Participant, error) {
	var disk DiskParticipant
	if err := cbor.Unmarshal(data, &disk); err != nil {
		return domain.Participant{}, err
	}
	return domain.Participant{Name: disk.Name, LastSeen: time.Unix(0, disk.LastSeen).UTC()}, nil
}
