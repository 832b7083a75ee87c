package signal

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMalformed   = errors.New("malformed event")
	ErrUnknownType = errors.New("unknown event type")
)

type envelope struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode validates ev and wraps it in the {"type","data"} envelope.
func Encode(ev Event) ([]byte, error) {
	if ev == nil {
		return nil, fmt.Errorf("%w: nil event", ErrMalformed)
	}
	if err := ev.validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", ev.Type(), err)
	}
	return json.Marshal(envelope{Type: ev.Type(), Data: data})
}

// Decode parses an envelope into its concrete event and validates it.
func Decode(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var ev Event
	var err error
	switch env.Type {
	case TypeRegister:
		ev, err = decodeInto[Register](env.Data)
	case TypeRegistered:
		ev, err = decodeInto[Registered](env.Data)
	case TypeConnected:
		ev, err = decodeInto[Connected](env.Data)
	case TypeStartCall:
		ev, err = decodeInto[StartCall](env.Data)
	case TypeCancelCall:
		ev, err = decodeInto[CancelCall](env.Data)
	case TypeIncomingCall:
		ev, err = decodeInto[IncomingCall](env.Data)
	case TypeCallCancelled:
		ev, err = decodeInto[CallCancelled](env.Data)
	case TypeCallAccepted:
		ev, err = decodeInto[CallAccepted](env.Data)
	case TypeCallRejected:
		ev, err = decodeInto[CallRejected](env.Data)
	case TypeCallTimeout:
		ev, err = decodeInto[CallTimeout](env.Data)
	case TypeCallStatusUpdate:
		ev, err = decodeInto[CallStatusUpdate](env.Data)
	case TypeError:
		ev, err = decodeInto[Error](env.Data)
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if err != nil {
		return nil, err
	}
	if err := ev.validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

func decodeInto[T Event](data json.RawMessage) (T, error) {
	var v T
	if len(data) == 0 {
		return v, fmt.Errorf("%w: missing data", ErrMalformed)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return v, nil
}

// MustEncode is Encode for events built from trusted values.
func MustEncode(ev Event) []byte {
	data, err := Encode(ev)
	if err != nil {
		panic(err)
	}
	return data
}
