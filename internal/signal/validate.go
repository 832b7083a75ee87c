package signal

import (
	"fmt"
)

func required(field, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s is required", ErrMalformed, field)
	}
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (e Register) validate() error { return required("name", e.Name) }

func (e Registered) validate() error { return required("name", e.Name) }

func (e Connected) validate() error { return required("clientId", e.ClientID) }

func (e StartCall) validate() error {
	if err := firstErr(required("callId", e.CallID), required("from", e.From)); err != nil {
		return err
	}
	if len(e.Targets) == 0 {
		return fmt.Errorf("%w: targets must not be empty", ErrMalformed)
	}
	for _, t := range e.Targets {
		if t == "" {
			return fmt.Errorf("%w: empty target", ErrMalformed)
		}
	}
	return nil
}

func (e CancelCall) validate() error {
	return firstErr(required("callId", e.CallID), required("from", e.From))
}

func (e IncomingCall) validate() error {
	return firstErr(required("callId", e.CallID), required("fromTeam", e.FromTeam))
}

func (e CallCancelled) validate() error { return required("callId", e.CallID) }

func (e CallAccepted) validate() error {
	return firstErr(required("callId", e.CallID), required("toTeam", e.ToTeam))
}

func (e CallRejected) validate() error {
	return firstErr(required("callId", e.CallID), required("toTeam", e.ToTeam))
}

func (e CallTimeout) validate() error {
	return firstErr(required("callId", e.CallID), required("toTeam", e.ToTeam))
}

func (e CallStatusUpdate) validate() error {
	if err := firstErr(required("callId", e.CallID), required("toDept", e.ToDept)); err != nil {
		return err
	}
	if _, ok := e.Status.RecipientStatus(); !ok {
		return fmt.Errorf("%w: unknown status %q", ErrMalformed, e.Status)
	}
	return nil
}

func (e Error) validate() error { return required("message", e.Message) }
