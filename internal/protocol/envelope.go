package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ShapeEnvelope is what drawing clients store in a chat message.
// Nonce is optional; it keeps two identical shapes from the same client distinct.
type ShapeEnvelope struct {
	Shape DrawOp `json:"shape"`
	Nonce string `json:"nonce,omitempty"`
}

// WrapShape encodes op as a chat payload.
func WrapShape(op DrawOp, nonce string) (string, error) {
	b, err := json.Marshal(ShapeEnvelope{Shape: op, Nonce: nonce})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// UnwrapShape decodes a chat payload. Anything that is not a valid envelope,
// including plain text, returns an error wrapping ErrInvalidShape or ErrUnknownShape.
func UnwrapShape(payload string) (ShapeEnvelope, error) {
	var raw struct {
		Shape *DrawOp `json:"shape"`
		Nonce string  `json:"nonce"`
	}
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		if errors.Is(err, ErrInvalidShape) || errors.Is(err, ErrUnknownShape) {
			return ShapeEnvelope{}, err
		}
		return ShapeEnvelope{}, fmt.Errorf("%w: %v", ErrInvalidShape, err)
	}
	if raw.Shape == nil || raw.Shape.Shape == nil {
		return ShapeEnvelope{}, fmt.Errorf("%w: no shape in payload", ErrInvalidShape)
	}
	return ShapeEnvelope{Shape: *raw.Shape, Nonce: raw.Nonce}, nil
}
