package protocol

import (
	"encoding/json"

	"github.com/hri-lab/go-quadlink/pkg/geom"
)

// CommandType tags a command variant on the wire.
type CommandType string

const (
	TypeMoveTo     CommandType = "move_to"
	TypeFollowPath CommandType = "follow_path"
	TypeStop       CommandType = "stop"
	TypePause      CommandType = "pause"
	TypeResume     CommandType = "resume"
	// TypeSetMotion is the legacy schema spoken by the simulated link.
	// It has no "command" tag on the wire; its presence is inferred.
	TypeSetMotion CommandType = "set_motion"
)

// Mode selects the movement axis for legacy SetMotion commands.
type Mode string

const (
	ModeForward   Mode = "forward"
	ModeRightward Mode = "rightward"
)

// Trigger is the single action carried by a SetMotion message. The wire
// form uses three boolean flags; decoding collapses them so that "at most
// one action per message" holds in the type system, with start taking
// priority over stop, and stop over reset.
type Trigger int

const (
	TriggerNone Trigger = iota
	TriggerStart
	TriggerStop
	TriggerReset
)

// Operation is one command variant. Exactly one operation rides in each
// Command; the closed set of implementations lives in this package.
type Operation interface {
	Type() CommandType
}

// MoveTo requests motion to a single target position.
type MoveTo struct {
	Target geom.Position
	Speed  float64
}

func (MoveTo) Type() CommandType { return TypeMoveTo }

// FollowPath replaces the robot's path plan wholesale with the given
// waypoints, visited in order.
type FollowPath struct {
	Waypoints []geom.Position
	Speed     float64
}

func (FollowPath) Type() CommandType { return TypeFollowPath }

// Stop halts movement immediately.
type Stop struct{}

func (Stop) Type() CommandType { return TypeStop }

// Pause freezes progress; only meaningful while moving.
type Pause struct{}

func (Pause) Type() CommandType { return TypePause }

// Resume continues from a pause.
type Resume struct{}

func (Resume) Type() CommandType { return TypeResume }

// SetMotion is the legacy dual-purpose command: motion parameters plus an
// optional trigger.
type SetMotion struct {
	Speed        float64
	Mode         Mode
	GazeAngleDeg float64
	Trigger      Trigger
}

func (SetMotion) Type() CommandType { return TypeSetMotion }

// Command is one message on the command channel. ID and TimestampMS are
// stamped at send time by the command API.
type Command struct {
	ID          string
	TimestampMS int64
	Op          Operation
}

// wireCommand is the superset of both command schemas. Pointer fields
// distinguish "absent" from zero so missing required fields are caught.
type wireCommand struct {
	Command    string     `json:"command,omitempty"`
	ID         string     `json:"id,omitempty"`
	Speed      *jsonFloat `json:"speed,omitempty"`
	Position   *wireVec   `json:"position,omitempty"`
	PathPoints []wireVec  `json:"pathPoints,omitempty"`
	Mode       string     `json:"mode,omitempty"`
	GazeAngle  *jsonFloat `json:"gazeAngle,omitempty"`
	Start      *bool      `json:"start,omitempty"`
	Stop       *bool      `json:"stop,omitempty"`
	Reset      *bool      `json:"reset,omitempty"`
	Timestamp  *int64     `json:"timestamp,omitempty"`
}

// EncodeCommand serializes a command to its wire form. Tagged variants
// carry a "command" field; SetMotion is emitted in the legacy flat schema
// the simulated link expects.
func EncodeCommand(cmd *Command) ([]byte, error) {
	if cmd.Op == nil {
		return nil, malformedf("command has no operation")
	}

	w := wireCommand{
		ID:        cmd.ID,
		Timestamp: &cmd.TimestampMS,
	}

	switch op := cmd.Op.(type) {
	case MoveTo:
		w.Command = string(TypeMoveTo)
		pos := vecFromPosition(op.Target)
		w.Position = &pos
		speed := jsonFloat(op.Speed)
		w.Speed = &speed
	case FollowPath:
		w.Command = string(TypeFollowPath)
		w.PathPoints = make([]wireVec, len(op.Waypoints))
		for i, wp := range op.Waypoints {
			w.PathPoints[i] = vecFromPosition(wp)
		}
		speed := jsonFloat(op.Speed)
		w.Speed = &speed
	case Stop:
		w.Command = string(TypeStop)
	case Pause:
		w.Command = string(TypePause)
	case Resume:
		w.Command = string(TypeResume)
	case SetMotion:
		speed := jsonFloat(op.Speed)
		gaze := jsonFloat(op.GazeAngleDeg)
		start := op.Trigger == TriggerStart
		stop := op.Trigger == TriggerStop
		reset := op.Trigger == TriggerReset
		w.Speed = &speed
		w.Mode = string(op.Mode)
		w.GazeAngle = &gaze
		w.Start = &start
		w.Stop = &stop
		w.Reset = &reset
	default:
		return nil, malformedf("unknown operation %T", cmd.Op)
	}

	return json.Marshal(w)
}

// DecodeCommand parses a command payload. Payloads without a "command"
// tag are decoded as legacy SetMotion messages.
func DecodeCommand(data []byte) (*Command, error) {
	var w wireCommand
	if err := json.Unmarshal(quoteNonFinite(data), &w); err != nil {
		return nil, malformedf("%v", err)
	}

	cmd := &Command{ID: w.ID}
	if w.Timestamp != nil {
		cmd.TimestampMS = *w.Timestamp
	}

	if w.Command == "" {
		op, err := decodeSetMotion(&w)
		if err != nil {
			return nil, err
		}
		cmd.Op = op
		return cmd, nil
	}

	switch CommandType(w.Command) {
	case TypeMoveTo:
		if w.Position == nil {
			return nil, malformedf("move_to requires position")
		}
		if w.Speed == nil {
			return nil, malformedf("move_to requires speed")
		}
		cmd.Op = MoveTo{Target: w.Position.position(), Speed: float64(*w.Speed)}
	case TypeFollowPath:
		if len(w.PathPoints) == 0 {
			return nil, malformedf("follow_path requires pathPoints")
		}
		if w.Speed == nil {
			return nil, malformedf("follow_path requires speed")
		}
		wps := make([]geom.Position, len(w.PathPoints))
		for i, v := range w.PathPoints {
			wps[i] = v.position()
		}
		cmd.Op = FollowPath{Waypoints: wps, Speed: float64(*w.Speed)}
	case TypeStop:
		cmd.Op = Stop{}
	case TypePause:
		cmd.Op = Pause{}
	case TypeResume:
		cmd.Op = Resume{}
	default:
		return nil, malformedf("unknown command %q", w.Command)
	}
	return cmd, nil
}

func decodeSetMotion(w *wireCommand) (Operation, error) {
	if w.Speed == nil {
		return nil, malformedf("set_motion requires speed")
	}
	if w.Mode == "" {
		return nil, malformedf("set_motion requires mode")
	}
	mode := Mode(w.Mode)
	if mode != ModeForward && mode != ModeRightward {
		return nil, malformedf("unknown mode %q", w.Mode)
	}

	op := SetMotion{
		Speed:   float64(*w.Speed),
		Mode:    mode,
		Trigger: TriggerNone,
	}
	if w.GazeAngle != nil {
		op.GazeAngleDeg = float64(*w.GazeAngle)
	}

	// The flags are triggers, not toggles: honor at most one, start first.
	switch {
	case w.Start != nil && *w.Start:
		op.Trigger = TriggerStart
	case w.Stop != nil && *w.Stop:
		op.Trigger = TriggerStop
	case w.Reset != nil && *w.Reset:
		op.Trigger = TriggerReset
	}
	return op, nil
}
