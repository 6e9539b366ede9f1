package commands

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/roasbeef/cmdqueue/internal/command"
	"github.com/roasbeef/cmdqueue/internal/object"
)

const (
	cmdHome     = "home"
	cmdSetpoint = "setpoint"
	cmdPosition = "position"
	cmdChannel  = "channel"
	cmdMoves    = "moves"
	cmdJog      = "jog"

	// axisChannels is the number of auxiliary channels an axis reports.
	axisChannels = 4
)

var (
	errBadSetpoint = errors.New("setpoint is not a finite number")
	errBadChannel  = errors.New("no such channel")
)

// axis is a simulated motion axis served by the run command. Its fields are
// only touched on its task's goroutine.
type axis struct {
	position float64
	setpoint float64
	channels [axisChannels]float64
	moves    int
}

// commands returns one command of every shape over the axis.
func (a *axis) commands() []command.Command {
	return []command.Command{
		command.NewVoid(cmdHome, func() error {
			a.position, a.setpoint = 0, 0
			return nil
		}),
		command.NewWrite(cmdSetpoint, object.NewValue(0.0),
			func(v *object.Value[float64]) error {
				if math.IsNaN(v.Data) || math.IsInf(v.Data, 0) {
					return errBadSetpoint
				}
				a.setpoint = v.Data

				return nil
			},
		),
		command.NewRead(cmdPosition, object.NewValue(0.0),
			func(out *object.Value[float64]) error {
				out.Data = a.position
				return nil
			},
		),
		command.NewQualifiedRead(cmdChannel, object.NewValue(0),
			object.NewValue(0.0),
			func(ch *object.Value[int], out *object.Value[float64]) error {
				if ch.Data < 0 || ch.Data >= axisChannels {
					return fmt.Errorf("%w: %d", errBadChannel, ch.Data)
				}
				out.Data = a.channels[ch.Data]

				return nil
			},
		),
		command.NewVoidReturn(cmdMoves, object.NewValue(0),
			func(out *object.Value[int]) error {
				out.Data = a.moves
				return nil
			},
		),
		command.NewWriteReturn(cmdJog, object.NewValue(0.0),
			object.NewValue(0.0),
			func(d, out *object.Value[float64]) error {
				a.position += d.Data
				a.moves++
				out.Data = a.position

				return nil
			},
		),
	}
}

// step moves the axis half way to its setpoint and refreshes the channels.
// It runs as the task's periodic step.
func (a *axis) step(context.Context) {
	a.position += (a.setpoint - a.position) / 2
	for i := range a.channels {
		a.channels[i] = a.position * float64(i+1)
	}
}
