package bridge

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"

	"voxelminer.ai/internal/geom"
)

// Op is the action a mine command asks for.
type Op string

const (
	OpTunnel  Op = "tunnel"
	OpStrip   Op = "strip"
	OpQuarry  Op = "quarry"
	OpStop    Op = "stop"
	OpEnable  Op = "enable"
	OpDisable Op = "disable"
	OpStatus  Op = "status"
)

var ops = []string{string(OpTunnel), string(OpStrip), string(OpQuarry), string(OpStop), string(OpEnable), string(OpDisable), string(OpStatus)}

// maxTypo is the largest edit distance accepted for a misspelled keyword.
const maxTypo = 2

var errUsage = errors.New("usage: mine tunnel [dir] <length> [width] [height] | mine strip [dir] [main] [branches] | mine quarry x1 y1 z1 x2 y2 z2 [depth] | mine stop|enable|disable|status")

// Request is a parsed mine command. Zero sizes mean "use the configured default".
type Request struct {
	Op       Op
	Dir      geom.Direction
	Length   int
	Width    int
	Height   int
	Branches int
	// BranchesSet distinguishes an explicit zero branch count from an omitted one.
	BranchesSet bool
	Corner1     geom.Cell
	Corner2     geom.Cell
	Depth       int
}

// ParseCommand turns a chat-style command into a Request. Only "mine" is served.
func ParseCommand(name string, args []string) (Request, error) {
	if !strings.EqualFold(strings.TrimSpace(name), "mine") {
		return Request{}, fmt.Errorf("unsupported command %q", name)
	}
	if len(args) == 0 {
		return Request{}, errUsage
	}
	word, err := closest(args[0], ops)
	if err != nil {
		return Request{}, fmt.Errorf("mode: %w", err)
	}
	req := Request{Op: Op(word)}
	rest := args[1:]

	switch req.Op {
	case OpTunnel:
		rest, req.Dir, err = leadingDirection(rest)
		if err != nil {
			return req, err
		}
		n, err := ints(rest, 1, 3)
		if err != nil {
			return req, err
		}
		req.Length = n[0]
		if len(n) > 1 {
			req.Width = n[1]
		}
		if len(n) > 2 {
			req.Height = n[2]
		}
		if req.Length <= 0 || req.Width < 0 || req.Height < 0 {
			return req, errors.New("tunnel sizes must be positive")
		}
	case OpStrip:
		rest, req.Dir, err = leadingDirection(rest)
		if err != nil {
			return req, err
		}
		n, err := ints(rest, 0, 2)
		if err != nil {
			return req, err
		}
		if len(n) > 0 {
			req.Length = n[0]
		}
		if len(n) > 1 {
			req.Branches, req.BranchesSet = n[1], true
		}
		if req.Length < 0 || req.Branches < 0 {
			return req, errors.New("strip sizes must not be negative")
		}
	case OpQuarry:
		n, err := ints(rest, 6, 7)
		if err != nil {
			return req, err
		}
		req.Corner1 = geom.Cell{X: n[0], Y: n[1], Z: n[2]}
		req.Corner2 = geom.Cell{X: n[3], Y: n[4], Z: n[5]}
		if len(n) > 6 {
			req.Depth = n[6]
		}
		if req.Depth < 0 {
			return req, errors.New("quarry depth must not be negative")
		}
	default:
		if len(rest) > 0 {
			return req, fmt.Errorf("%s takes no arguments", req.Op)
		}
	}
	return req, nil
}

// leadingDirection consumes args[0] when it is not a number. DirNone means the
// caller should fall back to the player's facing.
func leadingDirection(args []string) ([]string, geom.Direction, error) {
	if len(args) == 0 {
		return args, geom.DirNone, nil
	}
	if _, err := strconv.Atoi(args[0]); err == nil {
		return args, geom.DirNone, nil
	}
	d, err := parseDirection(args[0])
	if err != nil {
		return args, geom.DirNone, err
	}
	return args[1:], d, nil
}

func parseDirection(s string) (geom.Direction, error) {
	if d, err := geom.ParseDirection(s); err == nil {
		return d, nil
	}
	word, err := closest(s, geom.DirectionNames())
	if err != nil {
		return geom.DirNone, fmt.Errorf("direction: %w", err)
	}
	return geom.ParseDirection(word)
}

func ints(args []string, minN, maxN int) ([]int, error) {
	if len(args) < minN || len(args) > maxN {
		return nil, errUsage
	}
	out := make([]int, len(args))
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", a)
		}
		out[i] = v
	}
	return out, nil
}

// closest returns the unique candidate within maxTypo edits of s.
func closest(s string, candidates []string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	best, bestD, tie := "", maxTypo+1, false
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(s, c)
		switch {
		case d < bestD:
			best, bestD, tie = c, d, false
		case d == bestD:
			tie = true
		}
	}
	if best == "" {
		return "", fmt.Errorf("unknown word %q", s)
	}
	if tie && bestD > 0 {
		return "", fmt.Errorf("ambiguous word %q", s)
	}
	return best, nil
}
