// Package command models the manual override commands an operator drops
// into the agent's inbox.
package command

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Name string

const (
	CloseAll        Name = "CLOSE_ALL"
	PauseNewEntries Name = "PAUSE_NEW_ENTRIES"
	RestartLogic    Name = "RESTART_LOGIC"
)

var ErrMalformed = errors.New("command: malformed")

// Known lists the commands the agent acts on.
var Known = []Name{CloseAll, PauseNewEntries, RestartLogic}

// Normalize upper-cases and trims n.
func Normalize(n string) Name {
	return Name(strings.ToUpper(strings.TrimSpace(n)))
}

func (n Name) Known() bool {
	for _, k := range Known {
		if n == k {
			return true
		}
	}
	return false
}

// Command is one inbox document. Pause is only true when the document
// carried a literal JSON true under "pause_new_entries" or "pause".
type Command struct {
	Name      Name
	Pause     bool
	Timestamp time.Time
}

func (c Command) String() string {
	if c.Name == PauseNewEntries {
		return fmt.Sprintf("%s(pause=%t)", c.Name, c.Pause)
	}
	return string(c.Name)
}

type wire struct {
	Command         string `json:"command"`
	PauseNewEntries *bool  `json:"pause_new_entries,omitempty"`
	Timestamp       string `json:"timestamp,omitempty"`
}

func (c Command) MarshalJSON() ([]byte, error) {
	w := wire{Command: string(c.Name)}
	if c.Name == PauseNewEntries {
		p := c.Pause
		w.PauseNewEntries = &p
	}
	if !c.Timestamp.IsZero() {
		w.Timestamp = c.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(w)
}

func (c *Command) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var name string
	raw, ok := fields["command"]
	if !ok {
		return fmt.Errorf("%w: missing \"command\"", ErrMalformed)
	}
	if err := json.Unmarshal(raw, &name); err != nil {
		return fmt.Errorf("%w: \"command\" is not a string", ErrMalformed)
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty \"command\"", ErrMalformed)
	}

	out := Command{Name: Normalize(name)}
	out.Pause = isTrue(fields["pause_new_entries"]) || isTrue(fields["pause"])

	if ts, ok := fields["timestamp"]; ok {
		var s string
		if json.Unmarshal(ts, &s) == nil {
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				out.Timestamp = t
			} else if t, err := time.ParseInLocation("2006-01-02T15:04:05.999999", s, time.Local); err == nil {
				out.Timestamp = t
			}
		}
	}

	*c = out
	return nil
}

func isTrue(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("true"))
}

// Parse decodes one inbox document.
func Parse(data []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(data, &c); err != nil {
		if errors.Is(err, ErrMalformed) {
			return Command{}, err
		}
		return Command{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return c, nil
}
