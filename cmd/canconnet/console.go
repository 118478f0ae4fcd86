package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

const hexID = 0x600

const helpText = `Commands:
  t                    send the test frame
  s <id> <bytes>       send a frame, for example "s 7E0 02 10 03"
  h <file> [id]        send the contents of an Intel HEX file
  c                    start or stop the cyclic message
  st                   show the line status
  help                 show this help
  q                    quit`

// exec runs one console command. quit is set for the quit command.
func (s *session) exec(line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	switch cmd {
	case "t":
		return false, s.sendTest()
	case "s":
		if len(args) < 2 {
			return false, fmt.Errorf("usage: s <id> <bytes>")
		}
		id, err := parseID(args[0])
		if err != nil {
			return false, err
		}
		data, err := hex.DecodeString(strings.Join(args[1:], ""))
		if err != nil {
			return false, fmt.Errorf("data: %w", err)
		}
		if limit := maxPayload(s.cfg.CAN.FD); len(data) == 0 || len(data) > limit {
			return false, fmt.Errorf("data length %d not in 1..%d", len(data), limit)
		}
		return false, s.send(dataFrame(id, s.cfg.CAN.FD, data))
	case "h":
		if len(args) == 0 {
			return false, fmt.Errorf("usage: h <file> [id]")
		}
		id := uint32(hexID)
		if len(args) > 1 {
			if id, err = parseID(args[1]); err != nil {
				return false, err
			}
		}
		n, err := s.sendHex(args[0], id)
		fmt.Fprintf(s.out, "%d frames sent\n", n)
		return false, err
	case "c":
		on, err := s.toggleCyclic()
		if err == nil {
			fmt.Fprintf(s.out, "cyclic message 0x%03X %s\n", cyclicID, map[bool]string{true: "started", false: "stopped"}[on])
		}
		return false, err
	case "st":
		st, err := s.status()
		if err == nil {
			fmt.Fprintln(s.out, st)
		}
		return false, err
	case "help", "?":
		fmt.Fprintln(s.out, helpText)
		return false, nil
	case "q", "quit", "exit":
		return true, nil
	}
	return false, fmt.Errorf("unknown command: %s (type 'help' for commands)", cmd)
}

func parseID(s string) (uint32, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	id, err := strconv.ParseUint(s, 16, 32)
	if err != nil || id > 0x1FFFFFFF {
		return 0, fmt.Errorf("identifier %q invalid", s)
	}
	return uint32(id), nil
}

func maxPayload(fd bool) int {
	if fd {
		return 64
	}
	return 8
}
