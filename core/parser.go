package core

import (
	"regexp"
	"strconv"
	"strings"

	"hotshardd/types"
)

// monitorLineRegexp matches one line of a MONITOR stream:
//
//	<timestamp> [<db> <client_ip>:<client_port>] "<command>" "<arg1>" ...
//
// Only the command and the first argument are captured. Arguments containing
// a literal unescaped `"` may fail to parse; this mirrors the upstream
// grammar and is a documented limitation, not something to mask here.
var monitorLineRegexp = regexp.MustCompile(
	`^([\d.]+)\s+\[(\d+)\s+([\d.:a-fA-F]+):(\d+)\]\s+"([^"]+)"(?:\s+"([^"]+)")?`,
)

// ParseLine parses one raw MONITOR line into the event fields it carries.
// A malformed line yields ok == false and never an error or a partial event;
// counting dropped lines is the caller's business.
func ParseLine(line string) (e types.CommandEvent, ok bool) {
	m := monitorLineRegexp.FindStringSubmatch(line)
	if m == nil {
		return
	}

	ts, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return
	}
	db, err := strconv.Atoi(m[2])
	if err != nil {
		return
	}
	port, err := strconv.Atoi(m[4])
	if err != nil {
		return
	}

	e = types.CommandEvent{
		Timestamp:  ts,
		DB:         db,
		ClientIP:   m[3],
		ClientPort: port,
		Command:    strings.ToUpper(m[5]),
		Key:        m[6],
		Raw:        line,
	}
	ok = true
	return
}
