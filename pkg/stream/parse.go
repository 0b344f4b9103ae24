package stream

import (
	"fmt"
	"strings"
)

// FormatError reports stream text that fails to parse, naming the line.
type FormatError struct {
	Line int
	Msg  string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("stream format error at line %d: %s", e.Line, e.Msg)
}

// Parse reads stream text back into a Document. Section order and row order
// are preserved exactly; a provider's fetch depends on the fixed positional
// meaning of the table columns. Unknown sections after the known ones are
// tolerated and skipped.
func Parse(text string) (*Document, error) {
	doc := &Document{}

	const (
		statePreamble = iota
		stateIni
		stateVariables
		stateFiles
		stateDone
		stateSkip
	)
	state := statePreamble

	for i, line := range strings.Split(text, "\n") {
		lineNo := i + 1
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}

		if section, ok := delimiterSection(line); ok {
			switch section {
			case sectionIni:
				state = stateIni
			case sectionVariables:
				if state != stateIni {
					return nil, &FormatError{Line: lineNo, Msg: "variables section before ini section"}
				}
				state = stateVariables
			case sectionFiles:
				if state != stateVariables {
					return nil, &FormatError{Line: lineNo, Msg: "source files section before variables section"}
				}
				state = stateFiles
			case sectionEnd:
				state = stateDone
			default:
				// Unknown trailing section, skip its content.
				state = stateSkip
			}
			continue
		}

		switch state {
		case statePreamble:
			return nil, &FormatError{Line: lineNo, Msg: "content before SRCSRV: ini delimiter"}
		case stateIni:
			k, v, err := splitKV(line, lineNo)
			if err != nil {
				return nil, err
			}
			doc.Ini = append(doc.Ini, Var{Key: k, Value: v})
		case stateVariables:
			k, v, err := splitKV(line, lineNo)
			if err != nil {
				return nil, err
			}
			doc.Variables = append(doc.Variables, Var{Key: k, Value: v})
		case stateFiles:
			entry, err := parseRow(line, lineNo)
			if err != nil {
				return nil, err
			}
			doc.AddFile(entry)
		case stateDone, stateSkip:
			// Tolerated trailing content.
		}
	}

	if state == statePreamble {
		return nil, &FormatError{Line: 1, Msg: "no SRCSRV sections found"}
	}
	return doc, nil
}

// delimiterSection recognizes a "SRCSRV: <name> ---..." line
func delimiterSection(line string) (string, bool) {
	const prefix = "SRCSRV: "
	if !strings.HasPrefix(line, prefix) {
		return "", false
	}
	name := strings.TrimRight(line[len(prefix):], "-")
	return strings.TrimSpace(name), true
}

func splitKV(line string, lineNo int) (string, string, error) {
	k, v, found := strings.Cut(line, "=")
	if !found || k == "" {
		return "", "", &FormatError{Line: lineNo, Msg: fmt.Sprintf("expected KEY=VALUE, got %q", line)}
	}
	return k, v, nil
}

func parseRow(line string, lineNo int) (Entry, error) {
	cols := strings.Split(line, "*")
	if len(cols) < 4 {
		return Entry{}, &FormatError{Line: lineNo, Msg: fmt.Sprintf("source file row has %d columns, need at least 4", len(cols))}
	}
	entry := Entry{
		BuildPath: cols[0],
		RepoPath:  cols[1],
		FileName:  cols[2],
		Digest:    cols[3],
	}
	if len(cols) > 4 {
		entry.Extra = cols[4:]
	}
	return entry, nil
}
