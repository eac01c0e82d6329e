// Package trace reads and writes instruction trace files.
//
// A trace file holds one instruction per line in assembly-like syntax:
//
//	ADD R1, R2, R3
//	LOAD R3, 8(R1)
//	STORE -4(R2), R5
//
// Blank lines and lines starting with '#' are skipped.
package trace

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sarchlab/tomsim/insts"
)

// A ParseError reports the first malformed line of a trace.
type ParseError struct {
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("trace line %d: %v: %q", e.Line, e.Err, e.Text)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parse reads a full trace. Sequence ids are assigned in file order,
// counting only instruction lines.
func Parse(r io.Reader) ([]*insts.Instruction, error) {
	var stream []*insts.Instruction

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		inst, err := ParseLine(len(stream), line)
		if err != nil {
			return nil, &ParseError{Line: lineNum, Text: line, Err: err}
		}
		stream = append(stream, inst)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return stream, nil
}

// ParseFile reads a trace from disk.
func ParseFile(path string) ([]*insts.Instruction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// ParseLine parses one instruction line with the given sequence id.
func ParseLine(seq int, line string) (*insts.Instruction, error) {
	mnemonic, rest, _ := strings.Cut(strings.TrimSpace(line), " ")

	op := insts.OpFromMnemonic(strings.ToUpper(mnemonic))
	operands := splitOperands(rest)

	switch {
	case op.IsArithmetic():
		if len(operands) != 3 {
			return nil, fmt.Errorf("%s takes 3 operands, got %d", op, len(operands))
		}
		dest, err := parseReg(operands[0])
		if err != nil {
			return nil, err
		}
		src1, err := parseReg(operands[1])
		if err != nil {
			return nil, err
		}
		src2, err := parseReg(operands[2])
		if err != nil {
			return nil, err
		}
		return insts.NewArithmetic(seq, op, dest, src1, src2)

	case op == insts.OpLOAD:
		if len(operands) != 2 {
			return nil, fmt.Errorf("LOAD takes 2 operands, got %d", len(operands))
		}
		dest, err := parseReg(operands[0])
		if err != nil {
			return nil, err
		}
		offset, base, err := parseMemRef(operands[1])
		if err != nil {
			return nil, err
		}
		return insts.NewLoad(seq, dest, base, offset)

	case op == insts.OpSTORE:
		if len(operands) != 2 {
			return nil, fmt.Errorf("STORE takes 2 operands, got %d", len(operands))
		}
		offset, base, err := parseMemRef(operands[0])
		if err != nil {
			return nil, err
		}
		src, err := parseReg(operands[1])
		if err != nil {
			return nil, err
		}
		return insts.NewStore(seq, src, base, offset)

	default:
		return nil, fmt.Errorf("unknown operation %q", mnemonic)
	}
}

// splitOperands tolerates arbitrary spacing around commas.
func splitOperands(s string) []string {
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func parseReg(s string) (uint8, error) {
	if len(s) < 2 || (s[0] != 'R' && s[0] != 'r') {
		return 0, fmt.Errorf("bad register %q", s)
	}
	n, err := strconv.ParseUint(s[1:], 10, 8)
	if err != nil || n >= insts.NumRegisters {
		return 0, fmt.Errorf("bad register %q", s)
	}
	return uint8(n), nil
}

// parseMemRef parses an OFFSET(BASE) reference.
func parseMemRef(s string) (int64, uint8, error) {
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return 0, 0, fmt.Errorf("bad memory reference %q", s)
	}

	offset, err := strconv.ParseInt(s[:open], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad offset in %q", s)
	}
	base, err := parseReg(s[open+1 : len(s)-1])
	if err != nil {
		return 0, 0, err
	}

	return offset, base, nil
}

// Format renders a stream back into trace file text.
func Format(stream []*insts.Instruction) string {
	var b strings.Builder
	for _, inst := range stream {
		b.WriteString(inst.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// WriteFile writes a stream as a trace file.
func WriteFile(path string, stream []*insts.Instruction) error {
	return os.WriteFile(path, []byte(Format(stream)), 0644)
}
