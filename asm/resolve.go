package asm

import "strings"

// resolveValue implements the value resolver of spec.md §4.5: character
// literals, IDENT,REG (the register is already folded into the addressing
// mode, so only the base is resolved), IDENT±N expressions, $hex, decimal,
// and bare label lookups.
func resolveValue(labels Labels, token string, lineNo int) (uint16, error) {
	token = strings.TrimSpace(token)

	if len(token) >= 2 && token[0] == '\'' && token[len(token)-1] == '\'' {
		inner := token[1 : len(token)-1]
		if inner == "" {
			return 0, UnknownValue{Line: lineNo, Token: token}
		}
		return uint16(inner[0]), nil
	}

	if idx := strings.IndexByte(token, ','); idx >= 0 {
		return resolveValue(labels, token[:idx], lineNo)
	}

	if m := exprRE.FindStringSubmatch(token); m != nil {
		base, op, digits := m[1], m[2], m[3]
		addr, ok := labels[base]
		if !ok {
			return 0, UnknownLabel{Line: lineNo, Pass: 2, Name: base}
		}
		n := 0
		for _, r := range digits {
			n = n*10 + int(r-'0')
		}
		if op == "+" {
			return addr + uint16(n), nil
		}
		return addr - uint16(n), nil
	}

	if strings.HasPrefix(token, "$") {
		v, err := parseNumber(token)
		if err != nil {
			return 0, UnknownValue{Line: lineNo, Token: token}
		}
		return uint16(v), nil
	}

	if isDecimal(token) {
		v, _ := parseNumber(token)
		return uint16(v), nil
	}

	if addr, ok := labels[token]; ok {
		return addr, nil
	}

	return 0, UnknownValue{Line: lineNo, Token: token}
}
