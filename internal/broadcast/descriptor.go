package broadcast

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pendergraft/deployvault/internal/validation"
)

const descriptorArity = 7

// ParseDescriptors extracts deployment tuples from the string Foundry renders
// for a struct array, for example:
//
//	[("Foo", 0x5FbD..., 0x6080..., 0x, "src/Foo.sol:Foo", "mainnet", 1)]
//
// Quotes may appear escaped (\") when the value was double encoded. Commas and
// parentheses inside quoted fields are literal.
func ParseDescriptors(value string) ([]Descriptor, error) {
	tuples, err := splitTuples(value)
	if err != nil {
		return nil, err
	}

	descriptors := make([]Descriptor, 0, len(tuples))
	for i, fields := range tuples {
		if len(fields) != descriptorArity {
			return nil, fmt.Errorf("tuple %d has %d fields, want %d", i, len(fields), descriptorArity)
		}
		chainID, err := validation.ParseChainID(fields[6])
		if err != nil {
			return nil, fmt.Errorf("tuple %d: %w", i, err)
		}
		if err := validation.ValidateAddress(fields[1]); err != nil {
			return nil, fmt.Errorf("tuple %d: %w", i, err)
		}
		if fields[0] == "" {
			return nil, fmt.Errorf("tuple %d: empty name", i)
		}
		descriptors = append(descriptors, Descriptor{
			Name:             fields[0],
			Address:          fields[1],
			Bytecode:         fields[2],
			ArgsData:         fields[3],
			ArtifactFullPath: fields[4],
			Context:          fields[5],
			ChainID:          chainID,
		})
	}
	return descriptors, nil
}

var errUnterminated = errors.New("unterminated quoted field")

// splitTuples scans value into tuples of fields.
func splitTuples(value string) ([][]string, error) {
	s := strings.TrimSpace(value)
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	var (
		tuples [][]string
		fields []string
		field  strings.Builder
		quoted bool // current field was quoted
		depth  int
	)

	flush := func() {
		f := field.String()
		if !quoted {
			f = strings.TrimSpace(f)
		}
		fields = append(fields, f)
		field.Reset()
		quoted = false
	}

	for i := 0; i < len(s); {
		c := s[i]

		if depth == 0 {
			switch {
			case c == '(':
				depth = 1
				fields = nil
			case c == ',' || c == ' ' || c == '\t' || c == '\n' || c == '\r':
			default:
				return nil, fmt.Errorf("unexpected %q at offset %d", c, i)
			}
			i++
			continue
		}

		if quoted && depth == 1 && !strings.ContainsRune(",) \t\r\n", rune(c)) {
			return nil, fmt.Errorf("unexpected %q after quoted field at offset %d", c, i)
		}

		// Opening quote, bare or escaped.
		if n := quoteAt(s, i); n > 0 && depth == 1 && !quoted && strings.TrimSpace(field.String()) == "" {
			content, next, err := readQuoted(s, i+n, n == 2)
			if err != nil {
				return nil, err
			}
			field.Reset()
			field.WriteString(content)
			quoted = true
			i = next
			continue
		}

		switch c {
		case '(':
			depth++
			field.WriteByte(c)
		case ')':
			depth--
			if depth == 0 {
				flush()
				tuples = append(tuples, fields)
				fields = nil
			} else {
				field.WriteByte(c)
			}
		case ',':
			if depth == 1 {
				flush()
			} else {
				field.WriteByte(c)
			}
		default:
			if !quoted {
				field.WriteByte(c)
			}
		}
		i++
	}

	if depth != 0 {
		return nil, errors.New("unbalanced parentheses")
	}
	return tuples, nil
}

// quoteAt returns the length of a quote token at i: 1 for ", 2 for \", 0 otherwise.
func quoteAt(s string, i int) int {
	if s[i] == '"' {
		return 1
	}
	if s[i] == '\\' && i+1 < len(s) && s[i+1] == '"' {
		return 2
	}
	return 0
}

// readQuoted reads a quoted field starting after its opening quote and
// returns the unescaped content and the offset after the closing quote.
func readQuoted(s string, i int, escaped bool) (string, int, error) {
	var b strings.Builder
	for i < len(s) {
		if escaped {
			switch {
			case strings.HasPrefix(s[i:], `\\\"`):
				b.WriteByte('"')
				i += 4
			case strings.HasPrefix(s[i:], `\\\\`):
				b.WriteByte('\\')
				i += 4
			case strings.HasPrefix(s[i:], `\"`):
				return b.String(), i + 2, nil
			default:
				b.WriteByte(s[i])
				i++
			}
			continue
		}

		switch {
		case strings.HasPrefix(s[i:], `\"`):
			b.WriteByte('"')
			i += 2
		case strings.HasPrefix(s[i:], `\\`):
			b.WriteByte('\\')
			i += 2
		case s[i] == '"':
			return b.String(), i + 1, nil
		default:
			b.WriteByte(s[i])
			i++
		}
	}
	return "", i, errUnterminated
}
