package nugetconfig

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// encodeName turns a source name into an XML element name the way the NuGet
// client does for <packageSourceCredentials>: characters that are not legal
// in a name are written as _xHHHH_, and an underscore that would start such
// an escape is itself escaped.
func encodeName(name string) string {
	if name == "" {
		return ""
	}
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		switch {
		case r == '_' && i+1 < len(runes) && runes[i+1] == 'x':
			b.WriteString("_x005F_")
		case i == 0 && isNameStart(r), i > 0 && isNameChar(r):
			b.WriteRune(r)
		case r > 0xFFFF:
			fmt.Fprintf(&b, "_x%08X_", r)
		default:
			fmt.Fprintf(&b, "_x%04X_", r)
		}
	}
	return b.String()
}

// decodeName reverses encodeName. Malformed escapes are left as is.
func decodeName(name string) string {
	if !strings.Contains(name, "_x") {
		return name
	}
	var b strings.Builder
	for i := 0; i < len(name); {
		if r, width, ok := escapeAt(name[i:]); ok {
			b.WriteRune(r)
			i += width
			continue
		}
		b.WriteByte(name[i])
		i++
	}
	return b.String()
}

// escapeAt decodes an _xHHHH_ or _xHHHHHHHH_ escape at the start of s.
func escapeAt(s string) (rune, int, bool) {
	if !strings.HasPrefix(s, "_x") {
		return 0, 0, false
	}
	for _, digits := range []int{4, 8} {
		end := 2 + digits
		if len(s) <= end || s[end] != '_' {
			continue
		}
		v, err := strconv.ParseUint(s[2:end], 16, 32)
		if err != nil {
			continue
		}
		return rune(v), end + 1, true
	}
	return 0, 0, false
}

func isNameStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isNameChar(r rune) bool {
	return isNameStart(r) || unicode.IsDigit(r) || r == '.' || r == '-' ||
		unicode.In(r, unicode.Mn, unicode.Mc)
}
