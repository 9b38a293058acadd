package shapefile

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// codePageAliases maps the bare numbers ESRI writes into .cpg files.
var codePageAliases = map[string]encoding.Encoding{
	"1250":  charmap.Windows1250,
	"1251":  charmap.Windows1251,
	"1252":  charmap.Windows1252,
	"437":   charmap.CodePage437,
	"850":   charmap.CodePage850,
	"88591": charmap.ISO8859_1,
	"65001": unicode.UTF8,
}

// lookupCharset resolves a charset label ("UTF-8", "windows-1252", "1252").
func lookupCharset(name string) (encoding.Encoding, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return unicode.UTF8, nil
	}
	if e, ok := codePageAliases[n]; ok {
		return e, nil
	}
	e, err := htmlindex.Get(n)
	if err != nil {
		return nil, fmt.Errorf("unknown charset %q", name)
	}
	return e, nil
}

// readCPG returns the charset named in a .cpg sidecar, or "" if there is
// none.
func readCPG(path string) (string, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// decoder turns raw DBF bytes into UTF-8 text.
type decoder struct {
	dec  *encoding.Decoder
	utf8 bool
}

func newDecoder(e encoding.Encoding) decoder {
	return decoder{dec: e.NewDecoder(), utf8: e == unicode.UTF8}
}

func (d decoder) String(raw string) string {
	raw = strings.Trim(raw, " \x00")
	if d.utf8 || raw == "" {
		return raw
	}
	out, err := d.dec.String(raw)
	if err != nil {
		return raw
	}
	return out
}
