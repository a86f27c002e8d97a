// This file implements the sanitizing functions Strict wires into
// soyhtml.PrintDirectives. Each has the signature a print directive needs
// (func(data.Value, []data.Value) data.Value) rather than the
// (text string) -> string shape html/template's escapers use, since Soy
// directives operate on data.Value, not on already-stringified template
// output. Where the underlying transform is the same, they reuse the same
// stdlib helpers soyhtml/directives.go already reaches for.
package autoescape

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"text/template"

	"github.com/robfig/soy/data"
)

// htmlEscaper escapes a value for use as ordinary HTML text or RCDATA
// element content. A value already marked HTML is emitted verbatim: its
// producer has already vouched it's well-formed markup for this context.
func htmlEscaper(value data.Value, _ []data.Value) data.Value {
	if h, ok := value.(HTML); ok {
		return data.String(string(h))
	}
	return data.String(template.HTMLEscapeString(value.String()))
}

// rcdataEscaper escapes a value for use inside a <textarea> or <title>
// element body. RCDATA content only interprets entities, so plain HTML
// escaping is sufficient and safe.
func rcdataEscaper(value data.Value, _ []data.Value) data.Value {
	return htmlEscaper(value, nil)
}

// attrEscaper escapes a value for use inside a quoted HTML attribute value.
func attrEscaper(value data.Value, _ []data.Value) data.Value {
	return htmlEscaper(value, nil)
}

// htmlNospaceEscaper escapes a value for use inside an unquoted HTML
// attribute value, where whitespace and several other characters would
// otherwise end the attribute early.
var htmlNospaceReplacer = strings.NewReplacer(
	"\t", "&#9;", "\n", "&#10;", "\v", "&#11;", "\f", "&#12;", "\r", "&#13;",
	" ", "&#32;", "\"", "&#34;", "&", "&amp;", "'", "&#39;", "+", "&#43;",
	"<", "&lt;", "=", "&#61;", ">", "&gt;", "`", "&#96;",
)

func htmlNospaceEscaper(value data.Value, _ []data.Value) data.Value {
	return data.String(htmlNospaceReplacer.Replace(value.String()))
}

// htmlNameFilter restricts a dynamic value used as an HTML element or
// attribute name to the characters HTML5 tag/attribute names allow;
// anything else is replaced with filterFailsafe, the way an unrecognized
// input is never interpolated verbatim into a structural position.
var validHTMLName = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9:_-]*$`)

func htmlNameFilter(value data.Value, _ []data.Value) data.Value {
	var s = value.String()
	if !validHTMLName.MatchString(s) {
		return filterFailsafe
	}
	return data.String(s)
}

// jsStrEscaper escapes a value for embedding inside a single- or
// double-quoted JavaScript string literal. json.Marshal of a Go string
// produces a double-quoted JS/JSON string literal with control characters
// and backslashes escaped; stripping the surrounding quotes leaves the
// escaped string body. In that body the quotes and '/' are then rewritten
// as \x22, \x27 and \/, and json's six-character unicode escapes of '<',
// '>' and '&' as \x3c, \x3e and \x26.
var jsStrReplacer = strings.NewReplacer(
	`\\`, `\\`, `\"`, `\x22`, `\`+"u003c", `\x3c`, `\`+"u003e", `\x3e`,
	`\`+"u0026", `\x26`, `'`, `\x27`, `/`, `\/`,
)

func jsStrEscaper(value data.Value, _ []data.Value) data.Value {
	j, err := json.Marshal(value.String())
	if err != nil {
		panic(fmt.Errorf("escapeJsString: %v", err))
	}
	var s = string(j)
	s = strings.TrimPrefix(s, `"`)
	s = strings.TrimSuffix(s, `"`)
	return data.String(jsStrReplacer.Replace(s))
}

// jsRegexpEscaper escapes a value for embedding inside a /regexp/ literal's
// body, where the JS string escapes above are insufficient because regexp
// metacharacters need their own escaping.
var jsRegexpSpecial = regexp.MustCompile(`[\\.+*?()|\[\]{}^$/\x00-\x1f\x7f]`)

func jsRegexpEscaper(value data.Value, _ []data.Value) data.Value {
	var s = value.String()
	s = jsRegexpSpecial.ReplaceAllStringFunc(s, func(r string) string {
		if r == "\x00" {
			return `\0`
		}
		return `\` + r
	})
	return data.String(s)
}

// jsValEscaper renders a value as a JS expression with neither free
// variables nor side effects, for use where a print statement appears in a
// JS expression context, e.g. `var x = {$foo};`.
func jsValEscaper(value data.Value, _ []data.Value) data.Value {
	j, err := json.Marshal(value)
	if err != nil {
		panic(fmt.Errorf("escapeJsValue: %v", err))
	}
	return data.String(strings.ReplaceAll(string(j), "</", `<\/`))
}

// cssEscaper escapes a value for embedding inside a quoted CSS string.
var cssStringReplacer = strings.NewReplacer(
	`\`, `\\`, `"`, `\22 `, `'`, `\27 `, "\n", `\a `, "\r", `\d `, "\f", `\c `,
)

func cssEscaper(value data.Value, _ []data.Value) data.Value {
	return data.String(cssStringReplacer.Replace(value.String()))
}

// cssValueFilter restricts a value used as a bare CSS property value (not
// inside a string or url()) to characters that cannot start a new
// declaration, comment, or expression; anything else becomes
// filterFailsafe.
var validCSSValue = regexp.MustCompile(`^(?:[0-9a-zA-Z_,.!#%\- ]|\z)*$`)

func cssValueFilter(value data.Value, _ []data.Value) data.Value {
	var s = value.String()
	if !validCSSValue.MatchString(s) || strings.Contains(s, "/*") || strings.Contains(s, "*/") {
		return filterFailsafe
	}
	return data.String(s)
}

// urlEscaper escapes a value for use as a complete query parameter or
// fragment value.
func urlEscaper(value data.Value, _ []data.Value) data.Value {
	return data.String(url.QueryEscape(value.String()))
}

// urlNormalizer percent-encodes the characters in a value that would
// otherwise be misinterpreted inside a URL (quotes, whitespace, and HTML's
// own metacharacters), while leaving existing percent-encoding and
// URL-reserved characters (: / ? # [ ] @ ! $ & ( ) * + , ; = %) alone.
func urlNormalizer(value data.Value, _ []data.Value) data.Value {
	var s = value.String()
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '"' || c == '\'' || c == '<' || c == '>' || c == '`' ||
			c == ' ' || c == '\t' || c == '\n' || c == '\r':
			fmt.Fprintf(&b, "%%%02x", c)
		default:
			b.WriteByte(c)
		}
	}
	return data.String(b.String())
}

// urlFilter blocks dangerous URL schemes such as "javascript:" and
// "data:", the way browsers would otherwise execute or misrender them,
// before delegating to urlNormalizer for the rest.
var dangerousURLScheme = regexp.MustCompile(`(?i)^[a-z][a-z0-9+.-]*:`)
var safeURLScheme = regexp.MustCompile(`(?i)^(?:https?|mailto|ftp|tel):`)

func urlFilter(value data.Value, args []data.Value) data.Value {
	var s = strings.TrimLeftFunc(value.String(), func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	if dangerousURLScheme.MatchString(s) && !safeURLScheme.MatchString(s) {
		return data.String("#" + string(filterFailsafe))
	}
	return urlNormalizer(value, args)
}
