package autoescape

import "fmt"

// isValidStartContextForKind reports whether ctx is an acceptable context
// for a template or {param}/{let} block of the given declared kind to begin
// in. "attributes" content may begin either right after a tag name or
// inside an existing attribute list, since both are valid call sites for
// an attributes-kind template.
func isValidStartContextForKind(k kind, ctx context) bool {
	if k == kindAttr {
		return ctx.state == stateAttrName || ctx.state == stateTag
	}
	return ctx.state == startStateForKind(string(k))
}

// isValidEndContextForKind reports whether ctx is an acceptable context for
// content of the given declared kind to end in, i.e. the content didn't
// leave an HTML tag, string literal, or comment unterminated.
func isValidEndContextForKind(k kind, ctx context) bool {
	switch k {
	case kindNone, kindHTML, kindText:
		return ctx.state == stateText
	case kindCSS:
		return ctx.state == stateCSS
	case kindURL:
		return ctx.state == stateURL && ctx.urlPart != urlPartNone
	case kindAttr:
		return ctx.state == stateAttrName || ctx.state == stateTag
	case kindJS:
		return ctx.state == stateJS
	default:
		panic(fmt.Errorf("content kind %v has no associated end context", k))
	}
}

// likelyEndContextMismatchCause gives a human-readable guess at what left
// ctx unterminated, for use in an ErrEndContext message.
func likelyEndContextMismatchCause(k kind, ctx context) string {
	if k == kindAttr {
		return "an unterminated attribute value, or ending with an unquoted attribute"
	}

	switch ctx.state {
	case stateTag, stateAttrName, stateAfterName, stateBeforeValue:
		return "an unterminated HTML tag or attribute"
	case stateCSS:
		return "an unclosed style block or attribute"
	case stateJS:
		return "an unclosed script block or attribute"
	case stateCSSBlockCmt, stateCSSLineCmt, stateJSBlockCmt, stateJSLineCmt:
		return "an unterminated comment"
	case stateCSSDqStr, stateCSSSqStr, stateJSDqStr, stateJSSqStr:
		return "an unterminated string literal"
	case stateURL, stateCSSURL, stateCSSDqURL, stateCSSSqURL:
		return "an unterminated or empty URI"
	case stateJSRegexp:
		return "an unterminated regular expression"
	default:
		return "unknown to compiler"
	}
}
