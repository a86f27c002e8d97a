// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// This file defines the context-tuple model the contextual autoescaper walks
// templates over. Adapted from html/template, condensed to the vocabulary
// strict.go and rawtext.go actually consume.

package autoescape

import "fmt"

// context describes the state an HTML parser would be in after reading a
// given prefix of a given template, and the associated escaping we must
// apply at the point we've reached.
type context struct {
	state   state
	delim   delim
	urlPart urlPart
	jsCtx   jsCtx
	attr    attr
	element element
	err     *Error
}

func (c context) String() string {
	return fmt.Sprintf("{%v %v %v %v %v %v}", c.state, c.delim, c.urlPart, c.jsCtx, c.attr, c.element)
}

func (c context) eq(d context) bool {
	return c.state == d.state &&
		c.delim == d.delim &&
		c.urlPart == d.urlPart &&
		c.jsCtx == d.jsCtx &&
		c.attr == d.attr &&
		c.element == d.element &&
		(c.err == nil) == (d.err == nil)
}

// state describes a high-level HTML/CSS/JS parse state.
type state uint8

const (
	// stateText is parsed character data. An HTML parser is in
	// this state when its parse position is outside an HTML tag,
	// comment, CDATA section, RCDATA/RAWTEXT element body, or
	// attribute value, and isn't inside a `<script>` or `<style>`.
	stateText state = iota
	// stateTag occurs before an HTML attribute or the end of a tag.
	stateTag
	// stateAttrName occurs inside an attribute name.
	stateAttrName
	// stateAfterName occurs after an attribute name ends.
	stateAfterName
	// stateBeforeValue occurs after the equals sign but before the
	// attribute value.
	stateBeforeValue
	// stateHTMLCmt occurs inside an `<!-- HTML comment -->`.
	stateHTMLCmt
	// stateRCDATA occurs inside an RCDATA element (`<textarea>` or
	// `<title>`) as described at
	// http://www.w3.org/TR/html5/syntax.html#elements-0
	stateRCDATA
	// stateAttr occurs inside an HTML attribute whose content is text.
	stateAttr
	// stateURL occurs inside an HTML attribute whose content is a URL.
	stateURL
	// stateJS occurs inside a `<script>` tag.
	stateJS
	// stateJSDqStr occurs inside a JavaScript double-quoted string.
	stateJSDqStr
	// stateJSSqStr occurs inside a JavaScript single-quoted string.
	stateJSSqStr
	// stateJSRegexp occurs inside a JavaScript regexp literal.
	stateJSRegexp
	// stateJSBlockCmt occurs inside a JavaScript `/* block comment */`.
	stateJSBlockCmt
	// stateJSLineCmt occurs inside a JavaScript `// line comment`.
	stateJSLineCmt
	// stateCSS occurs inside a `<style>` tag.
	stateCSS
	// stateCSSDqStr occurs inside a CSS double-quoted string.
	stateCSSDqStr
	// stateCSSSqStr occurs inside a CSS single-quoted string.
	stateCSSSqStr
	// stateCSSDqURL occurs inside a CSS double-quoted url("...").
	stateCSSDqURL
	// stateCSSSqURL occurs inside a CSS single-quoted url('...').
	stateCSSSqURL
	// stateCSSURL occurs inside a CSS unquoted url(...).
	stateCSSURL
	// stateCSSBlockCmt occurs inside a CSS `/* block comment */`.
	stateCSSBlockCmt
	// stateCSSLineCmt occurs inside a CSS `// line comment`.
	stateCSSLineCmt
	// stateError is an infectious error state outside any valid context.
	stateError
)

func (s state) String() string {
	switch s {
	case stateText:
		return "stateText"
	case stateTag:
		return "stateTag"
	case stateAttrName:
		return "stateAttrName"
	case stateAfterName:
		return "stateAfterName"
	case stateBeforeValue:
		return "stateBeforeValue"
	case stateHTMLCmt:
		return "stateHTMLCmt"
	case stateRCDATA:
		return "stateRCDATA"
	case stateAttr:
		return "stateAttr"
	case stateURL:
		return "stateURL"
	case stateJS:
		return "stateJS"
	case stateJSDqStr:
		return "stateJSDqStr"
	case stateJSSqStr:
		return "stateJSSqStr"
	case stateJSRegexp:
		return "stateJSRegexp"
	case stateJSBlockCmt:
		return "stateJSBlockCmt"
	case stateJSLineCmt:
		return "stateJSLineCmt"
	case stateCSS:
		return "stateCSS"
	case stateCSSDqStr:
		return "stateCSSDqStr"
	case stateCSSSqStr:
		return "stateCSSSqStr"
	case stateCSSDqURL:
		return "stateCSSDqURL"
	case stateCSSSqURL:
		return "stateCSSSqURL"
	case stateCSSURL:
		return "stateCSSURL"
	case stateCSSBlockCmt:
		return "stateCSSBlockCmt"
	case stateCSSLineCmt:
		return "stateCSSLineCmt"
	case stateError:
		return "stateError"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// isComment reports whether s is one of the comment states.
func isComment(s state) bool {
	switch s {
	case stateHTMLCmt, stateJSBlockCmt, stateJSLineCmt, stateCSSBlockCmt, stateCSSLineCmt:
		return true
	}
	return false
}

// isInScriptOrStyle reports whether s occurs inside a <script> or <style>.
func isInScriptOrStyle(s state) bool {
	switch s {
	case stateJS, stateJSDqStr, stateJSSqStr, stateJSRegexp, stateJSBlockCmt, stateJSLineCmt,
		stateCSS, stateCSSDqStr, stateCSSSqStr, stateCSSDqURL, stateCSSSqURL, stateCSSURL,
		stateCSSBlockCmt, stateCSSLineCmt:
		return true
	}
	return false
}

// delim is the delimiter that will end the current HTML attribute.
type delim uint8

const (
	// delimNone occurs outside any attribute.
	delimNone delim = iota
	// delimDoubleQuote occurs when the value is delimited by double quotes.
	delimDoubleQuote
	// delimSingleQuote occurs when the value is delimited by single quotes.
	delimSingleQuote
	// delimSpaceOrTagEnd occurs when the value is unquoted.
	delimSpaceOrTagEnd
)

func (d delim) String() string {
	switch d {
	case delimNone:
		return "delimNone"
	case delimDoubleQuote:
		return "delimDoubleQuote"
	case delimSingleQuote:
		return "delimSingleQuote"
	case delimSpaceOrTagEnd:
		return "delimSpaceOrTagEnd"
	default:
		return fmt.Sprintf("delim(%d)", uint8(d))
	}
}

// urlPart identifies a part in an RFC 3986 URL.
type urlPart uint8

const (
	// urlPartNone occurs before the path.
	urlPartNone urlPart = iota
	// urlPartPreQuery occurs in the path, authority, or other parts of a URL
	// before the query string.
	urlPartPreQuery
	// urlPartQueryOrFrag occurs in the query string or fragment.
	urlPartQueryOrFrag
	// urlPartUnknown occurs when a URL prefix is ambiguous between branches,
	// such as when the last part was produced by a conditional that ends in
	// different url parts.
	urlPartUnknown
)

func (u urlPart) String() string {
	switch u {
	case urlPartNone:
		return "urlPartNone"
	case urlPartPreQuery:
		return "urlPartPreQuery"
	case urlPartQueryOrFrag:
		return "urlPartQueryOrFrag"
	case urlPartUnknown:
		return "urlPartUnknown"
	default:
		return fmt.Sprintf("urlPart(%d)", uint8(u))
	}
}

// jsCtx determines whether a '/' starts a division operator or a regexp
// literal, since JS lacks a symbol to distinguish the two in all cases (NB:
// this is not an issue in most other languages with infix division).
type jsCtx uint8

const (
	// jsCtxRegexp occurs where a '/' would start a regexp literal.
	jsCtxRegexp jsCtx = iota
	// jsCtxDivOp occurs where a '/' would start a division operator.
	jsCtxDivOp
	// jsCtxUnknown occurs where a '/' is ambiguous because of branching
	// template code.
	jsCtxUnknown
)

func (j jsCtx) String() string {
	switch j {
	case jsCtxRegexp:
		return "jsCtxRegexp"
	case jsCtxDivOp:
		return "jsCtxDivOp"
	case jsCtxUnknown:
		return "jsCtxUnknown"
	default:
		return fmt.Sprintf("jsCtx(%d)", uint8(j))
	}
}

// attr identifies the kind of HTML attribute whose value is parsed.
type attr uint8

const (
	// attrNone corresponds to a normal attribute or no attribute.
	attrNone attr = iota
	// attrScript corresponds to the event handler attributes, such as
	// `onclick`.
	attrScript
	// attrScriptType corresponds to the type attribute in
	// `<script type=...>`.
	attrScriptType
	// attrStyle corresponds to the style attribute, whose value is CSS.
	attrStyle
	// attrURL corresponds to an attribute whose value is a URL, such as
	// `href`.
	attrURL
)

func (a attr) String() string {
	switch a {
	case attrNone:
		return "attrNone"
	case attrScript:
		return "attrScript"
	case attrScriptType:
		return "attrScriptType"
	case attrStyle:
		return "attrStyle"
	case attrURL:
		return "attrURL"
	default:
		return fmt.Sprintf("attr(%d)", uint8(a))
	}
}

// attrStartStates maps attr to the state that begins its value.
var attrStartStates = [...]state{
	attrNone:       stateAttr,
	attrScript:     stateJS,
	attrScriptType: stateAttr,
	attrStyle:      stateCSS,
	attrURL:        stateURL,
}

// element identifies the kind of HTML element the parser is in, for the
// handful of elements whose content is not parsed as ordinary text (RCDATA,
// script, style).
type element uint8

const (
	// elementNone corresponds to html elements not specifically identified
	// below.
	elementNone element = iota
	// elementScript corresponds to the `<script>` element.
	elementScript
	// elementStyle corresponds to the `<style>` element.
	elementStyle
	// elementTextarea corresponds to the `<textarea>` element.
	elementTextarea
	// elementTitle corresponds to the `<title>` element.
	elementTitle
)

func (e element) String() string {
	switch e {
	case elementNone:
		return "elementNone"
	case elementScript:
		return "elementScript"
	case elementStyle:
		return "elementStyle"
	case elementTextarea:
		return "elementTextarea"
	case elementTitle:
		return "elementTitle"
	default:
		return fmt.Sprintf("element(%d)", uint8(e))
	}
}

// elementContentType maps element to the state its content is parsed in.
var elementContentType = map[element]state{
	elementNone:     stateText,
	elementScript:   stateJS,
	elementStyle:    stateCSS,
	elementTextarea: stateRCDATA,
	elementTitle:    stateRCDATA,
}

// escapingMode is one step of escaping: a directive name paired with the
// transition it causes. Several escaping modes may apply to a single
// print command, e.g. normalizeUri then escapeHtmlAttribute.
type escapingMode struct {
	directiveName string
}

var (
	modeEscapeHTML            = escapingMode{"escapeHtml"}
	modeEscapeHTMLAttr        = escapingMode{"escapeHtmlAttribute"}
	modeEscapeHTMLAttrNospace = escapingMode{"escapeHtmlAttributeNospace"}
	modeEscapeHTMLRCDATA      = escapingMode{"escapeHtmlRcdata"}
	modeFilterHTMLElementName = escapingMode{"filterHtmlElementName"}
	modeEscapeJSString        = escapingMode{"escapeJsString"}
	modeEscapeJSValue         = escapingMode{"escapeJsValue"}
	modeEscapeJSRegexp        = escapingMode{"escapeJsRegex"}
	modeFilterCSSValue        = escapingMode{"filterCssValue"}
	modeEscapeCSSString       = escapingMode{"escapeCssString"}
	modeEscapeURI             = escapingMode{"escapeUri"}
	modeNormalizeURI          = escapingMode{"normalizeUri"}
	modeFilterNormalizeURI    = escapingMode{"filterNormalizeUri"}
)

// beforeDynamicValue returns the context that applies when a dynamic value
// (a {print}) is emitted at c. It nudges out of states that only exist
// because no content has been seen yet.
func (c context) beforeDynamicValue() context {
	return nudge(c)
}

// escapingModes returns the sequence of escaping directives appropriate for
// emitting a dynamic value at context c, innermost-last is misleading here:
// these apply in order, first to last.
func (c context) escapingModes() []escapingMode {
	var modes []escapingMode
	switch c.state {
	case stateError:
		return nil
	case stateURL, stateCSSDqStr, stateCSSSqStr, stateCSSDqURL, stateCSSSqURL, stateCSSURL:
		switch c.urlPart {
		case urlPartNone:
			modes = append(modes, modeFilterNormalizeURI)
			fallthrough
		case urlPartPreQuery:
			if c.state == stateCSSDqStr || c.state == stateCSSSqStr {
				modes = append(modes, modeEscapeCSSString)
			} else {
				modes = append(modes, modeNormalizeURI)
			}
		case urlPartQueryOrFrag:
			modes = append(modes, modeEscapeURI)
		case urlPartUnknown:
			return nil
		}
	case stateJS:
		modes = append(modes, modeEscapeJSValue)
	case stateJSDqStr, stateJSSqStr:
		modes = append(modes, modeEscapeJSString)
	case stateJSRegexp:
		modes = append(modes, modeEscapeJSRegexp)
	case stateCSS:
		modes = append(modes, modeFilterCSSValue)
	case stateText:
		modes = append(modes, modeEscapeHTML)
	case stateRCDATA:
		modes = append(modes, modeEscapeHTMLRCDATA)
	case stateAttr:
		// extra-escaping handled by the delim switch below
	case stateAttrName, stateTag:
		modes = append(modes, modeFilterHTMLElementName)
	default:
		if isComment(c.state) {
			return nil
		}
	}
	switch c.delim {
	case delimNone:
	case delimSpaceOrTagEnd:
		modes = append(modes, modeEscapeHTMLAttrNospace)
	default:
		modes = append(modes, modeEscapeHTMLAttr)
	}
	return modes
}

// isCompatibleWith reports whether a previously-computed escaping mode is
// still valid for a new arrival at context c; used to detect a template
// whose escaping requirement differs across call sites.
func (c context) isCompatibleWith(m escapingMode) bool {
	var want = c.escapingModes()
	if len(want) == 0 {
		return false
	}
	return want[0] == m
}

// contextAfterEscaping returns the context following the application of
// the named escaping mode to a dynamic value in context c. Escaping a value
// never changes the state except to step a JS div/regexp ambiguity forward.
func (c context) contextAfterEscaping(m escapingMode) context {
	if c.state == stateJS {
		c.jsCtx = jsCtxDivOp
	}
	return c
}
