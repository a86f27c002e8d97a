// Package parse converts a soy template into its in-memory representation (AST)
package parse

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"unicode"

	"github.com/robfig/soy/ast"
	"github.com/robfig/soy/data"
)

// tree is the parsed representation of a single soy file.
type tree struct {
	name       string                // name provided for the input
	root       *ast.ListNode         // top-level root of the tree
	text       string                // the full input text
	lex        *lexer                // lexer provides a sequence of tokens
	token      [2]item               // two-token lookahead
	peekCount  int                   // how many tokens have we backed up?
	namespace  string                // the current namespace, for fully-qualifying template.
	delpackage string                // the current file's {delpackage}, if any
	aliases    map[string]string     // map from alias to namespace e.g. {"c": "a.b.c"}
	globals    map[string]data.Value // global (compile-time constants) values by name
	gen        *ast.IDGen            // node id allocator, shared across a file
}

// meta allocates a fresh Meta at the given position.
func (t *tree) meta(pos ast.Pos) ast.Meta {
	return ast.M(t.gen, pos)
}

// SoyFile parses the input into a SoyFileNode (the AST).
// The result may be used as input to a soy backend to generate HTML or JS.
func SoyFile(name, text string, globals data.Map) (node *ast.SoyFileNode, err error) {
	return SoyFileWithIDGen(name, text, globals, ast.NewIDGen())
}

// SoyFileWithIDGen is like SoyFile but draws node ids from a caller-supplied
// generator, so that every file in a file set gets distinct ids.
func SoyFileWithIDGen(name, text string, globals data.Map, gen *ast.IDGen) (node *ast.SoyFileNode, err error) {
	var t = &tree{
		name:    name,
		text:    text,
		aliases: make(map[string]string),
		globals: globals,
		lex:     lex(name, text),
		gen:     gen,
	}
	defer t.recover(&err)
	t.root = t.itemList(itemEOF)
	t.lex = nil
	return &ast.SoyFileNode{
		Meta: t.meta(0),
		Name: t.name,
		Text: t.text,
		Body: t.root.Nodes,
	}, nil
}

// itemList:
//	textOrTag*
// Terminates when it comes across the given end tag.
func (t *tree) itemList(until ...itemType) *ast.ListNode {
	var list *ast.ListNode
	for {
		var token = t.next()
		if list == nil {
			list = &ast.ListNode{Meta: t.meta(token.pos)}
		}
		var node, halt = t.textOrTag(token, until)
		if halt {
			return list
		}
		if node != nil {
			list.Nodes = append(list.Nodes, node)
		}
	}
}

// textOrTag reads raw text or recognizes the start of tags until the end tag.
func (t *tree) textOrTag(token item, until []itemType) (node ast.Node, halt bool) {
	for token.typ == itemComment {
		token = t.next() // skip any comments
	}

	// Two ways to end a list:
	// 1. We found the until token (e.g. EOF)
	if isOneOf(token.typ, until) {
		return nil, true
	}

	// 2. The until token is a command, e.g. {else} {/template}
	var token2 = t.next()
	if token.typ == itemLeftDelim && isOneOf(token2.typ, until) {
		return nil, true
	}

	t.backup()
	switch token.typ {
	case itemText:
		var text = token.val
		var next item
		for {
			next = t.next()
			if next.typ != itemText {
				break
			}
			text += next.val
		}
		t.backup()
		var textvalue = rawtext(text)
		if len(textvalue) == 0 {
			return nil, false
		}
		return &ast.RawTextNode{Meta: t.meta(token.pos), Text: textvalue}, false
	case itemLeftDelim:
		return t.beginTag(), false
	case itemSoyDocStart:
		return t.parseSoyDoc(token), false
	default:
		t.unexpected(token, "input")
	}
	return nil, false
}

var specialChars = map[itemType]string{
	itemNil:            "",
	itemSpace:          " ",
	itemTab:            "\t",
	itemNewline:        "\n",
	itemCarriageReturn: "\r",
	itemLeftBrace:      "{",
	itemRightBrace:     "}",
}

// beginTag parses the contents of delimiters (within a template)
// The contents could be a command, variable, function call, expression, etc.
// { already read.
func (t *tree) beginTag() ast.Node {
	switch token := t.next(); token.typ {
	case itemNamespace:
		return t.parseNamespace(token)
	case itemDelpackage:
		return t.parseDelpackage(token)
	case itemImport:
		return t.parseImport(token)
	case itemTemplate:
		return t.parseTemplateDecl(token, templateKindBasic)
	case itemDeltemplate:
		return t.parseTemplateDecl(token, templateKindDelegate)
	case itemElement:
		return t.parseTemplateDecl(token, templateKindElement)
	case itemAtParam:
		return t.parseTypedParam(token, false)
	case itemAtInject:
		return t.parseTypedParam(token, true)
	case itemAtState:
		return t.parseState(token)
	case itemIf:
		return t.parseIf(token)
	case itemMsg:
		return t.parseMsg(token)
	case itemForeach, itemFor:
		return t.parseFor(token)
	case itemSwitch:
		return t.parseSwitch(token)
	case itemCall:
		return t.parseCall(token, false)
	case itemDelcall:
		return t.parseCall(token, true)
	case itemVelog:
		return t.parseVeLog(token)
	case itemLiteral:
		t.expect(itemRightDelim, "literal")
		literalText := t.expect(itemText, "literal")
		n := &ast.RawTextNode{Meta: t.meta(literalText.pos), Text: []byte(literalText.val)}
		t.expect(itemLeftDelim, "literal")
		t.expect(itemLiteralEnd, "literal")
		t.expect(itemRightDelim, "literal")
		return n
	case itemCss:
		return t.parseCss(token)
	case itemLog:
		t.expect(itemRightDelim, "log")
		logBody := t.itemList(itemLogEnd)
		t.expect(itemRightDelim, "log")
		return &ast.LogNode{Meta: t.meta(token.pos), Body: logBody}
	case itemDebugger:
		t.expect(itemRightDelim, "debugger")
		return &ast.DebuggerNode{Meta: t.meta(token.pos)}
	case itemLet:
		return t.parseLet(token)
	case itemAlias:
		t.parseAlias(token)
		return nil
	case itemNil, itemSpace, itemTab, itemNewline, itemCarriageReturn, itemLeftBrace, itemRightBrace:
		t.expect(itemRightDelim, "special char")
		return &ast.RawTextNode{Meta: t.meta(token.pos), Text: []byte(specialChars[token.typ])}
	case itemIdent, itemDollarIdent, itemNull, itemBool, itemFloat, itemInteger, itemString, itemNegate, itemNot, itemLeftBracket:
		// print is implicit, so the tag may also begin with any value type or unary op.
		t.backup()
		fallthrough
	case itemPrint:
		return t.parsePrint(token)
	default:
		t.unexpected(token, "tag")
	}
	return nil
}

// print has just been read (or inferred)
func (t *tree) parsePrint(token item) ast.Node {
	var expr = t.parseExpr(0)
	var directives []*ast.PrintDirectiveNode
	for {
		switch tok := t.next(); tok.typ {
		case itemRightDelim:
			return &ast.PrintNode{Meta: t.meta(token.pos), Arg: expr, Directives: directives}
		case itemPipe:
			// read the directive name and see if there are arguments
			var id = t.expect(itemIdent, "print directive")
			var args []ast.Node
			for {
				// each argument is preceeded by a colon (first arg) or comma (subsequent)
				switch next := t.next(); next.typ {
				case itemColon, itemComma:
					args = append(args, t.parseExpr(0))
					continue
				}
				t.backup()
				directives = append(directives, &ast.PrintDirectiveNode{Meta: t.meta(tok.pos), Name: id.val, Args: args})
				break
			}
		default:
			t.unexpected(tok, "print. (expected '|' or '}')")
		}
	}
}

// parseAlias updates the tree with the given alias.
// Aliases are applied at immediately (at parse time) to new nodes.
// "alias" has just been read.
func (t *tree) parseAlias(token item) {
	var name = t.expect(itemIdent, "alias").val
	var lastSegment = name
	for {
		switch next := t.next(); next.typ {
		case itemDotIdent:
			name += next.val
			lastSegment = next.val[1:]
		case itemRightDelim:
			t.aliases[lastSegment] = name
			return
		default:
			t.unexpected(next, "alias. (expected '}')")
		}
	}
}

// "let" has just been read.
func (t *tree) parseLet(token item) ast.Node {
	var name = t.expect(itemDollarIdent, "let")
	switch next := t.next(); next.typ {
	case itemColon:
		var node = &ast.LetValueNode{Meta: t.meta(token.pos), Name: name.val[1:], Expr: t.parseExpr(0)}
		t.expect(itemRightDelimEnd, "let")
		return node
	case itemRightDelim:
		var node = &ast.LetContentNode{Meta: t.meta(token.pos), Name: name.val[1:], Body: t.itemList(itemLetEnd)}
		t.expect(itemRightDelim, "let")
		return node
	case itemIdent:
		t.backup()
		var attrs = t.parseAttrs("kind")
		t.expect(itemRightDelim, "let")
		var node = &ast.LetContentNode{Meta: t.meta(token.pos), Name: name.val[1:], Kind: attrs["kind"], Body: t.itemList(itemLetEnd)}
		t.expect(itemRightDelim, "let")
		return node
	default:
		t.unexpected(next, "{let}")
	}
	panic("unreachable")
}

// "css" has just been read.
func (t *tree) parseCss(token item) ast.Node {
	var cmdText = t.expect(itemText, "css")
	t.expect(itemRightDelim, "css")
	var lastComma = strings.LastIndex(cmdText.val, ",")
	if lastComma == -1 {
		return &ast.CssNode{Meta: t.meta(token.pos), Suffix: strings.TrimSpace(cmdText.val)}
	}
	var exprText = strings.TrimSpace(cmdText.val[:lastComma])
	return &ast.CssNode{
		Meta:   t.meta(token.pos),
		Expr:   t.parseQuotedExpr(exprText),
		Suffix: strings.TrimSpace(cmdText.val[lastComma+1:]),
	}
}

// "call" or "delcall" has just been read.
func (t *tree) parseCall(token item, isDelegate bool) ast.Node {
	var templateName string
	switch tok := t.next(); tok.typ {
	case itemDotIdent:
		templateName = tok.val
	case itemIdent:
		// this ident could either be {call fully.qualified.name} or attributes.
		switch tok2 := t.next(); tok2.typ {
		case itemDotIdent:
			templateName = tok.val + tok2.val
			for tokn := t.next(); tokn.typ == itemDotIdent; tokn = t.next() {
				templateName += tokn.val
			}
			t.backup()
		default:
			t.backup2(tok)
		}
	default:
		t.backup()
	}
	attrs := t.parseAttrs("name", "data", "variant")

	if templateName == "" {
		templateName = attrs["name"]
	}
	if templateName == "" {
		t.errorf("call: template name not found")
	}

	// If it's not a fully qualified template name and it's a basic call,
	// apply the namespace or aliases. Delegate names are looked up by their
	// own identifier space, not the caller's namespace.
	if !isDelegate {
		if templateName[0] == '.' {
			templateName = t.namespace + templateName
		} else if dot := strings.Index(templateName, "."); dot != -1 {
			if alias, ok := t.aliases[templateName[:dot]]; ok {
				templateName = alias + templateName[dot:]
			}
		}
	}

	var allData = false
	var dataNode ast.Node = nil
	if data, ok := attrs["data"]; ok {
		if data == "all" {
			allData = true
		} else {
			dataNode = t.parseQuotedExpr(data)
		}
	}
	var variant ast.Node
	if v, ok := attrs["variant"]; ok {
		variant = t.parseQuotedExpr(v)
	}

	var endTok, closeTok = itemCallEnd, itemCallEnd
	if isDelegate {
		endTok = itemDelcallEnd
	}
	_ = closeTok

	switch tok := t.next(); tok.typ {
	case itemRightDelimEnd:
		return &ast.CallNode{Meta: t.meta(token.pos), Name: templateName, AllData: allData, Data: dataNode, IsDelegate: isDelegate, Variant: variant}
	case itemRightDelim:
		body := t.parseCallParams(endTok)
		t.expect(itemLeftDelim, "call")
		t.expect(endTok, "call")
		t.expect(itemRightDelim, "call")
		return &ast.CallNode{Meta: t.meta(token.pos), Name: templateName, AllData: allData, Data: dataNode, Params: body, IsDelegate: isDelegate, Variant: variant}
	default:
		t.unexpected(tok, "error scanning {call}")
	}
	panic("unreachable")
}

// parseCallParams collects a list of call params, of which there are many
// different forms:
// {param a: 'expr'/}
// {param a}expr{/param}
// {param key="a" value="'expr'"/}
// {param key="a"}expr{/param}
// The closing delimiter of the {call} has just been read.
func (t *tree) parseCallParams(endTok itemType) []ast.Node {
	var params []ast.Node
	for {
		var (
			key   string
			value ast.Node
		)

		var initial = t.nextNonComment()
		for initial.typ == itemText {
			// content is not allowed outside a param, but it's ok if it's a comment.
			// see if anything is left after running it through rawtext()
			var text = rawtext(initial.val)
			if len(text) != 0 {
				t.unexpected(initial, "{call}, in between {param}'s (orphan content)")
			}
			initial = t.nextNonComment()
		}
		if initial.typ != itemLeftDelim {
			t.unexpected(initial, "param list (expected '{')")
		}

		var cmd = t.next()
		if cmd.typ == endTok {
			t.backup2(initial)
			return params
		}
		if cmd.typ != itemParam {
			t.errorf("expected param declaration")
		}

		var firstIdent = t.expect(itemIdent, "param")
		switch tok := t.next(); tok.typ {
		case itemColon:
			key = firstIdent.val
			value = t.parseExpr(0)
			t.expect(itemRightDelimEnd, "param")
			params = append(params, &ast.CallParamValueNode{Meta: t.meta(initial.pos), Key: key, Value: value})
			continue
		case itemRightDelim:
			key = firstIdent.val
			value = t.itemList(itemParamEnd)
			t.expect(itemRightDelim, "param")
			params = append(params, &ast.CallParamContentNode{Meta: t.meta(initial.pos), Key: key, Content: value})
			continue
		case itemIdent:
			key = firstIdent.val
			t.backup()
		case itemEquals:
			t.backup2(firstIdent)
		default:
			t.unexpected(tok, "param. (expected ':', '}', or '=')")
		}

		attrs := t.parseAttrs("key", "value", "kind")
		var ok bool
		if key == "" {
			if key, ok = attrs["key"]; !ok {
				t.errorf("param key not found.  (attrs: %v)", attrs)
			}
		}
		var valueStr string
		if valueStr, ok = attrs["value"]; !ok {
			t.expect(itemRightDelim, "param")
			value = t.itemList(itemParamEnd)
			t.expect(itemRightDelim, "param")
			params = append(params, &ast.CallParamContentNode{Meta: t.meta(initial.pos), Key: key, Kind: attrs["kind"], Content: value})
		} else {
			value = t.parseQuotedExpr(valueStr)
			t.expect(itemRightDelimEnd, "param")
			params = append(params, &ast.CallParamValueNode{Meta: t.meta(initial.pos), Key: key, Value: value})
		}
	}
}

// "switch" has just been read.
func (t *tree) parseSwitch(token item) ast.Node {
	const ctx = "switch"
	var switchValue = t.parseExpr(0)
	t.expect(itemRightDelim, ctx)

	var cases []*ast.SwitchCaseNode
	for {
		switch tok := t.next(); tok.typ {
		case itemLeftDelim:
		case itemText: // ignore spaces between tags. text is an error though.
			if allSpace(tok.val) {
				continue
			}
			t.unexpected(tok, "between switch cases")
		case itemCase, itemDefault:
			cases = append(cases, t.parseCase(tok))
		case itemSwitchEnd:
			t.expect(itemRightDelim, ctx)
			return &ast.SwitchNode{Meta: t.meta(token.pos), Value: switchValue, Cases: cases}
		}
	}
}

// "case" has just been read.
func (t *tree) parseCase(token item) *ast.SwitchCaseNode {
	var values []ast.Node
	for {
		if token.typ != itemDefault {
			values = append(values, t.parseExpr(0))
		}
		switch tok := t.next(); tok.typ {
		case itemComma:
			continue
		case itemRightDelim:
			var body = t.itemList(itemCase, itemDefault, itemSwitchEnd)
			t.backup()
			return &ast.SwitchCaseNode{Meta: t.meta(token.pos), Values: values, Body: body}
		default:
			t.unexpected(tok, "switch case")
		}
	}
}

// "for" or "foreach" has just been read.
func (t *tree) parseFor(token item) ast.Node {
	var ctx = token.val
	// for and foreach have the same syntax, differing only in the requirement they impose:
	// - for requires the collection to be a function call to "range"
	// - foreach requires the collection to be a variable reference.
	var vartoken = t.expect(itemDollarIdent, ctx)
	var intoken = t.expect(itemIdent, ctx)
	if intoken.val != "in" {
		t.unexpected(intoken, "for loop (expected 'in')")
	}

	// get the collection to iterate through and enforce the requirements
	var collection = t.parseExpr(0)
	t.expect(itemRightDelim, "foreach")
	if token.typ == itemFor {
		f, ok := collection.(*ast.FunctionNode)
		if !ok || f.Name != "range" {
			t.errorf("for: expected to iterate through range()")
		}
	}

	var body = t.itemList(itemIfempty, itemForeachEnd, itemForEnd)
	t.backup()
	var ifempty ast.Node
	if t.next().typ == itemIfempty {
		t.expect(itemRightDelim, "ifempty")
		ifempty = t.itemList(itemForeachEnd, itemForEnd)
	}
	t.expect(itemRightDelim, "/foreach")
	return &ast.ForNode{Meta: t.meta(token.pos), Var: vartoken.val[1:], List: collection, Body: body, IfEmpty: ifempty}
}

// "if" has just been read.
func (t *tree) parseIf(token item) ast.Node {
	var conds []*ast.IfCondNode
	var isElse = false
	for {
		var condExpr ast.Node
		if !isElse {
			condExpr = t.parseExpr(0)
		}
		t.expect(itemRightDelim, "if")
		var body = t.itemList(itemElseif, itemElse, itemIfEnd)
		conds = append(conds, &ast.IfCondNode{Meta: t.meta(token.pos), Cond: condExpr, Body: body})
		t.backup()
		switch t.next().typ {
		case itemElseif:
			// continue
		case itemElse:
			isElse = true
		case itemIfEnd:
			t.expect(itemRightDelim, "/if")
			return &ast.IfNode{Meta: t.meta(token.pos), Conds: conds}
		}
	}
}

func (t *tree) parseSoyDoc(token item) ast.Node {
	var params []*ast.SoyDocParamNode
	for {
		var optional = false
		switch next := t.next(); next.typ {
		case itemText:
			// ignore
		case itemSoyDocOptionalParam:
			optional = true
			fallthrough
		case itemSoyDocParam:
			var ident = t.expect(itemIdent, "soydoc param")
			params = append(params, &ast.SoyDocParamNode{Meta: t.meta(next.pos), Name: ident.val, Optional: optional})
		case itemSoyDocEnd:
			return &ast.SoyDocNode{Meta: t.meta(token.pos), Params: params}
		default:
			t.unexpected(next, "soydoc")
		}
	}
}

func inStringSlice(item string, group []string) bool {
	for _, x := range group {
		if x == item {
			return true
		}
	}
	return false
}

func (t *tree) parseAttrs(allowedNames ...string) map[string]string {
	var result = make(map[string]string)
	for {
		switch tok := t.next(); tok.typ {
		case itemIdent:
			if !inStringSlice(tok.val, allowedNames) {
				t.unexpected(tok, fmt.Sprintf("attributes. allowed: %v", allowedNames))
			}
			t.expect(itemEquals, "attribute")
			var attrval = t.expect(itemString, "attribute")
			var err error
			result[tok.val], err = strconv.Unquote(attrval.val)
			if err != nil {
				t.error(err)
			}
		case itemRightDelim, itemRightDelimEnd:
			t.backup()
			return result
		default:
			t.unexpected(tok, "attributes")
		}
	}
}

// "msg" has just been read.
func (t *tree) parseMsg(token item) ast.Node {
	const ctx = "msg"
	msgs := []*ast.MsgNode{t.parseOneMsg(token, ctx)}
	for {
		t.backup()
		switch tok := t.next(); tok.typ {
		case itemFallbackmsg:
			msgs = append(msgs, t.parseOneMsg(tok, "fallbackmsg"))
		case itemMsgEnd:
			t.expect(itemRightDelim, ctx)
			if len(msgs) == 1 {
				return msgs[0]
			}
			return &ast.MsgFallbackGroupNode{Meta: t.meta(token.pos), Msgs: msgs}
		default:
			t.unexpected(tok, "msg (expected {fallbackmsg} or {/msg})")
		}
	}
}

// parseOneMsg parses the attrs and body of a single {msg}/{fallbackmsg}
// section; the right delimiter of its opening tag has not yet been consumed.
func (t *tree) parseOneMsg(token item, ctx string) *ast.MsgNode {
	var attrs = t.parseAttrs("desc", "meaning", "hidden")
	if ctx == "msg" {
		if _, ok := attrs["desc"]; !ok {
			t.errorf("Tag 'msg' must have a 'desc' attribute")
		}
	}
	t.expect(itemRightDelim, ctx)
	return &ast.MsgNode{Meta: t.meta(token.pos), Meaning: attrs["meaning"], Desc: attrs["desc"], Body: t.itemList(itemMsgEnd, itemFallbackmsg).Nodes}
}

func (t *tree) parseNamespace(token item) ast.Node {
	if t.namespace != "" {
		t.errorf("file may have only one namespace declaration")
	}
	const ctx = "namespace"
	var name = t.expect(itemIdent, ctx).val
	for {
		switch part := t.next(); part.typ {
		case itemDotIdent:
			name += part.val
		default:
			t.backup()
			var autoescape = t.parseAutoescape(t.parseAttrs("autoescape"))
			t.expect(itemRightDelim, ctx)
			t.namespace = name
			return &ast.NamespaceNode{Meta: t.meta(token.pos), Name: name, Autoescape: autoescape}
		}
	}
}

// "delpackage" has just been read.
func (t *tree) parseDelpackage(token item) ast.Node {
	const ctx = "delpackage"
	var name = t.expect(itemIdent, ctx).val
	for t.peek().typ == itemDotIdent {
		name += t.next().val
	}
	t.expect(itemRightDelim, ctx)
	t.delpackage = name
	return &ast.DelPackageNode{Meta: t.meta(token.pos), Name: name}
}

// "import" has just been read. Grammar:
//   {import Name [as Alias] (, Name [as Alias])* from "path"}
func (t *tree) parseImport(token item) ast.Node {
	const ctx = "import"
	var names []ast.ImportedSymbol
	for {
		var nameTok = t.expect(itemIdent, ctx)
		var sym = ast.ImportedSymbol{Name: nameTok.val, Alias: nameTok.val}
		var next = t.next()
		if next.typ == itemIdent && next.val == "as" {
			sym.Alias = t.expect(itemIdent, ctx).val
			next = t.next()
		}
		names = append(names, sym)
		switch {
		case next.typ == itemComma:
			continue
		case next.typ == itemIdent && next.val == "from":
			var pathTok = t.expect(itemString, ctx)
			path, err := unquoteString(pathTok.val)
			if err != nil {
				t.error(err)
			}
			t.expect(itemRightDelim, ctx)
			return &ast.ImportNode{Meta: t.meta(token.pos), Path: path, Names: names}
		default:
			t.unexpected(next, "import (expected ',', 'as', or 'from')")
		}
	}
}

// parseAutoescape returns the specified autoescape selection, or
// AutoescapeUnspecified by default.
func (t *tree) parseAutoescape(attrs map[string]string) ast.AutoescapeType {
	switch val := attrs["autoescape"]; val {
	case "":
		return ast.AutoescapeUnspecified
	case "contextual":
		return ast.AutoescapeContextual
	case "true":
		return ast.AutoescapeOn
	case "false":
		return ast.AutoescapeOff
	default:
		t.errorf(`expected "true", "false", or "contextual" for autoescape, got %q`, val)
	}
	panic("unreachable")
}

type templateKind int

const (
	templateKindBasic templateKind = iota
	templateKindDelegate
	templateKindElement
)

// "template", "deltemplate", or "element" has just been read.
func (t *tree) parseTemplateDecl(token item, kind templateKind) ast.Node {
	const ctx = "template tag"
	var id = t.expect(itemDotIdent, ctx)
	var attrs = t.parseAttrs("autoescape", "visibility", "kind", "variant", "strict")
	var autoescape = t.parseAutoescape(attrs)
	var visibility = ast.VisibilityPublic
	if attrs["visibility"] == "private" {
		visibility = ast.VisibilityPrivate
	}
	var strictHTML = t.boolAttr(attrs, "strict", attrs["kind"] == "" || attrs["kind"] == "html")
	t.expect(itemRightDelim, ctx)

	var endTok = itemTemplateEnd
	if kind == templateKindDelegate {
		endTok = itemDeltemplateEnd
	} else if kind == templateKindElement {
		endTok = itemElementEnd
	}

	var body = t.itemList(endTok)
	t.expect(itemRightDelim, ctx)

	var params []*ast.ParamNode
	var states []*ast.StateNode
	var bodyNodes = body.Nodes[:0:0]
	for _, n := range body.Nodes {
		switch p := n.(type) {
		case *ast.ParamNode:
			params = append(params, p)
		case *ast.StateNode:
			states = append(states, p)
		default:
			bodyNodes = append(bodyNodes, n)
		}
	}
	body.Nodes = bodyNodes

	tmpl := &ast.TemplateNode{
		Meta:       t.meta(token.pos),
		Name:       t.namespace + id.val,
		Body:       body,
		Autoescape: autoescape,
		Kind:       attrs["kind"],
		Visibility: visibility,
		Params:     params,
		States:     states,
		StrictHTML: strictHTML,
		IsElement:  kind == templateKindElement,
		IsDelegate: kind == templateKindDelegate,
	}
	if kind == templateKindDelegate {
		tmpl.DelPackage = t.delpackage
		tmpl.DelVariant = attrs["variant"]
	}
	return tmpl
}

// "{@param" or "{@inject" has just been read.
func (t *tree) parseTypedParam(token item, injected bool) ast.Node {
	var optional = false
	if t.peek().typ == itemTernIf {
		t.next()
		optional = true
	}
	var name = t.expect(itemIdent, "@param").val
	t.expect(itemColon, "@param")
	var typ = t.parseType()
	var def ast.Node
	if t.peek().typ == itemEquals {
		t.next()
		def = t.parseExpr(0)
	}
	t.expect(itemRightDelim, "@param")
	return &ast.ParamNode{Meta: t.meta(token.pos), Name: name, Type: typ, Optional: optional, Injected: injected, Default: def}
}

// "{@state" has just been read.
func (t *tree) parseState(token item) ast.Node {
	var name = t.expect(itemIdent, "@state").val
	t.expect(itemColon, "@state")
	var typ = t.parseType()
	var def ast.Node
	if t.peek().typ == itemEquals {
		t.next()
		def = t.parseExpr(0)
	}
	t.expect(itemRightDelim, "@state")
	return &ast.StateNode{Meta: t.meta(token.pos), Name: name, Type: typ, Default: def}
}

// Type syntax ----------

// parseType parses `Term ( "|" Term )*`.
func (t *tree) parseType() ast.TypeNode {
	var first = t.parseTypeTerm()
	if t.peek().typ != itemPipe {
		return first
	}
	var members = []ast.TypeNode{first}
	for t.peek().typ == itemPipe {
		t.next()
		members = append(members, t.parseTypeTerm())
	}
	return &ast.UnionTypeNode{Members: members}
}

// parseTypeTerm parses a named type, optionally generic, or a record.
func (t *tree) parseTypeTerm() ast.TypeNode {
	switch tok := t.next(); tok.typ {
	case itemLeftBracket:
		return t.parseRecordType()
	case itemIdent:
		var name = tok.val
		for t.peek().typ == itemDotIdent {
			name += t.next().val
		}
		if t.peek().typ == itemLt {
			t.next()
			var args = []ast.TypeNode{t.parseType()}
			for t.peek().typ == itemComma {
				t.next()
				args = append(args, t.parseType())
			}
			t.expect(itemGt, "generic type")
			return &ast.GenericTypeNode{Name: name, Args: args}
		}
		return &ast.NamedTypeNode{Name: name}
	default:
		t.unexpected(tok, "type")
	}
	panic("unreachable")
}

// "[" has just been read, for a record type: [a: int, b: string].
func (t *tree) parseRecordType() ast.TypeNode {
	var fields []ast.RecordFieldNode
	if t.peek().typ == itemRightBracket {
		t.next()
		return &ast.RecordTypeNode{}
	}
	for {
		var name = t.expect(itemIdent, "record type field").val
		t.expect(itemColon, "record type field")
		var typ = t.parseType()
		fields = append(fields, ast.RecordFieldNode{Name: name, Type: typ})
		switch t.next().typ {
		case itemComma:
			continue
		case itemRightBracket:
			return &ast.RecordTypeNode{Fields: fields}
		default:
			t.errorf("expected ',' or ']' in record type")
		}
	}
}

// "velog" has just been read.
func (t *tree) parseVeLog(token item) ast.Node {
	var veName string
	switch tok := t.next(); tok.typ {
	case itemIdent:
		veName = tok.val
	default:
		t.unexpected(tok, "velog")
	}
	var dataNode ast.Node
	if attrs := t.parseAttrs("data"); attrs["data"] != "" {
		dataNode = t.parseQuotedExpr(attrs["data"])
	}
	t.expect(itemRightDelim, "velog")
	var body = t.itemList(itemVelogEnd)
	t.expect(itemRightDelim, "velog")
	return &ast.VeLogNode{Meta: t.meta(token.pos), VeName: veName, Data: dataNode, Body: body}
}

// Expressions ----------

// Expr returns the parsed representation of the given soy expression.
// An expression is basically anything that you can put inside a print tag.
// For example, string, list or map literals, arithmetic, boolean operations, etc.
func Expr(str string) (node ast.Node, err error) {
	var t = &tree{lex: lexExpr("", str), gen: ast.NewIDGen()}
	defer t.recover(&err)
	return t.parseExpr(0), err
}

// boolAttr returns a boolean value from the given attribute map.
func (t *tree) boolAttr(attrs map[string]string, key string, defaultValue bool) bool {
	switch str, ok := attrs[key]; {
	case !ok:
		return defaultValue
	case str == "true":
		return true
	case str == "false":
		return false
	default:
		t.errorf("expected 'true' or 'false', got %q", str)
	}
	panic("")
}

// parseQuotedExpr ignores the current lex/parse state and parses the given
// string as a standalone expression, sharing this tree's id generator.
func (t *tree) parseQuotedExpr(str string) ast.Node {
	return (&tree{
		lex: lexExpr("", str),
		gen: t.gen,
	}).parseExpr(0)
}

var precedence = map[itemType]int{
	itemNot:          7,
	itemNegate:       7,
	itemMul:          6,
	itemDiv:          6,
	itemMod:          6,
	itemAdd:          5,
	itemSub:          5,
	itemEq:           4,
	itemNotEq:        4,
	itemGt:           4,
	itemGte:          4,
	itemLt:           4,
	itemLte:          4,
	itemOr:           3,
	itemAnd:          2,
	itemNullCoalesce: 1,
	itemElvis:        0,
}

// parseExpr parses an arbitrary expression involving function applications and
// arithmetic.
//
// For handling binary operators, we use the Precedence Climbing algorithm described in:
//   http://www.engr.mun.ca/~theo/Misc/exp_parsing.htm
func (t *tree) parseExpr(prec int) ast.Node {
	n := t.parsePostfix(t.parseExprFirstTerm())
	var tok item
	for {
		tok = t.next()
		q := precedence[tok.typ]
		if !isBinaryOp(tok.typ) || q < prec {
			break
		}
		q++
		n = t.newBinaryOpNode(tok, n, t.parseExpr(q))
	}
	if prec == 0 && tok.typ == itemTernIf {
		return t.parseTernary(n)
	}
	t.backup()
	return n
}

// parsePostfix wraps n in any trailing non-null assertions (expr!).
func (t *tree) parsePostfix(n ast.Node) ast.Node {
	for t.peek().typ == itemBang {
		var bang = t.next()
		n = &ast.NonNullAssertNode{Meta: t.meta(bang.pos), Arg: n}
	}
	return n
}

// Primary ->   "(" Expr ")"
//            | u=UnaryOp PrecExpr(prec(u))
//            | FunctionCall | DataRef | Global | ListLiteral | MapLiteral | Primitive
func (t *tree) parseExprFirstTerm() ast.Node {
	switch tok := t.next(); {
	case isUnaryOp(tok):
		return t.newUnaryOpNode(tok, t.parseExpr(precedence[tok.typ]))
	case tok.typ == itemLeftParen:
		n := t.parseExpr(0)
		t.expect(itemRightParen, "soy expression")
		return n
	case isValue(tok):
		return t.newValueNode(tok)
	default:
		t.unexpected(tok, "soy expression")
	}
	return nil
}

// DataRef ->  ( "$ij." Ident | "$ij?." Ident | DollarIdent )
//             (   DotIdent | QuestionDotIdent | DotIndex | QuestionDotIndex
//               | "[" Expr "]" | "?[" Expr "]" )*
func (t *tree) parseDataRef(tok item) ast.Node {
	var ref = &ast.DataRefNode{Meta: t.meta(tok.pos), Key: tok.val[1:]}
	for {
		var accessNode ast.Node
		var nullsafe = 0
		switch tok := t.next(); tok.typ {
		case itemQuestionDotIdent:
			nullsafe = 1
			fallthrough
		case itemDotIdent:
			accessNode = &ast.DataRefKeyNode{Meta: t.meta(tok.pos), NullSafe: nullsafe == 1, Key: tok.val[nullsafe+1:]}
		case itemQuestionDotIndex:
			nullsafe = 1
			fallthrough
		case itemDotIndex:
			index, err := strconv.ParseInt(tok.val[nullsafe+1:], 10, 0)
			if err != nil {
				t.error(err)
			}
			accessNode = &ast.DataRefIndexNode{Meta: t.meta(tok.pos), NullSafe: nullsafe == 1, Index: int(index)}
		case itemQuestionKey:
			nullsafe = 1
			fallthrough
		case itemLeftBracket:
			accessNode = &ast.DataRefExprNode{Meta: t.meta(tok.pos), NullSafe: nullsafe == 1, Arg: t.parseExpr(0)}
			t.expect(itemRightBracket, "dataref")
		default:
			t.backup()
			return ref
		}
		ref.Access = append(ref.Access, accessNode)
	}
}

// "[" has just been read
func (t *tree) parseListOrMap(token item) ast.Node {
	// check if it's empty
	switch t.next().typ {
	case itemColon:
		t.expect(itemRightBracket, "map literal")
		return &ast.MapLiteralNode{Meta: t.meta(token.pos)}
	case itemRightBracket:
		return &ast.ListLiteralNode{Meta: t.meta(token.pos)}
	}
	t.backup()

	// parse the first expression, and check the subsequent delimiter
	var firstExpr = t.parseExpr(0)
	switch tok := t.next(); tok.typ {
	case itemColon:
		return t.parseMapLiteral(token, firstExpr)
	case itemComma:
		return t.parseListLiteral(token, firstExpr)
	case itemRightBracket:
		return &ast.ListLiteralNode{Meta: t.meta(token.pos), Items: []ast.Node{firstExpr}}
	default:
		t.unexpected(tok, "list/map literal")
	}
	return nil
}

// the first item in the list is provided.
// "," has just been read.
//  ListLiteral -> "[" [ Expr ( "," Expr )* [ "," ] ] "]"
func (t *tree) parseListLiteral(first item, expr ast.Node) ast.Node {
	var items []ast.Node
	items = append(items, expr)
	for {
		items = append(items, t.parseExpr(0))
		next := t.next()
		if next.typ == itemRightBracket {
			return &ast.ListLiteralNode{Meta: t.meta(first.pos), Items: items}
		}
		if next.typ != itemComma {
			t.unexpected(next, "parsing value list")
		}
	}
}

// the first key in the map is provided
// ":" has just been read.
// MapLiteral -> "[" ( ":" | Expr ":" Expr ( "," Expr ":" Expr )* [ "," ] ) "]"
func (t *tree) parseMapLiteral(first item, expr ast.Node) ast.Node {
	firstKey, ok := expr.(*ast.StringNode)
	if !ok {
		t.errorf("expected a string as map key, got: %T", expr)
	}

	var items = make(map[string]ast.Node)
	var key = firstKey.Value
	for {
		items[key] = t.parseExpr(0)
		next := t.next()
		if next.typ == itemRightBracket {
			return &ast.MapLiteralNode{Meta: t.meta(first.pos), Items: items}
		}
		if next.typ != itemComma {
			t.unexpected(next, "map literal")
		}
		tok := t.expect(itemString, "map literal")
		var err error
		key, err = unquoteString(tok.val)
		if err != nil {
			t.error(err)
		}
		t.expect(itemColon, "map literal")
	}
}

// parseTernary parses the ternary operator within an expression.
// itemTernIf has already been read, and the condition is provided.
func (t *tree) parseTernary(cond ast.Node) ast.Node {
	n1 := t.parseExpr(0)
	t.expect(itemColon, "ternary")
	n2 := t.parseExpr(0)
	result := &ast.TernNode{Meta: t.meta(cond.Position()), Arg1: cond, Arg2: n1, Arg3: n2}
	if t.peek().typ == itemColon {
		t.next()
		return t.parseTernary(result)
	}
	return result
}

func isBinaryOp(typ itemType) bool {
	switch typ {
	case itemMul, itemDiv, itemMod,
		itemAdd, itemSub,
		itemEq, itemNotEq, itemGt, itemGte, itemLt, itemLte,
		itemOr, itemAnd, itemElvis, itemNullCoalesce:
		return true
	}
	return false
}

func isUnaryOp(t item) bool {
	switch t.typ {
	case itemNot, itemNegate:
		return true
	}
	return false
}

func isValue(t item) bool {
	switch t.typ {
	case itemNull, itemBool, itemInteger, itemFloat, itemDollarIdent, itemString:
		return true
	case itemIdent:
		return true // function / global returns a value
	case itemLeftBracket:
		return true // list or map literal
	}
	return false
}

func op(n ast.BinaryOpNode, name string) ast.BinaryOpNode {
	n.Name = name
	return n
}

func (t *tree) newBinaryOpNode(tok item, n1, n2 ast.Node) ast.Node {
	var bin = ast.BinaryOpNode{Meta: t.meta(tok.pos), Arg1: n1, Arg2: n2}
	switch tok.typ {
	case itemMul:
		return &ast.MulNode{op(bin, "*")}
	case itemDiv:
		return &ast.DivNode{op(bin, "/")}
	case itemMod:
		return &ast.ModNode{op(bin, "%")}
	case itemAdd:
		return &ast.AddNode{op(bin, "+")}
	case itemSub:
		return &ast.SubNode{op(bin, "-")}
	case itemEq:
		return &ast.EqNode{op(bin, "=")}
	case itemNotEq:
		return &ast.NotEqNode{op(bin, "!=")}
	case itemGt:
		return &ast.GtNode{op(bin, ">")}
	case itemGte:
		return &ast.GteNode{op(bin, ">=")}
	case itemLt:
		return &ast.LtNode{op(bin, "<")}
	case itemLte:
		return &ast.LteNode{op(bin, "<=")}
	case itemOr:
		return &ast.OrNode{op(bin, "or")}
	case itemAnd:
		return &ast.AndNode{op(bin, "and")}
	case itemElvis:
		return &ast.ElvisNode{op(bin, "?:")}
	case itemNullCoalesce:
		return &ast.NullCoalesceNode{op(bin, "??")}
	}
	panic("unimplemented")
}

func (t *tree) newUnaryOpNode(tok item, n1 ast.Node) ast.Node {
	switch tok.typ {
	case itemNot:
		return &ast.NotNode{Meta: t.meta(tok.pos), Arg: n1}
	case itemNegate:
		return &ast.NegateNode{Meta: t.meta(tok.pos), Arg: n1}
	}
	panic("unreachable")
}

func (t *tree) newValueNode(tok item) ast.Node {
	switch tok.typ {
	case itemNull:
		return &ast.NullNode{Meta: t.meta(tok.pos)}
	case itemBool:
		return &ast.BoolNode{Meta: t.meta(tok.pos), True: tok.val == "true"}
	case itemInteger:
		var base = 10
		if strings.HasPrefix(tok.val, "0x") {
			base = 16
		}
		value, err := strconv.ParseInt(tok.val, base, 64)
		if err != nil {
			t.error(err)
		}
		return &ast.IntNode{Meta: t.meta(tok.pos), Value: value}
	case itemFloat:
		// TODO: support scientific notation e.g. 6.02e23
		value, err := strconv.ParseFloat(tok.val, 64)
		if err != nil {
			t.error(err)
		}
		return &ast.FloatNode{Meta: t.meta(tok.pos), Value: value}
	case itemString:
		s, err := unquoteString(tok.val)
		if err != nil {
			t.errorf("error unquoting %s: %s", tok.val, err)
		}
		return &ast.StringNode{Meta: t.meta(tok.pos), Quoted: tok.val, Value: s}
	case itemLeftBracket:
		return t.parseListOrMap(tok)
	case itemDollarIdent:
		return t.parseDataRef(tok)
	case itemIdent:
		next := t.next()
		if next.typ != itemLeftParen {
			return t.newGlobalNode(tok, next)
		}
		return t.newFunctionNode(tok)
	}
	panic("unreachable")
}

func (t *tree) newGlobalNode(tok, next item) ast.Node {
	var name = tok.val
	for next.typ == itemDotIdent {
		name += next.val
		next = t.next()
	}
	t.backup()
	if value, ok := t.globals[name]; ok {
		return &ast.GlobalNode{Meta: t.meta(tok.pos), Name: name, Value: value}
	}
	t.errorf("global %q is undefined", name)
	return nil
}

func (t *tree) newFunctionNode(tok item) ast.Node {
	node := &ast.FunctionNode{Meta: t.meta(tok.pos), Name: tok.val}
	if t.peek().typ == itemRightParen {
		t.next()
		return node
	}
	for {
		node.Args = append(node.Args, t.parseExpr(0))
		switch tok := t.next(); tok.typ {
		case itemComma:
			// continue to get the next arg
		case itemRightParen:
			return node // all done
		case eof:
			t.errorf("unexpected eof reading function params")
		default:
			t.unexpected(tok, "reading function params")
		}
	}
}

// Helpers ----------

// next returns the next token.
func (t *tree) next() item {
	if t.peekCount > 0 {
		t.peekCount--
	} else {
		t.token[0] = t.lex.nextItem()
	}
	return t.token[t.peekCount]
}

func (t *tree) nextNonComment() item {
	for {
		if tok := t.next(); tok.typ != itemComment {
			return tok
		}
	}
}

// backup backs the input stream up one token.
func (t *tree) backup() {
	t.peekCount++
}

// backup2 backs the input stream up two tokens.
// The zeroth token is already there.
func (t *tree) backup2(t1 item) {
	t.token[1] = t1
	t.peekCount = 2
}

// peek returns but does not consume the next token.
func (t *tree) peek() item {
	if t.peekCount > 0 {
		return t.token[t.peekCount-1]
	}
	t.peekCount = 1
	t.token[0] = t.lex.nextItem()
	return t.token[0]
}

// recover is the handler that turns panics into returns from the top level of SoyFile or Expr.
func (t *tree) recover(errp *error) {
	e := recover()
	if e == nil {
		return
	}
	if _, ok := e.(runtime.Error); ok {
		panic(e)
	}
	t.lex = nil
	if str, ok := e.(string); ok {
		*errp = errors.New(str)
	} else {
		*errp = e.(error)
	}
}

// expect consumes the next token and guarantees it has the required type.
func (t *tree) expect(expected itemType, context string) item {
	token := t.next()
	if token.typ != expected {
		t.unexpected(token, fmt.Sprintf("%v (expected %v)", context, expected.String()))
	}
	return token
}

// unexpected complains about the token and terminates processing.
func (t *tree) unexpected(token item, context string) {
	if token.typ == itemError {
		t.errorf("lexical error: %v", token)
	}
	t.errorf("unexpected %v in %s", token, context)
}

// errorf formats the error and terminates processing.
func (t *tree) errorf(format string, args ...interface{}) {
	// get current token (taking account of backups)
	var tok = t.token[0]
	if t.peekCount > 0 {
		tok = t.token[t.peekCount-1]
	}
	t.root = nil
	format = fmt.Sprintf("template %s:%d:%d: %s", t.name,
		t.lex.lineNumber(tok.pos), t.lex.columnNumber(tok.pos), format)
	panic(fmt.Errorf(format, args...))
}

// error terminates processing.
func (t *tree) error(err error) {
	t.errorf("%s", err)
}

func isOneOf(tocheck itemType, against []itemType) bool {
	for _, x := range against {
		if tocheck == x {
			return true
		}
	}
	return false
}

func allSpace(str string) bool {
	for _, ch := range str {
		if !unicode.IsSpace(ch) {
			return false
		}
	}
	return true
}
