package server

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/vainilla/asm"
	"github.com/chazu/vainilla/vm"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "vainilla-lsp"

// LspServer provides editor support for .vm assembly files.
type LspServer struct {
	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server.
func NewLSP() *LspServer {
	s := &LspServer{
		docs:    make(map[string]string),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
		TextDocumentReferences: s.textDocumentReferences,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	commonlog.NewInfoMessage(0, "Vainilla LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{" "},
	}

	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true
	capabilities.ReferencesProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.mu.Lock()
			s.docs[string(uri)] = whole.Text
			s.mu.Unlock()

			s.publishDiagnostics(ctx, uri, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

func (s *LspServer) document(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	return completions(text, params.Position), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	return hover(text, params.Position), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	locs := definition(params.TextDocument.URI, text, params.Position)
	if len(locs) == 0 {
		return nil, nil
	}
	return locs, nil
}

func (s *LspServer) textDocumentReferences(ctx *glsp.Context, params *protocol.ReferenceParams) ([]protocol.Location, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	return references(params.TextDocument.URI, text, params.Position, params.Context.IncludeDeclaration), nil
}

// --- Diagnostics ---

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics(text),
	})
}

// diagnostics converts every assembly error in text to an LSP diagnostic.
func diagnostics(text string) []protocol.Diagnostic {
	diags := []protocol.Diagnostic{}
	for _, e := range asm.Diagnose(text) {
		start := 0
		if e.Column > 0 {
			start = e.Column - 1
		}
		severity := protocol.DiagnosticSeverityError
		source := lspName
		diags = append(diags, protocol.Diagnostic{
			Range:    span(e.Line, start, len(e.Token)),
			Severity: &severity,
			Source:   &source,
			Message:  e.Err.Error() + tokenSuffix(e.Token),
		})
	}
	return diags
}

func tokenSuffix(token string) string {
	if token == "" {
		return ""
	}
	return ": " + token
}

// --- Pure feature logic ---

// completions offers mnemonics at the start of a line and label names
// after a jump mnemonic.
func completions(text string, pos protocol.Position) []protocol.CompletionItem {
	line := lineAt(text, pos.Line)
	col := clampCol(line, pos.Character)
	before := line[:col]
	if i := strings.IndexByte(before, ';'); i >= 0 {
		return nil // inside a comment
	}

	fields := strings.Fields(before)
	prefix := ""
	if len(before) > 0 && !isSpace(before[len(before)-1]) && len(fields) > 0 {
		prefix = fields[len(fields)-1]
		fields = fields[:len(fields)-1]
	}

	var items []protocol.CompletionItem
	switch len(fields) {
	case 0:
		upper := strings.ToUpper(prefix)
		for _, name := range vm.Mnemonics() {
			if !strings.HasPrefix(name, upper) {
				continue
			}
			op, _ := vm.LookupMnemonic(name)
			info := vm.GetOpcodeInfo(op)
			kind := protocol.CompletionItemKindKeyword
			detail := stackEffect(info)
			nameCopy := name
			items = append(items, protocol.CompletionItem{
				Label:      name,
				Kind:       &kind,
				Detail:     &detail,
				InsertText: &nameCopy,
			})
		}

	case 1:
		op, ok := vm.LookupMnemonic(fields[0])
		if !ok || !op.IsJump() {
			return nil
		}
		for _, d := range asm.Declarations(text) {
			if !strings.HasPrefix(d.Name, prefix) {
				continue
			}
			kind := protocol.CompletionItemKindReference
			detail := fmt.Sprintf("label → instruction %d", d.Index)
			nameCopy := d.Name
			items = append(items, protocol.CompletionItem{
				Label:      d.Name,
				Kind:       &kind,
				Detail:     &detail,
				InsertText: &nameCopy,
			})
		}
	}
	return items
}

// hover describes the opcode or label under the cursor.
func hover(text string, pos protocol.Position) *protocol.Hover {
	word, _ := wordAt(text, pos)
	if word == "" {
		return nil
	}

	var b strings.Builder
	if op, ok := vm.LookupMnemonic(word); ok {
		info := vm.GetOpcodeInfo(op)
		fmt.Fprintf(&b, "**%s**", info.Name)
		if info.Operand != vm.OperandNone {
			fmt.Fprintf(&b, " _%s_", info.Operand)
		}
		fmt.Fprintf(&b, "\n\n%s\n\nStack: %s", info.Doc, stackEffect(info))
	} else {
		decl, ok := findDeclaration(text, word)
		if !ok {
			return nil
		}
		fmt.Fprintf(&b, "**%s:**\n\nLabel at line %d, resolves to instruction %d", decl.Name, decl.Line, decl.Index)
	}

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

// definition locates the declaration of the label under the cursor.
func definition(uri protocol.DocumentUri, text string, pos protocol.Position) []protocol.Location {
	word, _ := wordAt(text, pos)
	if word == "" {
		return nil
	}
	decl, ok := findDeclaration(text, word)
	if !ok {
		return nil
	}
	return []protocol.Location{{
		URI:   uri,
		Range: span(decl.Line, decl.Col-1, len(decl.Name)),
	}}
}

// references lists every jump to the label under the cursor.
func references(uri protocol.DocumentUri, text string, pos protocol.Position, includeDecl bool) []protocol.Location {
	word, _ := wordAt(text, pos)
	if word == "" {
		return nil
	}
	decl, declared := findDeclaration(text, word)

	var locs []protocol.Location
	if includeDecl && declared {
		locs = append(locs, protocol.Location{URI: uri, Range: span(decl.Line, decl.Col-1, len(decl.Name))})
	}
	for _, ref := range asm.References(text) {
		if ref.Name == word {
			locs = append(locs, protocol.Location{URI: uri, Range: span(ref.Line, ref.Col-1, len(ref.Name))})
		}
	}
	sort.SliceStable(locs, func(i, j int) bool {
		return locs[i].Range.Start.Line < locs[j].Range.Start.Line
	})
	return locs
}

func findDeclaration(text, name string) (asm.Declaration, bool) {
	for _, d := range asm.Declarations(text) {
		if d.Name == name {
			return d, true
		}
	}
	return asm.Declaration{}, false
}

func stackEffect(info vm.OpcodeInfo) string {
	return fmt.Sprintf("pops %d, pushes %d", info.StackPop, info.StackPush)
}

// --- Text extraction helpers ---

// span builds a single-line range from a 1-based line and 0-based column.
func span(line, col, length int) protocol.Range {
	l := protocol.UInteger(0)
	if line > 0 {
		l = protocol.UInteger(line - 1)
	}
	return protocol.Range{
		Start: protocol.Position{Line: l, Character: protocol.UInteger(col)},
		End:   protocol.Position{Line: l, Character: protocol.UInteger(col + length)},
	}
}

func lineAt(text string, n protocol.UInteger) string {
	lines := strings.Split(text, "\n")
	if int(n) >= len(lines) {
		return ""
	}
	return strings.TrimSuffix(lines[n], "\r")
}

func clampCol(line string, c protocol.UInteger) int {
	if int(c) > len(line) {
		return len(line)
	}
	return int(c)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\v' || c == '\f' || c == '\r'
}

func isWordChar(c byte) bool {
	return !isSpace(c) && c != ':' && c != ';'
}

// wordAt returns the token under the cursor, excluding a trailing ':' and
// any comment, plus its starting column.
func wordAt(text string, pos protocol.Position) (string, int) {
	line := lineAt(text, pos.Line)
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	col := clampCol(line, pos.Character)

	start := col
	for start > 0 && isWordChar(line[start-1]) {
		start--
	}
	end := col
	for end < len(line) && isWordChar(line[end]) {
		end++
	}
	if start == end {
		return "", start
	}
	return line[start:end], start
}

func boolPtr(b bool) *bool {
	return &b
}
