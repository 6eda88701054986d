package sandbox

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"regexp"
	"sort"
	"strings"
)

// allowedStdlib are the only standard packages generated code may import.
// Every one is imported into the wrapper, so code may use them without an
// import clause.
var allowedStdlib = map[string]string{
	"fmt":     "fmt.Sprint",
	"math":    "math.Abs",
	"sort":    "sort.Ints",
	"strings": "strings.TrimSpace",
	"strconv": "strconv.Itoa",
	"time":    "time.Now",
}

// Import paths of the packages bound to the run.
const (
	framePkg = "vizloom/frame"
	vizPkg   = "vizloom/viz"
	stPkg    = "vizloom/st"
)

var (
	packageLine  = regexp.MustCompile(`(?m)^\s*package\s+\w+\s*(//.*)?$`)
	importSingle = regexp.MustCompile(`(?m)^\s*import\s+((?:[\w.]+\s+)?"[^"]*")\s*(//.*)?$`)
	importBlock  = regexp.MustCompile(`(?ms)^\s*import\s*\((.*?)\)`)
	importSpec   = regexp.MustCompile(`^(?:([\w.]+)\s+)?"([^"]*)"$`)
	declaresMain = regexp.MustCompile(`(?m)^func\s+main\s*\(\s*\)`)
	declaresRun  = regexp.MustCompile(`(?m)^func\s+Run\s*\(`)
	lineComment  = regexp.MustCompile(`\s*//.*$`)
)

type importDecl struct {
	name string
	path string
}

func (d importDecl) String() string {
	if d.name == "" {
		return fmt.Sprintf("%q", d.path)
	}
	return fmt.Sprintf("%s %q", d.name, d.path)
}

// errGoroutine rejects code that could panic outside the recovered run.
var errGoroutine = errors.New("goroutines are not allowed")

// Prepare turns model-written code into a complete main package exposing
// func Run(df *frame.Frame). Bare statements become Run's body, with any
// top-level func or type declarations moved out of it; a file that declares
// main gets a Run that stores df in a package variable and calls the renamed
// main. Code that starts goroutines is rejected.
func Prepare(code string) (string, error) {
	body, imports, err := splitImports(code)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(body) == "" {
		return "", fmt.Errorf("no code to run")
	}

	var b strings.Builder
	b.WriteString("package main\n\nimport (\n")
	for _, p := range stdlibNames() {
		fmt.Fprintf(&b, "\t%q\n", p)
	}
	fmt.Fprintf(&b, "\n\t%q\n\t%q\n\t%q\n", framePkg, stPkg, vizPkg)
	for _, d := range imports {
		fmt.Fprintf(&b, "\t%s\n", d)
	}
	b.WriteString(")\n\nvar (\n")
	for _, p := range stdlibNames() {
		fmt.Fprintf(&b, "\t_ = %s\n", allowedStdlib[p])
	}
	b.WriteString("\t_ = st.Plot\n\t_ = viz.Bar\n\t_ = (*frame.Frame)(nil)\n)\n\n")

	switch {
	case declaresRun.MatchString(body):
		b.WriteString(body)
	case declaresMain.MatchString(body):
		// yaegi runs main on Eval, before df is bound; rename it
		b.WriteString("var df *frame.Frame\n\n")
		b.WriteString(declaresMain.ReplaceAllString(body, "func generatedMain()"))
		b.WriteString("\n\nfunc Run(d *frame.Frame) {\n\tdf = d\n\tgeneratedMain()\n}\n")
	default:
		decls, stmts := hoistDecls(body)
		if len(decls) == 0 {
			b.WriteString("func Run(df *frame.Frame) {\n")
			b.WriteString(stmts)
			b.WriteString("\n}\n")
			break
		}
		// helpers may read df, so it lives at package level
		b.WriteString("var df *frame.Frame\n\n")
		for _, d := range decls {
			b.WriteString(d)
			b.WriteString("\n\n")
		}
		b.WriteString("func Run(d *frame.Frame) {\n\tdf = d\n")
		b.WriteString(stmts)
		b.WriteString("\n}\n")
	}
	src := b.String()
	if err := checkConcurrency(src); err != nil {
		return "", err
	}
	return src, nil
}

// checkConcurrency rejects go statements and time.AfterFunc. A panic in a
// goroutine the code starts itself cannot be recovered and would take the
// whole process down. Source that does not parse is left to the compiler.
func checkConcurrency(src string) error {
	f, err := parser.ParseFile(token.NewFileSet(), "", src, 0)
	if err != nil {
		return nil
	}
	timeNames := map[string]bool{"time": true}
	for _, imp := range f.Imports {
		if imp.Name != nil && imp.Path.Value == `"time"` {
			timeNames[imp.Name.Name] = true
		}
	}
	var found error
	ast.Inspect(f, func(n ast.Node) bool {
		if found != nil {
			return false
		}
		switch x := n.(type) {
		case *ast.GoStmt:
			found = errGoroutine
		case *ast.SelectorExpr:
			if id, ok := x.X.(*ast.Ident); ok && timeNames[id.Name] && x.Sel.Name == "AfterFunc" {
				found = fmt.Errorf("%w (time.AfterFunc)", errGoroutine)
			}
		}
		return true
	})
	return found
}

type scannedToken struct {
	off int
	tok token.Token
}

// hoistDecls splits bare code into top-level func and type declarations and
// the remaining statements. Only declarations that start a statement at
// nesting depth zero are moved; func literals stay where they are.
func hoistDecls(body string) ([]string, string) {
	src := []byte(body)
	fset := token.NewFileSet()
	file := fset.AddFile("", fset.Base(), len(src))
	var sc scanner.Scanner
	sc.Init(file, src, nil, 0)

	var toks []scannedToken
	for {
		pos, tok, _ := sc.Scan()
		if tok == token.EOF {
			break
		}
		toks = append(toks, scannedToken{off: file.Offset(pos), tok: tok})
	}

	var decls []string
	var rest strings.Builder
	last, depth := 0, 0
	atStmt := true
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if depth == 0 && atStmt && startsDecl(toks, i) {
			j, end := declEnd(toks, i, len(src))
			rest.WriteString(body[last:t.off])
			decls = append(decls, strings.TrimSpace(body[t.off:end]))
			last, i, atStmt = end, j, true
			continue
		}
		depth += nesting(t.tok)
		atStmt = depth == 0 && t.tok == token.SEMICOLON
	}
	rest.WriteString(body[last:])
	return decls, strings.TrimSpace(rest.String())
}

func startsDecl(toks []scannedToken, i int) bool {
	switch toks[i].tok {
	case token.TYPE:
		return true
	case token.FUNC:
		return i+1 < len(toks) && toks[i+1].tok == token.IDENT
	}
	return false
}

// declEnd returns the index of the semicolon closing the declaration at i
// and the byte offset where it ends.
func declEnd(toks []scannedToken, i, size int) (int, int) {
	depth := 0
	for j := i; j < len(toks); j++ {
		depth += nesting(toks[j].tok)
		if depth == 0 && toks[j].tok == token.SEMICOLON {
			return j, toks[j].off
		}
	}
	return len(toks), size
}

func nesting(tok token.Token) int {
	switch tok {
	case token.LBRACE, token.LPAREN, token.LBRACK:
		return 1
	case token.RBRACE, token.RPAREN, token.RBRACK:
		return -1
	}
	return 0
}

// splitImports strips package and import clauses. Plain imports of allowed
// packages are dropped since the wrapper already has them; aliased ones are
// kept. Anything else is forbidden.
func splitImports(code string) (string, []importDecl, error) {
	code = strings.ReplaceAll(code, "\r\n", "\n")
	code = packageLine.ReplaceAllString(code, "")

	var specs []string
	code = importBlock.ReplaceAllStringFunc(code, func(m string) string {
		inner := importBlock.FindStringSubmatch(m)[1]
		for _, line := range strings.Split(inner, "\n") {
			line = strings.TrimSpace(lineComment.ReplaceAllString(line, ""))
			if line != "" {
				specs = append(specs, line)
			}
		}
		return ""
	})
	code = importSingle.ReplaceAllStringFunc(code, func(m string) string {
		specs = append(specs, importSingle.FindStringSubmatch(m)[1])
		return ""
	})

	var kept []importDecl
	var forbidden []string
	seen := map[string]bool{}
	for _, s := range specs {
		m := importSpec.FindStringSubmatch(strings.TrimSpace(s))
		if m == nil {
			forbidden = append(forbidden, s)
			continue
		}
		d := importDecl{name: m[1], path: m[2]}
		if !allowed(d.path) {
			forbidden = append(forbidden, d.path)
			continue
		}
		if d.name == "" || d.name == "_" || seen[d.String()] {
			continue
		}
		seen[d.String()] = true
		kept = append(kept, d)
	}
	if len(forbidden) > 0 {
		return "", nil, fmt.Errorf("forbidden imports: %s (allowed: %s)",
			strings.Join(forbidden, ", "), strings.Join(allowedList(), ", "))
	}
	return strings.TrimSpace(code), kept, nil
}

func allowed(path string) bool {
	if _, ok := allowedStdlib[path]; ok {
		return true
	}
	return path == framePkg || path == vizPkg || path == stPkg
}

func stdlibNames() []string {
	out := make([]string, 0, len(allowedStdlib))
	for p := range allowedStdlib {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func allowedList() []string {
	return append(stdlibNames(), framePkg, stPkg, vizPkg)
}
