package oracle

import (
	"go/ast"
	"go/parser"
	"go/token"
	"math"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/tools/cover"

	"github.com/xkilldash9x/covergen/api/schemas"
)

// passMarker matches the summary line go test prints for the sandbox
// package when all of its tests pass.
var passMarker = regexp.MustCompile(`(?m)^ok\s+` + regexp.QuoteMeta(modulePath) + `(?:\s|$)`)

// passed reports whether the run exited cleanly and go test summarised the
// sandbox package as ok. Test output alone can never mark a run as passing.
func passed(out runOutput) bool {
	if out.exitCode != 0 {
		return false
	}
	return passMarker.MatchString(out.stdout) || passMarker.MatchString(out.stderr)
}

// findTargetProfile returns the profile for the target file, if present.
func findTargetProfile(profiles []*cover.Profile) *cover.Profile {
	for _, p := range profiles {
		if p.FileName == modulePath+"/"+sourceFile || strings.HasSuffix(p.FileName, "/"+sourceFile) {
			return p
		}
	}
	return nil
}

// summarize computes coverage percent and missed statement lines. src is the
// normalized target source used to locate statement starts.
func summarize(p *cover.Profile, src string) (float64, []int) {
	var total, covered int
	for _, b := range p.Blocks {
		total += b.NumStmt
		if b.Count > 0 {
			covered += b.NumStmt
		}
	}
	percent := 100.0
	if total > 0 {
		percent = round2(float64(covered) / float64(total) * 100)
	}
	return percent, missedLines(p.Blocks, src)
}

type position struct{ line, col int }

func (a position) before(b position) bool {
	return a.line < b.line || (a.line == b.line && a.col < b.col)
}

func inBlock(pos position, b cover.ProfileBlock) bool {
	start := position{b.StartLine, b.StartCol}
	end := position{b.EndLine, b.EndCol}
	return !pos.before(start) && pos.before(end)
}

// missedLines returns the sorted start lines of statements that fall only in
// blocks that never ran. When the source cannot be parsed it falls back to
// every line spanned by an unexecuted block.
func missedLines(blocks []cover.ProfileBlock, src string) []int {
	stmts, err := statementStarts(src)
	if err != nil {
		return blockLines(blocks)
	}

	seen := make(map[int]struct{})
	for _, pos := range stmts {
		hit, miss := false, false
		for _, b := range blocks {
			if !inBlock(pos, b) {
				continue
			}
			if b.Count > 0 {
				hit = true
				break
			}
			miss = true
		}
		if miss && !hit {
			seen[pos.line] = struct{}{}
		}
	}
	return sortedLines(seen)
}

// statementStarts lists the position of every non-block statement in src.
func statementStarts(src string) ([]position, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, sourceFile, src, parser.SkipObjectResolution)
	if err != nil {
		return nil, err
	}
	var out []position
	ast.Inspect(f, func(n ast.Node) bool {
		stmt, ok := n.(ast.Stmt)
		if !ok {
			return true
		}
		switch stmt.(type) {
		case *ast.BlockStmt, *ast.EmptyStmt, *ast.LabeledStmt, *ast.CaseClause, *ast.CommClause:
			return true
		}
		p := fset.Position(stmt.Pos())
		out = append(out, position{p.Line, p.Column})
		return true
	})
	return out, nil
}

func blockLines(blocks []cover.ProfileBlock) []int {
	hit := make(map[int]struct{})
	for _, b := range blocks {
		if b.Count > 0 {
			for l := b.StartLine; l <= b.EndLine; l++ {
				hit[l] = struct{}{}
			}
		}
	}
	seen := make(map[int]struct{})
	for _, b := range blocks {
		if b.Count > 0 {
			continue
		}
		for l := b.StartLine; l <= b.EndLine; l++ {
			if _, ok := hit[l]; !ok {
				seen[l] = struct{}{}
			}
		}
	}
	return sortedLines(seen)
}

func sortedLines(set map[int]struct{}) []int {
	lines := make([]int, 0, len(set))
	for l := range set {
		lines = append(lines, l)
	}
	sort.Ints(lines)
	return lines
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// buildResult turns a parsed profile and the captured streams into a result.
func buildResult(p *cover.Profile, src string, out runOutput) *schemas.CoverageResult {
	percent, missed := summarize(p, src)
	return &schemas.CoverageResult{
		Success:         passed(out),
		CoveragePercent: percent,
		MissedLines:     missed,
	}
}
